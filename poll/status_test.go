package poll

import (
	"testing"

	"github.com/Oberon01/tonertrack-v2/store"
	"github.com/Oberon01/tonertrack-v2/supplies"
)

func consumable(name string, pct int) store.ConsumableLevel {
	c := store.ConsumableLevel{Name: name, Category: supplies.Categorize(name), Percent: pct}
	if pct >= 0 {
		c.Display = "numeric"
	} else {
		c.Display = "Unknown"
	}
	return c
}

func reachableSnap(levels ...store.ConsumableLevel) Snapshot {
	return Snapshot{Address: "10.0.0.9", Reachable: true, Consumables: levels}
}

func TestStatusThresholds(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		want store.Status
	}{
		{"no data", reachableSnap(), store.StatusOK},
		{"healthy", reachableSnap(consumable("Black Toner", 80)), store.StatusOK},
		{"low toner is error", reachableSnap(consumable("Black Toner", 8)), store.StatusError},
		{"boundary 10 is warning", reachableSnap(consumable("Black Toner", 10)), store.StatusWarning},
		{"15 is warning", reachableSnap(consumable("Black Toner", 15)), store.StatusWarning},
		{"boundary 20 is ok", reachableSnap(consumable("Black Toner", 20)), store.StatusOK},
		{"worst supply wins", reachableSnap(consumable("Black Toner", 80), consumable("Cyan Toner", 5)), store.StatusError},
		{"unknown level never alarms", reachableSnap(consumable("Drum Unit", -1)), store.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EvaluateStatus(tc.snap); got != tc.want {
				t.Errorf("EvaluateStatus = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestOfflineExactlyWhenUnreachable(t *testing.T) {
	unreachable := Snapshot{
		Address:     "10.0.0.9",
		Reachable:   false,
		Consumables: []store.ConsumableLevel{consumable("Black Toner", 95)},
	}
	if got := EvaluateStatus(unreachable); got != store.StatusOffline {
		t.Errorf("unreachable snapshot = %s, want Offline", got)
	}

	reachable := reachableSnap(consumable("Black Toner", 1))
	if got := EvaluateStatus(reachable); got == store.StatusOffline {
		t.Error("reachable snapshot must never be Offline, however bad the supplies")
	}
}

func TestAlertSeverities(t *testing.T) {
	critical := Snapshot{
		Address:   "10.0.0.9",
		Reachable: true,
		Alerts:    map[string]store.Severity{"Fuser failure": store.SeverityCritical},
	}
	if got := EvaluateStatus(critical); got != store.StatusError {
		t.Errorf("critical alert = %s, want Error", got)
	}

	warning := Snapshot{
		Address:   "10.0.0.9",
		Reachable: true,
		Alerts:    map[string]store.Severity{"Paper low": store.SeverityWarning},
	}
	if got := EvaluateStatus(warning); got != store.StatusWarning {
		t.Errorf("non-critical alert = %s, want Warning", got)
	}

	// critical alert outranks healthy supplies
	critical.Consumables = []store.ConsumableLevel{consumable("Black Toner", 100)}
	if got := EvaluateStatus(critical); got != store.StatusError {
		t.Errorf("critical alert with full toner = %s, want Error", got)
	}
}

// rank orders statuses from best to worst for the monotonicity property.
func rank(s store.Status) int {
	switch s {
	case store.StatusOK:
		return 0
	case store.StatusWarning:
		return 1
	case store.StatusError:
		return 2
	default:
		return 3
	}
}

func TestStatusMonotonicInSupplyLevel(t *testing.T) {
	// lowering a supply level must never improve the status
	for lower := 0; lower <= 100; lower++ {
		for higher := lower; higher <= 100; higher++ {
			low := EvaluateStatus(reachableSnap(consumable("Black Toner", lower)))
			high := EvaluateStatus(reachableSnap(consumable("Black Toner", higher)))
			if rank(low) < rank(high) {
				t.Fatalf("level %d%% yields %s, better than %s at %d%%", lower, low, high, higher)
			}
		}
	}
}
