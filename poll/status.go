package poll

import "github.com/Oberon01/tonertrack-v2/store"

// Supply-level thresholds, in percent.
const (
	errorLevel   = 10
	warningLevel = 20
)

// EvaluateStatus maps a snapshot to a health status. Pure function; first
// match wins:
//
//  1. unreachable -> Offline, regardless of any stale supply data
//  2. any critical alert -> Error
//  3. any numeric supply level below 10% -> Error
//  4. any numeric level in [10%, 20%), or any non-critical alert -> Warning
//  5. otherwise OK
//
// Non-numeric supply readings never trigger Error or Warning by themselves.
func EvaluateStatus(snap Snapshot) store.Status {
	if !snap.Reachable {
		return store.StatusOffline
	}

	for _, sev := range snap.Alerts {
		if sev == store.SeverityCritical {
			return store.StatusError
		}
	}

	warning := len(snap.Alerts) > 0
	for _, c := range snap.Consumables {
		if !c.Numeric() {
			continue
		}
		if c.Percent < errorLevel {
			return store.StatusError
		}
		if c.Percent < warningLevel {
			warning = true
		}
	}

	if warning {
		return store.StatusWarning
	}
	return store.StatusOK
}
