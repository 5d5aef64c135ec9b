package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Oberon01/tonertrack-v2/snmp"
	"github.com/Oberon01/tonertrack-v2/store"
)

func openTestRepo(t *testing.T) *store.Repository {
	t.Helper()
	repo, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	return repo
}

func seedPrinter(t *testing.T, repo *store.Repository, addr string) {
	t.Helper()
	_, err := repo.Apply(addr, store.ApplyOp{Actor: store.ActorUser, AllowCreate: true}, func(r *store.PrinterRecord) error {
		r.DisplayName = addr
		return nil
	})
	if err != nil {
		t.Fatalf("seed %s: %v", addr, err)
	}
}

func TestPollAllStoresResults(t *testing.T) {
	fc := newFakeClient()
	fc.addPrinter("10.0.0.1", "HP LaserJet", "SN1", "1000", map[string]int{"Black Toner": 90})
	fc.addPrinter("10.0.0.2", "Kyocera M3550", "SN2", "2000", map[string]int{"Black Toner": 5})
	fc.down["10.0.0.3"] = true

	repo := openTestRepo(t)
	for _, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		seedPrinter(t, repo, addr)
	}

	c := NewCoordinator(repo, NewBuilder(fc, nil), 2, 1, nil)
	if err := c.PollAll(context.Background()); err != nil {
		t.Fatalf("PollAll: %v", err)
	}

	rec, _ := repo.Get("10.0.0.1")
	if rec.Status != store.StatusOK || rec.Model != "HP LaserJet" || rec.PageCount != 1000 {
		t.Errorf("healthy device: status=%v model=%q pages=%d", rec.Status, rec.Model, rec.PageCount)
	}
	rec, _ = repo.Get("10.0.0.2")
	if rec.Status != store.StatusError {
		t.Errorf("5%% toner should be Error, got %v", rec.Status)
	}
	rec, _ = repo.Get("10.0.0.3")
	if rec.Status != store.StatusOffline || rec.OfflineAttempts != 1 {
		t.Errorf("unreachable device: status=%v attempts=%d", rec.Status, rec.OfflineAttempts)
	}
}

func TestPollAllSingleFlight(t *testing.T) {
	fc := newFakeClient()
	fc.addPrinter("10.0.0.1", "HP LaserJet", "SN1", "1000", nil)
	fc.block = make(chan struct{})

	repo := openTestRepo(t)
	seedPrinter(t, repo, "10.0.0.1")

	c := NewCoordinator(repo, NewBuilder(fc, nil), 1, 1, nil)

	done := make(chan error, 1)
	go func() { done <- c.PollAll(context.Background()) }()

	// wait until the first poll is inside a device query
	deadline := time.After(2 * time.Second)
	for c.State() != StatePolling {
		select {
		case <-deadline:
			t.Fatal("poll never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := c.PollAll(context.Background()); !errors.Is(err, ErrAlreadyPolling) {
		t.Fatalf("concurrent PollAll = %v, want ErrAlreadyPolling", err)
	}

	close(fc.block)
	if err := <-done; err != nil {
		t.Fatalf("first PollAll: %v", err)
	}
	if c.State() != StateIdle {
		t.Error("coordinator should return to Idle")
	}

	// the guard releases: a fresh poll is accepted again
	if err := c.PollAll(context.Background()); err != nil {
		t.Fatalf("PollAll after completion: %v", err)
	}
}

func TestPollOneUnknownAddress(t *testing.T) {
	repo := openTestRepo(t)
	c := NewCoordinator(repo, NewBuilder(newFakeClient(), nil), 1, 1, nil)

	_, err := c.PollOne(context.Background(), "10.9.9.9")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("PollOne unknown = %v, want ErrNotFound", err)
	}
}

func TestOfflineThresholdDelaysOffline(t *testing.T) {
	fc := newFakeClient()
	fc.down["10.0.0.1"] = true

	repo := openTestRepo(t)
	seedPrinter(t, repo, "10.0.0.1")

	c := NewCoordinator(repo, NewBuilder(fc, nil), 1, 3, nil)

	for i := 1; i <= 2; i++ {
		rec, err := c.PollOne(context.Background(), "10.0.0.1")
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		if rec.Status == store.StatusOffline {
			t.Fatalf("marked Offline after %d failures, threshold is 3", i)
		}
		if rec.OfflineAttempts != i {
			t.Fatalf("attempts = %d after poll %d", rec.OfflineAttempts, i)
		}
	}

	rec, err := c.PollOne(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("third poll: %v", err)
	}
	if rec.Status != store.StatusOffline {
		t.Errorf("third consecutive failure should mark Offline, got %v", rec.Status)
	}

	// a successful poll resets the counter and clears the status
	fc.addPrinter("10.0.0.1", "HP LaserJet", "SN1", "100", nil)
	delete(fc.down, "10.0.0.1")
	rec, err = c.PollOne(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("recovery poll: %v", err)
	}
	if rec.OfflineAttempts != 0 || rec.Status == store.StatusOffline {
		t.Errorf("recovery: attempts=%d status=%v", rec.OfflineAttempts, rec.Status)
	}
}

func TestOnStatusChangeFires(t *testing.T) {
	fc := newFakeClient()
	fc.addPrinter("10.0.0.1", "HP LaserJet", "SN1", "100", map[string]int{"Black Toner": 90})

	repo := openTestRepo(t)
	seedPrinter(t, repo, "10.0.0.1")

	c := NewCoordinator(repo, NewBuilder(fc, nil), 1, 1, nil)

	type transition struct {
		from, to store.Status
	}
	var seen []transition
	c.OnStatusChange = func(rec *store.PrinterRecord, previous store.Status) {
		seen = append(seen, transition{previous, rec.Status})
	}

	// Unknown -> OK
	if _, err := c.PollOne(context.Background(), "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	// OK -> OK: no callback
	if _, err := c.PollOne(context.Background(), "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	// toner runs out: OK -> Error
	fc.mu.Lock()
	fc.values["10.0.0.1"][snmp.PrtMarkerSuppliesLevel+".1"] = "4"
	fc.mu.Unlock()
	if _, err := c.PollOne(context.Background(), "10.0.0.1"); err != nil {
		t.Fatal(err)
	}

	want := []transition{
		{store.StatusUnknown, store.StatusOK},
		{store.StatusOK, store.StatusError},
	}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, seen[i], want[i])
		}
	}
}

// communityFake records which community strings polls authenticate with.
type communityFake struct {
	*fakeClient
	commMu sync.Mutex
	seen   []string
}

func (c *communityFake) WithCommunity(s string) snmp.Client {
	c.commMu.Lock()
	c.seen = append(c.seen, s)
	c.commMu.Unlock()
	return c.fakeClient
}

func TestPollUsesRecordCommunity(t *testing.T) {
	fc := &communityFake{fakeClient: newFakeClient()}
	fc.addPrinter("10.0.0.1", "HP LaserJet", "SN1", "100", nil)

	repo := openTestRepo(t)
	_, err := repo.Apply("10.0.0.1", store.ApplyOp{Actor: store.ActorUser, AllowCreate: true}, func(r *store.PrinterRecord) error {
		r.Community = "s3cret"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	c := NewCoordinator(repo, NewBuilder(fc, nil), 1, 1, nil)
	if _, err := c.PollOne(context.Background(), "10.0.0.1"); err != nil {
		t.Fatal(err)
	}

	fc.commMu.Lock()
	defer fc.commMu.Unlock()
	if len(fc.seen) != 1 || fc.seen[0] != "s3cret" {
		t.Fatalf("communities used = %v, want [s3cret]", fc.seen)
	}
}

func TestUsageDeltaThroughCoordinator(t *testing.T) {
	fc := newFakeClient()
	fc.addPrinter("10.0.0.1", "HP LaserJet", "SN1", "1000", nil)

	repo := openTestRepo(t)
	seedPrinter(t, repo, "10.0.0.1")

	c := NewCoordinator(repo, NewBuilder(fc, nil), 1, 1, nil)
	base := time.Date(2026, time.August, 10, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	if _, err := c.PollOne(context.Background(), "10.0.0.1"); err != nil {
		t.Fatal(err)
	}

	fc.mu.Lock()
	fc.values["10.0.0.1"][snmp.PrtMarkerLifeCount] = "1250"
	fc.mu.Unlock()
	base = base.Add(24 * time.Hour)

	rec, err := c.PollOne(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	period := rec.UsageHistory["2026-08"]
	if period.Delta != 250 || period.Anomaly {
		t.Errorf("august usage = %+v, want delta 250", period)
	}

	hist, err := repo.UsageHistory("10.0.0.1")
	if err != nil || len(hist) != 1 || hist[0].Period != "2026-08" {
		t.Errorf("repository history = %v (%v)", hist, err)
	}
}
