package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Oberon01/tonertrack-v2/logger"
	"github.com/Oberon01/tonertrack-v2/store"
)

// ErrAlreadyPolling is returned when a fleet-wide poll is requested while
// one is still running. Callers retry later; polls are never queued.
var ErrAlreadyPolling = errors.New("poll already in progress")

// State of the coordinator.
type State int32

const (
	StateIdle State = iota
	StatePolling
)

func (s State) String() string {
	if s == StatePolling {
		return "Polling"
	}
	return "Idle"
}

// Coordinator schedules device polls: fleet-wide fan-out with bounded
// concurrency and single-flight semantics, plus on-demand single-device
// polls. Results land in the repository independently as they complete.
type Coordinator struct {
	repo    *store.Repository
	builder *Builder
	log     *logger.Logger

	concurrency      int
	offlineThreshold int

	now     func() time.Time
	polling atomic.Bool

	// OnStatusChange, when set, is invoked after a poll lands a record
	// whose status differs from before. It must not block.
	OnStatusChange func(rec *store.PrinterRecord, previous store.Status)
}

// NewCoordinator creates a coordinator. concurrency bounds the fleet-wide
// fan-out; offlineThreshold is the number of consecutive failed polls
// before a device is marked Offline (minimum 1).
func NewCoordinator(repo *store.Repository, builder *Builder, concurrency, offlineThreshold int, log *logger.Logger) *Coordinator {
	if concurrency <= 0 {
		concurrency = 8
	}
	if offlineThreshold <= 0 {
		offlineThreshold = 1
	}
	return &Coordinator{
		repo:             repo,
		builder:          builder,
		log:              log,
		concurrency:      concurrency,
		offlineThreshold: offlineThreshold,
		now:              time.Now,
	}
}

// State reports whether a fleet-wide poll is running.
func (c *Coordinator) State() State {
	if c.polling.Load() {
		return StatePolling
	}
	return StateIdle
}

// PollAll polls every known device and blocks until all have been attempted.
// Only one fleet-wide poll runs at a time; a concurrent call returns
// ErrAlreadyPolling immediately. Individual device failures do not abort
// the sweep.
func (c *Coordinator) PollAll(ctx context.Context) error {
	if !c.polling.CompareAndSwap(false, true) {
		return ErrAlreadyPolling
	}
	defer c.polling.Store(false)

	records := c.repo.List()
	if c.log != nil {
		c.log.Info("Fleet poll started", "devices", len(records), "concurrency", c.concurrency)
	}
	started := c.now()

	jobs := make(chan string)
	var wg sync.WaitGroup
	workers := c.concurrency
	if workers > len(records) && len(records) > 0 {
		workers = len(records)
	}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for addr := range jobs {
				if _, err := c.pollAddress(ctx, addr); err != nil && c.log != nil {
					c.log.Warn("Poll result not stored", "address", addr, "error", err)
				}
			}
		}()
	}

	for _, rec := range records {
		jobs <- rec.Address
	}
	close(jobs)
	wg.Wait()

	if c.log != nil {
		c.log.Info("Fleet poll finished", "devices", len(records), "elapsed", c.now().Sub(started).Round(time.Millisecond))
	}
	return nil
}

// PollOne polls a single known device and returns its updated record. It
// may run alongside a fleet-wide poll; the repository serializes their
// writes.
func (c *Coordinator) PollOne(ctx context.Context, addr string) (*store.PrinterRecord, error) {
	if _, err := c.repo.Get(addr); err != nil {
		return nil, err
	}
	return c.pollAddress(ctx, addr)
}

// pollAddress builds a snapshot for addr and folds it into the repository.
// The device is queried with its own stored community string.
func (c *Coordinator) pollAddress(ctx context.Context, addr string) (*store.PrinterRecord, error) {
	community := ""
	if rec, err := c.repo.Get(addr); err == nil {
		community = rec.Community
	}
	snap := c.builder.Build(ctx, addr, community)
	now := c.now()

	var previous store.Status
	rec, err := c.repo.Apply(addr, store.ApplyOp{Actor: store.ActorSystem}, func(r *store.PrinterRecord) error {
		previous = r.Status

		if !snap.Reachable {
			r.OfflineAttempts++
			if r.OfflineAttempts >= c.offlineThreshold {
				r.Status = store.StatusOffline
			}
			r.LastPolledAt = now
			return nil
		}

		r.OfflineAttempts = 0
		r.Model = snap.Model
		r.Serial = snap.Serial
		r.Consumables = snap.Consumables
		r.ActiveAlerts = snap.Alerts
		if snap.HasPageCount {
			// before LastPolledAt moves: the tracker uses it to tell a
			// brand-new record from one with prior polls
			TrackUsage(r, snap.PageCount, now)
		}
		r.Status = EvaluateStatus(snap)
		r.LastPolledAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.log != nil {
		c.log.Debug("Device polled", "address", addr, "status", rec.Status, "reachable", snap.Reachable)
	}
	if c.OnStatusChange != nil && rec.Status != previous {
		c.OnStatusChange(rec, previous)
	}
	return rec, nil
}

// RunAutoPoll triggers a fleet-wide poll every interval until ctx is
// canceled. A tick that arrives while a poll is still running is skipped
// rather than queued.
func (c *Coordinator) RunAutoPoll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.PollAll(ctx); errors.Is(err, ErrAlreadyPolling) {
				if c.log != nil {
					c.log.Debug("Skipping auto-poll, previous poll still running")
				}
			}
		}
	}
}
