// Package monitor assembles the polling engine, repository, and discovery
// into the fleet-facing operations: record management, on-demand and
// fleet-wide polls, usage history, and discovery sync.
package monitor

import (
	"context"
	"net"

	"github.com/Oberon01/tonertrack-v2/discovery"
	"github.com/Oberon01/tonertrack-v2/logger"
	"github.com/Oberon01/tonertrack-v2/poll"
	"github.com/Oberon01/tonertrack-v2/store"
)

// Monitor is the fleet facade the entrypoint (and any future API surface)
// drives. All durable state flows through the repository.
type Monitor struct {
	repo    *store.Repository
	coord   *poll.Coordinator
	browser *discovery.Browser
	log     *logger.Logger
}

// New wires the facade. browser may be nil when discovery is disabled.
func New(repo *store.Repository, coord *poll.Coordinator, browser *discovery.Browser, log *logger.Logger) *Monitor {
	return &Monitor{repo: repo, coord: coord, browser: browser, log: log}
}

// List returns all records sorted by address.
func (m *Monitor) List() []*store.PrinterRecord { return m.repo.List() }

// Get returns one record by address.
func (m *Monitor) Get(addr string) (*store.PrinterRecord, error) { return m.repo.Get(addr) }

// Stats counts records per status.
func (m *Monitor) Stats() map[store.Status]int { return m.repo.Stats() }

// UsageHistory returns the per-month page usage for a device, oldest first.
func (m *Monitor) UsageHistory(addr string) ([]store.PeriodUsage, error) {
	return m.repo.UsageHistory(addr)
}

// Create registers a printer by hand. The address must be a valid IP and
// must not collide with an existing record (ErrDuplicate, enforced under
// the repository's write lock). Empty name falls back to the address;
// empty community inherits the repository default.
func (m *Monitor) Create(addr, name, community string) (*store.PrinterRecord, error) {
	if net.ParseIP(addr) == nil {
		return nil, store.ErrInvalidAddress
	}
	return m.repo.Apply(addr, store.ApplyOp{Actor: store.ActorUser, MustCreate: true}, func(r *store.PrinterRecord) error {
		if name != "" {
			r.DisplayName = name
		} else {
			r.DisplayName = addr
		}
		if community != "" {
			r.Community = community
		}
		return nil
	})
}

// UpdateFields carries the operator-editable record fields; nil means leave
// the field alone.
type UpdateFields struct {
	Name      *string
	Location  *string
	Community *string
}

// Update edits a record. Renaming a printer locks its name so discovery
// stops overwriting it.
func (m *Monitor) Update(addr string, fields UpdateFields) (*store.PrinterRecord, error) {
	return m.repo.Apply(addr, store.ApplyOp{Actor: store.ActorUser}, func(r *store.PrinterRecord) error {
		if fields.Name != nil && *fields.Name != r.DisplayName {
			r.DisplayName = *fields.Name
			r.NameLocked = true
		}
		if fields.Location != nil {
			r.Location = *fields.Location
		}
		if fields.Community != nil {
			r.Community = *fields.Community
		}
		return nil
	})
}

// Delete removes a record and audits the removal.
func (m *Monitor) Delete(addr string) error {
	return m.repo.Delete(addr, store.ActorUser)
}

// PollOne polls a single known device right now.
func (m *Monitor) PollOne(ctx context.Context, addr string) (*store.PrinterRecord, error) {
	return m.coord.PollOne(ctx, addr)
}

// PollAll runs a fleet-wide poll, blocking until every device has been
// attempted. Returns poll.ErrAlreadyPolling when one is already running.
func (m *Monitor) PollAll(ctx context.Context) error { return m.coord.PollAll(ctx) }

// State reports whether a fleet-wide poll is in progress.
func (m *Monitor) State() poll.State { return m.coord.State() }

// SyncDiscovered browses the network once and merges the result into the
// repository.
func (m *Monitor) SyncDiscovered(ctx context.Context) (discovery.MergeSummary, error) {
	if m.browser == nil {
		return discovery.MergeSummary{}, nil
	}
	found := m.browser.Browse(ctx)
	return discovery.SyncDiscovered(m.repo, found, m.log)
}
