package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Oberon01/tonertrack-v2/logger"
)

var (
	// ErrNotFound means the address has no record.
	ErrNotFound = errors.New("printer not found")
	// ErrDuplicate means a record with the address already exists.
	ErrDuplicate = errors.New("printer already exists")
	// ErrInvalidAddress means an empty or malformed record key.
	ErrInvalidAddress = errors.New("invalid printer address")
)

const (
	recordsFile = "printers.json"
	auditFile   = "audit.log"
)

// ApplyOp describes who is mutating a record and how the mutation is
// recorded in the audit trail.
type ApplyOp struct {
	// Actor is ActorSystem or ActorUser.
	Actor string
	// Action overrides the audit action; empty picks create or update
	// automatically.
	Action string
	// AllowCreate lets the mutation create the record when absent.
	AllowCreate bool
	// MustCreate requires the record to be absent; an existing record is
	// ErrDuplicate. Implies AllowCreate.
	MustCreate bool
}

// Repository is the durable printer store. All mutations are serialized
// through Apply; reads are served from an in-memory cache and never block
// behind writers beyond a brief copy.
type Repository struct {
	dir string
	log *logger.Logger

	writeMu sync.Mutex // serializes all writers
	cacheMu sync.RWMutex
	records map[string]*PrinterRecord

	now func() time.Time
	// renameFn makes the updated store visible atomically. Replaced in
	// tests to simulate a crash between write and rename.
	renameFn func(oldpath, newpath string) error
}

// Open loads (or initializes) the repository rooted at dir.
func Open(dir string, log *logger.Logger) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	r := &Repository{
		dir:      dir,
		log:      log,
		records:  make(map[string]*PrinterRecord),
		now:      time.Now,
		renameFn: os.Rename,
	}

	// stale temp file from an interrupted write; the durable file is
	// still the previous consistent state
	os.Remove(r.tempPath())

	if err := r.load(); err != nil {
		return nil, err
	}
	if log != nil {
		log.Info("Printer store opened", "dir", dir, "records", len(r.records))
	}
	return r, nil
}

func (r *Repository) recordsPath() string { return filepath.Join(r.dir, recordsFile) }
func (r *Repository) tempPath() string    { return filepath.Join(r.dir, recordsFile+".tmp") }
func (r *Repository) auditPath() string   { return filepath.Join(r.dir, auditFile) }

func (r *Repository) load() error {
	data, err := os.ReadFile(r.recordsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read printer store: %w", err)
	}
	var records map[string]*PrinterRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse printer store: %w", err)
	}
	for addr, rec := range records {
		rec.Address = addr
	}
	r.records = records
	return nil
}

// Get returns a copy of the record for addr.
func (r *Repository) Get(addr string) (*PrinterRecord, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	rec, ok := r.records[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns copies of all records ordered by address.
func (r *Repository) List() []*PrinterRecord {
	r.cacheMu.RLock()
	out := make([]*PrinterRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	r.cacheMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Stats counts records per status.
func (r *Repository) Stats() map[Status]int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	stats := make(map[Status]int)
	for _, rec := range r.records {
		stats[rec.Status]++
	}
	return stats
}

// UsageHistory returns the ordered period usage rows for addr.
func (r *Repository) UsageHistory(addr string) ([]PeriodUsage, error) {
	rec, err := r.Get(addr)
	if err != nil {
		return nil, err
	}
	return rec.HistoryPeriods(), nil
}

// Apply runs mutate against a copy of the record for addr (creating one
// when op.AllowCreate is set), persists the whole store with atomic
// write-then-rename, appends exactly one audit entry describing the diff,
// and returns the updated record. A persistence failure aborts before the
// rename and leaves the durable state untouched. An audit failure after the
// rename is surfaced alongside the updated record; cache and durable file
// stay in step.
func (r *Repository) Apply(addr string, op ApplyOp, mutate func(*PrinterRecord) error) (*PrinterRecord, error) {
	if addr == "" {
		return nil, ErrInvalidAddress
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.cacheMu.RLock()
	prev := r.records[addr]
	r.cacheMu.RUnlock()

	action := op.Action
	var next *PrinterRecord
	if prev != nil && op.MustCreate {
		return nil, ErrDuplicate
	}
	if prev == nil {
		if !op.AllowCreate && !op.MustCreate {
			return nil, ErrNotFound
		}
		next = &PrinterRecord{
			Address:   addr,
			Community: "public",
			Model:     "Unknown",
			Serial:    "Unknown",
			Status:    StatusUnknown,
		}
		if action == "" {
			action = ActionCreate
		}
	} else {
		next = prev.Clone()
		if action == "" {
			action = ActionUpdate
		}
	}

	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Address = addr // the key is immutable

	changes := diffRecords(prev, next)
	if prev != nil && len(changes) == 0 && next.LastPolledAt.Equal(prev.LastPolledAt) {
		// nothing changed; no durable write, no audit entry
		return next, nil
	}

	if err := r.persist(addr, next, nil); err != nil {
		return nil, err
	}

	// the rename landed: the cache must reflect the durable file even if
	// the audit append below fails
	r.cacheMu.Lock()
	r.records[addr] = next
	r.cacheMu.Unlock()

	entry := AuditEntry{
		Timestamp: r.now(),
		Actor:     op.Actor,
		Address:   addr,
		Action:    action,
		Changes:   changes,
	}
	if err := r.appendAudit(entry); err != nil {
		return next.Clone(), fmt.Errorf("record persisted but audit append failed: %w", err)
	}

	if r.log != nil {
		r.log.Debug("Record applied", "address", addr, "action", action, "changes", len(changes))
	}
	return next.Clone(), nil
}

// Delete removes the record for addr and audits the removal.
func (r *Repository) Delete(addr, actor string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.cacheMu.RLock()
	prev := r.records[addr]
	r.cacheMu.RUnlock()
	if prev == nil {
		return ErrNotFound
	}

	if err := r.persist(addr, nil, prev); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.records, addr)
	r.cacheMu.Unlock()

	entry := AuditEntry{
		Timestamp: r.now(),
		Actor:     actor,
		Address:   addr,
		Action:    ActionDelete,
		Changes:   diffRecords(prev, nil),
	}
	if err := r.appendAudit(entry); err != nil {
		return fmt.Errorf("record deleted but audit append failed: %w", err)
	}

	if r.log != nil {
		r.log.Info("Record deleted", "address", addr, "actor", actor)
	}
	return nil
}

// persist writes the full record set, with addr replaced by next (or
// removed when next is nil), to a temp file and atomically renames it over
// the durable file. The in-memory cache is not touched here.
func (r *Repository) persist(addr string, next *PrinterRecord, deleted *PrinterRecord) error {
	r.cacheMu.RLock()
	snapshot := make(map[string]*PrinterRecord, len(r.records)+1)
	for k, v := range r.records {
		snapshot[k] = v
	}
	r.cacheMu.RUnlock()

	if next != nil {
		snapshot[addr] = next
	} else {
		delete(snapshot, addr)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode printer store: %w", err)
	}

	tmp := r.tempPath()
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp store file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp store file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp store file: %w", err)
	}

	if err := r.renameFn(tmp, r.recordsPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace printer store: %w", err)
	}
	return nil
}

// appendAudit appends one JSON line to the audit log.
func (r *Repository) appendAudit(entry AuditEntry) error {
	f, err := os.OpenFile(r.auditPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// AuditLog reads audit entries, newest last. limit <= 0 returns everything.
func (r *Repository) AuditLog(limit int) ([]AuditEntry, error) {
	f, err := os.Open(r.auditPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip torn or legacy lines
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}
