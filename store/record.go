// Package store owns the canonical printer record set and its audit trail.
// The record set is persisted as a single JSON file replaced by atomic
// write-then-rename on every mutation; audit entries are appended to a
// separate JSON-lines file that is never rewritten.
package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Oberon01/tonertrack-v2/supplies"
)

// Status is the derived health classification of a printer.
type Status string

const (
	// StatusUnknown applies only before the first poll of a record.
	StatusUnknown Status = "Unknown"
	StatusOK      Status = "OK"
	StatusWarning Status = "Warning"
	StatusError   Status = "Error"
	// StatusOffline is set only when the poll attempt itself failed, never
	// derived from supply levels.
	StatusOffline Status = "Offline"
)

// Severity tags an active alert reported by the device.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityWarning  Severity = "Warning"
	SeverityInfo     Severity = "Info"
)

// ConsumableLevel is one supply reading. Percent is -1 when the device
// reported a non-numeric level; Display carries the operator-facing string
// either way ("85%", "OK", "Unknown").
type ConsumableLevel struct {
	Name     string            `json:"name"`
	Category supplies.Category `json:"category"`
	Percent  int               `json:"percent"`
	Display  string            `json:"display"`
}

// Numeric reports whether the reading can drive status thresholds.
func (c ConsumableLevel) Numeric() bool { return c.Percent >= 0 }

// UsagePeriod is the page-counter bookkeeping for one calendar month.
// Baseline is the counter value at the start of (or first poll within) the
// period; Delta is pages printed during the period, never negative. Anomaly
// marks a counter regression (device reset or replacement).
type UsagePeriod struct {
	Baseline uint64 `json:"baseline"`
	Delta    uint64 `json:"delta"`
	Anomaly  bool   `json:"anomaly,omitempty"`
}

// PrinterRecord is the durable state for one device, keyed by Address.
type PrinterRecord struct {
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`
	// Community is the SNMP community string used to query the device.
	Community string `json:"community"`

	Model  string `json:"model"`
	Serial string `json:"serial"`

	Consumables  []ConsumableLevel      `json:"consumables,omitempty"`
	ActiveAlerts map[string]Severity    `json:"active_alerts,omitempty"`
	PageCount    uint64                 `json:"page_count"`
	UsageHistory map[string]UsagePeriod `json:"usage_history,omitempty"`

	Status   Status `json:"status"`
	Location string `json:"location,omitempty"`
	// NameLocked is set once a user edits DisplayName; discovery sync may
	// then no longer overwrite the name. Nothing clears it automatically.
	NameLocked bool `json:"name_locked"`

	// OfflineAttempts counts consecutive failed polls; reset on any
	// reachable poll.
	OfflineAttempts int       `json:"offline_attempts"`
	LastPolledAt    time.Time `json:"last_polled_at"`
}

// Clone returns a deep copy of the record.
func (r *PrinterRecord) Clone() *PrinterRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Consumables != nil {
		out.Consumables = make([]ConsumableLevel, len(r.Consumables))
		copy(out.Consumables, r.Consumables)
	}
	if r.ActiveAlerts != nil {
		out.ActiveAlerts = make(map[string]Severity, len(r.ActiveAlerts))
		for k, v := range r.ActiveAlerts {
			out.ActiveAlerts[k] = v
		}
	}
	if r.UsageHistory != nil {
		out.UsageHistory = make(map[string]UsagePeriod, len(r.UsageHistory))
		for k, v := range r.UsageHistory {
			out.UsageHistory[k] = v
		}
	}
	return &out
}

// PeriodUsage is one usage-history row in period order.
type PeriodUsage struct {
	Period   string `json:"period"`
	Baseline uint64 `json:"baseline"`
	Delta    uint64 `json:"delta"`
	Anomaly  bool   `json:"anomaly"`
}

// HistoryPeriods returns the usage history ordered by period key.
func (r *PrinterRecord) HistoryPeriods() []PeriodUsage {
	keys := make([]string, 0, len(r.UsageHistory))
	for k := range r.UsageHistory {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]PeriodUsage, 0, len(keys))
	for _, k := range keys {
		p := r.UsageHistory[k]
		out = append(out, PeriodUsage{Period: k, Baseline: p.Baseline, Delta: p.Delta, Anomaly: p.Anomaly})
	}
	return out
}

// Audit actors.
const (
	ActorSystem = "system"
	ActorUser   = "user"
)

// Audit actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionSync   = "sync"
)

// FieldChange summarizes one field transition within an audit entry.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// AuditEntry describes one record mutation. Exactly one entry is appended
// per applied mutation.
type AuditEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Actor     string        `json:"actor"`
	Address   string        `json:"address"`
	Action    string        `json:"action"`
	Changes   []FieldChange `json:"changes,omitempty"`
}

// diffRecords computes the field-level changes between prev and next.
// A nil prev means creation; a nil next means deletion.
func diffRecords(prev, next *PrinterRecord) []FieldChange {
	var changes []FieldChange
	add := func(field, old, new string) {
		if old != new {
			changes = append(changes, FieldChange{Field: field, Old: old, New: new})
		}
	}

	if prev == nil {
		prev = &PrinterRecord{Status: StatusUnknown}
	}
	if next == nil {
		next = &PrinterRecord{}
	}

	add("displayName", prev.DisplayName, next.DisplayName)
	// compare the real credential, audit only a masked form
	if prev.Community != next.Community {
		changes = append(changes, FieldChange{
			Field: "community",
			Old:   maskSecret(prev.Community),
			New:   maskSecret(next.Community),
		})
	}
	add("model", prev.Model, next.Model)
	add("serial", prev.Serial, next.Serial)
	add("status", string(prev.Status), string(next.Status))
	add("location", prev.Location, next.Location)
	add("nameLocked", fmt.Sprintf("%v", prev.NameLocked), fmt.Sprintf("%v", next.NameLocked))
	add("pageCount", fmt.Sprintf("%d", prev.PageCount), fmt.Sprintf("%d", next.PageCount))
	add("consumables", summarizeConsumables(prev.Consumables), summarizeConsumables(next.Consumables))
	add("activeAlerts", summarizeAlerts(prev.ActiveAlerts), summarizeAlerts(next.ActiveAlerts))
	add("usageHistory", summarizeHistory(prev.UsageHistory), summarizeHistory(next.UsageHistory))
	return changes
}

// maskSecret hides credential values in the audit trail while still showing
// that the value changed.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return fmt.Sprintf("<secret:%d>", len(s))
}

func summarizeConsumables(levels []ConsumableLevel) string {
	if len(levels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(levels))
	for _, c := range levels {
		parts = append(parts, c.Name+"="+c.Display)
	}
	return strings.Join(parts, ", ")
}

func summarizeAlerts(alerts map[string]Severity) string {
	if len(alerts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(alerts))
	for k := range alerts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s [%s]", k, alerts[k]))
	}
	return strings.Join(parts, ", ")
}

func summarizeHistory(hist map[string]UsagePeriod) string {
	if len(hist) == 0 {
		return ""
	}
	keys := make([]string, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		p := hist[k]
		s := fmt.Sprintf("%s:+%d", k, p.Delta)
		if p.Anomaly {
			s += "!"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
