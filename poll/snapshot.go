// Package poll implements the polling engine: building raw snapshots from
// device queries, deriving a health status, tracking page-counter usage per
// calendar month, and fanning polls out across the fleet with bounded
// concurrency and single-flight semantics.
package poll

import (
	"context"
	"strconv"

	"github.com/Oberon01/tonertrack-v2/logger"
	"github.com/Oberon01/tonertrack-v2/snmp"
	"github.com/Oberon01/tonertrack-v2/store"
	"github.com/Oberon01/tonertrack-v2/supplies"
)

// unknownValue is recorded for fields the device does not implement.
const unknownValue = "Unknown"

// Snapshot is the raw result of polling one device once. When Reachable is
// false no other field is trusted.
type Snapshot struct {
	Address      string
	Reachable    bool
	Model        string
	Serial       string
	Consumables  []store.ConsumableLevel
	Alerts       map[string]store.Severity
	PageCount    uint64
	HasPageCount bool
}

// Builder issues the fixed query set for one device and assembles a
// Snapshot. Missing OIDs become "Unknown" fields; a timeout or transport
// failure on an identity or counter query marks the snapshot unreachable.
type Builder struct {
	client snmp.Client
	log    *logger.Logger
}

// NewBuilder creates a snapshot builder on top of the given query client.
func NewBuilder(client snmp.Client, log *logger.Logger) *Builder {
	return &Builder{client: client, log: log}
}

// communityClient is implemented by the gosnmp-backed client; fakes that
// ignore credentials need not bother.
type communityClient interface {
	WithCommunity(community string) snmp.Client
}

// Build polls addr once using the record's community string (empty falls
// back to the client default). It never returns an error: failure is
// expressed in the snapshot itself (Reachable=false, or "Unknown" fields).
func (b *Builder) Build(ctx context.Context, addr, community string) Snapshot {
	b = b.forCommunity(community)
	snap := Snapshot{Address: addr, Reachable: true}

	// reachability probe: every SNMP agent answers sysDescr
	if _, err := b.client.Get(ctx, addr, snmp.SysDescr); snmp.IsHardFailure(err) {
		b.debug("Device unreachable", "address", addr, "error", err)
		return Snapshot{Address: addr}
	}

	var ok bool
	if snap.Model, ok = b.getIdentity(ctx, addr, snmp.HrDeviceDescr); !ok {
		return Snapshot{Address: addr}
	}
	if snap.Serial, ok = b.getIdentity(ctx, addr, snmp.PrtGeneralSerialNumber); !ok {
		return Snapshot{Address: addr}
	}

	snap.Consumables = b.collectSupplies(ctx, addr)
	snap.Alerts = b.collectAlerts(ctx, addr)

	raw, err := b.client.Get(ctx, addr, snmp.PrtMarkerLifeCount)
	switch {
	case err == nil:
		if count, okc := snmp.ParseCounter(raw); okc {
			snap.PageCount = count
			snap.HasPageCount = true
		}
	case snmp.IsHardFailure(err):
		// the counter query is load-bearing: a transport failure here
		// means nothing from this poll can be trusted
		b.debug("Counter query failed hard", "address", addr, "error", err)
		return Snapshot{Address: addr}
	}

	return snap
}

// forCommunity returns a builder whose queries authenticate with community.
func (b *Builder) forCommunity(community string) *Builder {
	if community == "" {
		return b
	}
	cc, ok := b.client.(communityClient)
	if !ok {
		return b
	}
	return &Builder{client: cc.WithCommunity(community), log: b.log}
}

// getIdentity reads an identity OID. Missing OIDs soften to "Unknown";
// transport failures are fatal for the snapshot.
func (b *Builder) getIdentity(ctx context.Context, addr, oid string) (string, bool) {
	value, err := b.client.Get(ctx, addr, oid)
	if err == nil {
		if value == "" {
			return unknownValue, true
		}
		return value, true
	}
	if snmp.IsHardFailure(err) {
		b.debug("Identity query failed hard", "address", addr, "oid", oid, "error", err)
		return "", false
	}
	return unknownValue, true
}

// collectSupplies walks the supply description table and reads level and
// capacity per index. Any per-index failure drops that supply; a failed
// description walk yields no consumables at all.
func (b *Builder) collectSupplies(ctx context.Context, addr string) []store.ConsumableLevel {
	descs, err := b.client.Walk(ctx, addr, snmp.PrtMarkerSuppliesDesc)
	if err != nil {
		b.debug("Supply table walk failed", "address", addr, "error", err)
		return nil
	}

	var out []store.ConsumableLevel
	for _, pair := range descs {
		name := pair.Value
		if name == "" || name == unknownValue {
			continue
		}
		level, err := b.client.Get(ctx, addr, snmp.PrtMarkerSuppliesLevel+"."+pair.Index)
		if err != nil {
			continue
		}
		max, err := b.client.Get(ctx, addr, snmp.PrtMarkerSuppliesMaxCap+"."+pair.Index)
		if err != nil {
			continue
		}
		levelN, errL := strconv.ParseInt(level, 10, 64)
		maxN, errM := strconv.ParseInt(max, 10, 64)
		if errL != nil || errM != nil {
			continue
		}

		entry := store.ConsumableLevel{
			Name:     name,
			Category: supplies.Categorize(name),
			Display:  supplies.Describe(levelN, maxN),
			Percent:  -1,
		}
		if pct, numeric := supplies.Percent(levelN, maxN); numeric {
			entry.Percent = pct
		}
		out = append(out, entry)
	}
	return out
}

// collectAlerts joins the alert description and severity tables. Only
// critical and warning alerts are kept; everything else is noise.
func (b *Builder) collectAlerts(ctx context.Context, addr string) map[string]store.Severity {
	descs, err := b.client.Walk(ctx, addr, snmp.PrtAlertDescription)
	if err != nil {
		return nil
	}
	sevs, err := b.client.Walk(ctx, addr, snmp.PrtAlertSeverityLevel)
	if err != nil {
		return nil
	}

	sevByIndex := make(map[string]string, len(sevs))
	for _, pair := range sevs {
		sevByIndex[pair.Index] = pair.Value
	}

	alerts := make(map[string]store.Severity)
	for _, pair := range descs {
		if pair.Value == "" {
			continue
		}
		switch mapSeverity(sevByIndex[pair.Index]) {
		case store.SeverityCritical:
			alerts[pair.Value] = store.SeverityCritical
		case store.SeverityWarning:
			alerts[pair.Value] = store.SeverityWarning
		}
	}
	if len(alerts) == 0 {
		return nil
	}
	return alerts
}

// mapSeverity decodes prtAlertSeverityLevel: 3=critical, 4=warning, the
// rest informational.
func mapSeverity(code string) store.Severity {
	switch code {
	case "3":
		return store.SeverityCritical
	case "4":
		return store.SeverityWarning
	default:
		return store.SeverityInfo
	}
}

func (b *Builder) debug(msg string, context ...interface{}) {
	if b.log != nil {
		b.log.Debug(msg, context...)
	}
}
