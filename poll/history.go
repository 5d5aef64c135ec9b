package poll

import (
	"time"

	"github.com/Oberon01/tonertrack-v2/store"
)

// periodKey buckets usage by calendar month.
func periodKey(t time.Time) string {
	return t.Format("2006-01")
}

// TrackUsage folds a new raw page-counter reading into the record's usage
// history for the period containing now.
//
// The first poll within a period establishes the period baseline: the
// previously stored counter, or the new reading itself on the very first
// poll ever. Within a period the delta is recomputed in place from the
// baseline, so repeated polls never double-count. A counter that moved
// backwards means the device was reset or replaced: the reading becomes the
// new baseline, the delta restarts from it, and the period is flagged as an
// anomaly. Deltas are never negative.
//
// The record's raw PageCount is always updated to the latest reading.
func TrackUsage(rec *store.PrinterRecord, newCount uint64, now time.Time) {
	if rec.UsageHistory == nil {
		rec.UsageHistory = make(map[string]store.UsagePeriod)
	}

	key := periodKey(now)
	period, exists := rec.UsageHistory[key]

	if !exists {
		baseline := rec.PageCount
		if len(rec.UsageHistory) == 0 && rec.LastPolledAt.IsZero() {
			// very first poll ever: nothing printed before we started watching
			baseline = newCount
		}
		period = store.UsagePeriod{Baseline: baseline}
	}

	if newCount >= period.Baseline {
		period.Delta = newCount - period.Baseline
	} else {
		// counter went backwards: reset baseline, count from scratch
		period.Baseline = newCount
		period.Delta = newCount
		period.Anomaly = true
	}

	rec.UsageHistory[key] = period
	rec.PageCount = newCount
}
