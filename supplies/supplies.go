// Package supplies classifies printer marker supplies and converts raw
// Printer-MIB level readings into percentages. Devices report supply levels
// against prtMarkerSuppliesMaxCapacity, with negative sentinel values for
// non-numeric states.
package supplies

import (
	"fmt"
	"strings"
)

// Category groups a supply by what it is.
type Category string

const (
	CategoryToner Category = "toner"
	CategoryDrum  Category = "drum"
	CategoryOther Category = "other"
)

// Printer-MIB sentinel level values.
const (
	levelUnknown       = -2 // device cannot determine the level
	levelSomeRemaining = -3 // device only knows that some supply remains
)

// Categorize maps a supply description to its category.
func Categorize(name string) Category {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "toner") || strings.Contains(lower, "ink") ||
		strings.Contains(lower, "cartridge"):
		return CategoryToner
	case strings.Contains(lower, "drum") || strings.Contains(lower, "imaging") ||
		strings.Contains(lower, "photoconductor") || strings.Contains(lower, "opc"):
		return CategoryDrum
	default:
		return CategoryOther
	}
}

// Percent converts a raw level/max pair to a percentage. ok is false when
// the reading is non-numeric (sentinel level, zero or negative capacity):
// such readings are informational only and never drive status thresholds.
func Percent(level, max int64) (pct int, ok bool) {
	if level < 0 || max <= 0 {
		return 0, false
	}
	return int(level * 100 / max), true
}

// Describe renders a raw level/max pair the way operators see it: a
// percentage, or a categorical string for sentinel readings.
func Describe(level, max int64) string {
	switch {
	case level == levelUnknown:
		return "Unknown"
	case level == levelSomeRemaining:
		return "OK"
	case level < 0 || max <= 0:
		return "N/A"
	default:
		return fmt.Sprintf("%d%%", level*100/max)
	}
}
