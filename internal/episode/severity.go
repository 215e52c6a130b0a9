package episode

import "math"

// Severity bounds, inclusive.
const (
	MinSeverity = 1
	MaxSeverity = 10
)

// ValidSeverity reports whether n is within [MinSeverity, MaxSeverity].
func ValidSeverity(n int) bool {
	return n >= MinSeverity && n <= MaxSeverity
}

// SeverityFromFloat converts a JSON number to a severity. NaN, infinities and
// non-integral values are rejected along with out-of-range ones.
func SeverityFromFloat(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	n := int(f)
	if !ValidSeverity(n) {
		return 0, false
	}
	return n, true
}

// SeverityLevel is a coarse bucket used for filtering.
type SeverityLevel string

const (
	LevelLow      SeverityLevel = "low"
	LevelMild     SeverityLevel = "mild"
	LevelModerate SeverityLevel = "moderate"
	LevelHigh     SeverityLevel = "high"
)

// Level buckets a severity: 1-3 low, 4-5 mild, 6-7 moderate, 8-10 high.
func Level(severity int) SeverityLevel {
	switch {
	case severity >= 8:
		return LevelHigh
	case severity >= 6:
		return LevelModerate
	case severity >= 4:
		return LevelMild
	default:
		return LevelLow
	}
}

// LevelRange returns the inclusive severity bounds of a level.
func LevelRange(l SeverityLevel) (lo, hi int, ok bool) {
	switch l {
	case LevelLow:
		return 1, 3, true
	case LevelMild:
		return 4, 5, true
	case LevelModerate:
		return 6, 7, true
	case LevelHigh:
		return 8, 10, true
	}
	return 0, 0, false
}
