package episode

import (
	"errors"
	"sort"
)

// Sample is one timestamped severity reading.
type Sample struct {
	Timestamp int64 `json:"timestamp"`
	Severity  int   `json:"severity"`
}

// ErrEmptyHistory means an episode was found without its creation sample.
// Creation always seeds one entry, so this is an internal invariant violation.
var ErrEmptyHistory = errors.New("severity history is empty")

// Insert returns a new history with s placed by timestamp. Existing samples with
// the same timestamp stay ahead of s. The input slice is not modified.
func Insert(history []Sample, s Sample) []Sample {
	// first index whose timestamp is strictly greater than s
	i := sort.Search(len(history), func(i int) bool {
		return history[i].Timestamp > s.Timestamp
	})

	out := make([]Sample, 0, len(history)+1)
	out = append(out, history[:i]...)
	out = append(out, s)
	out = append(out, history[i:]...)
	return out
}

// Current returns the severity of the latest sample by timestamp. For equal
// timestamps the most recently inserted sample wins.
func Current(history []Sample) (int, error) {
	if len(history) == 0 {
		return 0, ErrEmptyHistory
	}
	return history[len(history)-1].Severity, nil
}

// Latest returns the latest sample, or false for an empty history.
func Latest(history []Sample) (Sample, bool) {
	if len(history) == 0 {
		return Sample{}, false
	}
	return history[len(history)-1], true
}

// Sorted reports whether history is non-decreasing in timestamp.
func Sorted(history []Sample) bool {
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp < history[i-1].Timestamp {
			return false
		}
	}
	return true
}
