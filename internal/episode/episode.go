package episode

import (
	"encoding/json"
	"fmt"
)

// Episode represents one tracked migraine occurrence, active or ended.
type Episode struct {
	// ID is a ULID assigned at creation; never changes
	ID string `json:"id"`

	// OwnerID identifies the owning user as supplied by the auth collaborator; never changes
	OwnerID string `json:"owner_id"`

	// StartTime is when the episode began (ms since epoch)
	StartTime int64 `json:"start_time"`

	// EndTime is Active until the episode ends
	EndTime EndTime `json:"end_time"`

	// Severity is the current intensity (1-10); always the latest history sample
	Severity int `json:"severity"`

	// SeverityHistory is ordered ascending by timestamp; ties keep insertion order
	SeverityHistory []Sample `json:"severity_history"`

	// Notes is optional free text (markdown allowed)
	Notes *string `json:"notes,omitempty"`

	// Triggers is an unordered set of free-text labels
	Triggers []string `json:"triggers,omitempty"`

	// CreatedAt is the Unix timestamp (ms) when the record was stored
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp (ms) of the last mutation
	UpdatedAt int64 `json:"updated_at"`
}

// Active reports whether the episode has not ended yet.
func (e *Episode) Active() bool {
	return e.EndTime.IsActive()
}

// Clone returns a deep copy so callers can mutate without aliasing stored slices.
func (e *Episode) Clone() *Episode {
	c := *e
	c.SeverityHistory = append([]Sample(nil), e.SeverityHistory...)
	if e.Triggers != nil {
		c.Triggers = append([]string(nil), e.Triggers...)
	}
	if e.Notes != nil {
		n := *e.Notes
		c.Notes = &n
	}
	return &c
}

// CheckInvariants verifies the history ordering and that Severity tracks the
// latest sample. Stores call it on load so a corrupted row surfaces early.
func (e *Episode) CheckInvariants() error {
	if !Sorted(e.SeverityHistory) {
		return fmt.Errorf("episode %s: severity history out of order", e.ID)
	}
	current, err := Current(e.SeverityHistory)
	if err != nil {
		return fmt.Errorf("episode %s: %w", e.ID, err)
	}
	if current != e.Severity {
		return fmt.Errorf("episode %s: severity %d does not match latest sample %d", e.ID, e.Severity, current)
	}
	if at, ended := e.EndTime.At(); ended && at < e.StartTime {
		return fmt.Errorf("episode %s: end_time before start_time", e.ID)
	}
	return nil
}

// EndTime is either Active or EndedAt(ms). The zero value is Active.
type EndTime struct {
	ended bool
	at    int64
}

// Active returns the "not yet ended" sentinel.
func Active() EndTime {
	return EndTime{}
}

// EndedAt returns an end time at the given ms timestamp.
func EndedAt(ms int64) EndTime {
	return EndTime{ended: true, at: ms}
}

// IsActive reports whether this is the active sentinel.
func (t EndTime) IsActive() bool {
	return !t.ended
}

// At returns the end timestamp and true, or 0 and false for Active.
func (t EndTime) At() (int64, bool) {
	return t.at, t.ended
}

// Ptr returns nil for Active, or a pointer to the timestamp. Used by storage layers
// that map Active to SQL NULL.
func (t EndTime) Ptr() *int64 {
	if !t.ended {
		return nil
	}
	at := t.at
	return &at
}

// FromPtr is the inverse of Ptr.
func FromPtr(p *int64) EndTime {
	if p == nil {
		return Active()
	}
	return EndedAt(*p)
}

// String implements fmt.Stringer.
func (t EndTime) String() string {
	if !t.ended {
		return "active"
	}
	return fmt.Sprintf("ended@%d", t.at)
}

// MarshalJSON encodes Active as null and EndedAt as a number.
func (t EndTime) MarshalJSON() ([]byte, error) {
	if !t.ended {
		return []byte("null"), nil
	}
	return json.Marshal(t.at)
}

// UnmarshalJSON accepts null (Active) or an integer timestamp.
func (t *EndTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Active()
		return nil
	}
	var at int64
	if err := json.Unmarshal(data, &at); err != nil {
		return fmt.Errorf("end_time must be null or an integer timestamp: %w", err)
	}
	*t = EndedAt(at)
	return nil
}
