// Package store defines the persistence contracts shared by the SQLite and
// PostgreSQL backends.
package store

import (
	"context"

	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/push"
)

// Pagination limits for ListEpisodes.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListFilter selects episodes for one owner, newest start first.
type ListFilter struct {
	OwnerID    string
	ActiveOnly bool
	// MinSeverity/MaxSeverity bound the current severity; 0 means unbounded.
	MinSeverity int
	MaxSeverity int
	// Trigger keeps episodes carrying this label, compared case-insensitively.
	Trigger string
	Limit   int
	Offset  int
}

// Episodes persists episodes and enforces at most one active episode per owner.
type Episodes interface {
	// InsertEpisode stores a new episode. Returns CONFLICT_ACTIVE_EPISODE when the
	// episode is active and the owner already has an active one.
	InsertEpisode(ctx context.Context, e *episode.Episode) error

	// GetEpisode loads an episode regardless of owner. NOT_FOUND when absent.
	GetEpisode(ctx context.Context, id string) (*episode.Episode, error)

	// GetActiveEpisode returns the owner's active episode, or nil when none.
	GetActiveEpisode(ctx context.Context, ownerID string) (*episode.Episode, error)

	// ListEpisodes returns one page and the total number of matches.
	ListEpisodes(ctx context.Context, f ListFilter) ([]episode.Episode, int, error)

	// MutateEpisode loads the owner's episode, applies fn and writes the result in
	// one transaction. NOT_FOUND when the id is absent or owned by someone else.
	// If fn returns an error nothing is written and the error is returned as is.
	MutateEpisode(ctx context.Context, id, ownerID string, fn func(*episode.Episode) error) (*episode.Episode, error)

	// DeleteEpisode hard-deletes. NOT_FOUND when absent or not owned.
	DeleteEpisode(ctx context.Context, id, ownerID string) error
}

// Endpoints is the registry of delivery endpoints per owner.
type Endpoints interface {
	ListEndpoints(ctx context.Context, ownerID string) ([]push.Endpoint, error)
	// UpsertEndpoint adds or replaces the endpoint keyed by (owner, address).
	UpsertEndpoint(ctx context.Context, ep push.Endpoint) error
	// RemoveEndpoint deletes an endpoint. NOT_FOUND when absent.
	RemoveEndpoint(ctx context.Context, ownerID, address string) error
}

// Job states in the check-in queue.
const (
	JobPending = "pending"
	JobClaimed = "claimed"
	JobDone    = "done"
	JobFailed  = "failed"
)

// PendingJob is a persisted delayed action.
type PendingJob struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	Arg       string `json:"arg"`
	FireAt    int64  `json:"fire_at"` // ms
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	ClaimedAt int64  `json:"claimed_at,omitempty"`
	LastError string `json:"last_error,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// CheckIns is the durable queue behind the durable scheduler.
type CheckIns interface {
	// EnqueueCheckIn persists job; job.CreatedAt stamps both timestamps.
	EnqueueCheckIn(ctx context.Context, job PendingJob) error
	// ClaimDue atomically marks up to limit due jobs as claimed and returns them.
	// Jobs claimed more than claimTimeout ms ago are due again.
	ClaimDue(ctx context.Context, now int64, claimTimeout int64, limit int) ([]PendingJob, error)
	// CompleteJob records the outcome of a claimed job at now (ms).
	CompleteJob(ctx context.Context, id string, now int64, failed bool, errText string) error
}

// Store is the full backend.
type Store interface {
	Episodes
	Endpoints
	CheckIns
	Close() error
}
