// Package ops implements the episode operations shared by the HTTP API, the
// MCP server and the CLI.
package ops

import (
	"crypto/rand"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/aura/internal/clock"
	"github.com/hpungsan/aura/internal/config"
	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/schedule"
	"github.com/hpungsan/aura/internal/store"
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Service owns episode mutations. Every mutation is a single store
// transaction, so operations for one owner are linearizable while
// different owners never wait on each other.
type Service struct {
	store     store.Store
	scheduler schedule.Scheduler
	clock     clock.Clock
	cfg       *config.Config
	logger    *slog.Logger
}

// NewService wires a Service. A nil scheduler disables check-ins; a nil
// clock uses the system clock.
func NewService(st store.Store, scheduler schedule.Scheduler, c clock.Clock, cfg *config.Config, logger *slog.Logger) *Service {
	if c == nil {
		c = clock.System()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		scheduler: scheduler,
		clock:     c,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *Service) now() int64 {
	return clock.NowMillis(s.clock)
}

// newID returns a ULID stamped with the service clock.
func (s *Service) newID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(s.clock.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// validateOwner trims the owner id supplied by the auth layer.
func validateOwner(ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", errors.NewInvalidRequest("owner_id is required")
	}
	return ownerID, nil
}

// validateAddress checks an (id, owner) pair.
func validateAddress(id, ownerID string) (string, string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "", errors.NewInvalidRequest("id is required")
	}
	ownerID, err := validateOwner(ownerID)
	if err != nil {
		return "", "", err
	}
	return id, ownerID, nil
}

func validateSeverity(n int) error {
	if !episode.ValidSeverity(n) {
		return errors.NewInvalidSeverity(n)
	}
	return nil
}

// normalizeNotes maps blank notes to nil.
func normalizeNotes(notes *string) *string {
	if notes == nil || strings.TrimSpace(*notes) == "" {
		return nil
	}
	n := *notes
	return &n
}

func checkTimes(e *episode.Episode) error {
	if at, ended := e.EndTime.At(); ended && at < e.StartTime {
		return errors.NewInvalidRequest("end_time must not be before start_time")
	}
	return nil
}
