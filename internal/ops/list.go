package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/store"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	OwnerID    string
	Level      string // optional: low, mild, moderate, high
	ActiveOnly bool
	Trigger    string // optional: one trigger label, any case
	Limit      int    // default: 20, max: 100
	Offset     int    // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []episode.Summary `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Sort       string            `json:"sort"`
}

// List returns episode summaries for an owner, newest start first.
func (s *Service) List(ctx context.Context, input ListInput) (*ListOutput, error) {
	ownerID, err := validateOwner(input.OwnerID)
	if err != nil {
		return nil, err
	}

	filter := store.ListFilter{OwnerID: ownerID, ActiveOnly: input.ActiveOnly}
	if level := strings.ToLower(strings.TrimSpace(input.Level)); level != "" {
		lo, hi, ok := episode.LevelRange(episode.SeverityLevel(level))
		if !ok {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown level %q", input.Level))
		}
		filter.MinSeverity, filter.MaxSeverity = lo, hi
	}

	if t := episode.NormalizeTriggers([]string{input.Trigger}); t != nil {
		filter.Trigger = t[0]
	}

	// Apply limit defaults and bounds
	limit := input.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	if limit > store.MaxListLimit {
		limit = store.MaxListLimit
	}
	offset := max(input.Offset, 0)
	filter.Limit, filter.Offset = limit, offset

	episodes, total, err := s.store.ListEpisodes(ctx, filter)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	items := make([]episode.Summary, 0, len(episodes))
	for i := range episodes {
		items = append(items, episodes[i].ToSummary())
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "start_time_desc",
	}, nil
}
