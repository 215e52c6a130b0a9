// Package notify sends check-in notifications for episodes that are still
// active when their delayed check-in fires.
package notify

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/push"
	"github.com/hpungsan/aura/internal/schedule"
	"github.com/hpungsan/aura/internal/store"
)

// ActionCheckIn is the scheduler action name for check-ins.
const ActionCheckIn = "checkin"

// DefaultMaxParallel bounds concurrent sends when no limit is configured.
const DefaultMaxParallel = 8

// Skip reasons.
const (
	SkipEpisodeDeleted = "episode_deleted"
	SkipEpisodeEnded   = "episode_ended"
	SkipNoEndpoints    = "no_endpoints"
)

// Delivery is the outcome for one endpoint.
type Delivery struct {
	Endpoint push.Endpoint
	Err      error
}

// Result summarises one check-in.
type Result struct {
	EpisodeID string
	// Skipped is set when nothing was sent.
	Skipped    string
	Deliveries []Delivery
}

// Succeeded counts deliveries without an error.
func (r *Result) Succeeded() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err == nil {
			n++
		}
	}
	return n
}

// Dispatcher looks up the episode at fire time and fans the check-in out to
// every endpoint the owner registered.
type Dispatcher struct {
	episodes    store.Episodes
	endpoints   store.Endpoints
	transport   push.Transport
	logger      *slog.Logger
	maxParallel int
}

// NewDispatcher builds a Dispatcher. maxParallel <= 0 uses DefaultMaxParallel.
func NewDispatcher(episodes store.Episodes, endpoints store.Endpoints, transport push.Transport, maxParallel int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	return &Dispatcher{
		episodes:    episodes,
		endpoints:   endpoints,
		transport:   transport,
		logger:      logger,
		maxParallel: maxParallel,
	}
}

// SendCheckIn notifies the owner of episodeID if the episode still exists and
// is active. Per-endpoint failures are reported in the Result; the error is
// reserved for failures reading the store.
func (d *Dispatcher) SendCheckIn(ctx context.Context, episodeID string) (*Result, error) {
	res := &Result{EpisodeID: episodeID}
	log := d.logger.With("episode_id", episodeID)

	e, err := d.episodes.GetEpisode(ctx, episodeID)
	if errors.Is(err, errors.ErrNotFound) {
		log.Debug("check-in skipped", "reason", SkipEpisodeDeleted)
		res.Skipped = SkipEpisodeDeleted
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	if !e.Active() {
		log.Debug("check-in skipped", "reason", SkipEpisodeEnded)
		res.Skipped = SkipEpisodeEnded
		return res, nil
	}

	eps, err := d.endpoints.ListEndpoints(ctx, e.OwnerID)
	if err != nil {
		return nil, err
	}
	if len(eps) == 0 {
		log.Info("check-in skipped", "reason", SkipNoEndpoints, "owner_id", e.OwnerID)
		res.Skipped = SkipNoEndpoints
		return res, nil
	}

	payload := push.CheckInPayload(episodeID)
	res.Deliveries = make([]Delivery, len(eps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxParallel)
	for i, ep := range eps {
		g.Go(func() error {
			err := d.transport.Send(gctx, ep, payload)
			res.Deliveries[i] = Delivery{Endpoint: ep, Err: err}
			if err != nil {
				log.Warn("failed to send check-in", "endpoint", ep.Address, "kind", ep.Kind, "error", err)
			}
			// never cancel siblings
			return nil
		})
	}
	_ = g.Wait()

	log.Info("sent check-in notifications", "succeeded", res.Succeeded(), "total", len(eps))
	return res, nil
}

// Action adapts SendCheckIn to a scheduler action. Only store failures are
// returned; delivery failures are logged.
func (d *Dispatcher) Action() schedule.ActionFunc {
	return func(ctx context.Context, episodeID string) error {
		_, err := d.SendCheckIn(ctx, episodeID)
		return err
	}
}
