package ops

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/aura/internal/clock"
	"github.com/hpungsan/aura/internal/config"
	"github.com/hpungsan/aura/internal/db"
	"github.com/hpungsan/aura/internal/notify"
	"github.com/hpungsan/aura/internal/push"
	"github.com/hpungsan/aura/internal/schedule"
	"github.com/hpungsan/aura/internal/store"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func (r *recordingTransport) Send(_ context.Context, ep push.Endpoint, p push.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[ep.Address] {
		return stderrors.New("endpoint gone")
	}
	r.sent = append(r.sent, ep.Address+"|"+p.Data.EpisodeID)
	return nil
}

func (r *recordingTransport) deliveries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

type workflowEnv struct {
	svc       *Service
	store     *db.Store
	clock     *clock.Fake
	scheduler *schedule.DurableScheduler
	transport *recordingTransport
}

func newWorkflowEnv(t *testing.T) *workflowEnv {
	t.Helper()
	st, err := db.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.DefaultConfig()
	fake := clock.NewFake(epoch)
	tr := &recordingTransport{fail: map[string]bool{}}

	sched := schedule.NewDurableScheduler(st, fake, schedule.Options{
		PollInterval:  cfg.PollInterval.Std(),
		ClaimTimeout:  cfg.ClaimTimeout.Std(),
		ActionTimeout: cfg.ActionTimeout.Std(),
	}, nil)
	dispatcher := notify.NewDispatcher(st, st, tr, cfg.MaxParallelSends, nil)
	sched.Register(notify.ActionCheckIn, dispatcher.Action())

	return &workflowEnv{
		svc:       NewService(st, sched, fake, cfg, nil),
		store:     st,
		clock:     fake,
		scheduler: sched,
		transport: tr,
	}
}

func (w *workflowEnv) addEndpoint(t *testing.T, owner, address string) {
	t.Helper()
	_, err := w.svc.AddEndpoint(context.Background(), push.Endpoint{OwnerID: owner, Kind: push.KindWebhook, Address: address})
	require.NoError(t, err)
}

// TestCheckIn_EndedBeforeFire: the check-in re-reads the episode and sends
// nothing once it has ended.
func TestCheckIn_EndedBeforeFire(t *testing.T) {
	w := newWorkflowEnv(t)
	ctx := context.Background()
	w.addEndpoint(t, "U1", "https://phone.example/push")

	e1, err := w.svc.Create(ctx, CreateInput{OwnerID: "U1", Severity: 6})
	require.NoError(t, err)

	w.clock.Advance(30 * time.Minute)
	_, err = w.svc.MarkDone(ctx, e1.ID, "U1")
	require.NoError(t, err)

	w.clock.Advance(30 * time.Minute)
	n, err := w.scheduler.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, w.transport.deliveries())
}

// TestCheckIn_StillActive: every registered endpoint gets one attempt and a
// failing endpoint does not stop the others.
func TestCheckIn_StillActive(t *testing.T) {
	w := newWorkflowEnv(t)
	ctx := context.Background()
	w.addEndpoint(t, "U1", "https://phone.example/push")
	w.addEndpoint(t, "U1", "https://broken.example/push")
	w.addEndpoint(t, "U1", "https://laptop.example/push")
	w.addEndpoint(t, "U2", "https://someone-else.example/push")
	w.transport.fail["https://broken.example/push"] = true

	e1, err := w.svc.Create(ctx, CreateInput{OwnerID: "U1", Severity: 6})
	require.NoError(t, err)

	// not yet due
	w.clock.Advance(59 * time.Minute)
	n, err := w.scheduler.Poll(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	w.clock.Advance(time.Minute)
	n, err = w.scheduler.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.ElementsMatch(t, []string{
		"https://phone.example/push|" + e1.ID,
		"https://laptop.example/push|" + e1.ID,
	}, w.transport.deliveries())

	// the job is done; polling again sends nothing new
	w.clock.Advance(time.Hour)
	n, err = w.scheduler.Poll(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, w.transport.deliveries(), 2)
}

func TestCheckIn_DeletedBeforeFire(t *testing.T) {
	w := newWorkflowEnv(t)
	ctx := context.Background()
	w.addEndpoint(t, "U1", "https://phone.example/push")

	e1, err := w.svc.Create(ctx, CreateInput{OwnerID: "U1", Severity: 6})
	require.NoError(t, err)
	_, err = w.svc.Delete(ctx, e1.ID, "U1")
	require.NoError(t, err)

	w.clock.Advance(time.Hour)
	n, err := w.scheduler.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, w.transport.deliveries())
}

// TestFullWorkflow walks one episode through its lifecycle.
func TestFullWorkflow(t *testing.T) {
	w := newWorkflowEnv(t)
	ctx := context.Background()

	e, err := w.svc.Create(ctx, CreateInput{OwnerID: "U1", Severity: 3, Triggers: []string{"Coffee"}})
	require.NoError(t, err)

	w.clock.Advance(20 * time.Minute)
	e, err = w.svc.RecordSeverityChange(ctx, SeverityInput{ID: e.ID, OwnerID: "U1", Severity: 7})
	require.NoError(t, err)
	require.Equal(t, 7, e.Severity)

	notes := "took medication"
	e, err = w.svc.Update(ctx, UpdateInput{ID: e.ID, OwnerID: "U1", Notes: &notes})
	require.NoError(t, err)

	active, err := w.svc.GetActive(ctx, "U1")
	require.NoError(t, err)
	require.Equal(t, e.ID, active.ID)

	done, err := w.svc.MarkDone(ctx, e.ID, "U1")
	require.NoError(t, err)
	require.False(t, done.Episode.Active())

	list, err := w.svc.List(ctx, ListInput{OwnerID: "U1"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, "took medication", list.Items[0].NotesPreview)
	require.Equal(t, 2, list.Items[0].SampleCount)

	_, err = w.svc.Delete(ctx, e.ID, "U1")
	require.NoError(t, err)

	_, total, err := w.store.ListEpisodes(ctx, store.ListFilter{OwnerID: "U1", Limit: 10})
	require.NoError(t, err)
	require.Zero(t, total)
}
