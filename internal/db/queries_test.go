package db

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newEpisode(id, owner string, start int64, severity int) *episode.Episode {
	return &episode.Episode{
		ID:              id,
		OwnerID:         owner,
		StartTime:       start,
		Severity:        severity,
		SeverityHistory: []episode.Sample{{Timestamp: start, Severity: severity}},
		CreatedAt:       start,
		UpdatedAt:       start,
	}
}

func TestInsertAndGetEpisode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	notes := "left temple"
	e := newEpisode("01EP001", "u1", 1000, 6)
	e.Notes = &notes
	e.Triggers = []string{"Coffee", "Sleep"}

	if err := s.InsertEpisode(ctx, e); err != nil {
		t.Fatalf("InsertEpisode() error = %v", err)
	}

	got, err := s.GetEpisode(ctx, "01EP001")
	if err != nil {
		t.Fatalf("GetEpisode() error = %v", err)
	}
	if got.OwnerID != "u1" || got.Severity != 6 || !got.Active() {
		t.Errorf("got %+v", got)
	}
	if got.Notes == nil || *got.Notes != notes {
		t.Errorf("Notes = %v, want %q", got.Notes, notes)
	}
	if len(got.Triggers) != 2 || got.Triggers[1] != "Sleep" {
		t.Errorf("Triggers = %v", got.Triggers)
	}
	if len(got.SeverityHistory) != 1 || got.SeverityHistory[0] != (episode.Sample{Timestamp: 1000, Severity: 6}) {
		t.Errorf("SeverityHistory = %v", got.SeverityHistory)
	}
}

func TestGetEpisode_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetEpisode(context.Background(), "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("GetEpisode() error = %v, want NOT_FOUND", err)
	}
}

func TestInsertEpisode_SecondActiveConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertEpisode(ctx, newEpisode("a", "u1", 1000, 5)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := s.InsertEpisode(ctx, newEpisode("b", "u1", 2000, 5))
	if !errors.Is(err, errors.ErrConflictActiveEpisode) {
		t.Fatalf("second insert error = %v, want CONFLICT_ACTIVE_EPISODE", err)
	}

	// a different owner is independent
	if err := s.InsertEpisode(ctx, newEpisode("c", "u2", 2000, 5)); err != nil {
		t.Fatalf("other owner insert: %v", err)
	}

	// ended episodes never conflict
	ended := newEpisode("d", "u1", 500, 3)
	ended.EndTime = episode.EndedAt(900)
	if err := s.InsertEpisode(ctx, ended); err != nil {
		t.Fatalf("ended insert: %v", err)
	}
}

func TestInsertEpisode_ConcurrentSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.InsertEpisode(ctx, newEpisode(fmt.Sprintf("ep-%02d", i), "u1", int64(1000+i), 5))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.True(t, errors.Is(err, errors.ErrConflictActiveEpisode), "unexpected error: %v", err)
	}
	require.Equal(t, 1, wins)

	_, total, err := s.ListEpisodes(ctx, store.ListFilter{OwnerID: "u1", ActiveOnly: true, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestGetActiveEpisode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetActiveEpisode(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)

	ended := newEpisode("old", "u1", 100, 3)
	ended.EndTime = episode.EndedAt(200)
	require.NoError(t, s.InsertEpisode(ctx, ended))
	require.NoError(t, s.InsertEpisode(ctx, newEpisode("cur", "u1", 300, 7)))

	got, err = s.GetActiveEpisode(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "cur", got.ID)
}

func TestMutateEpisode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertEpisode(ctx, newEpisode("e1", "u1", 0, 4)))

	got, err := s.MutateEpisode(ctx, "e1", "u1", func(e *episode.Episode) error {
		e.SeverityHistory = episode.Insert(e.SeverityHistory, episode.Sample{Timestamp: 600000, Severity: 8})
		e.SeverityHistory = episode.Insert(e.SeverityHistory, episode.Sample{Timestamp: 300000, Severity: 2})
		e.Severity, _ = episode.Current(e.SeverityHistory)
		e.UpdatedAt = 700000
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 8, got.Severity)

	stored, err := s.GetEpisode(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, []episode.Sample{{Timestamp: 0, Severity: 4}, {Timestamp: 300000, Severity: 2}, {Timestamp: 600000, Severity: 8}}, stored.SeverityHistory)
	require.Equal(t, int64(700000), stored.UpdatedAt)
}

func TestMutateEpisode_NotOwned(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertEpisode(ctx, newEpisode("e1", "u1", 0, 4)))

	called := false
	_, err := s.MutateEpisode(ctx, "e1", "intruder", func(e *episode.Episode) error {
		called = true
		return nil
	})
	require.True(t, errors.Is(err, errors.ErrNotFound))
	require.False(t, called)
}

func TestMutateEpisode_CallbackErrorRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertEpisode(ctx, newEpisode("e1", "u1", 0, 4)))

	_, err := s.MutateEpisode(ctx, "e1", "u1", func(e *episode.Episode) error {
		e.Severity = 9
		return errors.NewInvalidSeverity(0)
	})
	require.True(t, errors.Is(err, errors.ErrInvalidSeverity))

	stored, err := s.GetEpisode(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, 4, stored.Severity)
}

func TestMutateEpisode_ReopenConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := newEpisode("old", "u1", 0, 4)
	old.EndTime = episode.EndedAt(100)
	require.NoError(t, s.InsertEpisode(ctx, old))
	require.NoError(t, s.InsertEpisode(ctx, newEpisode("cur", "u1", 200, 5)))

	_, err := s.MutateEpisode(ctx, "old", "u1", func(e *episode.Episode) error {
		e.EndTime = episode.Active()
		return nil
	})
	require.True(t, errors.Is(err, errors.ErrConflictActiveEpisode), "got %v", err)

	stored, err := s.GetEpisode(ctx, "old")
	require.NoError(t, err)
	require.False(t, stored.Active())
}

func TestMutateEpisode_RejectsBrokenInvariants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertEpisode(ctx, newEpisode("e1", "u1", 0, 4)))

	_, err := s.MutateEpisode(ctx, "e1", "u1", func(e *episode.Episode) error {
		e.Severity = 9 // history still says 4
		return nil
	})
	require.True(t, errors.Is(err, errors.ErrInternal))
}

func TestDeleteEpisode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertEpisode(ctx, newEpisode("e1", "u1", 0, 4)))

	require.True(t, errors.Is(s.DeleteEpisode(ctx, "e1", "u2"), errors.ErrNotFound))
	require.NoError(t, s.DeleteEpisode(ctx, "e1", "u1"))
	require.True(t, errors.Is(s.DeleteEpisode(ctx, "e1", "u1"), errors.ErrNotFound))

	_, err := s.GetEpisode(ctx, "e1")
	require.True(t, errors.Is(err, errors.ErrNotFound))

	// owner may start a new active episode after deleting the old one
	require.NoError(t, s.InsertEpisode(ctx, newEpisode("e2", "u1", 10, 4)))
}

func TestListEpisodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, sev := range []int{2, 5, 9, 7} {
		e := newEpisode(fmt.Sprintf("e%d", i), "u1", int64(i*1000), sev)
		if i < 3 {
			e.EndTime = episode.EndedAt(int64(i*1000 + 500))
		}
		require.NoError(t, s.InsertEpisode(ctx, e))
	}
	require.NoError(t, s.InsertEpisode(ctx, newEpisode("other", "u2", 0, 5)))

	all, total, err := s.ListEpisodes(ctx, store.ListFilter{OwnerID: "u1", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Len(t, all, 2)
	require.Equal(t, "e3", all[0].ID, "newest start first")
	require.Equal(t, "e2", all[1].ID)

	page2, _, err := s.ListEpisodes(ctx, store.ListFilter{OwnerID: "u1", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	require.Equal(t, "e1", page2[0].ID)

	high, total, err := s.ListEpisodes(ctx, store.ListFilter{OwnerID: "u1", MinSeverity: 8, MaxSeverity: 10, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "e2", high[0].ID)

	active, total, err := s.ListEpisodes(ctx, store.ListFilter{OwnerID: "u1", ActiveOnly: true, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "e3", active[0].ID)
}

func TestListEpisodes_Trigger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	labels := [][]string{{"Coffee", "Sleep"}, {"Stress"}, nil, {"coffee"}}
	for i, l := range labels {
		e := newEpisode(fmt.Sprintf("e%d", i), "u1", int64(i*1000), 5)
		e.EndTime = episode.EndedAt(int64(i*1000 + 500))
		e.Triggers = l
		require.NoError(t, s.InsertEpisode(ctx, e))
	}
	other := newEpisode("other", "u2", 0, 5)
	other.Triggers = []string{"Coffee"}
	require.NoError(t, s.InsertEpisode(ctx, other))

	got, total, err := s.ListEpisodes(ctx, store.ListFilter{OwnerID: "u1", Trigger: "COFFEE", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, "e3", got[0].ID)
	require.Equal(t, "e0", got[1].ID)

	// whole labels only
	got, total, err = s.ListEpisodes(ctx, store.ListFilter{OwnerID: "u1", Trigger: "Coff", Limit: 10})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, got)
}
