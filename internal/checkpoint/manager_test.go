package checkpoint

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/spreadsim/internal/domain"
)

// memStore is an in-memory CheckpointStore.
type memStore struct {
	checkpoints map[string]domain.Checkpoint
}

func newMemStore() *memStore {
	return &memStore{checkpoints: make(map[string]domain.Checkpoint)}
}

func (s *memStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	s.checkpoints[cp.RunID] = cp
	return nil
}

func (s *memStore) Load(ctx context.Context, runID string) (domain.Checkpoint, error) {
	cp, ok := s.checkpoints[runID]
	if !ok {
		return domain.Checkpoint{}, domain.ErrNotFound
	}
	return cp, nil
}

func (s *memStore) Delete(ctx context.Context, runID string) error {
	if _, ok := s.checkpoints[runID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.checkpoints, runID)
	return nil
}

var _ domain.CheckpointStore = (*memStore)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCheckpoint() domain.Checkpoint {
	return domain.Checkpoint{
		RunID:         "run-1",
		Symbol:        "XSP",
		StartDate:     time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC),
		LastProcessed: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		BarsProcessed: 52,
		Gaps:          []string{"2024-02-19"},
		Portfolio:     domain.PortfolioState{Capital: 101_250},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newMemStore()
	m := New(store, "fp-aaaa", testLogger())
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, testCheckpoint()))

	got, err := m.Load(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, domain.CheckpointVersion, got.Version)
	assert.Equal(t, "fp-aaaa", got.ConfigFingerprint)
	assert.False(t, got.SavedAt.IsZero())
	assert.Equal(t, int64(52), got.BarsProcessed)
	assert.Equal(t, []string{"2024-02-19"}, got.Gaps)
	assert.Equal(t, 101_250.0, got.Portfolio.Capital)
}

func TestLoadMissingRun(t *testing.T) {
	m := New(newMemStore(), "fp-aaaa", testLogger())

	_, err := m.Load(context.Background(), "no-such-run")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoadRejectsFingerprintMismatch(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	require.NoError(t, New(store, "fp-aaaa", testLogger()).Save(ctx, testCheckpoint()))

	// Same store, different configuration.
	_, err := New(store, "fp-bbbb", testLogger()).Load(ctx, "run-1")
	require.ErrorIs(t, err, domain.ErrConfigMismatch)
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	store := newMemStore()
	m := New(store, "fp-aaaa", testLogger())
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, testCheckpoint()))
	cp := store.checkpoints["run-1"]
	cp.Version = domain.CheckpointVersion + 1
	store.checkpoints["run-1"] = cp

	_, err := m.Load(ctx, "run-1")
	require.ErrorIs(t, err, domain.ErrStateCorruption)
}

func TestLoadRejectsCorruptState(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Checkpoint)
	}{
		{"empty run id", func(cp *domain.Checkpoint) { cp.RunID = "" }},
		{"negative bars", func(cp *domain.Checkpoint) { cp.BarsProcessed = -1 }},
		{"cursor beyond end", func(cp *domain.Checkpoint) {
			cp.LastProcessed = cp.EndDate.AddDate(0, 0, 7)
		}},
		{"closed position in open table", func(cp *domain.Checkpoint) {
			cp.Portfolio.Open = []domain.Position{
				{ID: 1, Status: domain.PositionStatusClosed},
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			m := New(store, "fp-aaaa", testLogger())
			ctx := context.Background()

			require.NoError(t, m.Save(ctx, testCheckpoint()))
			cp := store.checkpoints["run-1"]
			tc.mutate(&cp)
			store.checkpoints["run-1"] = cp

			_, err := m.Load(ctx, "run-1")
			require.ErrorIs(t, err, domain.ErrStateCorruption)
		})
	}
}

func TestDeleteToleratesMissing(t *testing.T) {
	m := New(newMemStore(), "fp-aaaa", testLogger())

	assert.NoError(t, m.Delete(context.Background(), "no-such-run"))
}
