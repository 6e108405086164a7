package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore exercises the behavior every backend must share.
func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("runs", func(t *testing.T) {
		r, err := s.CreateRun(ctx, Run{InstanceName: "A-n32-k5", Seed: 42})
		require.NoError(t, err)
		require.NotEmpty(t, r.ID)
		assert.Equal(t, StatusQueued, r.Status)
		assert.False(t, r.CreatedAt.IsZero())

		got, err := s.GetRun(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, "A-n32-k5", got.InstanceName)
		assert.Nil(t, got.FinishedAt)
		assert.Nil(t, got.GapPercent)

		done := time.Now().UTC().Truncate(time.Millisecond)
		gap := 3.5
		opt := 784.0
		r.Status = StatusSucceeded
		r.Cost = 811.4
		r.InitialCost = 950
		r.Routes = [][]int{{1, 2}, {3}}
		r.BestTrace = []float64{950, 811.4}
		r.IterTrace = []float64{950, 900, 811.4}
		r.Metrics = json.RawMessage(`{"iterations":10}`)
		r.GapPercent = &gap
		r.OptimalCost = &opt
		r.StopReason = "iteration_cap"
		r.FinishedAt = &done
		require.NoError(t, s.UpdateRun(ctx, r))

		got, err = s.GetRun(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusSucceeded, got.Status)
		assert.Equal(t, r.Routes, got.Routes)
		assert.Equal(t, r.BestTrace, got.BestTrace)
		assert.Equal(t, r.IterTrace, got.IterTrace)
		assert.JSONEq(t, `{"iterations":10}`, string(got.Metrics))
		require.NotNil(t, got.GapPercent)
		assert.Equal(t, 3.5, *got.GapPercent)
		require.NotNil(t, got.FinishedAt)
		assert.WithinDuration(t, done, *got.FinishedAt, time.Millisecond)

		_, err = s.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.UpdateRun(ctx, Run{ID: "missing", Status: StatusFailed}), ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			_, err := s.CreateRun(ctx, Run{InstanceName: "page", Seed: int64(i)})
			require.NoError(t, err)
		}
		var all []Run
		cursor := ""
		for {
			page, next, err := s.ListRuns(ctx, cursor, 2)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(page), 2)
			all = append(all, page...)
			if next == "" {
				break
			}
			cursor = next
		}
		assert.Len(t, all, 5)
		for i := 1; i < len(all); i++ {
			assert.Less(t, all[i-1].ID, all[i].ID)
		}
	})

	t.Run("webhooks", func(t *testing.T) {
		id, err := s.EnqueueWebhook(ctx, "run-1", "run.completed", "http://example.invalid/hook", "s3cret", []byte(`{"type":"run.completed"}`))
		require.NoError(t, err)

		due, err := s.FetchDueWebhookDeliveries(ctx, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, id, due[0].ID)
		assert.Equal(t, "s3cret", due[0].Secret)
		assert.JSONEq(t, `{"type":"run.completed"}`, string(due[0].Payload))

		later := time.Now().Add(time.Hour)
		require.NoError(t, s.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500))
		due, err = s.FetchDueWebhookDeliveries(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, due, "retry scheduled in the future is not due")

		require.NoError(t, s.FailWebhookDelivery(ctx, id, "gave up", 500))
		list, err := s.ListWebhookDeliveries(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, DeliveryFailed, list[0].Status)
		assert.Equal(t, 2, list[0].Attempts)
		assert.Equal(t, "gave up", list[0].LastError)

		assert.ErrorIs(t, s.FailWebhookDelivery(ctx, "missing", "", 0), ErrNotFound)
	})

	require.NoError(t, s.Ping(ctx))
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()), "migrate is idempotent")
	testStore(t, s)
}

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x=? AND y IN (?, ?)`
	assert.Equal(t, q, sqliteDialect.rebind(q))
	assert.Equal(t, `SELECT a FROM t WHERE x=$1 AND y IN ($2, $3)`, postgresDialect.rebind(q))
}

func TestSchemaPerDialect(t *testing.T) {
	pg := postgresDialect.schema()
	lite := sqliteDialect.schema()
	require.Len(t, pg, 4)
	require.Len(t, lite, 4)
	assert.Contains(t, pg[0], "routes        JSONB")
	assert.Contains(t, lite[0], "created_at    DATETIME NOT NULL")
	for _, stmt := range append(pg, lite...) {
		assert.NotContains(t, stmt, "{{")
	}
}
