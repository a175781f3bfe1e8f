package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hypotrack/internal/hypothesis"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "hypotrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenAppliesMigrations(t *testing.T) {
	db := openTestDB(t)
	version, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	for _, table := range []string{"runs", "weights", "assignments"} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}

	require.NoError(t, db.applyMigrations(), "re-running migrations is a no-op")

	m, err := db.newMigrate()
	require.NoError(t, err)
	require.NoError(t, m.Steps(-1))
	version, err = db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.Steps(-1))
	version, err = db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestWeightsRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	weights := []float64{0.25, -1.5, 3}
	run, err := db.SaveWeights(ctx, "model.json", weights, []string{"a", "b", "c"})
	require.NoError(t, err)
	_, err = uuid.Parse(run.ID)
	require.NoError(t, err)
	assert.Equal(t, KindLearn, run.Kind)

	got, err := db.LoadWeights(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, weights, got)

	latest, err := db.LatestRun(ctx, KindLearn)
	require.NoError(t, err)
	if diff := cmp.Diff(run, latest); diff != "" {
		t.Errorf("latest run mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveWeightsRejectsMismatchedDescriptions(t *testing.T) {
	db := openTestDB(t)
	_, err := db.SaveWeights(context.Background(), "m.json", []float64{1}, []string{"a", "b"})
	assert.Error(t, err)
	runs, err := db.Runs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestResultRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	learn, err := db.SaveWeights(ctx, "m.json", []float64{1, 2}, nil)
	require.NoError(t, err)

	res := hypothesis.Result{
		Detections: []hypothesis.DetectionResult{{ID: 1, Value: true, State: 2}, {ID: 2, Value: true}, {ID: 3}},
		Links:      []hypothesis.LinkResult{{Src: 1, Dest: 2, Value: true}, {Src: 1, Dest: 3}},
		Divisions:  []hypothesis.DivisionResult{{Parent: 1, Children: [2]hypothesis.ID{2, 3}}},
	}
	run, err := db.SaveResult(ctx, "m.json", learn.ID, 2, res)
	require.NoError(t, err)
	assert.Equal(t, learn.ID, run.WeightsRunID)

	got, err := db.LoadResult(ctx, run.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(res, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	runs, err := db.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	_, err = db.LoadWeights(ctx, run.ID)
	assert.Error(t, err, "infer runs carry no weights")
	_, err = db.LoadResult(ctx, learn.ID)
	assert.Error(t, err, "learn runs carry no result")
}

func TestSaveResultRejectsUnknownWeightsRun(t *testing.T) {
	db := openTestDB(t)
	_, err := db.SaveResult(context.Background(), "m.json", uuid.NewString(), 0, hypothesis.Result{})
	assert.Error(t, err)
}

func TestMissingRuns(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.LatestRun(ctx, KindInfer)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetRun(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.LoadWeights(ctx, "not-a-uuid")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
