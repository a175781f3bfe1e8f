// Package store persists learned weight vectors and inference results in a
// SQLite database so that later runs can replay them by run id.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/hypotrack/internal/hypothesis"
	"github.com/banshee-data/hypotrack/internal/monitoring"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("store: run not found")

// Run kinds.
const (
	KindLearn = "learn"
	KindInfer = "infer"
)

const (
	hypDetection = "detection"
	hypLink      = "link"
	hypDivision  = "division"
)

// DB is a run history database. It records learned weight vectors and
// inferred results, each under its own run id.
type DB struct {
	*sql.DB
}

// Open opens or creates the database at path and applies migrations.
func Open(path string) (*DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	sqlDB, err := sql.Open("sqlite", path+sep+"_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases consistent.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db := &DB{DB: sqlDB}
	if err := db.applyMigrations(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Run describes one stored learn or infer invocation.
type Run struct {
	ID           string
	Kind         string
	ModelPath    string
	CreatedAt    time.Time
	NumWeights   int
	WeightsRunID string
}

func (r Run) String() string {
	return fmt.Sprintf("%s %s %s (%d weights) %s", r.ID, r.Kind, r.ModelPath, r.NumWeights, r.CreatedAt.Format(time.RFC3339))
}

func (db *DB) insertRun(ctx context.Context, tx *sql.Tx, run *Run) error {
	run.ID = uuid.NewString()
	run.CreatedAt = time.Now().UTC().Truncate(time.Second)
	var weightsRun interface{}
	if run.WeightsRunID != "" {
		weightsRun = run.WeightsRunID
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, kind, model_path, created_unix, num_weights, weights_run_id) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.ModelPath, run.CreatedAt.Unix(), run.NumWeights, weightsRun)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// SaveWeights stores a learned weight vector as a new learn run.
// Descriptions may be nil.
func (db *DB) SaveWeights(ctx context.Context, modelPath string, weights []float64, descriptions []string) (Run, error) {
	if descriptions != nil && len(descriptions) != len(weights) {
		return Run{}, fmt.Errorf("%d descriptions for %d weights", len(descriptions), len(weights))
	}
	run := Run{Kind: KindLearn, ModelPath: modelPath, NumWeights: len(weights)}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.insertRun(ctx, tx, &run); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO weights (run_id, idx, value, description) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare weights insert: %w", err)
		}
		defer stmt.Close()
		for i, w := range weights {
			desc := ""
			if descriptions != nil {
				desc = descriptions[i]
			}
			if _, err := stmt.ExecContext(ctx, run.ID, i, w, desc); err != nil {
				return fmt.Errorf("failed to insert weight %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return Run{}, err
	}
	monitoring.Logf("store: saved %d weights as run %s", len(weights), run.ID)
	return run, nil
}

// LoadWeights returns the weight vector of a learn run.
func (db *DB) LoadWeights(ctx context.Context, runID string) ([]float64, error) {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Kind != KindLearn {
		return nil, fmt.Errorf("run %s is a %s run, not %s", runID, run.Kind, KindLearn)
	}

	rows, err := db.QueryContext(ctx, `SELECT idx, value FROM weights WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query weights: %w", err)
	}
	defer rows.Close()

	weights := make([]float64, 0, run.NumWeights)
	for rows.Next() {
		var idx int
		var value float64
		if err := rows.Scan(&idx, &value); err != nil {
			return nil, err
		}
		if idx != len(weights) {
			return nil, fmt.Errorf("run %s: weight %d missing", runID, len(weights))
		}
		weights = append(weights, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(weights) != run.NumWeights {
		return nil, fmt.Errorf("run %s: have %d weights, want %d", runID, len(weights), run.NumWeights)
	}
	return weights, nil
}

// SaveResult stores an inference result as a new infer run. weightsRunID
// names the learn run whose weights were used and may be empty.
func (db *DB) SaveResult(ctx context.Context, modelPath, weightsRunID string, numWeights int, res hypothesis.Result) (Run, error) {
	run := Run{Kind: KindInfer, ModelPath: modelPath, NumWeights: numWeights, WeightsRunID: weightsRunID}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.insertRun(ctx, tx, &run); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO assignments (run_id, hypothesis, id_a, id_b, id_c, state) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare assignment insert: %w", err)
		}
		defer stmt.Close()

		insert := func(kind string, a, b, c hypothesis.ID, state int) error {
			if _, err := stmt.ExecContext(ctx, run.ID, kind, a, b, c, state); err != nil {
				return fmt.Errorf("failed to insert %s assignment: %w", kind, err)
			}
			return nil
		}
		for _, d := range res.Detections {
			state := d.State
			if state == 0 && d.Value {
				state = 1
			}
			if err := insert(hypDetection, d.ID, 0, 0, state); err != nil {
				return err
			}
		}
		for _, l := range res.Links {
			if err := insert(hypLink, l.Src, l.Dest, 0, boolState(l.Value)); err != nil {
				return err
			}
		}
		for _, d := range res.Divisions {
			if err := insert(hypDivision, d.Parent, d.Children[0], d.Children[1], boolState(d.Value)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Run{}, err
	}
	monitoring.Logf("store: saved result as run %s", run.ID)
	return run, nil
}

// LoadResult returns the stored result of an infer run. Multi-object
// detection states are restored only when they exceed 1.
func (db *DB) LoadResult(ctx context.Context, runID string) (hypothesis.Result, error) {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return hypothesis.Result{}, err
	}
	if run.Kind != KindInfer {
		return hypothesis.Result{}, fmt.Errorf("run %s is a %s run, not %s", runID, run.Kind, KindInfer)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT hypothesis, id_a, id_b, id_c, state FROM assignments WHERE run_id = ? ORDER BY hypothesis, id_a, id_b, id_c`, runID)
	if err != nil {
		return hypothesis.Result{}, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var res hypothesis.Result
	for rows.Next() {
		var kind string
		var a, b, c hypothesis.ID
		var state int
		if err := rows.Scan(&kind, &a, &b, &c, &state); err != nil {
			return hypothesis.Result{}, err
		}
		switch kind {
		case hypDetection:
			d := hypothesis.DetectionResult{ID: a, Value: state > 0}
			if state > 1 {
				d.State = state
			}
			res.Detections = append(res.Detections, d)
		case hypLink:
			res.Links = append(res.Links, hypothesis.LinkResult{Src: a, Dest: b, Value: state > 0})
		case hypDivision:
			res.Divisions = append(res.Divisions, hypothesis.DivisionResult{Parent: a, Children: [2]hypothesis.ID{b, c}, Value: state > 0})
		}
	}
	if err := rows.Err(); err != nil {
		return hypothesis.Result{}, err
	}
	res.Sort()
	return res, nil
}

const runColumns = `run_id, kind, model_path, created_unix, num_weights, COALESCE(weights_run_id, '')`

func scanRun(row interface{ Scan(...interface{}) error }) (Run, error) {
	var r Run
	var created int64
	if err := row.Scan(&r.ID, &r.Kind, &r.ModelPath, &created, &r.NumWeights, &r.WeightsRunID); err != nil {
		return Run{}, err
	}
	r.CreatedAt = time.Unix(created, 0).UTC()
	return r, nil
}

// GetRun returns the run with the given id.
func (db *DB) GetRun(ctx context.Context, runID string) (Run, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return Run{}, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	r, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}
	return r, nil
}

// LatestRun returns the most recently stored run of the given kind.
func (db *DB) LatestRun(ctx context.Context, kind string) (Run, error) {
	r, err := scanRun(db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE kind = ? ORDER BY created_unix DESC, rowid DESC LIMIT 1`, kind))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: no %s runs", ErrNotFound, kind)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query latest run: %w", err)
	}
	return r, nil
}

// Runs lists every stored run, newest first.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_unix DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolState(b bool) int {
	if b {
		return 1
	}
	return 0
}
