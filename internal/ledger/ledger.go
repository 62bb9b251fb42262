// Package ledger keeps a history of depth runs in a local SQLite database,
// so a partial run can be inspected after the console output is gone.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Faultbox/meshdepth/internal/depth"
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Ledger is the run history store.
type Ledger struct {
	db   *sql.DB
	path string
}

// Run is one recorded pipeline run.
type Run struct {
	ID        string
	Started   time.Time
	Finished  time.Time
	InputDir  string
	OutputDir string
	Backend   string

	Frames    int
	Angles    []string
	BoundsMin [3]float64
	BoundsMax [3]float64
	Scale     float64
	Near      float64
	Far       float64

	Outputs      int
	FailureCount int
	Failures     []Failure // Empty in List results
	CacheHits    int
	CacheMisses  int
	Duration     time.Duration
}

// Failure is one skipped (frame, angle) pair of a run.
type Failure struct {
	Frame   string
	Angle   string
	Pass    string
	Message string
}

// Partial reports whether the run skipped any pair.
func (r *Run) Partial() bool {
	return r.FailureCount > 0
}

// NewRun builds a ledger entry from a pipeline report. The ID is assigned
// here so the caller can print it before Record returns.
func NewRun(report *depth.Report, inputDir, outputDir, backend string, started time.Time) *Run {
	run := &Run{
		ID:          uuid.New().String(),
		Started:     started.UTC(),
		Finished:    started.Add(report.Duration).UTC(),
		InputDir:    inputDir,
		OutputDir:   outputDir,
		Backend:     backend,
		Frames:      report.Frames,
		Angles:      append([]string(nil), report.Angles...),
		Scale:       report.Scale,
		Near:        report.Range.Near,
		Far:         report.Range.Far,
		Outputs:     len(report.Outputs),
		CacheHits:   report.CacheHits,
		CacheMisses: report.CacheMisses,
		Duration:    report.Duration,
	}
	lo, hi := report.Bounds.Min.Array(), report.Bounds.Max.Array()
	for i := range 3 {
		run.BoundsMin[i] = float64(lo[i])
		run.BoundsMax[i] = float64(hi[i])
	}
	for _, f := range report.Failures {
		run.Failures = append(run.Failures, Failure{
			Frame:   f.Frame,
			Angle:   f.Angle,
			Pass:    f.Pass,
			Message: errString(f.Err),
		})
	}
	run.FailureCount = len(run.Failures)
	return run
}

// Open creates or opens the ledger at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	l := &Ledger{db: db, path: path}
	if err := l.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Path returns the database file location.
func (l *Ledger) Path() string { return l.path }

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record stores run and its failures in one transaction.
func (l *Ledger) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Labels may contain any character, so they are stored as a JSON array.
	angles, err := json.Marshal(run.Angles)
	if err != nil {
		return fmt.Errorf("encode angles: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
		id, started_at, finished_at, input_dir, output_dir, backend,
		frames, angles,
		bounds_min_x, bounds_min_y, bounds_min_z,
		bounds_max_x, bounds_max_y, bounds_max_z,
		scale, depth_near, depth_far,
		outputs, failures, cache_hits, cache_misses, duration_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Started.UTC().Format(timeLayout),
		run.Finished.UTC().Format(timeLayout),
		run.InputDir, run.OutputDir, run.Backend,
		run.Frames, string(angles),
		run.BoundsMin[0], run.BoundsMin[1], run.BoundsMin[2],
		run.BoundsMax[0], run.BoundsMax[1], run.BoundsMax[2],
		run.Scale, run.Near, run.Far,
		run.Outputs, max(run.FailureCount, len(run.Failures)), run.CacheHits, run.CacheMisses,
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, f := range run.Failures {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO failures (run_id, frame, angle, pass, message) VALUES (?, ?, ?, ?, ?)",
			run.ID, f.Frame, f.Angle, f.Pass, f.Message,
		); err != nil {
			return fmt.Errorf("insert failure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, input_dir, output_dir, backend,
	frames, angles,
	bounds_min_x, bounds_min_y, bounds_min_z,
	bounds_max_x, bounds_max_y, bounds_max_z,
	scale, depth_near, depth_far,
	outputs, cache_hits, cache_misses, duration_ms`

// List returns the most recent runs, newest first, without their failure
// details. A limit of zero or less returns every run.
func (l *Ledger) List(ctx context.Context, limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + ", failures FROM runs ORDER BY started_at DESC, id"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Get loads one run with its failures. id may be a unique prefix.
func (l *Ledger) Get(ctx context.Context, id string) (*Run, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT "+runColumns+", failures FROM runs WHERE id LIKE ? ESCAPE '\\' LIMIT 2",
		escapeLike(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	var matches []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		matches = append(matches, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}

	run := matches[0]
	frows, err := l.db.QueryContext(ctx,
		"SELECT frame, angle, pass, message FROM failures WHERE run_id = ? ORDER BY rowid", run.ID)
	if err != nil {
		return nil, fmt.Errorf("get failures: %w", err)
	}
	defer frows.Close()
	for frows.Next() {
		var f Failure
		if err := frows.Scan(&f.Frame, &f.Angle, &f.Pass, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		run.Failures = append(run.Failures, f)
	}
	if err := frows.Err(); err != nil {
		return nil, fmt.Errorf("get failures: %w", err)
	}
	return run, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run        Run
		startedRaw string
		finished   string
		inputDir   sql.NullString
		outputDir  sql.NullString
		backend    sql.NullString
		angles     string
		durationMS int64
	)
	if err := scanner.Scan(
		&run.ID, &startedRaw, &finished, &inputDir, &outputDir, &backend,
		&run.Frames, &angles,
		&run.BoundsMin[0], &run.BoundsMin[1], &run.BoundsMin[2],
		&run.BoundsMax[0], &run.BoundsMax[1], &run.BoundsMax[2],
		&run.Scale, &run.Near, &run.Far,
		&run.Outputs, &run.CacheHits, &run.CacheMisses, &durationMS,
		&run.FailureCount,
	); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	var err error
	if run.Started, err = time.Parse(timeLayout, startedRaw); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.Finished, err = time.Parse(timeLayout, finished); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	run.InputDir = inputDir.String
	run.OutputDir = outputDir.String
	run.Backend = backend.String
	if err := json.Unmarshal([]byte(angles), &run.Angles); err != nil {
		return nil, fmt.Errorf("decode angles: %w", err)
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
