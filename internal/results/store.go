// Package results persists detection runs to SQLite.
//
// Each test run gets a UUID; every sample and its boxes are written in one
// transaction so a run interrupted mid-way keeps only complete samples.
package results

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/CosmosHua/Open3D-ML/internal/geometry"
	"github.com/CosmosHua/Open3D-ML/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Store is a results database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Run describes one test run.
type Run struct {
	ID         string
	Pipeline   string
	Model      string
	Dataset    string
	Split      string
	Device     string
	Checkpoint string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	NumSamples int
	NumBoxes   int
	Status     string
}

// Detection is a stored box with its sample position.
type Detection struct {
	SampleIndex int
	BoxIndex    int
	Box         geometry.BoundingBox3D
}

// Open opens or creates the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results db: %w", err)
	}
	// modernc sqlite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// Note: m is not closed because that would close the shared *sql.DB.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records a new run and returns it with a fresh ID.
func (s *Store) BeginRun(r Run) (Run, error) {
	r.ID = uuid.New().String()
	r.StartedAt = s.now().UTC()
	r.Status = StatusRunning

	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, pipeline, model, dataset, split, device, checkpoint, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Pipeline, r.Model, r.Dataset, r.Split, r.Device, r.Checkpoint, r.StartedAt.UnixNano(), r.Status)
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}
	return r, nil
}

// InsertSample stores one sample's detections.
func (s *Store) InsertSample(runID string, index int, name string, numPoints int, boxes []geometry.BoundingBox3D) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`
		INSERT INTO samples (run_id, sample_index, name, num_points, num_boxes)
		VALUES (?, ?, ?, ?, ?)`, runID, index, name, numPoints, len(boxes)); err != nil {
		return fmt.Errorf("failed to insert sample %d: %w", index, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO detections (run_id, sample_index, box_index, label, label_class, confidence,
			center_x, center_y, center_z, length, width, height, yaw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare detection insert: %w", err)
	}
	defer stmt.Close()

	for i, b := range boxes {
		if _, err = stmt.Exec(runID, index, i, b.Label, b.LabelClass, b.Confidence,
			b.Center.X, b.Center.Y, b.Center.Z, b.Size.X, b.Size.Y, b.Size.Z, b.Yaw); err != nil {
			return fmt.Errorf("failed to insert detection %d of sample %d: %w", i, index, err)
		}
	}

	if _, err = tx.Exec(`
		UPDATE runs SET num_samples = num_samples + 1, num_boxes = num_boxes + ? WHERE run_id = ?`,
		len(boxes), runID); err != nil {
		return fmt.Errorf("failed to update run totals: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sample %d: %w", index, err)
	}
	return nil
}

// FinishRun marks a run complete, or failed when runErr is non-nil.
func (s *Store) FinishRun(runID string, runErr error) error {
	status := StatusComplete
	if runErr != nil {
		status = StatusFailed
	}
	res, err := s.db.Exec(`UPDATE runs SET finished_at = ?, status = ? WHERE run_id = ?`,
		s.now().UTC().UnixNano(), status, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return nil
}

const runColumns = `run_id, pipeline, model, dataset, split, device, checkpoint,
	started_at, finished_at, num_samples, num_boxes, status`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Pipeline, &r.Model, &r.Dataset, &r.Split, &r.Device, &r.Checkpoint,
		&started, &finished, &r.NumSamples, &r.NumBoxes, &r.Status); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		r.FinishedAt = time.Unix(0, finished.Int64).UTC()
	}
	return r, nil
}

// Run loads a run by ID.
func (s *Store) Run(runID string) (Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}
	return r, nil
}

// Runs returns every run, oldest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at, run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Detections returns every box of a run ordered by sample then box index.
func (s *Store) Detections(runID string) ([]Detection, error) {
	rows, err := s.db.Query(`
		SELECT sample_index, box_index, label, label_class, confidence,
			center_x, center_y, center_z, length, width, height, yaw
		FROM detections WHERE run_id = ?
		ORDER BY sample_index, box_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var out []Detection
	for rows.Next() {
		var d Detection
		b := &d.Box
		if err := rows.Scan(&d.SampleIndex, &d.BoxIndex, &b.Label, &b.LabelClass, &b.Confidence,
			&b.Center.X, &b.Center.Y, &b.Center.Z, &b.Size.X, &b.Size.Y, &b.Size.Z, &b.Yaw); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
