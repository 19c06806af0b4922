package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Journal configuration constants.
const (
	// dirPermissions is the permission mode for the journal directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the journal file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// queueSize bounds the async writer queue. Entries beyond this are
	// dropped with a warning rather than stalling the cycle loop.
	queueSize = 1024
)

// Config contains journal configuration options.
// These map to the journal section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite journal file.
	// The directory will be created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging for better concurrent access.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int
}

// Journal persists simulation runs, state transitions and parameter
// snapshots to SQLite. Record methods enqueue to a background writer so
// the cycle loop never blocks on disk.
type Journal struct {
	db    *sql.DB
	path  string
	runID string
	log   Logger

	queue chan record
	wg    sync.WaitGroup

	closeOnce sync.Once
}

type record struct {
	kind    string
	device  string
	event   string
	state   string
	cycle   uint64
	runtime float64
	params  string

	// ack, when set, marks a flush barrier instead of a row.
	ack chan struct{}
}

// Open creates the journal database, applies the schema and starts the
// background writer.
func Open(cfg Config, logger Logger) (*Journal, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// SQLite only supports one writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("verifying journal connection: %w", err)
	}

	if err := applySchema(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	_ = os.Chmod(cfg.Path, filePermissions)

	j := &Journal{
		db:    sqlDB,
		path:  cfg.Path,
		log:   logger,
		queue: make(chan record, queueSize),
	}

	j.wg.Add(1)
	go j.writeLoop()

	return j, nil
}

// applySchema bootstraps the journal tables. The simulator ships as a
// single binary with a private database, so the schema lives here rather
// than in migration files.
func applySchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	ended_at    TEXT,
	speed       REAL NOT NULL,
	cycle_delay_ms INTEGER NOT NULL,
	cycles      INTEGER NOT NULL DEFAULT 0,
	runtime     REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS transitions (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id   TEXT NOT NULL REFERENCES runs(id),
	device   TEXT NOT NULL,
	event    TEXT NOT NULL,
	state    TEXT NOT NULL,
	cycle    INTEGER NOT NULL,
	runtime  REAL NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_transitions_run_device
	ON transitions(run_id, device, cycle);

CREATE TABLE IF NOT EXISTS snapshots (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id   TEXT NOT NULL REFERENCES runs(id),
	device   TEXT NOT NULL,
	state    TEXT NOT NULL,
	params   TEXT NOT NULL,
	cycle    INTEGER NOT NULL,
	runtime  REAL NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_snapshots_run_device
	ON snapshots(run_id, device, cycle);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying journal schema: %w", err)
	}
	return nil
}

// BeginRun records the start of a simulation run and returns its ID.
// Subsequent Record calls attach to this run.
func (j *Journal) BeginRun(ctx context.Context, speed float64, cycleDelay time.Duration) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, speed, cycle_delay_ms) VALUES (?, ?, ?, ?)",
		id,
		time.Now().UTC().Format(time.RFC3339Nano),
		speed,
		cycleDelay.Milliseconds(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	j.runID = id
	return id, nil
}

// EndRun records the final counters for the current run.
func (j *Journal) EndRun(ctx context.Context, cycles uint64, runtime float64) error {
	if j.runID == "" {
		return ErrNoRun
	}
	_, err := j.db.ExecContext(ctx,
		"UPDATE runs SET ended_at = ?, cycles = ?, runtime = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339Nano),
		cycles,
		runtime,
		j.runID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	return nil
}

// RunID returns the current run identifier, empty before BeginRun.
func (j *Journal) RunID() string { return j.runID }

// HealthCheck verifies the journal database is reachable.
func (j *Journal) HealthCheck(ctx context.Context) error {
	if err := j.db.PingContext(ctx); err != nil {
		return fmt.Errorf("journal health check: %w", err)
	}
	return nil
}

// Close drains the writer queue and closes the database.
func (j *Journal) Close() error {
	var err error
	j.closeOnce.Do(func() {
		close(j.queue)
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()

	for rec := range j.queue {
		if rec.ack != nil {
			close(rec.ack)
			continue
		}
		if err := j.write(rec); err != nil {
			j.log.Error("journal write failed",
				"kind", rec.kind,
				"device", rec.device,
				"error", err,
			)
		}
	}
}

func (j *Journal) write(rec record) error {
	switch rec.kind {
	case "transition":
		_, err := j.db.Exec(
			"INSERT INTO transitions (run_id, device, event, state, cycle, runtime) VALUES (?, ?, ?, ?, ?, ?)",
			j.runID, rec.device, rec.event, rec.state, rec.cycle, rec.runtime,
		)
		return err
	case "snapshot":
		_, err := j.db.Exec(
			"INSERT INTO snapshots (run_id, device, state, params, cycle, runtime) VALUES (?, ?, ?, ?, ?, ?)",
			j.runID, rec.device, rec.state, rec.params, rec.cycle, rec.runtime,
		)
		return err
	default:
		return fmt.Errorf("unknown record kind %q", rec.kind)
	}
}

// enqueue hands a record to the writer, dropping it if the queue is full.
func (j *Journal) enqueue(rec record) {
	select {
	case j.queue <- rec:
	default:
		j.log.Warn("journal queue full, dropping record",
			"kind", rec.kind,
			"device", rec.device,
		)
	}
}
