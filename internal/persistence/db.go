// Package persistence provides the SQLite run log: one row per recorded
// cycle plus every birth and death. The log is write-only history; runs are
// never restored from it.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/dilemma/internal/engine"
)

// DB wraps a SQLite connection for the run log.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the recorder and API reads.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		seed INTEGER NOT NULL,
		params_json TEXT NOT NULL,
		population_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cycle_stats (
		run_id TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		population INTEGER NOT NULL,
		games INTEGER NOT NULL,
		births INTEGER NOT NULL,
		deaths INTEGER NOT NULL,
		cycle_ms REAL NOT NULL,
		avg_energy REAL NOT NULL,
		PRIMARY KEY (run_id, cycle)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		kind TEXT NOT NULL,
		agent_id INTEGER NOT NULL,
		label TEXT NOT NULL,
		parent_id INTEGER,
		cause TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_run_cycle ON events(run_id, cycle);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run describes one simulation run.
type Run struct {
	ID             string `db:"id" json:"id"`
	StartedAt      string `db:"started_at" json:"started_at"`
	Seed           int64  `db:"seed" json:"seed"`
	ParamsJSON     string `db:"params_json" json:"-"`
	PopulationJSON string `db:"population_json" json:"-"`
}

// PopulationEntry is the stored form of one initial population seed.
type PopulationEntry struct {
	Strategy string `json:"strategy"`
	Count    int    `json:"count"`
}

// StatsRow is one recorded cycle.
type StatsRow struct {
	RunID      string  `db:"run_id" json:"-"`
	Cycle      uint64  `db:"cycle" json:"cycle"`
	Population int     `db:"population" json:"population"`
	Games      uint64  `db:"games" json:"games"`
	Births     uint64  `db:"births" json:"births"`
	Deaths     uint64  `db:"deaths" json:"deaths"`
	CycleMS    float64 `db:"cycle_ms" json:"cycle_ms"`
	AvgEnergy  float64 `db:"avg_energy" json:"avg_energy"`
}

// CreateRun registers a new run and returns its ID.
func (db *DB) CreateRun(seed int64, params engine.Params, population []engine.Seed) (string, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	entries := make([]PopulationEntry, 0, len(population))
	for _, s := range population {
		entries = append(entries, PopulationEntry{Strategy: s.Strategy.Label(), Count: s.Count})
	}
	popJSON, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = db.conn.Exec(
		"INSERT INTO runs (id, started_at, seed, params_json, population_json) VALUES (?, ?, ?, ?, ?)",
		id, time.Now().UTC().Format(time.RFC3339), seed, string(paramsJSON), string(popJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Runs lists recorded runs, newest first.
func (db *DB) Runs() ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs, "SELECT id, started_at, seed, params_json, population_json FROM runs ORDER BY started_at DESC, id")
	return runs, err
}

// SaveStats appends recorded cycles.
func (db *DB) SaveStats(rows []StatsRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range rows {
		_, err := tx.NamedExec(`INSERT OR REPLACE INTO cycle_stats
			(run_id, cycle, population, games, births, deaths, cycle_ms, avg_energy)
			VALUES (:run_id, :cycle, :population, :games, :births, :deaths, :cycle_ms, :avg_energy)`, r)
		if err != nil {
			return fmt.Errorf("insert stats for cycle %d: %w", r.Cycle, err)
		}
	}
	return tx.Commit()
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(runID string, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO events
		(run_id, cycle, kind, agent_id, label, parent_id, cause)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		var parent, cause any
		if e.ParentID != 0 {
			parent = uint64(e.ParentID)
		}
		if e.Cause != "" {
			cause = e.Cause
		}
		if _, err := stmt.Exec(runID, e.Cycle, e.Kind, uint64(e.AgentID), e.Label, parent, cause); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit()
}

// LoadStatsHistory returns recorded cycles of runID in [from, to], oldest
// first, at most limit rows.
func (db *DB) LoadStatsHistory(runID string, from, to uint64, limit int) ([]StatsRow, error) {
	var rows []StatsRow
	err := db.conn.Select(&rows, `SELECT run_id, cycle, population, games, births, deaths, cycle_ms, avg_energy
		FROM cycle_stats WHERE run_id = ? AND cycle >= ? AND cycle <= ?
		ORDER BY cycle ASC LIMIT ?`,
		runID, int64(from), int64(to), limit,
	)
	return rows, err
}

// EventRow is one logged birth or death.
type EventRow struct {
	Cycle    uint64  `db:"cycle" json:"cycle"`
	Kind     string  `db:"kind" json:"kind"`
	AgentID  uint64  `db:"agent_id" json:"agent_id"`
	Label    string  `db:"label" json:"label"`
	ParentID *int64  `db:"parent_id" json:"parent_id,omitempty"`
	Cause    *string `db:"cause" json:"cause,omitempty"`
}

// RecentEvents returns the latest limit events of runID, newest first.
// An empty kind matches every kind.
func (db *DB) RecentEvents(runID, kind string, limit int) ([]EventRow, error) {
	var events []EventRow
	err := db.conn.Select(&events, `SELECT cycle, kind, agent_id, label, parent_id, cause
		FROM events WHERE run_id = ? AND (? = '' OR kind = ?)
		ORDER BY id DESC LIMIT ?`,
		runID, kind, kind, limit,
	)
	return events, err
}

// CountEvents returns how many events of kind were logged for runID.
func (db *DB) CountEvents(runID, kind string) (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM events WHERE run_id = ? AND kind = ?", runID, kind)
	return n, err
}

// Recorder buffers snapshots from the cycle goroutine and writes them in
// batches. It is meant to be used as a controller observer.
type Recorder struct {
	db    *DB
	runID string
	every uint64

	stats  []StatsRow
	events []engine.Event
}

// NewRecorder creates a recorder for runID writing every N cycles (minimum 1).
func NewRecorder(db *DB, runID string, every uint64) *Recorder {
	if every == 0 {
		every = 1
	}
	return &Recorder{db: db, runID: runID, every: every}
}

// RunID returns the run being recorded.
func (r *Recorder) RunID() string {
	return r.runID
}

// Observe records one snapshot. Every cycle's events are kept; stats rows are
// sampled every N cycles and on extinction.
func (r *Recorder) Observe(snap engine.Snapshot) {
	r.events = append(r.events, snap.Events...)
	if snap.Cycle%r.every == 0 || snap.Population == 0 {
		r.stats = append(r.stats, StatsRow{
			RunID:      r.runID,
			Cycle:      snap.Cycle,
			Population: snap.Population,
			Games:      snap.Stats.Games,
			Births:     snap.Stats.Births,
			Deaths:     snap.Stats.Deaths,
			CycleMS:    float64(snap.Stats.LastCycleTime.Microseconds()) / 1000,
			AvgEnergy:  snap.AverageEnergy(),
		})
		if err := r.Flush(); err != nil {
			slog.Error("run log flush failed", "run", r.runID, "cycle", snap.Cycle, "error", err)
		}
	}
}

// Flush writes buffered rows.
func (r *Recorder) Flush() error {
	if err := r.db.SaveStats(r.stats); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	r.stats = r.stats[:0]
	if err := r.db.SaveEvents(r.runID, r.events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	r.events = r.events[:0]
	return nil
}
