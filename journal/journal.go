// Package journal persists sequence run outcomes to a SQLite database.
// It attaches to a sequence as an observer and records one row per
// completed run; the engine itself never touches storage.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/SteeleParker/bsync"
)

// Entry is one recorded run outcome.
type Entry struct {
	// SequenceID is the run's unique identifier.
	SequenceID string
	// Error holds the accumulated error text, empty on full success.
	Error string
	// Data is the final merged result set of the run.
	Data map[string]any
	// Duration is the wall time from Go to the terminal callback.
	Duration time.Duration
	// RecordedAt is when the entry was written.
	RecordedAt time.Time
}

// Journal is a SQLite-backed log of completed runs.
type Journal struct {
	db *sql.DB
}

// Open creates or opens a journal database at the given path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			sequence_id TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			data        TEXT NOT NULL DEFAULT '{}',
			duration_ms INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record writes one run outcome to the journal.
func (j *Journal) Record(e Entry) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encoding run data: %w", err)
	}

	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err = j.db.Exec(
		`INSERT INTO runs (sequence_id, error, data, duration_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.SequenceID, e.Error, string(data),
		e.Duration.Milliseconds(), recordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", e.SequenceID, err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) ([]Entry, error) {
	rows, err := j.db.Query(
		`SELECT sequence_id, error, data, duration_ms, recorded_at
		 FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			data       string
			durationMS int64
			recordedAt string
		)
		if err := rows.Scan(&e.SequenceID, &e.Error, &data, &durationMS, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("decoding run data for %s: %w", e.SequenceID, err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			e.RecordedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Observer returns a bsync.Observer that records every completed run.
// Journal write failures are logged and never disturb the run; passing a
// nil logger silences them.
func (j *Journal) Observer(logger bsync.Logger) bsync.Observer {
	if logger == nil {
		logger = bsync.NewDefaultLogger()
	}
	return &observer{j: j, logger: logger}
}

type observer struct {
	bsync.BaseObserver
	j      *Journal
	logger bsync.Logger
}

func (o *observer) SequenceCompleted(id string, err error, data map[string]any, elapsed time.Duration) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	rerr := o.j.Record(Entry{
		SequenceID: id,
		Error:      msg,
		Data:       data,
		Duration:   elapsed,
	})
	if rerr != nil {
		o.logger.Error("journal: failed to record run %s: %v", id, rerr)
	}
}
