// Package sqlite persists raw price samples and pipeline events. It
// implements the SampleStore and EventLogger ports with a single-writer
// connection and batched transactions.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"savantbot/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond

	// Keep last 30 days of raw samples.
	sampleRetention = 30 * 24 * time.Hour
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/savant.db"
}

// Store is a single-writer SQLite store with transaction batching.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and initializes the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS samples (
			ts    INTEGER NOT NULL PRIMARY KEY,
			price REAL    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS events (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			ts      INTEGER NOT NULL,
			kind    TEXT    NOT NULL,
			details TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
	`)
	return err
}

// AppendSamples inserts a batch of samples in a single transaction.
// Duplicate timestamps replace the previous row.
func (s *Store) AppendSamples(ctx context.Context, samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO samples (ts, price) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, sm := range samples {
		if !sm.Valid() {
			continue
		}
		if _, err := stmt.Exec(sm.TS.Unix(), sm.Price); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

// ReadSamples returns all samples at or after since, ascending by time.
func (s *Store) ReadSamples(ctx context.Context, since time.Time) ([]model.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, price FROM samples
		WHERE ts >= ?
		ORDER BY ts ASC
	`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query samples: %w", err)
	}
	defer rows.Close()

	var out []model.Sample
	for rows.Next() {
		var tsUnix int64
		var price float64
		if err := rows.Scan(&tsUnix, &price); err != nil {
			return nil, fmt.Errorf("sqlite scan sample: %w", err)
		}
		out = append(out, model.Sample{TS: time.Unix(tsUnix, 0).UTC(), Price: price})
	}
	return out, rows.Err()
}

// LogEvent appends a structured pipeline event.
func (s *Store) LogEvent(ctx context.Context, ev model.Event) error {
	ts := ev.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (ts, kind, details) VALUES (?, ?, ?)`,
		ts.Unix(), string(ev.Kind), string(ev.Details))
	if err != nil {
		return fmt.Errorf("sqlite insert event: %w", err)
	}
	return nil
}

// RecentEvents returns the most recent events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, kind, details FROM events
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var tsUnix int64
		var kind string
		var details sql.NullString
		if err := rows.Scan(&tsUnix, &kind, &details); err != nil {
			return nil, fmt.Errorf("sqlite scan event: %w", err)
		}
		ev := model.Event{TS: time.Unix(tsUnix, 0).UTC(), Kind: model.EventKind(kind)}
		if details.Valid {
			ev.Details = []byte(details.String)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Run reads samples from sampleCh and inserts them in batched
// transactions. Flushes every batchSize samples OR every flushDelay,
// whichever comes first. Blocks until ctx is cancelled or the channel
// is closed.
func (s *Store) Run(ctx context.Context, sampleCh <-chan model.Sample) {
	batch := make([]model.Sample, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.AppendSamples(context.Background(), batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case sm, ok := <-sampleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, sm)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// PruneSamples deletes samples older than the retention window.
func (s *Store) PruneSamples(ctx context.Context) error {
	cutoff := time.Now().Add(-sampleRetention).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE ts < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("sqlite prune samples: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("[sqlite] pruned %d old samples", n)
	}
	return nil
}

// LastSampleTime returns the newest stored sample timestamp, or the
// zero time when the table is empty.
func (s *Store) LastSampleTime(ctx context.Context) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(ts) FROM samples`).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite max ts: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
