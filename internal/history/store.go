// Package history persists finalized transcriptions and answers the
// date-range queries behind the review surfaces.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/atcscribe/atcscribe-core/internal/config"
	"github.com/atcscribe/atcscribe-core/internal/fault"
	"github.com/atcscribe/atcscribe-core/internal/protocol"
)

// Store wraps a SQLite-backed transcription archive. Writes go through
// the single *sql.DB handle, which serializes access per record id.
type Store struct {
	db    *sql.DB
	cfg   config.HistoryConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the history store according to config.
func Open(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("history vacuum failed", slog.String("error", err.Error()))
		}
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transcriptions (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    confidence REAL NOT NULL,
    frequency TEXT,
    callsigns TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_created ON transcriptions(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts a finalized transcription by id. Interim hypotheses and
// empty transcripts violate the store's precondition.
func (s *Store) Save(ctx context.Context, tr protocol.Transcription) error {
	if tr.IsPartial {
		return fmt.Errorf("partial transcription %s must not be persisted: %w", tr.ID, fault.ErrInvalid)
	}
	if tr.ID == "" || tr.Text == "" {
		return fmt.Errorf("transcription needs id and text: %w", fault.ErrInvalid)
	}
	callsigns, err := json.Marshal(tr.DetectedCallsigns)
	if err != nil {
		return fmt.Errorf("marshal callsigns: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcriptions(id, text, confidence, frequency, callsigns, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   text=excluded.text, confidence=excluded.confidence,
		   frequency=excluded.frequency, callsigns=excluded.callsigns,
		   created_at=excluded.created_at`,
		tr.ID, tr.Text, tr.Confidence, tr.Frequency, string(callsigns), tr.Timestamp.UnixNano())
	return err
}

// GetAll returns every persisted record. Ordering is unspecified.
func (s *Store) GetAll(ctx context.Context) ([]protocol.Transcription, error) {
	return s.query(ctx,
		`SELECT id, text, confidence, frequency, callsigns, created_at FROM transcriptions`)
}

// GetByRange returns records with start <= timestamp < end, most recent
// first.
func (s *Store) GetByRange(ctx context.Context, start, end time.Time) ([]protocol.Transcription, error) {
	return s.query(ctx,
		`SELECT id, text, confidence, frequency, callsigns, created_at
		 FROM transcriptions WHERE created_at >= ? AND created_at < ?
		 ORDER BY created_at DESC`,
		start.UnixNano(), end.UnixNano())
}

// GetToday returns the records of the current local calendar day.
func (s *Store) GetToday(ctx context.Context) ([]protocol.Transcription, error) {
	now := s.clock()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.GetByRange(ctx, start, start.AddDate(0, 0, 1))
}

// Get returns one record by id, or fault.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (protocol.Transcription, error) {
	records, err := s.query(ctx,
		`SELECT id, text, confidence, frequency, callsigns, created_at
		 FROM transcriptions WHERE id = ?`, id)
	if err != nil {
		return protocol.Transcription{}, err
	}
	if len(records) == 0 {
		return protocol.Transcription{}, fmt.Errorf("transcription %s: %w", id, fault.ErrNotFound)
	}
	return records[0], nil
}

// Delete removes one record. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcriptions WHERE id = ?`, id)
	return err
}

// Clear removes every record.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcriptions`)
	return err
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]protocol.Transcription, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []protocol.Transcription
	for rows.Next() {
		var tr protocol.Transcription
		var frequency sql.NullString
		var callsigns sql.NullString
		var createdAt int64
		if err := rows.Scan(&tr.ID, &tr.Text, &tr.Confidence, &frequency, &callsigns, &createdAt); err != nil {
			return nil, err
		}
		tr.Frequency = frequency.String
		tr.Timestamp = time.Unix(0, createdAt)
		if callsigns.Valid && callsigns.String != "" {
			if err := json.Unmarshal([]byte(callsigns.String), &tr.DetectedCallsigns); err != nil {
				s.log.Warn("corrupt callsign column",
					slog.String("id", tr.ID), slog.String("error", err.Error()))
			}
		}
		records = append(records, tr)
	}
	return records, rows.Err()
}
