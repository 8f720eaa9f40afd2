// Package history persists finished escalation episodes in a local
// SQLite database for offline diagnosis.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pulsewatch/pulsewatch/internal/watchdog"
)

// Store is the episode journal. Writes come from the loop goroutine,
// reads from the status API, so a mutex serializes access.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the episode database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS episodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL,
		trigger_reasons TEXT NOT NULL,
		tiers_attempted INTEGER NOT NULL,
		recovered_tier INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		notified INTEGER NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	return nil
}

// Record inserts one finished episode.
func (s *Store) Record(ctx context.Context, ep watchdog.Episode) error {
	reasons, err := json.Marshal(ep.TriggerReasons)
	if err != nil {
		return fmt.Errorf("encode trigger reasons: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `INSERT INTO episodes
		(started_at, ended_at, trigger_reasons, tiers_attempted, recovered_tier, outcome, notified)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ep.StartedAt.UTC().Format(time.RFC3339Nano),
		ep.EndedAt.UTC().Format(time.RFC3339Nano),
		string(reasons),
		ep.TiersAttempted,
		ep.RecoveredTier,
		ep.Outcome,
		boolToInt(ep.Notified),
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// Recent returns up to limit episodes, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]watchdog.Episode, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, started_at, ended_at, trigger_reasons, tiers_attempted, recovered_tier, outcome, notified
		FROM episodes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []watchdog.Episode
	for rows.Next() {
		var (
			ep                 watchdog.Episode
			started, ended, tr string
			notified           int
		)
		if err := rows.Scan(&ep.ID, &started, &ended, &tr, &ep.TiersAttempted, &ep.RecoveredTier, &ep.Outcome, &notified); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			ep.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, ended); err == nil {
			ep.EndedAt = t
		}
		if err := json.Unmarshal([]byte(tr), &ep.TriggerReasons); err != nil {
			return nil, fmt.Errorf("decode trigger reasons: %w", err)
		}
		ep.Notified = notified == 1
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
