// Package store handles SQLite persistence of reading attempts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rliebert/reading-fluency-app/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for attempt history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attempts (
			id INTEGER PRIMARY KEY,
			session_id TEXT NOT NULL,
			passage_id TEXT NOT NULL,
			level TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			mode TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			score INTEGER NOT NULL,
			error_count INTEGER NOT NULL,
			improved INTEGER NOT NULL,
			transcript TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attempt_errors (
			attempt_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			word TEXT NOT NULL,
			PRIMARY KEY (attempt_id, position)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_ended_at ON attempts(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_level ON attempts(level);`,
		`CREATE INDEX IF NOT EXISTS idx_attempt_errors_word ON attempt_errors(word);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record implements the attempt recorder used by the practice loop.
func (s *Store) Record(ctx context.Context, rec model.AttemptRecord) error {
	_, err := s.InsertAttempt(ctx, rec)
	return err
}

// InsertAttempt stores a finished attempt and its mis-read words.
func (s *Store) InsertAttempt(ctx context.Context, rec model.AttemptRecord) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	improved := 0
	if rec.Improved {
		improved = 1
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO attempts (session_id, passage_id, level, attempt, mode, started_at, ended_at, score, error_count, improved, transcript)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.PassageID,
		rec.Level,
		rec.Attempt,
		rec.Mode,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.EndedAt.UTC().Format(time.RFC3339Nano),
		rec.Score,
		len(rec.Errors),
		improved,
		rec.Transcript,
	)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(rec.Errors) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO attempt_errors (attempt_id, position, word) VALUES (?, ?, ?)`)
		if perr != nil {
			err = perr
			return 0, err
		}
		defer func() {
			_ = stmt.Close()
		}()
		for i, word := range rec.Errors {
			if _, err = stmt.ExecContext(ctx, id, i, word); err != nil {
				return 0, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ListAttempts returns attempt aggregates filtered by the history config, oldest first.
func (s *Store) ListAttempts(ctx context.Context, cfg model.HistoryConfig) ([]model.AttemptAggregate, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Level != "" {
		clauses = append(clauses, "level = ?")
		args = append(args, cfg.Level)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, cfg.Since.UTC().Format(time.RFC3339Nano))
	}
	query := fmt.Sprintf(`SELECT id, session_id, passage_id, level, attempt, mode, ended_at, score, error_count, improved
		FROM attempts
		WHERE %s
		ORDER BY ended_at ASC, id ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var attempts []model.AttemptAggregate
	for rows.Next() {
		var agg model.AttemptAggregate
		var endedAt string
		var improved int
		if err := rows.Scan(&agg.ID, &agg.SessionID, &agg.PassageID, &agg.Level, &agg.Attempt, &agg.Mode, &endedAt, &agg.Score, &agg.ErrorCount, &improved); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		agg.EndedAt = parsed
		agg.Improved = improved != 0
		attempts = append(attempts, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(attempts) > cfg.Last {
		attempts = attempts[len(attempts)-cfg.Last:]
	}
	return attempts, nil
}

// TrickyWords aggregates mis-read words over the given attempts.
func (s *Store) TrickyWords(ctx context.Context, attemptIDs []int64) ([]model.WordAggregate, error) {
	if len(attemptIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(attemptIDs))
	args := make([]any, len(attemptIDs))
	for i, id := range attemptIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT word, COUNT(*) AS misses, COUNT(DISTINCT attempt_id) AS attempts
		FROM attempt_errors
		WHERE attempt_id IN (%s)
		GROUP BY word`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []model.WordAggregate
	for rows.Next() {
		var agg model.WordAggregate
		if err := rows.Scan(&agg.Word, &agg.Misses, &agg.Attempts); err != nil {
			return nil, err
		}
		result = append(result, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ErrorsForAttempt returns the mis-read words of one attempt in passage order.
func (s *Store) ErrorsForAttempt(ctx context.Context, attemptID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT word FROM attempt_errors WHERE attempt_id = ? ORDER BY position ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()
	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, rows.Err()
}
