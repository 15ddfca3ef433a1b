// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history persists finished resolutions in a SQLite database and
// serves queries over them. Prompts are indexed with FTS5 so past
// questions can be found by content.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/scoresummit/exam-engine/pkg/types"
)

const dbFile = "history.db"

// Store manages the resolution history database.
type Store struct {
	db         *sql.DB
	maxResults int
}

// NewStore opens or creates the history database at dir/history.db,
// creating the schema when absent.
func NewStore(cfg types.HistoryConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("history: no directory configured")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, maxResults: 20}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS resolutions (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			question_id TEXT NOT NULL,
			prompt TEXT NOT NULL,
			answer TEXT NOT NULL,
			confidence REAL NOT NULL,
			section TEXT,
			subdomain TEXT,
			escalated INTEGER NOT NULL DEFAULT 0,
			verification_passed INTEGER NOT NULL DEFAULT 0,
			verification_score REAL,
			elapsed_ms INTEGER,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resolutions_question_id ON resolutions(question_id)`,
		`CREATE INDEX IF NOT EXISTS idx_resolutions_section ON resolutions(section)`,
		`CREATE TABLE IF NOT EXISTS votes (
			resolution_id TEXT NOT NULL REFERENCES resolutions(id),
			backend_id TEXT NOT NULL,
			answer TEXT NOT NULL,
			confidence REAL NOT NULL,
			method TEXT,
			fallback INTEGER NOT NULL DEFAULT 0,
			elapsed_ms INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_resolution_id ON votes(resolution_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='resolutions_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE resolutions_fts USING fts5(prompt, content=resolutions, content_rowid=rowid)`,
			`CREATE TRIGGER resolutions_ai AFTER INSERT ON resolutions BEGIN
				INSERT INTO resolutions_fts(rowid, prompt) VALUES (new.rowid, new.prompt);
			END`,
			`CREATE TRIGGER resolutions_ad AFTER DELETE ON resolutions BEGIN
				INSERT INTO resolutions_fts(resolutions_fts, rowid, prompt) VALUES('delete', old.rowid, old.prompt);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}
	return nil
}

// Record persists one finished resolution with its votes.
func (s *Store) Record(ctx context.Context, q types.Question, res types.ResolvedAnswer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO resolutions (id, question_id, prompt, answer, confidence, section,
			subdomain, escalated, verification_passed, verification_score, elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, res.QuestionID, q.Prompt, res.Answer, res.Confidence, string(res.Section),
		res.Subdomain, res.Escalated, res.Verification.Passed, res.Verification.Score,
		res.Elapsed.Milliseconds(), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting resolution: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO votes (resolution_id, backend_id, answer, confidence, method, fallback, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing vote insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range res.Votes {
		if _, err := stmt.ExecContext(ctx,
			id, v.BackendID, v.Answer, v.Confidence, v.Method, v.Fallback, v.Elapsed.Milliseconds(),
		); err != nil {
			return fmt.Errorf("inserting vote from %s: %w", v.BackendID, err)
		}
	}

	return tx.Commit()
}
