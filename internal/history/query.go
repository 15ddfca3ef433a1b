// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/scoresummit/exam-engine/pkg/types"
)

// QueryOptions holds parameters for history queries.
type QueryOptions struct {
	// Query is the FTS5 full-text search string over past prompts.
	Query string

	// Section filters by exam section.
	Section types.Section

	// Escalated, when non-nil, filters by whether escalation ran.
	Escalated *bool

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// Entry is one past resolution with its recorded votes.
type Entry struct {
	ID         string        `json:"id" yaml:"id"`
	QuestionID string        `json:"question_id" yaml:"question_id"`
	Prompt     string        `json:"prompt" yaml:"prompt"`
	Answer     string        `json:"answer" yaml:"answer"`
	Confidence float64       `json:"confidence" yaml:"confidence"`
	Section    types.Section `json:"section" yaml:"section"`
	Subdomain  string        `json:"subdomain" yaml:"subdomain"`
	Escalated  bool          `json:"escalated" yaml:"escalated"`

	VerificationPassed bool    `json:"verification_passed" yaml:"verification_passed"`
	VerificationScore  float64 `json:"verification_score" yaml:"verification_score"`

	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`

	Votes []types.Vote `json:"votes,omitempty" yaml:"votes,omitempty"`
}

// List queries past resolutions, newest first for structured queries and
// by relevance for full-text queries. Votes are loaded for every entry.
func (s *Store) List(ctx context.Context, opts QueryOptions) ([]Entry, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != ""
	)

	if useFTS {
		qb.WriteString(
			`SELECT r.id, r.question_id, r.prompt, r.answer, r.confidence, r.section,
				r.subdomain, r.escalated, r.verification_passed, r.verification_score,
				r.elapsed_ms, r.created_at
			FROM resolutions_fts
			JOIN resolutions r ON r.rowid = resolutions_fts.rowid
			WHERE resolutions_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(
			`SELECT r.id, r.question_id, r.prompt, r.answer, r.confidence, r.section,
				r.subdomain, r.escalated, r.verification_passed, r.verification_score,
				r.elapsed_ms, r.created_at
			FROM resolutions r
			WHERE 1=1`)
	}

	if opts.Section != "" {
		qb.WriteString(` AND r.section = ?`)
		args = append(args, string(opts.Section))
	}
	if opts.Escalated != nil {
		qb.WriteString(` AND r.escalated = ?`)
		args = append(args, *opts.Escalated)
	}

	if useFTS {
		qb.WriteString(` ORDER BY resolutions_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY r.created_at DESC`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			section   string
			elapsedMS sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(
			&e.ID, &e.QuestionID, &e.Prompt, &e.Answer, &e.Confidence, &section,
			&e.Subdomain, &e.Escalated, &e.VerificationPassed, &e.VerificationScore,
			&elapsedMS, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.Section = types.Section(section)
		if elapsedMS.Valid {
			e.Elapsed = time.Duration(elapsedMS.Int64) * time.Millisecond
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		votes, err := s.votesFor(ctx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Votes = votes
	}
	return entries, nil
}

func (s *Store) votesFor(ctx context.Context, resolutionID string) ([]types.Vote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT backend_id, answer, confidence, method, fallback, elapsed_ms
		 FROM votes WHERE resolution_id = ? ORDER BY rowid`, resolutionID)
	if err != nil {
		return nil, fmt.Errorf("querying votes: %w", err)
	}
	defer rows.Close()

	var votes []types.Vote
	for rows.Next() {
		var (
			v         types.Vote
			elapsedMS sql.NullInt64
		)
		if err := rows.Scan(&v.BackendID, &v.Answer, &v.Confidence, &v.Method, &v.Fallback, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scanning vote: %w", err)
		}
		if elapsedMS.Valid {
			v.Elapsed = time.Duration(elapsedMS.Int64) * time.Millisecond
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}
