// Package storage persists finished reviews so they survive restarts and can
// be browsed from the CLI and terminal UI.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	// import db drivers
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when no stored review matches the lookup.
var ErrNotFound = errors.New("review not found")

// ReviewRecord is the persisted form of a delivered review.
type ReviewRecord struct {
	ID            int64     `db:"id"`
	RequestKey    string    `db:"request_key"`
	Source        string    `db:"source"`
	RepoFullName  string    `db:"repo_full_name"`
	Branch        string    `db:"branch"`
	CommitSHA     string    `db:"commit_sha"`
	SlackChannel  string    `db:"slack_channel"`
	SlackThreadTS string    `db:"slack_thread_ts"`
	Summary       string    `db:"summary"`
	Recommended   string    `db:"recommended_action"`
	Suggestions   int       `db:"suggestions"`
	Truncated     bool      `db:"truncated"`
	CreatedAt     time.Time `db:"created_at"`
}

// Store defines the persistence operations for delivered reviews.
type Store interface {
	SaveReview(ctx context.Context, rec *ReviewRecord) error
	GetReviewByKey(ctx context.Context, requestKey string) (*ReviewRecord, error)
	ListRecentReviews(ctx context.Context, limit int) ([]ReviewRecord, error)
}

type postgresStore struct {
	db *sqlx.DB
}

// NewStore creates a new Store
func NewStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

// SaveReview inserts one delivered review.
func (s *postgresStore) SaveReview(ctx context.Context, rec *ReviewRecord) error {
	query := `
		INSERT INTO review_results
			(request_key, source, repo_full_name, branch, commit_sha,
			 slack_channel, slack_thread_ts, summary, recommended_action,
			 suggestions, truncated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.db.ExecContext(ctx, query,
		rec.RequestKey, rec.Source, rec.RepoFullName, rec.Branch, rec.CommitSHA,
		rec.SlackChannel, rec.SlackThreadTS, rec.Summary, rec.Recommended,
		rec.Suggestions, rec.Truncated, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save review %s: %w", rec.RequestKey, err)
	}
	return nil
}

// GetReviewByKey retrieves the most recent stored review for a request key.
func (s *postgresStore) GetReviewByKey(ctx context.Context, requestKey string) (*ReviewRecord, error) {
	query := `
		SELECT * FROM review_results
		WHERE request_key = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var rec ReviewRecord
	if err := s.db.GetContext(ctx, &rec, query, requestKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestKey)
		}
		return nil, err
	}
	return &rec, nil
}

// ListRecentReviews returns the newest stored reviews, newest first.
func (s *postgresStore) ListRecentReviews(ctx context.Context, limit int) ([]ReviewRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT * FROM review_results
		ORDER BY created_at DESC
		LIMIT $1`

	var recs []ReviewRecord
	if err := s.db.SelectContext(ctx, &recs, query, limit); err != nil {
		return nil, err
	}
	return recs, nil
}
