package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/maheshrc27/screenpost/internal/models"
)

type ThreadRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Thread, error)
	BeginPosting(ctx context.Context, id, userID int64) (string, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	MarkPosted(ctx context.Context, id int64, firstTweetID string) error
}

type threadRepository struct {
	db *sql.DB
}

func NewThreadRepository(db *sql.DB) ThreadRepository {
	return &threadRepository{db: db}
}

func (r *threadRepository) GetByID(ctx context.Context, id int64) (*models.Thread, error) {
	query := `SELECT id, user_id, title, status, created_at, posted_at, first_tweet_id FROM tweet_threads WHERE id = $1`

	var t models.Thread
	var title sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.UserID, &title, &t.Status, &t.CreatedAt, &t.PostedAt, &t.FirstTweetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	t.Title = title.String
	return &t, nil
}

// BeginPosting is the single entry into the posting state. Only one caller
// can move a thread out of draft or partial_failed. It returns the status the
// thread left, or "" when the thread was not entered.
func (r *threadRepository) BeginPosting(ctx context.Context, id, userID int64) (string, error) {
	query := `
		UPDATE tweet_threads t
		SET status = 'posting'
		FROM (SELECT id, status FROM tweet_threads WHERE id = $1 FOR UPDATE) prev
		WHERE t.id = prev.id AND t.user_id = $2 AND t.status IN ('draft', 'partial_failed')
		RETURNING prev.status
	`
	var previous string
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&previous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		slog.Info(err.Error())
		return "", err
	}
	return previous, nil
}

func (r *threadRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE tweet_threads SET status = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *threadRepository) MarkPosted(ctx context.Context, id int64, firstTweetID string) error {
	query := `
		UPDATE tweet_threads
		SET status = 'posted',
			posted_at = NOW(),
			first_tweet_id = $2
		WHERE id = $1 AND status = 'posting'
	`
	result, err := r.db.ExecContext(ctx, query, id, firstTweetID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return ErrNotUpdated
	}
	return nil
}
