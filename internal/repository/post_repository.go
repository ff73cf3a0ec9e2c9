package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/lib/pq"
	"github.com/maheshrc27/screenpost/internal/models"
)

// ErrNotUpdated is returned when a guarded UPDATE matched no row.
var ErrNotUpdated = errors.New("no rows affected")

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	ListByThreadID(ctx context.Context, threadID int64) ([]*models.Post, error)
	ClaimForPublish(ctx context.Context, id int64) (bool, error)
	MarkPosted(ctx context.Context, id int64, tweetID, replyTo string) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	ResetForRetry(ctx context.Context, id int64) (bool, error)
}

const postColumns = `id, user_id, text, video_clip, image_capture_ids, rationale, created_at,
	publish_status, publish_attempts, publish_error, publish_error_at, publish_started_at,
	posted_at, tweet_id, thread_id, thread_position, reply_to_tweet_id`

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

func scanPost(row rowScanner) (*models.Post, error) {
	var p models.Post
	var rationale sql.NullString
	err := row.Scan(&p.ID, &p.UserID, &p.Text, &p.VideoClip, (*pq.Int64Array)(&p.ImageCaptureIDs), &rationale, &p.CreatedAt,
		&p.PublishStatus, &p.PublishAttempts, &p.PublishError, &p.PublishErrorAt, &p.PublishStartedAt,
		&p.PostedAt, &p.TweetID, &p.ThreadID, &p.ThreadPosition, &p.ReplyToTweetID)
	if err != nil {
		return nil, err
	}
	p.Rationale = rationale.String
	return &p, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM tweets WHERE id = $1`
	p, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return p, nil
}

func (r *postRepository) ListByThreadID(ctx context.Context, threadID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM tweets WHERE thread_id = $1 ORDER BY thread_position ASC`
	rows, err := r.db.QueryContext(ctx, query, threadID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

// ClaimForPublish moves a publishable post into posting and counts the
// attempt. It reports false when the post is already posting or posted.
func (r *postRepository) ClaimForPublish(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE tweets
		SET publish_status = 'posting',
			publish_attempts = publish_attempts + 1,
			publish_started_at = NOW()
		WHERE id = $1
			AND posted_at IS NULL
			AND publish_status IN ('pending', 'failed')
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *postRepository) MarkPosted(ctx context.Context, id int64, tweetID, replyTo string) error {
	query := `
		UPDATE tweets
		SET publish_status = 'posted',
			posted_at = NOW(),
			tweet_id = $2,
			reply_to_tweet_id = NULLIF($3, ''),
			publish_error = NULL,
			publish_error_at = NULL
		WHERE id = $1 AND posted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id, tweetID, replyTo)
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

func (r *postRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE tweets
		SET publish_status = 'failed',
			publish_error = $2,
			publish_error_at = NOW()
		WHERE id = $1 AND posted_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, id, reason)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ResetForRetry moves a failed post back to pending.
func (r *postRepository) ResetForRetry(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE tweets
		SET publish_status = 'pending'
		WHERE id = $1 AND posted_at IS NULL AND publish_status = 'failed'
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}
