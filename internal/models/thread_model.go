package models

import "time"

type Thread struct {
	ID           int64      `db:"id" json:"id"`
	UserID       int64      `db:"user_id" json:"user_id"`
	Title        string     `db:"title" json:"title"`
	Status       string     `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	PostedAt     *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	FirstTweetID *string    `db:"first_tweet_id" json:"first_tweet_id,omitempty"`
}

const (
	ThreadStatusDraft         = "draft"
	ThreadStatusPosting       = "posting"
	ThreadStatusPosted        = "posted"
	ThreadStatusPartialFailed = "partial_failed"
)
