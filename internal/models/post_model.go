package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Post is a single tweet suggestion awaiting publication. Stored in tweets.
type Post struct {
	ID               int64      `db:"id" json:"id"`
	UserID           int64      `db:"user_id" json:"user_id"`
	Text             string     `db:"text" json:"text"`
	VideoClip        *VideoClip `db:"video_clip" json:"video_clip,omitempty"`
	ImageCaptureIDs  []int64    `db:"image_capture_ids" json:"image_capture_ids"`
	Rationale        string     `db:"rationale" json:"rationale"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	PublishStatus    string     `db:"publish_status" json:"publish_status"`
	PublishAttempts  int        `db:"publish_attempts" json:"publish_attempts"`
	PublishError     *string    `db:"publish_error" json:"publish_error,omitempty"`
	PublishErrorAt   *time.Time `db:"publish_error_at" json:"publish_error_at,omitempty"`
	PublishStartedAt *time.Time `db:"publish_started_at" json:"publish_started_at,omitempty"`
	PostedAt         *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	TweetID          *string    `db:"tweet_id" json:"tweet_id,omitempty"`
	ThreadID         *int64     `db:"thread_id" json:"thread_id,omitempty"`
	ThreadPosition   *int       `db:"thread_position" json:"thread_position,omitempty"`
	ReplyToTweetID   *string    `db:"reply_to_tweet_id" json:"reply_to_tweet_id,omitempty"`
}

func (p *Post) IsPosted() bool {
	return p.PostedAt != nil
}

// VideoClip references a segment of a video capture. Zero offsets and a zero
// duration mean the whole capture.
type VideoClip struct {
	SourceCaptureID int64   `json:"source_capture_id"`
	StartOffsetSecs float64 `json:"start_offset_secs"`
	DurationSecs    float64 `json:"duration_secs"`
}

func (v *VideoClip) NeedsCut() bool {
	return v.StartOffsetSecs > 0 || v.DurationSecs > 0
}

func (v VideoClip) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *VideoClip) Scan(src any) error {
	var data []byte
	switch s := src.(type) {
	case []byte:
		data = s
	case string:
		data = []byte(s)
	default:
		return errors.New("video_clip: unsupported scan type")
	}
	return json.Unmarshal(data, v)
}

const (
	PublishStatusPending = "pending"
	PublishStatusPosting = "posting"
	PublishStatusPosted  = "posted"
	PublishStatusFailed  = "failed"
)

// MaxImagesPerPost is the platform cap on attached images.
const MaxImagesPerPost = 4
