package transfer

import (
	"time"

	"github.com/maheshrc27/screenpost/internal/models"
)

type ScheduleRequest struct {
	PublishAt time.Time `json:"publish_at"`
}

type PostStatus struct {
	ID              int64      `json:"id"`
	PublishStatus   string     `json:"publish_status"`
	PublishAttempts int        `json:"publish_attempts"`
	PublishError    *string    `json:"publish_error,omitempty"`
	PostedAt        *time.Time `json:"posted_at,omitempty"`
	TweetID         *string    `json:"tweet_id,omitempty"`
}

func NewPostStatus(p *models.Post) PostStatus {
	return PostStatus{
		ID:              p.ID,
		PublishStatus:   p.PublishStatus,
		PublishAttempts: p.PublishAttempts,
		PublishError:    p.PublishError,
		PostedAt:        p.PostedAt,
		TweetID:         p.TweetID,
	}
}

type ThreadStatus struct {
	Thread  *models.Thread `json:"thread"`
	Members []PostStatus   `json:"members"`
}
