package queue

import (
	"github.com/maheshrc27/screenpost/internal/service"
)

type Queue struct {
	ps service.PublishService
	ts service.ThreadService
}

func NewQueue(ps service.PublishService, ts service.ThreadService) *Queue {
	return &Queue{
		ps: ps,
		ts: ts,
	}
}

const (
	TaskTypePublishPost   = "publish:post"
	TaskTypePublishThread = "publish:thread"
)

type PublishPostPayload struct {
	UserID int64 `json:"user_id"`
	PostID int64 `json:"post_id"`
}

type PublishThreadPayload struct {
	UserID   int64 `json:"user_id"`
	ThreadID int64 `json:"thread_id"`
}
