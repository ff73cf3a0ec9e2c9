package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/screenpost/internal/progress"
)

// HandlePublishPostTask publishes on a context detached from the task's.
// asynq cancels the task context on shutdown and deadline, and a platform
// call already issued must finish and have its outcome recorded.
func (j *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tweetID, err := j.ps.Publish(context.WithoutCancel(ctx), payload.UserID, payload.PostID, progress.Discard)
	if err != nil {
		slog.Info("scheduled publish failed", "post_id", payload.PostID, "error", err)
		return err
	}

	slog.Info("scheduled publish done", "post_id", payload.PostID, "tweet_id", tweetID)
	return nil
}

func (j *Queue) HandlePublishThreadTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishThreadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	firstTweetID, err := j.ts.PublishThread(context.WithoutCancel(ctx), payload.UserID, payload.ThreadID, progress.Discard)
	if err != nil {
		slog.Info("scheduled thread publish failed", "thread_id", payload.ThreadID, "error", err)
		return err
	}

	slog.Info("scheduled thread publish done", "thread_id", payload.ThreadID, "first_tweet_id", firstTweetID)
	return nil
}

// Register binds the task handlers to mux.
func (j *Queue) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypePublishPost, j.HandlePublishPostTask)
	mux.HandleFunc(TaskTypePublishThread, j.HandlePublishThreadTask)
}
