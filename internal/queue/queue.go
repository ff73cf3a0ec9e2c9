package queue

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func enqueue(client Enqueuer, taskType string, payload any, delay time.Duration) (*asynq.TaskInfo, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	task := asynq.NewTask(taskType, taskPayload)

	// A failed publish is persisted as failed and retried explicitly, never by
	// the queue.
	info, err := client.Enqueue(task, asynq.ProcessIn(delay), asynq.MaxRetry(0))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	slog.Info("task scheduled", "type", taskType, "id", info.ID, "process_at", info.NextProcessAt)
	return info, nil
}

func EnqueuePost(client Enqueuer, payload PublishPostPayload, delay time.Duration) (*asynq.TaskInfo, error) {
	return enqueue(client, TaskTypePublishPost, payload, delay)
}

func EnqueueThread(client Enqueuer, payload PublishThreadPayload, delay time.Duration) (*asynq.TaskInfo, error) {
	return enqueue(client, TaskTypePublishThread, payload, delay)
}
