package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/progress"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (e *recordingEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	e.opts = append(e.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), NextProcessAt: time.Now()}, nil
}

func TestEnqueuePost(t *testing.T) {
	e := &recordingEnqueuer{}

	info, err := EnqueuePost(e, PublishPostPayload{UserID: 7, PostID: 10}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "task-1", info.ID)

	require.Len(t, e.tasks, 1)
	assert.Equal(t, TaskTypePublishPost, e.tasks[0].Type())
	assert.JSONEq(t, `{"user_id":7,"post_id":10}`, string(e.tasks[0].Payload()))
	assert.Len(t, e.opts[0], 2)
}

type fakePublisher struct {
	userID, postID int64
	emitter        progress.Emitter
	ctxErr         error
	err            error
}

func (f *fakePublisher) Publish(ctx context.Context, userID, postID int64, em progress.Emitter) (string, error) {
	f.userID, f.postID, f.emitter, f.ctxErr = userID, postID, em, ctx.Err()
	return "tw1", f.err
}

func (f *fakePublisher) Retry(ctx context.Context, userID, postID int64, em progress.Emitter) (string, error) {
	return f.Publish(ctx, userID, postID, em)
}

func (f *fakePublisher) PublishPost(context.Context, *models.Post, string, progress.Emitter) (string, error) {
	return "", nil
}

func (f *fakePublisher) Status(context.Context, int64, int64) (*models.Post, error) {
	return nil, nil
}

type fakeThreads struct {
	threadID int64
	ctxErr   error
}

func (f *fakeThreads) PublishThread(ctx context.Context, _, threadID int64, _ progress.Emitter) (string, error) {
	f.threadID, f.ctxErr = threadID, ctx.Err()
	return "tw1", nil
}

func (f *fakeThreads) RetryThread(ctx context.Context, userID, threadID int64, em progress.Emitter) (string, error) {
	return f.PublishThread(ctx, userID, threadID, em)
}

func (f *fakeThreads) Status(context.Context, int64, int64) (*models.Thread, []*models.Post, error) {
	return nil, nil, nil
}

func TestHandlePublishPostTask(t *testing.T) {
	ps := &fakePublisher{}
	q := NewQueue(ps, &fakeThreads{})

	payload, _ := json.Marshal(PublishPostPayload{UserID: 7, PostID: 10})
	require.NoError(t, q.HandlePublishPostTask(context.Background(), asynq.NewTask(TaskTypePublishPost, payload)))
	assert.Equal(t, int64(7), ps.userID)
	assert.Equal(t, int64(10), ps.postID)
	assert.Equal(t, progress.Discard, ps.emitter)

	ps.err = models.ErrAlreadyPublished
	err := q.HandlePublishPostTask(context.Background(), asynq.NewTask(TaskTypePublishPost, payload))
	assert.ErrorIs(t, err, models.ErrAlreadyPublished)
}

func TestHandleTaskRejectsBadPayload(t *testing.T) {
	q := NewQueue(&fakePublisher{}, &fakeThreads{})

	err := q.HandlePublishThreadTask(context.Background(), asynq.NewTask(TaskTypePublishThread, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandlePublishThreadTask(t *testing.T) {
	ts := &fakeThreads{}
	q := NewQueue(&fakePublisher{}, ts)

	payload, _ := json.Marshal(PublishThreadPayload{UserID: 7, ThreadID: 5})
	require.NoError(t, q.HandlePublishThreadTask(context.Background(), asynq.NewTask(TaskTypePublishThread, payload)))
	assert.Equal(t, int64(5), ts.threadID)
}

func TestHandlersDetachFromTaskCancellation(t *testing.T) {
	ps, ts := &fakePublisher{}, &fakeThreads{}
	q := NewQueue(ps, ts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	postPayload, _ := json.Marshal(PublishPostPayload{UserID: 7, PostID: 10})
	require.NoError(t, q.HandlePublishPostTask(ctx, asynq.NewTask(TaskTypePublishPost, postPayload)))
	assert.NoError(t, ps.ctxErr, "publish must outlive the task context")

	threadPayload, _ := json.Marshal(PublishThreadPayload{UserID: 7, ThreadID: 5})
	require.NoError(t, q.HandlePublishThreadTask(ctx, asynq.NewTask(TaskTypePublishThread, threadPayload)))
	assert.NoError(t, ts.ctxErr)
}
