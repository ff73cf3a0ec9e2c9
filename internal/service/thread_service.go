package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/screenpost/internal/metrics"
	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/progress"
	"github.com/maheshrc27/screenpost/internal/repository"
)

type ThreadService interface {
	// PublishThread posts the thread's unposted members in order, each
	// replying to the previous one. Members already posted are skipped, so
	// calling it again after a partial failure resumes where it stopped.
	PublishThread(ctx context.Context, userID, threadID int64, em progress.Emitter) (string, error)
	RetryThread(ctx context.Context, userID, threadID int64, em progress.Emitter) (string, error)
	Status(ctx context.Context, userID, threadID int64) (*models.Thread, []*models.Post, error)
}

type threadService struct {
	tr      repository.ThreadRepository
	pr      repository.PostRepository
	publish PublishService
	metrics *metrics.Metrics
}

func NewThreadService(tr repository.ThreadRepository, pr repository.PostRepository, publish PublishService, m *metrics.Metrics) ThreadService {
	return &threadService{
		tr:      tr,
		pr:      pr,
		publish: publish,
		metrics: m,
	}
}

func (s *threadService) Status(ctx context.Context, userID, threadID int64) (*models.Thread, []*models.Post, error) {
	thread, err := s.tr.GetByID(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}
	if thread == nil || thread.UserID != userID {
		return nil, nil, fmt.Errorf("thread %d: %w", threadID, models.ErrNotFound)
	}

	members, err := s.pr.ListByThreadID(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}
	return thread, members, nil
}

func (s *threadService) RetryThread(ctx context.Context, userID, threadID int64, em progress.Emitter) (string, error) {
	return s.PublishThread(ctx, userID, threadID, em)
}

func (s *threadService) PublishThread(ctx context.Context, userID, threadID int64, em progress.Emitter) (string, error) {
	previous, err := s.tr.BeginPosting(ctx, threadID, userID)
	if err != nil {
		return "", fail(em, err)
	}
	if previous == "" {
		return "", fail(em, s.beginConflict(ctx, userID, threadID))
	}

	members, err := s.pr.ListByThreadID(ctx, threadID)
	if err != nil {
		s.settle(ctx, threadID, previous)
		return "", fail(em, err)
	}
	if len(members) == 0 {
		s.settle(ctx, threadID, models.ThreadStatusDraft)
		return "", fail(em, fmt.Errorf("thread %d has no posts: %w", threadID, models.ErrInvalidPost))
	}

	var firstTweetID, replyTo string
	anyPosted := false
	for i, post := range members {
		position := i
		if post.ThreadPosition != nil {
			position = *post.ThreadPosition
		}

		if post.IsPosted() && post.TweetID != nil {
			replyTo = *post.TweetID
			anyPosted = true
			if i == 0 {
				firstTweetID = replyTo
			}
			continue
		}

		tweetID, err := s.publish.PublishPost(ctx, post, replyTo, progress.Member(em, post.ID, position))
		if err != nil {
			status := models.ThreadStatusDraft
			if anyPosted {
				status = models.ThreadStatusPartialFailed
			}
			s.settle(ctx, threadID, status)
			s.metrics.ThreadPublishes.WithLabelValues(status).Inc()

			slog.Info("thread publish stopped", "thread_id", threadID, "post_id", post.ID, "position", position, "error", err)
			err = fmt.Errorf("thread %d stopped at position %d: %w: %w", threadID, position, models.ErrPartialThreadFailure, err)
			em.Send(progress.Tag(progress.Error(err.Error(), models.ErrorReason(err)), post.ID, position))
			return "", err
		}

		em.Send(progress.Tag(progress.Event{Type: progress.EventPosted, TweetID: tweetID}, post.ID, position))
		replyTo = tweetID
		anyPosted = true
		if i == 0 {
			firstTweetID = tweetID
		}
	}

	if err := s.tr.MarkPosted(context.WithoutCancel(ctx), threadID, firstTweetID); err != nil {
		slog.Info("unable to record posted thread", "thread_id", threadID, "error", err)
		return "", fail(em, fmt.Errorf("thread %d: %w: %v", threadID, models.ErrNotRecorded, err))
	}

	s.metrics.ThreadPublishes.WithLabelValues(models.ThreadStatusPosted).Inc()
	em.Send(progress.Complete(firstTweetID, ""))
	return firstTweetID, nil
}

func (s *threadService) beginConflict(ctx context.Context, userID, threadID int64) error {
	thread, err := s.tr.GetByID(ctx, threadID)
	if err != nil {
		return err
	}
	if thread == nil || thread.UserID != userID {
		return fmt.Errorf("thread %d: %w", threadID, models.ErrNotFound)
	}
	if thread.Status == models.ThreadStatusPosted {
		return fmt.Errorf("thread %d: %w", threadID, models.ErrAlreadyPublished)
	}
	return fmt.Errorf("thread %d: %w", threadID, models.ErrThreadBusy)
}

// settle leaves the posting state. It must succeed even when the caller's
// context is gone, or the thread could never be entered again.
func (s *threadService) settle(ctx context.Context, threadID int64, status string) {
	if err := s.tr.UpdateStatus(context.WithoutCancel(ctx), threadID, status); err != nil {
		slog.Info("unable to update thread status", "thread_id", threadID, "status", status, "error", err)
	}
}
