package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/h2non/filetype"
	"github.com/maheshrc27/screenpost/internal/metrics"
	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/progress"
	"github.com/maheshrc27/screenpost/internal/repository"
	"github.com/maheshrc27/screenpost/internal/storage"
)

const markPostedAttempts = 3

type VideoCutter interface {
	Cut(ctx context.Context, data []byte, startSecs, durationSecs float64) ([]byte, error)
}

type PublishService interface {
	// Publish runs one publish attempt for a standalone post and always ends
	// em with a terminal event.
	Publish(ctx context.Context, userID, postID int64, em progress.Emitter) (string, error)
	Retry(ctx context.Context, userID, postID int64, em progress.Emitter) (string, error)
	// PublishPost publishes an already loaded post as a reply to replyTo. It
	// emits only non-terminal events so callers can compose it.
	PublishPost(ctx context.Context, post *models.Post, replyTo string, em progress.Emitter) (string, error)
	Status(ctx context.Context, userID, postID int64) (*models.Post, error)
}

type publishService struct {
	pr      repository.PostRepository
	cr      repository.CaptureRepository
	creds   CredentialService
	client  TwitterClient
	store   storage.ObjectStorage
	cutter  VideoCutter
	metrics *metrics.Metrics

	// newBackOff paces the retries of recording a published post.
	newBackOff func() backoff.BackOff
}

func NewPublishService(
	pr repository.PostRepository,
	cr repository.CaptureRepository,
	creds CredentialService,
	client TwitterClient,
	store storage.ObjectStorage,
	cutter VideoCutter,
	m *metrics.Metrics) PublishService {
	return &publishService{
		pr:         pr,
		cr:         cr,
		creds:      creds,
		client:     client,
		store:      store,
		cutter:     cutter,
		metrics:    m,
		newBackOff: recordBackOff,
	}
}

func recordBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

func (s *publishService) owned(ctx context.Context, userID, postID int64) (*models.Post, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil || post.UserID != userID {
		return nil, fmt.Errorf("post %d: %w", postID, models.ErrNotFound)
	}
	return post, nil
}

func fail(em progress.Emitter, err error) error {
	em.Send(progress.Error(err.Error(), models.ErrorReason(err)))
	return err
}

// standalone refuses thread members. A member published on its own would not
// reply to its predecessor and the thread chain would be broken for good.
func standalone(post *models.Post) error {
	if post.ThreadID != nil {
		return fmt.Errorf("post %d belongs to thread %d, publish the thread instead: %w", post.ID, *post.ThreadID, models.ErrInvalidPost)
	}
	return nil
}

func (s *publishService) Publish(ctx context.Context, userID, postID int64, em progress.Emitter) (string, error) {
	post, err := s.owned(ctx, userID, postID)
	if err != nil {
		return "", fail(em, err)
	}
	if err := standalone(post); err != nil {
		return "", fail(em, err)
	}
	if post.IsPosted() {
		return "", fail(em, fmt.Errorf("post %d: %w", postID, models.ErrAlreadyPublished))
	}

	tweetID, err := s.PublishPost(ctx, post, "", em)
	if err != nil {
		return "", fail(em, err)
	}

	em.Send(progress.Complete(tweetID, post.Text))
	return tweetID, nil
}

func (s *publishService) Retry(ctx context.Context, userID, postID int64, em progress.Emitter) (string, error) {
	post, err := s.owned(ctx, userID, postID)
	if err != nil {
		return "", fail(em, err)
	}
	if err := standalone(post); err != nil {
		return "", fail(em, err)
	}
	if _, err := s.pr.ResetForRetry(ctx, postID); err != nil {
		return "", fail(em, err)
	}
	return s.Publish(ctx, userID, postID, em)
}

func (s *publishService) Status(ctx context.Context, userID, postID int64) (*models.Post, error) {
	return s.owned(ctx, userID, postID)
}

func validatePost(post *models.Post) error {
	if len(post.ImageCaptureIDs) > models.MaxImagesPerPost {
		return fmt.Errorf("post %d has %d images, at most %d allowed: %w",
			post.ID, len(post.ImageCaptureIDs), models.MaxImagesPerPost, models.ErrInvalidPost)
	}
	if post.VideoClip != nil && len(post.ImageCaptureIDs) > 0 {
		return fmt.Errorf("post %d mixes a video clip with images: %w", post.ID, models.ErrInvalidPost)
	}
	return nil
}

func (s *publishService) PublishPost(ctx context.Context, post *models.Post, replyTo string, em progress.Emitter) (string, error) {
	if err := validatePost(post); err != nil {
		return "", err
	}

	claimed, err := s.pr.ClaimForPublish(ctx, post.ID)
	if err != nil {
		return "", err
	}
	if !claimed {
		return "", s.claimConflict(ctx, post.ID)
	}

	tweetID, err := s.execute(ctx, post, replyTo, em)
	if err != nil {
		if errors.Is(err, models.ErrNotRecorded) {
			s.metrics.Publishes.WithLabelValues("not_recorded").Inc()
			return "", err
		}
		s.metrics.Publishes.WithLabelValues("failed").Inc()
		// The failure must land even when ctx was cancelled mid-attempt,
		// otherwise the post stays in posting and cannot be claimed again.
		if markErr := s.pr.MarkFailed(context.WithoutCancel(ctx), post.ID, err.Error()); markErr != nil {
			slog.Info("unable to record publish failure", "post_id", post.ID, "error", markErr)
		}
		return "", err
	}

	s.metrics.Publishes.WithLabelValues("posted").Inc()
	return tweetID, nil
}

func (s *publishService) claimConflict(ctx context.Context, postID int64) error {
	current, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("post %d: %w", postID, models.ErrNotFound)
	}
	if current.IsPosted() {
		return fmt.Errorf("post %d: %w", postID, models.ErrAlreadyPublished)
	}
	return fmt.Errorf("post %d: %w", postID, models.ErrPublishInProgress)
}

func (s *publishService) execute(ctx context.Context, post *models.Post, replyTo string, em progress.Emitter) (string, error) {
	token, err := s.creds.EnsureValid(ctx, post.UserID)
	if err != nil {
		return "", err
	}

	var mediaIDs []string
	switch {
	case post.VideoClip != nil:
		id, err := s.uploadVideo(ctx, token, post, em)
		if err != nil {
			return "", err
		}
		mediaIDs = []string{id}
	case len(post.ImageCaptureIDs) > 0:
		mediaIDs, err = s.uploadImages(ctx, token, post, em)
		if err != nil {
			return "", err
		}
	}

	em.Send(progress.Posting())
	tweetID, err := s.client.CreatePost(ctx, token, post.Text, replyTo, mediaIDs)
	if err != nil {
		return "", err
	}

	if err := s.recordPosted(ctx, post.ID, tweetID, replyTo); err != nil {
		return "", err
	}
	slog.Info("post published", "post_id", post.ID, "tweet_id", tweetID, "reply_to", replyTo)
	return tweetID, nil
}

// recordPosted persists the platform id. The post already exists on the
// platform at this point, so a persistent failure leaves the row in posting
// rather than marking it failed and inviting a duplicate.
func (s *publishService) recordPosted(ctx context.Context, postID int64, tweetID, replyTo string) error {
	persist := context.WithoutCancel(ctx)
	_, err := backoff.Retry(persist, func() (struct{}, error) {
		err := s.pr.MarkPosted(persist, postID, tweetID, replyTo)
		if err != nil {
			slog.Info("unable to record posted state", "post_id", postID, "tweet_id", tweetID, "error", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(s.newBackOff()), backoff.WithMaxTries(markPostedAttempts))
	if err != nil {
		return fmt.Errorf("post %d published as %s: %w: %v", postID, tweetID, models.ErrNotRecorded, err)
	}
	return nil
}

func detectMediaType(data []byte, fallback string) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return fallback
	}
	return kind.MIME.Value
}

func (s *publishService) uploadVideo(ctx context.Context, token string, post *models.Post, em progress.Emitter) (string, error) {
	clip := post.VideoClip
	capture, err := s.cr.GetByID(ctx, clip.SourceCaptureID)
	if err != nil {
		return "", err
	}
	if capture == nil || capture.UserID != post.UserID {
		return "", fmt.Errorf("video capture %d: %w", clip.SourceCaptureID, models.ErrNotFound)
	}

	data, err := s.store.Get(ctx, capture.StoragePath)
	if err != nil {
		return "", fmt.Errorf("load video capture %d: %w", capture.ID, err)
	}

	mediaType := detectMediaType(data, capture.ContentType)
	if clip.NeedsCut() {
		data, err = s.cutter.Cut(ctx, data, clip.StartOffsetSecs, clip.DurationSecs)
		if err != nil {
			return "", err
		}
		mediaType = "video/mp4"
	}

	uploaded, err := s.client.UploadVideo(ctx, token, data, mediaType, func(segment, total int) {
		em.Send(progress.Uploading(segment, total))
	})
	if err != nil {
		return "", err
	}

	if uploaded.Pending {
		em.Send(progress.Processing())
		if err := s.client.WaitForProcessing(ctx, token, uploaded.ID); err != nil {
			return "", err
		}
	}
	return uploaded.ID, nil
}

func (s *publishService) uploadImages(ctx context.Context, token string, post *models.Post, em progress.Emitter) ([]string, error) {
	captures, err := s.cr.GetByIDs(ctx, post.UserID, post.ImageCaptureIDs)
	if err != nil {
		return nil, err
	}
	if len(captures) != len(post.ImageCaptureIDs) {
		return nil, fmt.Errorf("post %d references missing image captures: %w", post.ID, models.ErrNotFound)
	}

	ids := make([]string, 0, len(captures))
	for i, capture := range captures {
		data, err := s.store.Get(ctx, capture.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("load image capture %d: %w", capture.ID, err)
		}

		id, err := s.client.UploadImage(ctx, token, data, detectMediaType(data, capture.ContentType))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		em.Send(progress.Uploading(i+1, len(captures)))
	}
	return ids, nil
}
