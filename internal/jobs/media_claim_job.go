package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	config "github.com/maheshrc27/screenpost/configs"
	"github.com/maheshrc27/screenpost/internal/media"
	"github.com/maheshrc27/screenpost/internal/metrics"
	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/repository"
	"github.com/maheshrc27/screenpost/internal/storage"
)

const claimRetries = 3

type MediaClaimJob struct {
	cr         repository.CaptureRepository
	store      storage.ObjectStorage
	processors map[models.ProcessingKind]media.Processor
	cfg        config.Media
	metrics    *metrics.Metrics
	newBackOff func() backoff.BackOff
}

func NewMediaClaimJob(
	cr repository.CaptureRepository,
	store storage.ObjectStorage,
	processors map[models.ProcessingKind]media.Processor,
	cfg config.Media,
	m *metrics.Metrics) *MediaClaimJob {
	return &MediaClaimJob{
		cr:         cr,
		store:      store,
		processors: processors,
		cfg:        cfg,
		metrics:    m,
		newBackOff: contentionBackOff,
	}
}

// contentionBackOff spreads workers that lost the same row apart.
func contentionBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return b
}

// ClaimAndProcess leases at most one eligible capture for kind, processes it
// and commits the outcome. It reports whether a capture was claimed.
func (j *MediaClaimJob) ClaimAndProcess(ctx context.Context, kind models.ProcessingKind) (bool, error) {
	proc, ok := j.processors[kind]
	if !ok {
		return false, fmt.Errorf("%q: %w", kind, models.ErrInvalidKind)
	}

	lease, err := backoff.Retry(ctx, func() (*models.Lease, error) {
		lease, err := j.cr.ClaimNext(ctx, kind, j.cfg.MaxAttempts, j.cfg.LeaseTimeout)
		if errors.Is(err, models.ErrLeaseContention) {
			j.metrics.MediaClaims.WithLabelValues(string(kind), "contention").Inc()
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return lease, nil
	}, backoff.WithBackOff(j.newBackOff()), backoff.WithMaxTries(claimRetries))
	if errors.Is(err, models.ErrLeaseContention) {
		slog.Info("gave up claiming after repeated contention", "kind", kind)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if lease == nil {
		return false, nil
	}
	return true, j.process(ctx, lease, proc)
}

func (j *MediaClaimJob) process(ctx context.Context, lease *models.Lease, proc media.Processor) error {
	kind := string(lease.Kind)
	capture := lease.Capture

	j.metrics.MediaInFlight.WithLabelValues(kind).Inc()
	defer j.metrics.MediaInFlight.WithLabelValues(kind).Dec()

	// Work past the lease timeout may be reclaimed by another worker.
	workCtx, cancel := context.WithTimeout(ctx, j.cfg.LeaseTimeout)
	defer cancel()

	out, err := j.derive(workCtx, capture, proc)
	if err != nil {
		return j.fail(ctx, lease, err)
	}

	if err := j.cr.Complete(ctx, lease, out); err != nil {
		return err
	}
	j.metrics.MediaClaims.WithLabelValues(kind, "completed").Inc()
	return nil
}

func (j *MediaClaimJob) derive(ctx context.Context, capture *models.Capture, proc media.Processor) (models.ProcessingOutput, error) {
	data, err := j.store.Get(ctx, capture.StoragePath)
	if err != nil {
		return models.ProcessingOutput{}, fmt.Errorf("load capture %d: %w", capture.ID, err)
	}
	return proc.Process(ctx, capture, data)
}

func (j *MediaClaimJob) fail(ctx context.Context, lease *models.Lease, cause error) error {
	kind := string(lease.Kind)

	attempts, err := j.cr.Fail(ctx, lease, cause.Error())
	if errors.Is(err, models.ErrLeaseLost) {
		j.metrics.MediaClaims.WithLabelValues(kind, "lease_lost").Inc()
		slog.Info("lease lost before failure was recorded", "capture_id", lease.Capture.ID, "kind", kind)
		return fmt.Errorf("capture %d: %w: %w", lease.Capture.ID, err, cause)
	}
	if err != nil {
		return err
	}

	j.metrics.MediaClaims.WithLabelValues(kind, "failed").Inc()
	if attempts >= j.cfg.MaxAttempts {
		j.metrics.MediaAttemptsExhaust.WithLabelValues(kind).Inc()
		slog.Info("capture processing attempts exhausted", "capture_id", lease.Capture.ID, "kind", kind, "attempts", attempts, "error", cause)
		return fmt.Errorf("capture %d: %w: %w", lease.Capture.ID, models.ErrAttemptsExhausted, cause)
	}

	slog.Info("capture processing failed", "capture_id", lease.Capture.ID, "kind", kind, "attempts", attempts, "error", cause)
	return cause
}

// Run polls for eligible captures until ctx is cancelled, keeping at most
// cfg.Concurrency captures in flight.
func (j *MediaClaimJob) Run(ctx context.Context, kind models.ProcessingKind) error {
	if _, ok := j.processors[kind]; !ok {
		return fmt.Errorf("%q: %w", kind, models.ErrInvalidKind)
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, max(j.cfg.Concurrency, 1))

	ticker := time.NewTicker(j.cfg.PollInterval)
	defer ticker.Stop()

	slog.Info("media worker started", "kind", kind, "concurrency", cap(semaphore), "poll", j.cfg.PollInterval)
	for {
		j.fill(ctx, kind, semaphore, &wg)

		select {
		case <-ctx.Done():
			wg.Wait()
			slog.Info("media worker stopped", "kind", kind)
			return nil
		case <-ticker.C:
		}
	}
}

// fill starts a drain loop for every free slot. Each loop keeps claiming
// until nothing is eligible.
func (j *MediaClaimJob) fill(ctx context.Context, kind models.ProcessingKind, semaphore chan struct{}, wg *sync.WaitGroup) {
	free := cap(semaphore) - len(semaphore)
	for i := 0; i < free; i++ {
		select {
		case semaphore <- struct{}{}:
		default:
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()

			for ctx.Err() == nil {
				claimed, err := j.ClaimAndProcess(ctx, kind)
				if err != nil {
					slog.Info(err.Error())
				}
				if !claimed {
					return
				}
			}
		}()
	}
}
