package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/screenpost/internal/models"
)

type CaptureRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Capture, error)
	GetByIDs(ctx context.Context, userID int64, ids []int64) ([]*models.Capture, error)
	ClaimNext(ctx context.Context, kind models.ProcessingKind, maxAttempts int, leaseTimeout time.Duration) (*models.Lease, error)
	Complete(ctx context.Context, lease *models.Lease, out models.ProcessingOutput) error
	Fail(ctx context.Context, lease *models.Lease, reason string) (int, error)
	ListExhausted(ctx context.Context, userID int64, kind models.ProcessingKind, maxAttempts int) ([]*models.Capture, error)
}

const captureColumns = `id, user_id, media_type, content_type, storage_path, captured_at,
	source_capture_id, edit_params,
	thumbnail_path, thumbnail_processing, thumbnail_processing_started_at, thumbnail_attempts, thumbnail_error,
	frames_extracted, frame_count, frames_processing, frames_processing_started_at, frame_attempts, frames_error`

// claimColumns names the per-kind lease columns. Every claim query is
// rendered from one of these so both kinds share identical semantics.
type claimColumns struct {
	unfinished string
	processing string
	startedAt  string
	attempts   string
	errorText  string
}

var claimColumnsByKind = map[models.ProcessingKind]claimColumns{
	models.KindThumbnail: {
		unfinished: "thumbnail_path IS NULL",
		processing: "thumbnail_processing",
		startedAt:  "thumbnail_processing_started_at",
		attempts:   "thumbnail_attempts",
		errorText:  "thumbnail_error",
	},
	models.KindFrames: {
		unfinished: "frames_extracted = FALSE",
		processing: "frames_processing",
		startedAt:  "frames_processing_started_at",
		attempts:   "frame_attempts",
		errorText:  "frames_error",
	},
}

// eligible renders the claim predicate. $1 is the attempt cap and $2 the
// lease timeout in seconds.
func (c claimColumns) eligible() string {
	return fmt.Sprintf(
		`%s AND %s < $1 AND (%s = FALSE OR %s IS NULL OR %s < NOW() - make_interval(secs => $2::double precision))`,
		c.unfinished, c.attempts, c.processing, c.startedAt, c.startedAt,
	)
}

func (c claimColumns) selectCandidate() string {
	return `SELECT id FROM captures WHERE ` + c.eligible() + ` ORDER BY captured_at ASC LIMIT 1`
}

func (c claimColumns) claim() string {
	return fmt.Sprintf(
		`UPDATE captures SET %s = TRUE, %s = NOW() WHERE id = $3 AND %s RETURNING %s`,
		c.processing, c.startedAt, c.eligible(), captureColumns,
	)
}

func (c claimColumns) fail() string {
	return fmt.Sprintf(
		`UPDATE captures SET %[1]s = %[1]s + 1, %[2]s = FALSE, %[3]s = $3 WHERE id = $1 AND %[2]s = TRUE AND %[4]s = $2 RETURNING %[1]s`,
		c.attempts, c.processing, c.errorText, c.startedAt,
	)
}

func (c claimColumns) exhausted() string {
	return `SELECT ` + captureColumns + ` FROM captures WHERE user_id = $1 AND ` + c.unfinished +
		` AND ` + c.attempts + ` >= $2 ORDER BY captured_at DESC LIMIT 100`
}

type captureRepository struct {
	db *sql.DB
}

func NewCaptureRepository(db *sql.DB) CaptureRepository {
	return &captureRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapture(row rowScanner) (*models.Capture, error) {
	var c models.Capture
	var editParams []byte
	err := row.Scan(&c.ID, &c.UserID, &c.MediaType, &c.ContentType, &c.StoragePath, &c.CapturedAt,
		&c.SourceCaptureID, &editParams,
		&c.ThumbnailPath, &c.ThumbnailProcessing, &c.ThumbnailProcessingStartedAt, &c.ThumbnailAttempts, &c.ThumbnailError,
		&c.FramesExtracted, &c.FrameCount, &c.FramesProcessing, &c.FramesProcessingStartedAt, &c.FrameAttempts, &c.FramesError)
	if err != nil {
		return nil, err
	}
	c.EditParams = editParams
	return &c, nil
}

func (r *captureRepository) GetByID(ctx context.Context, id int64) (*models.Capture, error) {
	query := `SELECT ` + captureColumns + ` FROM captures WHERE id = $1`
	c, err := scanCapture(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return c, nil
}

// GetByIDs returns the user's captures in the order of ids. Unknown or
// foreign ids are omitted.
func (r *captureRepository) GetByIDs(ctx context.Context, userID int64, ids []int64) ([]*models.Capture, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + captureColumns + ` FROM captures WHERE user_id = $1 AND id = ANY($2)`
	rows, err := r.db.QueryContext(ctx, query, userID, pq.Array(ids))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]*models.Capture, len(ids))
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	captures := make([]*models.Capture, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			captures = append(captures, c)
		}
	}
	return captures, nil
}

// ClaimNext leases the oldest eligible capture for kind. It returns nil when
// nothing is eligible and models.ErrLeaseContention when another worker won
// the conditional update for the selected row.
func (r *captureRepository) ClaimNext(ctx context.Context, kind models.ProcessingKind, maxAttempts int, leaseTimeout time.Duration) (*models.Lease, error) {
	cols, ok := claimColumnsByKind[kind]
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, models.ErrInvalidKind)
	}
	leaseSecs := leaseTimeout.Seconds()

	var id int64
	err := r.db.QueryRowContext(ctx, cols.selectCandidate(), maxAttempts, leaseSecs).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	c, err := scanCapture(r.db.QueryRowContext(ctx, cols.claim(), maxAttempts, leaseSecs, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrLeaseContention
		}
		slog.Info(err.Error())
		return nil, err
	}

	startedAt := c.ThumbnailProcessingStartedAt
	if kind == models.KindFrames {
		startedAt = c.FramesProcessingStartedAt
	}
	if startedAt == nil {
		return nil, fmt.Errorf("claim of capture %d returned no lease timestamp", id)
	}

	return &models.Lease{Kind: kind, Capture: c, StartedAt: *startedAt}, nil
}

// Complete records the terminal output and releases the lease. A row whose
// output was already written by another worker is left untouched.
func (r *captureRepository) Complete(ctx context.Context, lease *models.Lease, out models.ProcessingOutput) error {
	var result sql.Result
	var err error

	switch lease.Kind {
	case models.KindThumbnail:
		query := `
			UPDATE captures
			SET thumbnail_path = $2,
				thumbnail_processing = FALSE,
				thumbnail_error = NULL
			WHERE id = $1 AND thumbnail_path IS NULL
		`
		result, err = r.db.ExecContext(ctx, query, lease.Capture.ID, out.ThumbnailPath)
	case models.KindFrames:
		query := `
			UPDATE captures
			SET frames_extracted = TRUE,
				frame_count = $2,
				frames_processing = FALSE,
				frames_error = NULL
			WHERE id = $1 AND frames_extracted = FALSE
		`
		result, err = r.db.ExecContext(ctx, query, lease.Capture.ID, out.FrameCount)
	default:
		return fmt.Errorf("%q: %w", lease.Kind, models.ErrInvalidKind)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		slog.Info("capture output already recorded", "capture_id", lease.Capture.ID, "kind", lease.Kind)
	}
	return nil
}

// Fail counts a failed attempt and releases the lease, provided the caller
// still holds it. It returns the new attempt count.
func (r *captureRepository) Fail(ctx context.Context, lease *models.Lease, reason string) (int, error) {
	cols, ok := claimColumnsByKind[lease.Kind]
	if !ok {
		return 0, fmt.Errorf("%q: %w", lease.Kind, models.ErrInvalidKind)
	}

	var attempts int
	err := r.db.QueryRowContext(ctx, cols.fail(), lease.Capture.ID, lease.StartedAt, reason).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, models.ErrLeaseLost
		}
		slog.Info(err.Error())
		return 0, err
	}
	return attempts, nil
}

func (r *captureRepository) ListExhausted(ctx context.Context, userID int64, kind models.ProcessingKind, maxAttempts int) ([]*models.Capture, error) {
	cols, ok := claimColumnsByKind[kind]
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, models.ErrInvalidKind)
	}

	rows, err := r.db.QueryContext(ctx, cols.exhausted(), userID, maxAttempts)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var captures []*models.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		captures = append(captures, c)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return captures, nil
}
