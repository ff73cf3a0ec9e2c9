package models

import (
	"encoding/json"
	"time"
)

type Capture struct {
	ID              int64           `db:"id" json:"id"`
	UserID          int64           `db:"user_id" json:"user_id"`
	MediaType       string          `db:"media_type" json:"media_type"` // image, video
	ContentType     string          `db:"content_type" json:"content_type"`
	StoragePath     string          `db:"storage_path" json:"storage_path"`
	CapturedAt      time.Time       `db:"captured_at" json:"captured_at"`
	SourceCaptureID *int64          `db:"source_capture_id" json:"source_capture_id,omitempty"`
	EditParams      json.RawMessage `db:"edit_params" json:"edit_params,omitempty"`

	ThumbnailPath                *string    `db:"thumbnail_path" json:"thumbnail_path,omitempty"`
	ThumbnailProcessing          bool       `db:"thumbnail_processing" json:"thumbnail_processing"`
	ThumbnailProcessingStartedAt *time.Time `db:"thumbnail_processing_started_at" json:"thumbnail_processing_started_at,omitempty"`
	ThumbnailAttempts            int        `db:"thumbnail_attempts" json:"thumbnail_attempts"`
	ThumbnailError               *string    `db:"thumbnail_error" json:"thumbnail_error,omitempty"`

	FramesExtracted           bool       `db:"frames_extracted" json:"frames_extracted"`
	FrameCount                int        `db:"frame_count" json:"frame_count"`
	FramesProcessing          bool       `db:"frames_processing" json:"frames_processing"`
	FramesProcessingStartedAt *time.Time `db:"frames_processing_started_at" json:"frames_processing_started_at,omitempty"`
	FrameAttempts             int        `db:"frame_attempts" json:"frame_attempts"`
	FramesError               *string    `db:"frames_error" json:"frames_error,omitempty"`
}

func (c *Capture) IsVideo() bool {
	return c.MediaType == MediaTypeVideo
}

// ProcessingKind selects which background derivation a claim is for.
type ProcessingKind string

const (
	KindThumbnail ProcessingKind = "thumbnail"
	KindFrames    ProcessingKind = "frames"
)

func (k ProcessingKind) Valid() bool {
	return k == KindThumbnail || k == KindFrames
}

// Lease is a granted claim on a capture. StartedAt is the database timestamp
// written by the claim and doubles as the lease token for commits.
type Lease struct {
	Kind      ProcessingKind
	Capture   *Capture
	StartedAt time.Time
}

const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// MaxProcessingAttempts is the default attempt cap per processing kind.
const MaxProcessingAttempts = 5

// ProcessingOutput is the terminal result committed for a lease.
type ProcessingOutput struct {
	ThumbnailPath string
	FrameCount    int
}
