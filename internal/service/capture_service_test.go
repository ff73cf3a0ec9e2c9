package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/screenpost/internal/models"
)

func TestListExhausted(t *testing.T) {
	repo := newFakeCaptureRepo(
		&models.Capture{ID: 1, UserID: 7, ThumbnailAttempts: 5},
		&models.Capture{ID: 2, UserID: 7, ThumbnailAttempts: 2, FrameAttempts: 5},
		&models.Capture{ID: 3, UserID: 8, ThumbnailAttempts: 5},
	)
	svc := NewCaptureService(repo, models.MaxProcessingAttempts)

	thumbs, err := svc.ListExhausted(context.Background(), 7, "thumbnail")
	require.NoError(t, err)
	require.Len(t, thumbs, 1)
	assert.Equal(t, int64(1), thumbs[0].ID)

	frames, err := svc.ListExhausted(context.Background(), 7, "frames")
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, int64(2), frames[0].ID)

	_, err = svc.ListExhausted(context.Background(), 7, "transcode")
	assert.ErrorIs(t, err, models.ErrInvalidKind)
}
