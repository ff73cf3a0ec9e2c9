package service

import (
	"context"
	"fmt"

	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/repository"
)

type CaptureService interface {
	ListExhausted(ctx context.Context, userID int64, kind string) ([]*models.Capture, error)
}

type captureService struct {
	cr          repository.CaptureRepository
	maxAttempts int
}

func NewCaptureService(cr repository.CaptureRepository, maxAttempts int) CaptureService {
	return &captureService{cr: cr, maxAttempts: maxAttempts}
}

// ListExhausted returns the user's captures that will never be claimed again
// for kind because they used up their attempts.
func (s *captureService) ListExhausted(ctx context.Context, userID int64, kind string) ([]*models.Capture, error) {
	k := models.ProcessingKind(kind)
	if !k.Valid() {
		return nil, fmt.Errorf("%q: %w", kind, models.ErrInvalidKind)
	}
	return s.cr.ListExhausted(ctx, userID, k, s.maxAttempts)
}
