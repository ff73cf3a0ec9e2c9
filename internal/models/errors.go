package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrLeaseContention   = errors.New("lease claimed by another worker")
	ErrLeaseLost         = errors.New("lease no longer held")
	ErrAttemptsExhausted = errors.New("processing attempts exhausted")
	ErrInvalidKind       = errors.New("unknown processing kind")

	ErrUnauthorized         = errors.New("platform credential expired and cannot be refreshed")
	ErrAlreadyPublished     = errors.New("already published")
	ErrPublishInProgress    = errors.New("publish already in progress")
	ErrThreadBusy           = errors.New("thread is already being posted")
	ErrPartialThreadFailure = errors.New("thread partially published")
	ErrInvalidPost          = errors.New("invalid post")
	ErrNotRecorded          = errors.New("published but not recorded")
)

// PlatformError is a non-success response from the publishing platform.
type PlatformError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *PlatformError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("platform %s failed: %s", e.Op, e.Body)
	}
	return fmt.Sprintf("platform %s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// ErrorReason maps an error to the short machine-readable reason carried by
// progress error events.
func ErrorReason(err error) string {
	var pe *PlatformError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPartialThreadFailure):
		return "partial_failure"
	case errors.Is(err, ErrAlreadyPublished):
		return "already_posted"
	case errors.Is(err, ErrPublishInProgress), errors.Is(err, ErrThreadBusy):
		return "in_progress"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidPost), errors.Is(err, ErrInvalidKind):
		return "invalid"
	case errors.Is(err, ErrNotRecorded):
		return "not_recorded"
	case errors.As(err, &pe):
		return "platform_rejected"
	default:
		return "internal"
	}
}
