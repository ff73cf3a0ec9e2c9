// Package storage reads and writes capture bytes and derived media.
package storage

import (
	"context"
	"errors"

	config "github.com/maheshrc27/screenpost/configs"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// New picks local disk when LOCAL_STORAGE_PATH is set and R2 otherwise.
func New(ctx context.Context, cfg config.Config) (ObjectStorage, error) {
	if cfg.LocalStoragePath != "" {
		return NewLocalStorage(cfg.LocalStoragePath), nil
	}
	return NewR2Storage(ctx, cfg.R2)
}
