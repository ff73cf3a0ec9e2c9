package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/repository"
	"github.com/maheshrc27/screenpost/internal/service"
)

const refreshWindow = 30 * time.Minute

type TokenRefreshJob struct {
	cr repository.CredentialRepository
	cs service.CredentialService
}

func NewTokenRefreshJob(cr repository.CredentialRepository, cs service.CredentialService) *TokenRefreshJob {
	return &TokenRefreshJob{
		cr: cr,
		cs: cs,
	}
}

// RefreshTokens refreshes every credential expiring within the next 30
// minutes so publishes rarely hit the refresh path.
func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	creds, err := c.cr.ListExpiring(ctx, time.Now().Add(refreshWindow))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, cred := range creds {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(cred *models.Credential) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if _, err := c.cs.Refresh(ctx, cred); err != nil {
				slog.Info("unable to refresh platform token", "user_id", cred.UserID, "error", err)
			}
		}(cred)
	}

	wg.Wait()
}
