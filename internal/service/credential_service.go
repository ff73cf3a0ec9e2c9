package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	config "github.com/maheshrc27/screenpost/configs"
	"github.com/maheshrc27/screenpost/internal/metrics"
	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/repository"
	"github.com/maheshrc27/screenpost/pkg/utils"
	"golang.org/x/oauth2"
)

// Access tokens issued without an expiry are assumed to live this long.
const defaultTokenLifetimeSecs = 2 * 60 * 60

type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

type oauthRefresher struct {
	conf   *oauth2.Config
	client *http.Client
}

func NewTokenRefresher(cfg config.Config) TokenRefresher {
	return &oauthRefresher{
		conf: &oauth2.Config{
			ClientID:     cfg.Twitter.ClientID,
			ClientSecret: cfg.Twitter.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.Twitter.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		client: &http.Client{Timeout: cfg.PlatformRequestTimeout},
	}
}

func (r *oauthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	token, err := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return token, nil
}

type CredentialService interface {
	// EnsureValid returns a usable plaintext access token for userID,
	// refreshing it first when it is expired or about to expire.
	EnsureValid(ctx context.Context, userID int64) (string, error)
	Refresh(ctx context.Context, cred *models.Credential) (string, error)
}

type credentialService struct {
	cr        repository.CredentialRepository
	refresher TokenRefresher
	key       []byte
	skew      time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewCredentialService(cfg config.Config, cr repository.CredentialRepository, refresher TokenRefresher, m *metrics.Metrics) CredentialService {
	return &credentialService{
		cr:        cr,
		refresher: refresher,
		key:       []byte(cfg.SecretKey),
		skew:      cfg.TokenExpirySkew,
		metrics:   m,
		now:       time.Now,
	}
}

func (s *credentialService) usable(c *models.Credential) bool {
	return c.TokenExpiresAt.After(s.now().Add(s.skew))
}

func (s *credentialService) EnsureValid(ctx context.Context, userID int64) (string, error) {
	cred, err := s.cr.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if cred == nil {
		s.metrics.CredentialChecks.WithLabelValues("missing").Inc()
		return "", fmt.Errorf("no platform credential for user %d: %w", userID, models.ErrUnauthorized)
	}

	if s.usable(cred) {
		s.metrics.CredentialChecks.WithLabelValues("valid").Inc()
		return utils.Decrypt(cred.AccessToken, s.key)
	}
	return s.Refresh(ctx, cred)
}

// Refresh exchanges the stored refresh token for a new access token. When
// another caller refreshed concurrently, its stored token is returned instead.
func (s *credentialService) Refresh(ctx context.Context, cred *models.Credential) (string, error) {
	if cred.RefreshToken == "" {
		s.metrics.CredentialChecks.WithLabelValues("unauthorized").Inc()
		return "", fmt.Errorf("no refresh token for user %d: %w", cred.UserID, models.ErrUnauthorized)
	}

	refreshToken, err := utils.Decrypt(cred.RefreshToken, s.key)
	if err != nil {
		return "", err
	}

	token, err := s.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		if stored, ok := s.refreshedElsewhere(ctx, cred); ok {
			return stored, nil
		}
		s.metrics.CredentialChecks.WithLabelValues("unauthorized").Inc()
		return "", fmt.Errorf("refresh for user %d: %w: %v", cred.UserID, models.ErrUnauthorized, err)
	}

	access, err := utils.Encrypt([]byte(token.AccessToken), s.key)
	if err != nil {
		return "", err
	}

	var refresh string
	if token.RefreshToken != "" {
		refresh, err = utils.Encrypt([]byte(token.RefreshToken), s.key)
		if err != nil {
			return "", err
		}
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = GetExpiresAt(defaultTokenLifetimeSecs)
	}

	updated := &models.Credential{
		UserID:         cred.UserID,
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenExpiresAt: expiresAt,
	}
	err = s.cr.SetToken(ctx, cred.UserID, cred.AccessToken, updated)
	if errors.Is(err, repository.ErrNotUpdated) {
		if stored, ok := s.refreshedElsewhere(ctx, cred); ok {
			return stored, nil
		}
		return "", fmt.Errorf("credential for user %d changed during refresh: %w", cred.UserID, models.ErrUnauthorized)
	}
	if err != nil {
		return "", err
	}

	s.metrics.CredentialChecks.WithLabelValues("refreshed").Inc()
	slog.Info("platform token refreshed", "user_id", cred.UserID, "expires_at", expiresAt)
	return token.AccessToken, nil
}

// refreshedElsewhere re-reads the credential and returns its access token if
// a concurrent refresh already replaced the one this caller started from.
func (s *credentialService) refreshedElsewhere(ctx context.Context, old *models.Credential) (string, bool) {
	current, err := s.cr.GetByUserID(ctx, old.UserID)
	if err != nil || current == nil {
		return "", false
	}
	if current.AccessToken == old.AccessToken || !s.usable(current) {
		return "", false
	}

	plain, err := utils.Decrypt(current.AccessToken, s.key)
	if err != nil {
		return "", false
	}
	s.metrics.CredentialChecks.WithLabelValues("refreshed_elsewhere").Inc()
	return plain, true
}
