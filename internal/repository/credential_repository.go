package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/maheshrc27/screenpost/internal/models"
)

// serializationFailure is the SQLSTATE Postgres reports when a serializable
// transaction loses to a concurrent writer.
const serializationFailure = "40001"

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == serializationFailure
}

type CredentialRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Credential, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.Credential, error)
	SetToken(ctx context.Context, userID int64, oldAccessToken string, c *models.Credential) error
}

type credentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) GetByUserID(ctx context.Context, userID int64) (*models.Credential, error) {
	query := `
		SELECT user_id, access_token, COALESCE(refresh_token, ''), token_expires_at, updated_at
		FROM platform_credentials
		WHERE user_id = $1
	`

	var c models.Credential
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&c.UserID, &c.AccessToken, &c.RefreshToken, &c.TokenExpiresAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &c, nil
}

// ListExpiring returns refreshable credentials that expire before the given time.
func (r *credentialRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.Credential, error) {
	query := `
		SELECT user_id, access_token, COALESCE(refresh_token, ''), token_expires_at, updated_at
		FROM platform_credentials
		WHERE token_expires_at < $1 AND COALESCE(refresh_token, '') <> ''
	`
	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var credentials []*models.Credential
	for rows.Next() {
		var c models.Credential
		if err := rows.Scan(&c.UserID, &c.AccessToken, &c.RefreshToken, &c.TokenExpiresAt, &c.UpdatedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		credentials = append(credentials, &c)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return credentials, nil
}

// SetToken replaces the token tuple in one statement, guarded on the access
// token the caller refreshed from. ErrNotUpdated means another writer got
// there first, whether the guard matched no row or the overlapping update
// was rejected as a serialization failure.
func (r *credentialRepository) SetToken(ctx context.Context, userID int64, oldAccessToken string, c *models.Credential) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	updateTokenQuery := `
		UPDATE platform_credentials
		SET
			access_token = $3,
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = $5,
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1 AND access_token = $2
	`
	result, err := tx.ExecContext(ctx, updateTokenQuery, userID, oldAccessToken, c.AccessToken, c.RefreshToken, c.TokenExpiresAt)
	if err != nil {
		if isSerializationFailure(err) {
			return ErrNotUpdated
		}
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return ErrNotUpdated
	}

	if err = tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return ErrNotUpdated
		}
		slog.Info(err.Error())
		return err
	}
	return nil
}
