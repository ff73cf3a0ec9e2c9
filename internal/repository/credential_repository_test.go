package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/repository"
)

func TestCredentialRepository_SetToken(t *testing.T) {
	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := repository.NewCredentialRepository(db)
	expiresAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	updated := &models.Credential{AccessToken: "enc-new", RefreshToken: "enc-refresh", TokenExpiresAt: expiresAt}

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   error
	}{
		{
			name: "replaces the tuple when the old token still matches",
			setupMock: func() {
				mock.ExpectBegin()
				mock.ExpectExec("UPDATE platform_credentials").
					WithArgs(int64(7), "enc-old", "enc-new", "enc-refresh", expiresAt).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "concurrent writer already replaced the token",
			setupMock: func() {
				mock.ExpectBegin()
				mock.ExpectExec("UPDATE platform_credentials").
					WithArgs(int64(7), "enc-old", "enc-new", "enc-refresh", expiresAt).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
			},
			wantErr: repository.ErrNotUpdated,
		},
		{
			name: "database error rolls back",
			setupMock: func() {
				mock.ExpectBegin()
				mock.ExpectExec("UPDATE platform_credentials").
					WithArgs(int64(7), "enc-old", "enc-new", "enc-refresh", expiresAt).
					WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			wantErr: sql.ErrConnDone,
		},
		{
			name: "overlapping refresh rejected by serialization",
			setupMock: func() {
				mock.ExpectBegin()
				mock.ExpectExec("UPDATE platform_credentials").
					WithArgs(int64(7), "enc-old", "enc-new", "enc-refresh", expiresAt).
					WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access due to concurrent update"})
				mock.ExpectRollback()
			},
			wantErr: repository.ErrNotUpdated,
		},
		{
			name: "serialization failure at commit",
			setupMock: func() {
				mock.ExpectBegin()
				mock.ExpectExec("UPDATE platform_credentials").
					WithArgs(int64(7), "enc-old", "enc-new", "enc-refresh", expiresAt).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001"})
			},
			wantErr: repository.ErrNotUpdated,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			err := repo.SetToken(context.Background(), 7, "enc-old", updated)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestCredentialRepository_GetByUserID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expiresAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM platform_credentials").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "access_token", "refresh_token", "token_expires_at", "updated_at"}).
			AddRow(int64(7), "enc-access", "", expiresAt, expiresAt))

	c, err := repository.NewCredentialRepository(db).GetByUserID(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "enc-access", c.AccessToken)
	assert.Empty(t, c.RefreshToken)
	assert.True(t, expiresAt.Equal(c.TokenExpiresAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
