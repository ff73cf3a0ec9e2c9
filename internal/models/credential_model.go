package models

import "time"

// Credential holds the platform OAuth tokens for a user. Tokens are stored
// encrypted with the server secret key.
type Credential struct {
	UserID         int64     `db:"user_id" json:"user_id"`
	AccessToken    string    `db:"access_token" json:"-"`
	RefreshToken   string    `db:"refresh_token" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
