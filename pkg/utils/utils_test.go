package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := Encrypt([]byte("access-token"), testKey)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "access-token")

	again, err := Encrypt([]byte("access-token"), testKey)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per call")

	plain, err := Decrypt(sealed, testKey)
	require.NoError(t, err)
	assert.Equal(t, "access-token", plain)
}

func TestDecryptRejectsWrongKeyAndShortInput(t *testing.T) {
	sealed, err := Encrypt([]byte("access-token"), testKey)
	require.NoError(t, err)

	_, err = Decrypt(sealed, []byte("fedcba9876543210fedcba9876543210"))
	assert.Error(t, err)

	_, err = Decrypt("AAAA", testKey)
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestEncryptRejectsBadKey(t *testing.T) {
	_, err := Encrypt([]byte("x"), []byte("short"))
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", "7", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.UserID)

	_, err = ValidateToken("other-secret", token)
	assert.Error(t, err)

	expired, err := GenerateToken("secret", "7", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken("secret", expired)
	assert.Error(t, err)
}
