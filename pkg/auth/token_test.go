package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenManager_IssueAndParse(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	token, expiresAt, err := tm.Issue(42, 7)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := tm.Parse(token)
	require.NoError(t, err)

	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, int64(7), claims.OrgID)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Minute)
	issuedAt := time.Now().Add(-time.Hour)
	tm.now = func() time.Time { return issuedAt }

	token, _, err := tm.Issue(1, 1)
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.Parse(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager(testSecret, time.Hour).Issue(1, 1)
	require.NoError(t, err)

	_, err = NewTokenManager("another-secret-another-secret-xx", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{
		OrgID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsGarbage(t *testing.T) {
	_, err := NewTokenManager(testSecret, time.Hour).Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	_, err := HashPassword("short")
	assert.Error(t, err)

	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", hash)

	ok, err := CheckPassword(hash, "correct horse battery")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword(hash, "wrong password")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = CheckPassword("not-a-bcrypt-hash", "whatever")
	assert.Error(t, err)
}
