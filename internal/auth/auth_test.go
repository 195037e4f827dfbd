package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/wellbeing/internal/apperr"
)

func newAuth(t *testing.T, now func() time.Time) *Authenticator {
	t.Helper()
	a, err := New("test-secret", WithClock(now))
	require.NoError(t, err)
	return a
}

func TestLogin(t *testing.T) {
	a := newAuth(t, time.Now)

	tok, u, err := a.Login("Demo@Example.com", "demo123")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.Equal(t, "Eleanor Vance", u.Name)
	assert.Equal(t, "Maplewood High", u.School)

	got, err := a.UserFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, u, *got)
}

func TestLogin_WrongCredentials(t *testing.T) {
	a := newAuth(t, time.Now)
	_, _, err := a.Login("demo@example.com", "nope")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, _, err = a.Login("someone@example.com", "demo123")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestToken_ClaimsAndExpiry(t *testing.T) {
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := issued
	a := newAuth(t, func() time.Time { return now })

	tok, _, err := a.Login("demo@example.com", "demo123")
	require.NoError(t, err)

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(tok, claims)
	require.NoError(t, err)
	assert.Equal(t, "1", claims.Subject)
	assert.Equal(t, "demo@example.com", claims.Email)
	assert.Len(t, claims.ID, 36, "jti is a uuid")
	assert.True(t, claims.ExpiresAt.Time.Equal(issued.Add(DefaultTTL)))

	now = issued.Add(DefaultTTL - time.Minute)
	_, err = a.UserFromToken(tok)
	assert.NoError(t, err)

	now = issued.Add(DefaultTTL + time.Minute)
	_, err = a.UserFromToken(tok)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestToken_Tampered(t *testing.T) {
	a := newAuth(t, time.Now)
	tok, _, err := a.Login("demo@example.com", "demo123")
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	parts[1] = parts[1][:len(parts[1])-2] + "xx"
	_, err = a.UserFromToken(strings.Join(parts, "."))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	other, err := New("other-secret")
	require.NoError(t, err)
	_, err = other.UserFromToken(tok)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = a.UserFromToken("not-a-token")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
