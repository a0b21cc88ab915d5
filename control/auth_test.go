package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(pw string) *Authenticator {
	return NewAuthenticator([]byte("test-signing-key"), func(p string) bool { return p == pw }, Config{
		AccessTTL:     50 * time.Millisecond,
		RefreshTTL:    time.Hour,
		MaxFailures:   3,
		LockoutWindow: time.Minute,
	})
}

func TestLoginIssuesDistinctAccessAndRefreshTokens(t *testing.T) {
	a := newTestAuthenticator("secret")
	access, refresh, expiresIn, err := a.Login("src", "secret")
	require.NoError(t, err)
	require.NotEqual(t, access, refresh)
	require.Greater(t, expiresIn, 0)

	require.NoError(t, a.VerifyAccess(access))
	require.Error(t, a.VerifyAccess(refresh)) // wrong typ claim
}

func TestLoginRejectsBadPassword(t *testing.T) {
	a := newTestAuthenticator("secret")
	_, _, _, err := a.Login("src", "nope")
	require.ErrorIs(t, err, ErrBadPassword)
}

func TestLockoutAfterMaxFailures(t *testing.T) {
	a := newTestAuthenticator("secret")
	for i := 0; i < 3; i++ {
		_, _, _, err := a.Login("src-x", "nope")
		require.ErrorIs(t, err, ErrBadPassword)
	}
	_, _, _, err := a.Login("src-x", "secret")
	require.ErrorIs(t, err, ErrLockedOut)
}

func TestLockoutIsPerSource(t *testing.T) {
	a := newTestAuthenticator("secret")
	for i := 0; i < 3; i++ {
		_, _, _, _ = a.Login("attacker", "nope")
	}
	_, _, _, err := a.Login("owner-laptop", "secret")
	require.NoError(t, err)
}

func TestAccessTokenExpires(t *testing.T) {
	a := newTestAuthenticator("secret")
	access, _, _, err := a.Login("src", "secret")
	require.NoError(t, err)
	require.NoError(t, a.VerifyAccess(access))

	time.Sleep(100 * time.Millisecond)
	require.Error(t, a.VerifyAccess(access))
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	a := newTestAuthenticator("secret")
	_, refresh, _, err := a.Login("src", "secret")
	require.NoError(t, err)

	access, expiresIn, err := a.Refresh(refresh)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.Greater(t, expiresIn, 0)
	require.NoError(t, a.VerifyAccess(access))
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	a := newTestAuthenticator("secret")
	access, _, _, err := a.Login("src", "secret")
	require.NoError(t, err)

	_, _, err = a.Refresh(access)
	require.ErrorIs(t, err, ErrUnauthorized)
}
