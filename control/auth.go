// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenKind distinguishes access from refresh tokens in the "typ" claim,
// so a stolen refresh token can't be replayed as an access token and
// vice versa.
type tokenKind string

const (
	kindAccess  tokenKind = "access"
	kindRefresh tokenKind = "refresh"
)

// PasswordVerifier checks the owner's password, e.g. by re-deriving the
// master key (vault.DeriveMaster) against the stored salt and attempting
// vault.UnlockSeed. Authenticator has no opinion on how verification
// happens, the same way envelope.Verify has no opinion on key storage.
type PasswordVerifier func(password string) bool

// Authenticator issues and verifies the HMAC-backed access/refresh
// tokens spec.md §4.11 names, and enforces the failed-attempt lockout.
// Grounded on oidc/auth0/auth0.go's golang-jwt/v5 usage (jwt.MapClaims,
// jwt.NewWithClaims, a uuid "jti"), swapped from RS256 (external
// verifier, Auth0-issued keypair) to HS256 (no external verifier; the
// signing key is the vault's control sub-key, symmetric by design).
type Authenticator struct {
	signingKey []byte
	verify     PasswordVerifier
	cfg        Config

	mu       sync.Mutex
	failures map[string]*lockoutEntry
}

type lockoutEntry struct {
	count     int
	windowEnd time.Time
}

// NewAuthenticator binds signingKey (the vault's "control" purpose
// sub-key) and the injected password check to a fresh Authenticator.
func NewAuthenticator(signingKey []byte, verify PasswordVerifier, cfg Config) *Authenticator {
	return &Authenticator{
		signingKey: signingKey,
		verify:     verify,
		cfg:        cfg.WithDefaults(),
		failures:   make(map[string]*lockoutEntry),
	}
}

// Claims is the decoded, validated payload of one of our own tokens.
type Claims struct {
	Kind      tokenKind
	ExpiresAt time.Time
}

// checkLockout reports whether source (caller's remote address, or a
// fixed string for the local socket) has exceeded MaxFailures within
// LockoutWindow.
func (a *Authenticator) checkLockout(source string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.failures[source]
	if !ok {
		return nil
	}
	if time.Now().After(e.windowEnd) {
		delete(a.failures, source)
		return nil
	}
	if e.count >= a.cfg.MaxFailures {
		return ErrLockedOut
	}
	return nil
}

func (a *Authenticator) recordFailure(source string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.failures[source]
	if !ok || time.Now().After(e.windowEnd) {
		e = &lockoutEntry{windowEnd: time.Now().Add(a.cfg.LockoutWindow)}
		a.failures[source] = e
	}
	e.count++
}

func (a *Authenticator) clearFailures(source string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.failures, source)
}

// Login verifies password (subject to the lockout policy) and, on
// success, issues a fresh access/refresh token pair.
func (a *Authenticator) Login(source, password string) (access, refresh string, expiresIn int, err error) {
	if err := a.checkLockout(source); err != nil {
		return "", "", 0, err
	}
	if !a.verify(password) {
		a.recordFailure(source)
		return "", "", 0, ErrBadPassword
	}
	a.clearFailures(source)
	return a.issuePair()
}

func (a *Authenticator) issuePair() (access, refresh string, expiresIn int, err error) {
	access, err = a.sign(kindAccess, a.cfg.AccessTTL)
	if err != nil {
		return "", "", 0, err
	}
	refresh, err = a.sign(kindRefresh, a.cfg.RefreshTTL)
	if err != nil {
		return "", "", 0, err
	}
	return access, refresh, int(a.cfg.AccessTTL.Seconds()), nil
}

func (a *Authenticator) sign(kind tokenKind, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"typ": string(kind),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.signingKey)
}

// Refresh exchanges a valid refresh token for a fresh access token.
func (a *Authenticator) Refresh(refreshToken string) (access string, expiresIn int, err error) {
	if _, err := a.parse(refreshToken, kindRefresh); err != nil {
		return "", 0, err
	}
	access, err = a.sign(kindAccess, a.cfg.AccessTTL)
	if err != nil {
		return "", 0, err
	}
	return access, int(a.cfg.AccessTTL.Seconds()), nil
}

// VerifyAccess validates tokenString as an unexpired access token.
func (a *Authenticator) VerifyAccess(tokenString string) error {
	_, err := a.parse(tokenString, kindAccess)
	return err
}

func (a *Authenticator) parse(tokenString string, want tokenKind) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("control: unexpected signing method: %s", t.Method.Alg())
		}
		return a.signingKey, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrUnauthorized
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrUnauthorized
	}
	typ, _ := mapClaims["typ"].(string)
	if tokenKind(typ) != want {
		return Claims{}, ErrUnauthorized
	}
	expF, ok := mapClaims["exp"].(float64)
	if !ok {
		return Claims{}, ErrUnauthorized
	}
	return Claims{Kind: want, ExpiresAt: time.Unix(int64(expF), 0)}, nil
}
