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

// Package vault derives and guards the node's long-lived secret
// material: the scrypt-derived master key, the encrypted-at-rest seed it
// unlocks, and the HKDF sub-keys derived from that seed for a given
// purpose (identity, ecdh, storage, ...).
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"

	"crypto/sha256"
)

const (
	// ScryptN, ScryptR, ScryptP are the master-key KDF parameters;
	// spec.md requires N >= 2^15.
	ScryptN = 1 << 15
	ScryptR = 8
	ScryptP = 1

	masterKeyLen = chacha20poly1305.KeySize
	seedFileVersion = "1"
)

// DeriveMaster computes the 32-byte master key as
// scrypt(password, salt, N, r, p), wrapped in a SecretBuffer. It is
// never persisted; callers wipe it (directly, or via WithSubKey's
// deferred wipe) once the seed has been unlocked or re-sealed.
func DeriveMaster(password, salt []byte) (*SecretBuffer, error) {
	key, err := scrypt.Key(password, salt, ScryptN, ScryptR, ScryptP, masterKeyLen)
	if err != nil {
		return nil, fmt.Errorf("vault: derive master key: %w", err)
	}
	return NewSecretBuffer(key), nil
}

// seedFile is the on-disk encoding of the encrypted seed: everything
// needed to re-open it except the master key itself, matching the
// teacher's EncryptedKeyData envelope shape (version/nonce/ciphertext)
// with AES-256-GCM+PBKDF2 swapped for ChaCha20-Poly1305+scrypt so the
// whole repo shares one AEAD and one password KDF.
type seedFile struct {
	Version    string    `json:"version"`
	Nonce      string    `json:"nonce"`
	Ciphertext string    `json:"ciphertext"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// StoreSeed seals seed under master and writes it to path with owner-only
// permissions, creating parent directories as needed.
func StoreSeed(path string, seed, master *SecretBuffer) (err error) {
	if seed.Len() == 0 {
		return ErrEmptySeed
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("vault: create seed directory: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("vault: generate seed nonce: %w", err)
	}

	var ciphertext []byte
	master.Borrow(func(key []byte) {
		aead, aeadErr := chacha20poly1305.New(key)
		if aeadErr != nil {
			err = fmt.Errorf("vault: seed aead: %w", aeadErr)
			return
		}
		seed.Borrow(func(plaintext []byte) {
			ciphertext = aead.Seal(nil, nonce, plaintext, nil)
		})
	})
	if err != nil {
		return err
	}

	sf := seedFile{
		Version:    seedFileVersion,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		UpdatedAt:  time.Now(),
	}
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: marshal seed file: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// UnlockSeed reads and decrypts the seed file at path under master,
// returning it in a fresh SecretBuffer. A wrong master key (wrong
// password) surfaces as ErrAuthFailure, never as a raw AEAD error.
func UnlockSeed(path string, master *SecretBuffer) (*SecretBuffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vault: read seed file: %w", err)
	}

	var sf seedFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, ErrCorruptSeed
	}
	nonce, err := base64.StdEncoding.DecodeString(sf.Nonce)
	if err != nil {
		return nil, ErrCorruptSeed
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sf.Ciphertext)
	if err != nil {
		return nil, ErrCorruptSeed
	}

	var plaintext []byte
	var openErr error
	master.Borrow(func(key []byte) {
		aead, aeadErr := chacha20poly1305.New(key)
		if aeadErr != nil {
			openErr = aeadErr
			return
		}
		plaintext, openErr = aead.Open(nil, nonce, ciphertext, nil)
	})
	if openErr != nil {
		return nil, ErrAuthFailure
	}
	return NewSecretBuffer(plaintext), nil
}

// subKeySalt is a fixed, purpose-independent salt: spec.md requires
// sub-key derivation be a deterministic function of (seed, purpose)
// alone, so the HKDF salt can't vary per call the way the channel
// layer's per-session transcriptSalt does. Binding only through `info`
// is sufficient since HKDF's security property depends on ikm secrecy,
// which the seed already provides.
var subKeySalt = sha256.Sum256([]byte("nodecore/vault/subkey-salt/v1"))

// deriveSubKey computes HKDF-Extract-and-Expand(salt=subKeySalt,
// ikm=seed, info=purpose), the SubKey construction from spec.md §4.2.
func deriveSubKey(seed *SecretBuffer, purpose string) *SecretBuffer {
	var out []byte
	seed.Borrow(func(ikm []byte) {
		r := hkdf.New(sha256.New, ikm, subKeySalt[:], []byte(purpose))
		key := make([]byte, masterKeyLen)
		io.ReadFull(r, key) // HKDF-SHA256 can't fail to fill 32 bytes
		out = key
	})
	return NewSecretBuffer(out)
}

// WithSubKey materializes the purpose-scoped sub-key, runs fn with it,
// and wipes it before returning — including when fn panics, since the
// wipe is a deferred call that runs during panic unwinding.
func WithSubKey(seed *SecretBuffer, purpose string, fn func(*SecretBuffer) error) error {
	sub := deriveSubKey(seed, purpose)
	defer sub.Wipe()
	return fn(sub)
}
