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

package main

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	nodecrypto "github.com/sage-x-project/nodecore/crypto"
	"github.com/sage-x-project/nodecore/crypto/keys"
	"github.com/sage-x-project/nodecore/vault"
)

// identity is the node's full key material, derived once at startup and
// held for the process lifetime. The vault's unlocked seed is wiped as
// soon as every sub-key has been pulled from it; only the derived
// key pairs (and the raw control signing key) outlive bootstrap.
type identity struct {
	nodeID        string
	ed25519       nodecrypto.KeyPair
	edPriv        ed25519.PrivateKey // same key as ed25519, unwrapped for APIs that want the raw type
	x25519        *keys.X25519KeyPair
	controlSecret []byte // HMAC signing key for control/Authenticator
	storageKey    []byte // baseKey for storage.KVStore / storage.FileStore
}

const (
	purposeIdentityEd = "identity-ed25519"
	purposeIdentityX  = "identity-x25519"
	purposeControl    = "control"
	purposeStorage    = "storage"
)

// bootstrapIdentity unlocks (or creates, on first run) the on-disk seed
// at dataDir/seed.json under password, then derives every purpose-scoped
// sub-key this daemon needs in one pass, per vault.WithSubKey's
// single-use-then-wipe contract.
func bootstrapIdentity(dataDir, nodeID, password string) (*identity, error) {
	saltPath := filepath.Join(dataDir, "salt")
	seedPath := filepath.Join(dataDir, "seed.json")

	salt, err := loadOrCreateSalt(saltPath)
	if err != nil {
		return nil, err
	}

	master, err := vault.DeriveMaster([]byte(password), salt)
	if err != nil {
		return nil, fmt.Errorf("nodecored: derive master key: %w", err)
	}
	defer master.Wipe()

	seed, err := loadOrCreateSeed(seedPath, master)
	if err != nil {
		return nil, err
	}
	defer seed.Wipe()

	id := &identity{nodeID: nodeID}

	if err := vault.WithSubKey(seed, purposeIdentityEd, func(sub *vault.SecretBuffer) error {
		var seedBytes [ed25519.SeedSize]byte
		sub.Borrow(func(b []byte) { copy(seedBytes[:], b) })
		priv := ed25519.NewKeyFromSeed(seedBytes[:])
		id.edPriv = priv
		id.ed25519 = keys.NewEd25519KeyPairFromPrivate(priv)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("nodecored: derive ed25519 identity: %w", err)
	}

	if err := vault.WithSubKey(seed, purposeIdentityX, func(sub *vault.SecretBuffer) error {
		var raw []byte
		sub.Borrow(func(b []byte) { raw = append([]byte(nil), b...) })
		priv, err := ecdh.X25519().NewPrivateKey(raw)
		if err != nil {
			return fmt.Errorf("derive x25519 private key: %w", err)
		}
		kp, ok := keys.NewX25519KeyPairFromPrivate(priv).(*keys.X25519KeyPair)
		if !ok {
			return fmt.Errorf("unexpected x25519 key pair type")
		}
		id.x25519 = kp
		return nil
	}); err != nil {
		return nil, fmt.Errorf("nodecored: derive x25519 identity: %w", err)
	}

	if err := vault.WithSubKey(seed, purposeControl, func(sub *vault.SecretBuffer) error {
		sub.Borrow(func(b []byte) { id.controlSecret = append([]byte(nil), b...) })
		return nil
	}); err != nil {
		return nil, fmt.Errorf("nodecored: derive control signing key: %w", err)
	}

	if err := vault.WithSubKey(seed, purposeStorage, func(sub *vault.SecretBuffer) error {
		sub.Borrow(func(b []byte) { id.storageKey = append([]byte(nil), b...) })
		return nil
	}); err != nil {
		return nil, fmt.Errorf("nodecored: derive storage key: %w", err)
	}

	return id, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	if b, err := os.ReadFile(path); err == nil {
		return b, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("nodecored: read salt: %w", err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("nodecored: generate salt: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("nodecored: create data dir: %w", err)
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, fmt.Errorf("nodecored: write salt: %w", err)
	}
	return salt, nil
}

func loadOrCreateSeed(path string, master *vault.SecretBuffer) (*vault.SecretBuffer, error) {
	if _, err := os.Stat(path); err == nil {
		return vault.UnlockSeed(path, master)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("nodecored: stat seed file: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("nodecored: generate seed: %w", err)
	}
	seed := vault.NewSecretBuffer(raw)
	if err := vault.StoreSeed(path, seed, master); err != nil {
		seed.Wipe()
		return nil, fmt.Errorf("nodecored: store new seed: %w", err)
	}
	return seed, nil
}
