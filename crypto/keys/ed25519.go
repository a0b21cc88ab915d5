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


package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"time"

	nodecrypto "github.com/sage-x-project/nodecore/crypto"
	"github.com/sage-x-project/nodecore/internal/metrics"
	"golang.org/x/crypto/blake2b"
)

// ed25519KeyPair implements the KeyPair interface for Ed25519 keys.
type ed25519KeyPair struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	id         string
}

// GenerateEd25519KeyPair generates a new Ed25519 key pair.
func GenerateEd25519KeyPair() (nodecrypto.KeyPair, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	return &ed25519KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         keyID(publicKey),
	}, nil
}

// NewEd25519KeyPairFromPrivate wraps a deterministically derived private key
// (e.g. from the vault's seed-derived sub-key path) into a KeyPair.
func NewEd25519KeyPairFromPrivate(priv ed25519.PrivateKey) nodecrypto.KeyPair {
	pub := priv.Public().(ed25519.PublicKey)
	return &ed25519KeyPair{
		privateKey: priv,
		publicKey:  pub,
		id:         keyID(pub),
	}
}

// keyID derives a compact key identifier as BLAKE2b-256(pubkey), truncated
// to 8 bytes and hex-encoded.
func keyID(pub ed25519.PublicKey) string {
	hash := blake2b.Sum256(pub)
	return hex.EncodeToString(hash[:8])
}

// PublicKey returns the public key.
func (kp *ed25519KeyPair) PublicKey() crypto.PublicKey {
	return kp.publicKey
}

// PrivateKey returns the private key.
func (kp *ed25519KeyPair) PrivateKey() crypto.PrivateKey {
	return kp.privateKey
}

// Type returns the key type.
func (kp *ed25519KeyPair) Type() nodecrypto.KeyType {
	return nodecrypto.KeyTypeEd25519
}

// Sign signs the given message.
func (kp *ed25519KeyPair) Sign(message []byte) ([]byte, error) {
	start := time.Now()
	sig := ed25519.Sign(kp.privateKey, message)
	elapsed := time.Since(start)

	metrics.CryptoOperations.WithLabelValues("sign", "ed25519").Inc()
	metrics.CryptoOperationDuration.WithLabelValues("sign", "ed25519").Observe(elapsed.Seconds())
	metrics.GetGlobalCollector().RecordSign(elapsed)

	return sig, nil
}

// Verify verifies the signature.
func (kp *ed25519KeyPair) Verify(message, signature []byte) error {
	start := time.Now()
	ok := ed25519.Verify(kp.publicKey, message, signature)
	elapsed := time.Since(start)

	metrics.CryptoOperations.WithLabelValues("verify", "ed25519").Inc()
	metrics.CryptoOperationDuration.WithLabelValues("verify", "ed25519").Observe(elapsed.Seconds())
	metrics.GetGlobalCollector().RecordVerify(ok, elapsed)

	if !ok {
		metrics.CryptoErrors.WithLabelValues("verify").Inc()
		return nodecrypto.ErrInvalidSignature
	}
	return nil
}

// ID returns a unique identifier for this key pair.
func (kp *ed25519KeyPair) ID() string {
	return kp.id
}
