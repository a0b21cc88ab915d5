// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.


package keys

import (
	"crypto"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	nodecrypto "github.com/sage-x-project/nodecore/crypto"
	"github.com/sage-x-project/nodecore/internal/metrics"

	"github.com/cloudflare/circl/hpke"
)

// X25519KeyPair holds an X25519 private key and its corresponding public key.
type X25519KeyPair struct {
	privateKey *ecdh.PrivateKey
	publicKey  *ecdh.PublicKey
	id         string
}

// GenerateX25519KeyPair generates a new X25519 key pair.
func GenerateX25519KeyPair() (nodecrypto.KeyPair, error) {
	privateKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate X25519 key: %w", err)
	}
	publicKey := privateKey.PublicKey()

	hash := sha256.Sum256(publicKey.Bytes())
	id := hex.EncodeToString(hash[:8])

	return &X25519KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         id,
	}, nil
}

// NewX25519KeyPairFromPrivate wraps an existing private key (e.g. derived
// from the vault's seed) into a KeyPair.
func NewX25519KeyPairFromPrivate(priv *ecdh.PrivateKey) *X25519KeyPair {
	pub := priv.PublicKey()
	hash := sha256.Sum256(pub.Bytes())
	return &X25519KeyPair{
		privateKey: priv,
		publicKey:  pub,
		id:         hex.EncodeToString(hash[:8]),
	}
}

// PublicKey returns the public key.
func (kp *X25519KeyPair) PublicKey() crypto.PublicKey {
	return kp.publicKey
}

// PublicBytesKey returns the raw public key bytes.
func (kp *X25519KeyPair) PublicBytesKey() []byte {
	return kp.publicKey.Bytes()
}

// PrivateKey returns the private key.
func (kp *X25519KeyPair) PrivateKey() crypto.PrivateKey {
	return kp.privateKey
}

// Type returns the key type.
func (kp *X25519KeyPair) Type() nodecrypto.KeyType {
	return nodecrypto.KeyTypeX25519
}

// ID returns a unique identifier for this key pair.
func (kp *X25519KeyPair) ID() string {
	return kp.id
}

// Sign is not supported; X25519 keys are for key agreement only.
func (kp *X25519KeyPair) Sign(message []byte) ([]byte, error) {
	return nil, nodecrypto.ErrSignNotSupported
}

// Verify is not supported; X25519 keys are for key agreement only.
func (kp *X25519KeyPair) Verify(message, signature []byte) error {
	return nodecrypto.ErrVerifyNotSupported
}

// DeriveSharedSecret computes a 32-byte key from an X25519 ECDH exchange:
// SHA-256 of the raw 32-byte shared point. Callers that need a
// transcript-bound channel key should feed this through HKDF rather than
// use it directly (see channel.deriveDirectionalKeys).
func (kp *X25519KeyPair) DeriveSharedSecret(peerPubBytes []byte) ([]byte, error) {
	start := time.Now()
	curve := ecdh.X25519()
	peerPub, err := curve.NewPublicKey(peerPubBytes)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("derive").Inc()
		return nil, fmt.Errorf("failed to parse peer public key: %w", err)
	}

	shared, err := kp.privateKey.ECDH(peerPub)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("derive").Inc()
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	metrics.CryptoOperations.WithLabelValues("derive", "x25519").Inc()
	metrics.CryptoOperationDuration.WithLabelValues("derive", "x25519").Observe(time.Since(start).Seconds())

	sum := sha256.Sum256(shared)
	return sum[:], nil
}

// hpkeSuite is the fixed HPKE ciphersuite used for the optional KEM-based
// handshake step: X25519 KEM, HKDF-SHA256, ChaCha20-Poly1305 AEAD.
func hpkeSuite() hpke.Suite {
	return hpke.NewSuite(
		hpke.KEM_X25519_HKDF_SHA256,
		hpke.KDF_HKDF_SHA256,
		hpke.AEAD_ChaCha20Poly1305,
	)
}

// HPKEDeriveSharedSecretToX25519Peer establishes an HPKE Base context to the
// recipient's X25519 public key and returns (enc, exporterSecret). Both
// parties MUST use identical info/exportCtx to derive the same bytes.
func HPKEDeriveSharedSecretToX25519Peer(
	peer *ecdh.PublicKey,
	info []byte,
	exportCtx []byte,
	exportLen int,
) (enc []byte, exporterSecret []byte, err error) {
	suite := hpkeSuite()
	kem := hpke.KEM_X25519_HKDF_SHA256.Scheme()
	rp, err := kem.UnmarshalBinaryPublicKey(peer.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("hpke unmarshal pub: %w", err)
	}

	sender, err := suite.NewSender(rp, info)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke new sender: %w", err)
	}

	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke setup: %w", err)
	}

	secret := sealer.Export(exportCtx, uint(exportLen))
	return enc, secret, nil
}

// HPKEOpenSharedSecretWithX25519Priv reproduces the exporterSecret on the
// receiving side given the sender's encapsulated key.
func HPKEOpenSharedSecretWithX25519Priv(
	priv *ecdh.PrivateKey,
	enc []byte,
	info []byte,
	exportCtx []byte,
	exportLen int,
) (exporterSecret []byte, err error) {
	suite := hpkeSuite()
	kem := hpke.KEM_X25519_HKDF_SHA256.Scheme()
	skR, err := kem.UnmarshalBinaryPrivateKey(priv.Bytes())
	if err != nil {
		return nil, fmt.Errorf("hpke unmarshal priv: %w", err)
	}

	receiver, err := suite.NewReceiver(skR, info)
	if err != nil {
		return nil, fmt.Errorf("hpke new receiver: %w", err)
	}

	opener, err := receiver.Setup(enc)
	if err != nil {
		return nil, fmt.Errorf("hpke receiver setup: %w", err)
	}

	return opener.Export(exportCtx, uint(exportLen)), nil
}

// HPKESealAndExportToX25519Peer seals plaintext to the peer while also
// exporting a shared secret from the same HPKE context, for the optional
// KEM-bootstrapped handshake variant that carries the first request inside
// the KEM encapsulation instead of after it.
func HPKESealAndExportToX25519Peer(
	peer crypto.PublicKey,
	plaintext []byte,
	info []byte,
	exportCtx []byte,
	exportLen int,
) (packet []byte, exporterSecret []byte, err error) {
	pubKey, ok := peer.(*ecdh.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("hpke: invalid key type, expected ecdh.PublicKey but got %T", peer)
	}
	suite := hpkeSuite()
	kem := hpke.KEM_X25519_HKDF_SHA256.Scheme()
	rp, err := kem.UnmarshalBinaryPublicKey(pubKey.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("hpke unmarshal pub: %w", err)
	}

	sender, err := suite.NewSender(rp, info)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke new sender: %w", err)
	}

	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke setup: %w", err)
	}

	ct, err := sealer.Seal(plaintext, info)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke seal: %w", err)
	}

	secret := sealer.Export(exportCtx, uint(exportLen))
	return append(append([]byte{}, enc...), ct...), secret, nil
}

// HPKEOpenAndExportWithX25519Priv reverses HPKESealAndExportToX25519Peer.
func HPKEOpenAndExportWithX25519Priv(
	priv crypto.PrivateKey,
	packet []byte,
	info []byte,
	exportCtx []byte,
	exportLen int,
) (plaintext []byte, exporterSecret []byte, err error) {
	privKey, ok := priv.(*ecdh.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("hpke: invalid key type, expected ecdh.PrivateKey but got %T", priv)
	}

	const encLen = 32 // X25519 KEM enc length
	if len(packet) < encLen {
		return nil, nil, fmt.Errorf("packet too short: %d", len(packet))
	}
	enc := packet[:encLen]
	ct := packet[encLen:]

	suite := hpkeSuite()
	kem := hpke.KEM_X25519_HKDF_SHA256.Scheme()
	skR, err := kem.UnmarshalBinaryPrivateKey(privKey.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("hpke unmarshal priv: %w", err)
	}

	receiver, err := suite.NewReceiver(skR, info)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke new receiver: %w", err)
	}

	opener, err := receiver.Setup(enc)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke receiver setup: %w", err)
	}

	pt, err := opener.Open(ct, info)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke open: %w", err)
	}

	secret := opener.Export(exportCtx, uint(exportLen))
	return pt, secret, nil
}
