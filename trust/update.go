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

package trust

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Op names the three mutations a TrustUpdate can carry.
type Op uint8

const (
	OpAdd Op = iota + 1
	OpRemove
	OpSetLevel
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "ADD"
	case OpRemove:
		return "REMOVE"
	case OpSetLevel:
		return "SET_LEVEL"
	default:
		return "UNKNOWN"
	}
}

// Update is one signed, hash-chained entry in an issuer's trust log:
// {seq, prev_hash, op, target, payload, nonce, issuer, signature}.
type Update struct {
	Seq       uint64
	PrevHash  []byte
	Op        Op
	Target    string
	Payload   []byte
	Nonce     string
	Issuer    string
	Signature []byte
}

var (
	ErrReplayDrop   = errors.New("trust: nonce already seen (replay)")
	ErrOutOfOrder   = errors.New("trust: sequence not strictly increasing")
	ErrChainBroken  = errors.New("trust: prev_hash does not match issuer's chain head")
	ErrBadSignature = errors.New("trust: update signature failed verification")
	ErrUnknownIssuer = errors.New("trust: issuer not known to this store")
)

// chainHash computes H(seq || prev_hash || op || payload || nonce), the
// exact input set the per-issuer hash chain links on. Target and issuer
// are deliberately excluded: they're covered by the signature instead,
// so the chain hash only needs to prove "this is the update that followed
// the previous one", not re-attest who it targets.
func chainHash(u *Update) []byte {
	var buf bytes.Buffer
	writeU64(&buf, u.Seq)
	writeBytes(&buf, u.PrevHash)
	buf.WriteByte(byte(u.Op))
	writeBytes(&buf, u.Payload)
	writeStr(&buf, u.Nonce)
	sum := blake2b.Sum256(buf.Bytes())
	return sum[:]
}

// signedBytes is the full canonical payload an issuer signs: every field
// except the signature itself, so tampering with target or issuer after
// the fact is caught even though chainHash doesn't cover them.
func signedBytes(u *Update) []byte {
	var buf bytes.Buffer
	writeU64(&buf, u.Seq)
	writeBytes(&buf, u.PrevHash)
	buf.WriteByte(byte(u.Op))
	writeStr(&buf, u.Target)
	writeBytes(&buf, u.Payload)
	writeStr(&buf, u.Nonce)
	writeStr(&buf, u.Issuer)
	return buf.Bytes()
}

// Sign fills in u.Signature using the issuer's Ed25519 private key.
func Sign(u *Update, priv ed25519.PrivateKey) {
	u.Signature = ed25519.Sign(priv, signedBytes(u))
}

// Verify checks u.Signature against the issuer's known Ed25519 public key.
func Verify(u *Update, issuerPub ed25519.PublicKey) error {
	if !ed25519.Verify(issuerPub, signedBytes(u), u.Signature) {
		return ErrBadSignature
	}
	return nil
}

// EncodeUpdate serializes an Update for wire transmission, using the same
// length-prefixed discipline as the envelope and router codecs.
func EncodeUpdate(u *Update) []byte {
	var buf bytes.Buffer
	writeU64(&buf, u.Seq)
	writeBytes(&buf, u.PrevHash)
	buf.WriteByte(byte(u.Op))
	writeStr(&buf, u.Target)
	writeBytes(&buf, u.Payload)
	writeStr(&buf, u.Nonce)
	writeStr(&buf, u.Issuer)
	writeBytes(&buf, u.Signature)
	return buf.Bytes()
}

// DecodeUpdate reverses EncodeUpdate.
func DecodeUpdate(data []byte) (*Update, error) {
	r := bytes.NewReader(data)

	seq, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("trust: read seq: %w", err)
	}
	prevHash, err := readBytesField(r)
	if err != nil {
		return nil, fmt.Errorf("trust: read prev_hash: %w", err)
	}
	opByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("trust: read op: %w", err)
	}
	target, err := readStr(r)
	if err != nil {
		return nil, fmt.Errorf("trust: read target: %w", err)
	}
	payload, err := readBytesField(r)
	if err != nil {
		return nil, fmt.Errorf("trust: read payload: %w", err)
	}
	nonce, err := readStr(r)
	if err != nil {
		return nil, fmt.Errorf("trust: read nonce: %w", err)
	}
	issuer, err := readStr(r)
	if err != nil {
		return nil, fmt.Errorf("trust: read issuer: %w", err)
	}
	sig, err := readBytesField(r)
	if err != nil {
		return nil, fmt.Errorf("trust: read signature: %w", err)
	}

	return &Update{
		Seq:       seq,
		PrevHash:  prevHash,
		Op:        Op(opByte),
		Target:    target,
		Payload:   payload,
		Nonce:     nonce,
		Issuer:    issuer,
		Signature: sig,
	}, nil
}
