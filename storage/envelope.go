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

// Package storage implements the node's encrypted-at-rest primitives: a
// File façade, a Key-value façade, and an append-only Log façade, all
// built on the same {version, nonce, ciphertext, tag} envelope and on
// per-object keys derived from the vault's "storage" sub-key.
package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const envelopeVersion = 1

// envelope is the on-disk (or on-row) shape every façade writes. tag is
// kept as a field distinct from ciphertext even though
// chacha20poly1305.Seal appends it internally, so the wire shape always
// exposes the four fields the size invariant names.
type envelope struct {
	Version    int    `json:"version"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	Tag        []byte `json:"tag"`
}

func (e *envelope) marshal() ([]byte, error) {
	return json.Marshal(e)
}

func unmarshalEnvelope(data []byte) (*envelope, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, ErrStorageCorrupt
	}
	if e.Version != envelopeVersion || len(e.Nonce) != chacha20poly1305.NonceSize || len(e.Tag) != chacha20poly1305.Overhead {
		return nil, ErrStorageCorrupt
	}
	return &e, nil
}

// sealObject encrypts plaintext under key (derived per-object by the
// caller) and returns the envelope ready to persist.
func sealObject(key, plaintext, aad []byte) (*envelope, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("storage: aead init: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("storage: generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, aad)
	ciphertext := sealed[:len(sealed)-chacha20poly1305.Overhead]
	tag := sealed[len(sealed)-chacha20poly1305.Overhead:]
	return &envelope{
		Version:    envelopeVersion,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		Tag:        tag,
	}, nil
}

// openObject decrypts an envelope under key. Any AEAD failure (wrong
// key, tampered ciphertext, tampered AAD) maps to ErrStorageCorrupt: the
// façades never distinguish "wrong key" from "corrupted bytes" to a
// caller, since both mean the object can't be trusted as-is.
func openObject(key []byte, e *envelope, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("storage: aead init: %w", err)
	}
	sealed := append(append([]byte{}, e.Ciphertext...), e.Tag...)
	plaintext, err := aead.Open(nil, e.Nonce, sealed, aad)
	if err != nil {
		return nil, ErrStorageCorrupt
	}
	return plaintext, nil
}

// hashName reduces a logical path/key name to a fixed-width hex digest,
// used both as the HKDF info label and (for File/KV) as the name on
// disk, so on-disk names never leak the logical key.
func hashName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return fmt.Sprintf("%x", sum)
}

// deriveObjectKey derives a per-object AEAD key from the façade's base
// sub-key via HKDF-SHA256(ikm=base, salt=nil, info=label || path_hash),
// the construction spec.md names for the File façade and which the
// Key-value and Log façades reuse under their own label prefixes.
func deriveObjectKey(base []byte, label, name string) []byte {
	info := []byte(label + hashName(name))
	r := hkdf.New(sha256.New, base, nil, info)
	key := make([]byte, chacha20poly1305.KeySize)
	io.ReadFull(r, key) // HKDF-SHA256 can't fail to fill 32 bytes
	return key
}

func encodeUint32(n int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n))
	return b
}
