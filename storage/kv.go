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

package storage

import (
	"context"
	"fmt"
)

const kvKeyLabel = "kv:"

// Backend persists opaque, already-encrypted blobs under hashed names.
// KVStore is the only caller that understands plaintext keys or values;
// a Backend never sees either. storage/memory and storage/postgres are
// the two shipped implementations, selected by StorageConfig.Backend.
type Backend interface {
	Put(ctx context.Context, name string, blob []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// KVStore implements the hashed-key, file-encrypted-value façade over a
// pluggable Backend.
type KVStore struct {
	backend Backend
	baseKey []byte
	maxSize int
}

// NewKVStore wraps backend with envelope encryption keyed off baseKey.
func NewKVStore(backend Backend, baseKey []byte) *KVStore {
	return &KVStore{backend: backend, baseKey: baseKey, maxSize: DefaultMaxObjectSize}
}

// WithMaxSize overrides the default size limit.
func (k *KVStore) WithMaxSize(n int) *KVStore {
	k.maxSize = n
	return k
}

// Put encrypts value under a key derived from (baseKey, key) and stores
// it in the backend under key's hash.
func (k *KVStore) Put(ctx context.Context, key string, value []byte) error {
	if len(value) > k.maxSize {
		return ErrSizeLimit
	}
	objKey := deriveObjectKey(k.baseKey, kvKeyLabel, key)
	env, err := sealObject(objKey, value, []byte(key))
	if err != nil {
		return err
	}
	blob, err := env.marshal()
	if err != nil {
		return fmt.Errorf("storage: marshal kv envelope: %w", err)
	}
	return k.backend.Put(ctx, hashName(key), blob)
}

// Get decrypts and returns the value stored under key.
func (k *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	blob, err := k.backend.Get(ctx, hashName(key))
	if err != nil {
		return nil, err
	}
	env, err := unmarshalEnvelope(blob)
	if err != nil {
		return nil, err
	}
	objKey := deriveObjectKey(k.baseKey, kvKeyLabel, key)
	return openObject(objKey, env, []byte(key))
}

// Delete removes the value stored under key.
func (k *KVStore) Delete(ctx context.Context, key string) error {
	return k.backend.Delete(ctx, hashName(key))
}

// Close releases the underlying backend's resources (connection pools,
// file handles).
func (k *KVStore) Close() error {
	return k.backend.Close()
}
