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

// Package memory is the default in-process storage.Backend: an
// encrypted-blob map guarded by a single mutex, the same deep-copy
// discipline the teacher's session/nonce/DID maps used, generalized to
// one opaque-blob table instead of three typed ones.
package memory

import (
	"context"
	"sync"

	"github.com/sage-x-project/nodecore/storage"
)

// Backend is an in-process, map-backed storage.Backend. It holds no
// state beyond the process lifetime; StorageConfig.Backend == "memory"
// is the node's default, durable only across restarts via whatever
// File/Log façade the caller layers on top.
type Backend struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewBackend returns an empty in-process backend.
func NewBackend() *Backend {
	return &Backend{blobs: make(map[string][]byte)}
}

var _ storage.Backend = (*Backend)(nil)

func (b *Backend) Put(_ context.Context, name string, blob []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := append([]byte{}, blob...)
	b.blobs[name] = cp
	return nil
}

func (b *Backend) Get(_ context.Context, name string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	blob, ok := b.blobs[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte{}, blob...), nil
}

func (b *Backend) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, name)
	return nil
}

func (b *Backend) List(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.blobs))
	for name := range b.blobs {
		names = append(names, name)
	}
	return names, nil
}

func (b *Backend) Close() error {
	return nil
}
