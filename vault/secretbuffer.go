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

package vault

import (
	"runtime"
	"sync"
)

// SecretBuffer is a uniquely owned byte slice holding key material. It
// never exposes its bytes as an owned copy: callers reach the contents
// only through Borrow, a scoped loan that can't outlive the call, and
// Wipe zeroes the buffer on every exit path. A finalizer is a backstop
// for buffers that are dropped without an explicit Wipe (e.g. a caller
// that errors out before reaching its defer); it is not a substitute for
// calling Wipe, since finalizers run on GC's schedule, not the caller's.
type SecretBuffer struct {
	mu    sync.Mutex
	b     []byte
	wiped bool
}

// NewSecretBuffer takes ownership of b. Callers must not retain their own
// reference to the slice after this call.
func NewSecretBuffer(b []byte) *SecretBuffer {
	sb := &SecretBuffer{b: b}
	runtime.SetFinalizer(sb, (*SecretBuffer).Wipe)
	return sb
}

// Borrow runs fn with read/write access to the buffer's bytes. fn must
// not retain the slice past its return; the buffer may be wiped
// concurrently by another goroutine the instant Borrow returns.
func (s *SecretBuffer) Borrow(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wiped {
		fn(nil)
		return
	}
	fn(s.b)
}

// Len reports the buffer's size without exposing its contents.
func (s *SecretBuffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.b)
}

// Wipe zeroes the buffer. Safe to call more than once or concurrently;
// later calls are no-ops.
func (s *SecretBuffer) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wiped {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
	s.wiped = true
	runtime.SetFinalizer(s, nil)
}
