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

package supervisor

import (
	"fmt"
	"sync"
)

// Registry is a name -> reference table services use to look each
// other up (e.g. the dispatcher looking up the router it sends
// through). Registration is one-shot per name: a second Register call
// for the same name is a programming error, not a runtime condition to
// tolerate silently.
type Registry struct {
	mu    sync.RWMutex
	items map[string]interface{}
}

// NewRegistry returns an empty module registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]interface{})}
}

// Register binds name to ref. It panics on a duplicate name: by the
// time two components register the same name, the wiring code itself
// is wrong and should fail fast at startup, not produce a
// hard-to-diagnose lookup of the wrong object later.
func (r *Registry) Register(name string, ref interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[name]; exists {
		panic(fmt.Sprintf("supervisor: module %q already registered", name))
	}
	r.items[name] = ref
}

// Lookup returns the reference registered under name, if any.
func (r *Registry) Lookup(name string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.items[name]
	return ref, ok
}
