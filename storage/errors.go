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

import "errors"

var (
	// ErrSizeLimit is returned when a write exceeds the façade's
	// configured maximum object size.
	ErrSizeLimit = errors.New("storage: object exceeds configured size limit")

	// ErrStorageCorrupt is returned when a stored object decrypts (or
	// fails to decrypt) into something that isn't a well-formed
	// envelope. Callers decide whether to fall back to an older
	// snapshot; the façades never overwrite a corrupt object on read.
	ErrStorageCorrupt = errors.New("storage: stored object is corrupt")

	// ErrNotFound is returned when a path, key, or log name has no
	// stored object.
	ErrNotFound = errors.New("storage: object not found")
)
