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

import "errors"

var (
	// ErrAuthFailure is returned when the seed fails to decrypt under the
	// supplied master key — almost always a wrong password. The vault
	// keeps no retry counter; rate limiting is the control API's job.
	ErrAuthFailure = errors.New("vault: seed decryption failed (wrong password)")
	ErrEmptySeed   = errors.New("vault: seed must not be empty")
	ErrCorruptSeed = errors.New("vault: seed file is malformed")
)
