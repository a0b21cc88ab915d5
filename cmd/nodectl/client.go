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

package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/sage-x-project/nodecore/control"
	"github.com/sage-x-project/nodecore/pkg/version"
)

// tokenPair is the on-disk cache written by `nodectl login`.
type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func loadTokens() (tokenPair, error) {
	var tp tokenPair
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return tp, fmt.Errorf("nodectl: read token file %s (run `nodectl login` first): %w", tokenFile, err)
	}
	if err := json.Unmarshal(data, &tp); err != nil {
		return tp, fmt.Errorf("nodectl: decode token file: %w", err)
	}
	return tp, nil
}

func saveTokens(tp tokenPair) error {
	data, err := json.MarshalIndent(tp, "", "  ")
	if err != nil {
		return fmt.Errorf("nodectl: encode token file: %w", err)
	}
	return os.WriteFile(tokenFile, data, 0600)
}

// loadSigningKey reads the base64-encoded 64-byte raw Ed25519 private
// key at signWithKey, the same raw encoding the control surface's own
// identity fields use elsewhere, rather than introducing a PEM parser
// this module otherwise has no use for.
func loadSigningKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nodectl: read signing key %s: %w", path, err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("nodectl: decode signing key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("nodectl: signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

// apiRequest issues one control-API call, authenticating via the cached
// bearer token or, when -sign-with-key is set, via an RFC 9421-style
// per-request signature instead.
func apiRequest(method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("nodectl: encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, serverAddr+path, reader)
	if err != nil {
		return nil, fmt.Errorf("nodectl: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", version.UserAgent())

	if signWithKey != "" {
		priv, err := loadSigningKey(signWithKey)
		if err != nil {
			return nil, err
		}
		control.SignRequest(req, priv)
	} else if path != "/api/auth/login" {
		// Login is the call that creates the token file, so it is sent
		// without a bearer token.
		tp, err := loadTokens()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tp.Access)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nodectl: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("nodectl: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("nodectl: %s %s: %s: %s", method, path, resp.Status, string(out))
	}
	return out, nil
}
