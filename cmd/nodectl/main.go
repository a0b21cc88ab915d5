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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/nodecore/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "nodectl",
	Short: "nodectl is the owner's CLI for a running nodecored instance",
	Long: `nodectl talks to a single node's local control surface (loopback HTTP
by default) to log in, inspect state, and manage trust and routing
without going near the node's secret key material directly.`,
	Version: version.Short(),
}

// Package-level flags shared by every subcommand, in the style
// cmd/sage-crypto's generate.go uses for its own flag set.
var (
	serverAddr  string
	tokenFile   string
	signWithKey string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:8787", "control API base URL")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", defaultTokenFile(), "path to the cached access/refresh token pair")
	rootCmd.PersistentFlags().StringVar(&signWithKey, "sign-with-key", "", "path to a base64-encoded raw Ed25519 private key; when set, requests are RFC 9421-signed instead of bearer-authenticated")

	// Commands are registered in their respective files:
	// - auth.go: loginCmd, logoutCmd
	// - state.go: stateCmd, identityCmd, servicesCmd
	// - trust.go: trustCmd and its add/list/remove subcommands
	// - routing.go: routingCmd and its add/list subcommands
	// - storage.go: storageCmd and its kv get/put subcommands
}

func defaultTokenFile() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".nodectl-token"
	}
	return dir + "/.nodectl-token"
}
