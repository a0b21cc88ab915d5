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

	"github.com/spf13/cobra"
)

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Manage this node's trust store",
}

var trustListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known peers and their trust level",
	RunE:  runGetPrint("/api/trust"),
}

var (
	trustAddPeerID string
	trustAddPubkey string
)

var trustAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add (or update) a peer's X25519 key-agreement key",
	RunE:  runTrustAdd,
}

var trustRemovePeerID string

var trustRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a peer from the trust store",
	RunE:  runTrustRemove,
}

func init() {
	trustAddCmd.Flags().StringVar(&trustAddPeerID, "id", "", "peer id (required)")
	trustAddCmd.Flags().StringVar(&trustAddPubkey, "pubkey", "", "peer's X25519 public key, base64-encoded 32 bytes (required)")
	trustRemoveCmd.Flags().StringVar(&trustRemovePeerID, "id", "", "peer id (required)")

	trustCmd.AddCommand(trustListCmd)
	trustCmd.AddCommand(trustAddCmd)
	trustCmd.AddCommand(trustRemoveCmd)
	rootCmd.AddCommand(trustCmd)
}

func runTrustAdd(cmd *cobra.Command, args []string) error {
	if trustAddPeerID == "" || trustAddPubkey == "" {
		return fmt.Errorf("nodectl: --id and --pubkey are required")
	}
	out, err := apiRequest("POST", "/api/trust", map[string]string{
		"id":               trustAddPeerID,
		"pubkey_base64_32": trustAddPubkey,
	})
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runTrustRemove(cmd *cobra.Command, args []string) error {
	if trustRemovePeerID == "" {
		return fmt.Errorf("nodectl: --id is required")
	}
	out, err := apiRequest("DELETE", "/api/trust?id="+trustRemovePeerID, nil)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
