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

var routingCmd = &cobra.Command{
	Use:   "routing",
	Short: "Manage this node's next-hop routing table",
}

var routingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known routes",
	RunE:  runGetPrint("/api/routing"),
}

var (
	routingAddPeerID string
	routingAddPubkey string
)

var routingAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add (or update) a next-hop route",
	RunE:  runRoutingAdd,
}

func init() {
	routingAddCmd.Flags().StringVar(&routingAddPeerID, "peer", "", "destination peer id (required)")
	routingAddCmd.Flags().StringVar(&routingAddPubkey, "pubkey", "", "next-hop's X25519 public key, base64-encoded 32 bytes (required)")

	routingCmd.AddCommand(routingListCmd)
	routingCmd.AddCommand(routingAddCmd)
	rootCmd.AddCommand(routingCmd)
}

func runRoutingAdd(cmd *cobra.Command, args []string) error {
	if routingAddPeerID == "" || routingAddPubkey == "" {
		return fmt.Errorf("nodectl: --peer and --pubkey are required")
	}
	out, err := apiRequest("POST", "/api/routing", map[string]string{
		"peerId": routingAddPeerID,
		"pubkey": routingAddPubkey,
	})
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
