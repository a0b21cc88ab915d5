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

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the node's overall runtime state",
	RunE:  runGetPrint("/api/state"),
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Print the node's public identity",
	RunE:  runGetPrint("/api/identity"),
}

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List supervised services and their lifecycle state",
	RunE:  runGetPrint("/api/services"),
}

func init() {
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(servicesCmd)
}

// runGetPrint builds a RunE that issues a GET against path and prints
// the raw JSON response, shared by every read-only subcommand that has
// no further shaping to do on the result.
func runGetPrint(path string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		out, err := apiRequest("GET", path, nil)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
}
