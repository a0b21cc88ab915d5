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
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Read and write the node's local key/value store",
}

var storageKVGetKey string

var storageKVGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch a value by key",
	RunE:  runStorageGet,
}

var (
	storageKVPutKey   string
	storageKVPutValue string
)

var storageKVPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Write a value by key",
	RunE:  runStoragePut,
}

func init() {
	storageKVGetCmd.Flags().StringVar(&storageKVGetKey, "key", "", "key to fetch (required)")
	storageKVPutCmd.Flags().StringVar(&storageKVPutKey, "key", "", "key to write (required)")
	storageKVPutCmd.Flags().StringVar(&storageKVPutValue, "value", "", "value to write, as plain text")

	storageCmd.AddCommand(storageKVGetCmd)
	storageCmd.AddCommand(storageKVPutCmd)
	rootCmd.AddCommand(storageCmd)
}

type storageKVResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func runStorageGet(cmd *cobra.Command, args []string) error {
	if storageKVGetKey == "" {
		return fmt.Errorf("nodectl: --key is required")
	}
	out, err := apiRequest("GET", "/api/storage/kv?key="+storageKVGetKey, nil)
	if err != nil {
		return err
	}
	var resp storageKVResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return fmt.Errorf("nodectl: decode storage response: %w", err)
	}
	value, err := base64.StdEncoding.DecodeString(resp.Value)
	if err != nil {
		return fmt.Errorf("nodectl: decode stored value: %w", err)
	}
	fmt.Println(string(value))
	return nil
}

func runStoragePut(cmd *cobra.Command, args []string) error {
	if storageKVPutKey == "" {
		return fmt.Errorf("nodectl: --key is required")
	}
	out, err := apiRequest("POST", "/api/storage/kv", map[string]string{
		"key":   storageKVPutKey,
		"value": base64.StdEncoding.EncodeToString([]byte(storageKVPutValue)),
	})
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
