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
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/sage-x-project/nodecore/config"
	"github.com/sage-x-project/nodecore/pkg/version"
)

// daemonConfig is nodecored's flat, flag-driven runtime configuration,
// in the style cmd/random-test's package-level flag.* vars use. Flag
// defaults are seeded from a YAML file when -config points at one, so
// an owner can keep a checked-in config.yaml and still override any
// single value from the command line.
type daemonConfig struct {
	dataDir     string
	nodeID      string
	tcpAddr     string
	httpAddr    string
	socketPath  string
	kvBackend   string // "memory" or "postgres"
	pgHost      string
	pgPort      int
	pgUser      string
	pgPassword  string
	pgDatabase  string
	pgSSLMode   string
	apiKeys     []string
	requireSigs bool
}

// fileConfigPath peeks at argv for -config/--config without disturbing
// the real flag.Parse() call below, so its value can seed flag defaults.
func fileConfigPath(args []string) string {
	fs := flag.NewFlagSet("nodecored-peek", flag.ContinueOnError)
	fs.SetOutput(fileConfigDiscard{})
	path := fs.String("config", "", "")
	_ = fs.Parse(args)
	return *path
}

type fileConfigDiscard struct{}

func (fileConfigDiscard) Write(p []byte) (int, error) { return len(p), nil }

func parseConfig() (*daemonConfig, error) {
	_ = godotenv.Load() // optional .env in the working directory; absence is not an error

	defaults := &config.Config{}
	if path := fileConfigPath(os.Args[1:]); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("nodecored: -config: %w", err)
		}
		defaults = loaded
	} else {
		defaults.Storage = &config.StorageConfig{Dir: "./data", Backend: "memory"}
		defaults.Control = &config.ControlConfig{HTTPAddr: "127.0.0.1:8787", SocketPath: "./data/control.sock"}
	}

	cfg := &daemonConfig{}
	var apiKeysCSV, configPath string
	var printVersion bool

	flag.StringVar(&configPath, "config", "", "path to a YAML config file seeding the flag defaults below")
	flag.BoolVar(&printVersion, "version", false, "print version information and exit")
	flag.StringVar(&cfg.dataDir, "data-dir", defaults.Storage.Dir, "directory holding the vault salt/seed and persisted state")
	flag.StringVar(&cfg.nodeID, "node-id", "", "this node's identifier (required)")
	flag.StringVar(&cfg.tcpAddr, "tcp-addr", "0.0.0.0:7700", "peer wire transport listen address")
	flag.StringVar(&cfg.httpAddr, "http-addr", defaults.Control.HTTPAddr, "local control HTTP API listen address (empty disables it)")
	flag.StringVar(&cfg.socketPath, "socket-path", defaults.Control.SocketPath, "local control UNIX-domain socket path (empty disables it)")
	flag.StringVar(&cfg.kvBackend, "kv-backend", defaults.Storage.Backend, "key/value storage backend: memory or postgres")
	flag.StringVar(&cfg.pgHost, "postgres-host", "localhost", "postgres host, when -kv-backend=postgres")
	flag.IntVar(&cfg.pgPort, "postgres-port", 5432, "postgres port, when -kv-backend=postgres")
	flag.StringVar(&cfg.pgUser, "postgres-user", "", "postgres user, when -kv-backend=postgres")
	flag.StringVar(&cfg.pgPassword, "postgres-password", "", "postgres password, when -kv-backend=postgres")
	flag.StringVar(&cfg.pgDatabase, "postgres-database", "", "postgres database, when -kv-backend=postgres")
	flag.StringVar(&cfg.pgSSLMode, "postgres-sslmode", "disable", "postgres sslmode, when -kv-backend=postgres")
	flag.StringVar(&apiKeysCSV, "api-keys", "", "comma-separated static API keys accepted by the control surface")
	flag.BoolVar(&cfg.requireSigs, "require-request-signatures", defaults.Control.RequireRequestSignatures, "require RFC 9421-style signed requests on the control HTTP API")
	flag.Parse()

	if printVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	if cfg.nodeID == "" {
		return nil, fmt.Errorf("nodecored: -node-id is required")
	}
	if apiKeysCSV != "" {
		cfg.apiKeys = strings.Split(apiKeysCSV, ",")
	}
	if cfg.kvBackend == "postgres" && (cfg.pgUser == "" || cfg.pgDatabase == "") {
		return nil, fmt.Errorf("nodecored: -postgres-user and -postgres-database are required when -kv-backend=postgres")
	}
	return cfg, nil
}

// ownerPassword resolves the vault password from NODECORE_PASSWORD, or
// interactively from the controlling terminal when unset, never echoing
// keystrokes back.
func ownerPassword() (string, error) {
	if pw := os.Getenv("NODECORE_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(os.Stderr, "vault password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("nodecored: read password: %w", err)
	}
	return string(b), nil
}
