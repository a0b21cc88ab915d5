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

// Package config loads the node daemon's file-based configuration: the
// owner-editable counterpart to cmd/nodecored's flags. A Config is the
// union of every component's tunables; any field left unset in the file
// falls back to the value setDefaults assigns.
package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the node daemon's file-based configuration.
type Config struct {
	Environment string          `yaml:"environment" json:"environment"`
	Identity    *IdentityConfig `yaml:"identity" json:"identity"`
	Storage     *StorageConfig  `yaml:"storage" json:"storage"`
	Channel     *ChannelConfig  `yaml:"channel" json:"channel"`
	Router      *RouterConfig   `yaml:"router" json:"router"`
	Control     *ControlConfig  `yaml:"control" json:"control"`
	Logging     *LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig  `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig   `yaml:"health" json:"health"`
}

// IdentityConfig controls how the node's master seed is derived and
// unlocked (vault.DeriveMaster's cost parameters).
type IdentityConfig struct {
	MnemonicWords int `yaml:"mnemonic_words" json:"mnemonic_words"`
	ScryptN       int `yaml:"scrypt_n" json:"scrypt_n"`
	ScryptR       int `yaml:"scrypt_r" json:"scrypt_r"`
	ScryptP       int `yaml:"scrypt_p" json:"scrypt_p"`
}

// StorageConfig controls the append-only envelope log (C3).
type StorageConfig struct {
	Dir               string `yaml:"dir" json:"dir"`
	LogRotateBytes    int64  `yaml:"log_rotate_bytes" json:"log_rotate_bytes"`
	Backend           string `yaml:"backend" json:"backend"` // memory, postgres
	PostgresDSN       string `yaml:"postgres_dsn" json:"postgres_dsn"`
}

// ChannelConfig controls secure-channel rekeying (C6).
type ChannelConfig struct {
	RotateAfterMessages uint64        `yaml:"rotate_after_messages" json:"rotate_after_messages"`
	RotateAfterAge      time.Duration `yaml:"rotate_after_age" json:"rotate_after_age"`
}

// RouterConfig controls envelope forwarding defaults (C8).
type RouterConfig struct {
	DefaultTTL   int  `yaml:"default_ttl" json:"default_ttl"`
	EnableFind   bool `yaml:"enable_find_route" json:"enable_find_route"`
}

// ControlConfig controls the local owner-facing control surface (C11).
type ControlConfig struct {
	HTTPAddr                 string        `yaml:"http_addr" json:"http_addr"`
	SocketPath               string        `yaml:"socket_path" json:"socket_path"`
	AccessTokenTTL           time.Duration `yaml:"access_token_ttl" json:"access_token_ttl"`
	RefreshTokenTTL          time.Duration `yaml:"refresh_token_ttl" json:"refresh_token_ttl"`
	CORSAllowedOrigins       []string      `yaml:"cors_allowed_origins" json:"cors_allowed_origins"`
	RequireRequestSignatures bool          `yaml:"require_request_signatures" json:"require_request_signatures"`
}

// LoggingConfig controls internal/logger's output.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format   string `yaml:"format" json:"format"` // json, console
	Output   string `yaml:"output" json:"output"` // stdout, stderr, file path
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig controls internal/metrics' standalone /metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig controls which supervisor health checks run.
type HealthConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Checks  []string `yaml:"checks" json:"checks"`
}

// LoadFromFile reads a Config from a YAML or JSON file, applying
// ${VAR}/${VAR:default} environment substitution and defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s (tried YAML and JSON): %w", path, err)
		}
	}

	SubstituteEnvVarsInConfig(cfg)
	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes cfg to path as YAML, or JSON if path ends in .json.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := ioutil.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Identity == nil {
		cfg.Identity = &IdentityConfig{}
	}
	if cfg.Identity.MnemonicWords == 0 {
		cfg.Identity.MnemonicWords = 24
	}
	if cfg.Identity.ScryptN == 0 {
		cfg.Identity.ScryptN = 1 << 15
	}
	if cfg.Identity.ScryptR == 0 {
		cfg.Identity.ScryptR = 8
	}
	if cfg.Identity.ScryptP == 0 {
		cfg.Identity.ScryptP = 1
	}

	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{}
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = ".nodecore"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.LogRotateBytes == 0 {
		cfg.Storage.LogRotateBytes = 64 << 20
	}

	if cfg.Channel == nil {
		cfg.Channel = &ChannelConfig{}
	}
	if cfg.Channel.RotateAfterMessages == 0 {
		cfg.Channel.RotateAfterMessages = 1 << 16
	}
	if cfg.Channel.RotateAfterAge == 0 {
		cfg.Channel.RotateAfterAge = time.Hour
	}

	if cfg.Router == nil {
		cfg.Router = &RouterConfig{}
	}
	if cfg.Router.DefaultTTL == 0 {
		cfg.Router.DefaultTTL = 8
	}

	if cfg.Control == nil {
		cfg.Control = &ControlConfig{}
	}
	if cfg.Control.HTTPAddr == "" {
		cfg.Control.HTTPAddr = "127.0.0.1:7780"
	}
	if cfg.Control.AccessTokenTTL == 0 {
		cfg.Control.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.Control.RefreshTokenTTL == 0 {
		cfg.Control.RefreshTokenTTL = 30 * 24 * time.Hour
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Health == nil {
		cfg.Health = &HealthConfig{Enabled: true}
	}
}
