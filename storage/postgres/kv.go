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

// Package postgres is the optional durable storage.Backend, for owners
// who want the trust store or KV surface to survive more than a single
// node's disk. It is not required by any component; the default
// backend is storage/memory layered under storage.KVStore.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sage-x-project/nodecore/storage"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Backend is a PostgreSQL-backed storage.Backend: one table of opaque,
// already-encrypted blobs keyed by their hashed name.
type Backend struct {
	pool *pgxpool.Pool
}

var _ storage.Backend = (*Backend)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS storage_blobs (
	name  TEXT PRIMARY KEY,
	blob  BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// NewBackend opens a connection pool to cfg and ensures the backing
// table exists.
func NewBackend(ctx context.Context, cfg *Config) (*Backend, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage/postgres: ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage/postgres: create schema: %w", err)
	}
	return &Backend{pool: pool}, nil
}

func (b *Backend) Put(ctx context.Context, name string, blob []byte) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO storage_blobs (name, blob, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET blob = EXCLUDED.blob, updated_at = now()`,
		name, blob)
	if err != nil {
		return fmt.Errorf("storage/postgres: put: %w", err)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, name string) ([]byte, error) {
	var blob []byte
	err := b.pool.QueryRow(ctx, `SELECT blob FROM storage_blobs WHERE name = $1`, name).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: get: %w", err)
	}
	return blob, nil
}

func (b *Backend) Delete(ctx context.Context, name string) error {
	_, err := b.pool.Exec(ctx, `DELETE FROM storage_blobs WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("storage/postgres: delete: %w", err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx, `SELECT name FROM storage_blobs`)
	if err != nil {
		return nil, fmt.Errorf("storage/postgres: list: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("storage/postgres: scan name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

// Ping checks the database connection.
func (b *Backend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}
