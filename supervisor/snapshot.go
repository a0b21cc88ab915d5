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

package supervisor

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sage-x-project/nodecore/internal/logger"
	"github.com/sage-x-project/nodecore/storage"
)

// SnapshotProvider lets another component (the router's route table,
// the trust store) contribute its own compact state to the supervisor's
// crash-recovery snapshot.
type SnapshotProvider interface {
	Snapshot() ([]byte, error)
}

// Snapshot is the compact crash-recovery record spec.md §4.10 names:
// service descriptors plus whatever providers (route table, trust
// store) were registered. Checksum is computed over Services+Providers
// before Checksum itself is populated, so LoadLatestSnapshot can verify
// the record wasn't silently truncated or altered independent of the
// storage layer's own AEAD tag.
type Snapshot struct {
	Services  []ServiceStatus   `json:"services"`
	Providers map[string][]byte `json:"providers,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Checksum  string            `json:"checksum"`
}

func (s *Snapshot) computeChecksum() string {
	cp := *s
	cp.Checksum = ""
	data, _ := json.Marshal(cp)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// snapshotter persists Snapshots to an append-only storage.Log.
type snapshotter struct {
	mu        sync.Mutex
	log       *storage.Log
	providers map[string]SnapshotProvider
}

// NewSnapshotter wraps an already-opened storage.Log (typically named
// "supervisor-snapshot") as the crash-recovery persistence target.
func NewSnapshotter(log *storage.Log) *snapshotter {
	return &snapshotter{log: log, providers: make(map[string]SnapshotProvider)}
}

// RegisterSnapshotProvider adds a named contributor to future
// snapshots; e.g. RegisterSnapshotProvider("routes", router).
func (s *Supervisor) RegisterSnapshotProvider(name string, p SnapshotProvider) {
	if s.snapshot == nil {
		return
	}
	s.snapshot.mu.Lock()
	defer s.snapshot.mu.Unlock()
	s.snapshot.providers[name] = p
}

// persistSnapshot is called after every state transition that changes
// which services are RUNNING. It is best-effort: a snapshot write
// failure is logged, not propagated, since it must never block a
// service's own start/stop.
func (s *Supervisor) persistSnapshot() {
	if s.snapshot == nil {
		return
	}

	snap := Snapshot{Services: s.Descriptors(), Timestamp: time.Now()}

	s.snapshot.mu.Lock()
	if len(s.snapshot.providers) > 0 {
		snap.Providers = make(map[string][]byte, len(s.snapshot.providers))
		for name, p := range s.snapshot.providers {
			data, err := p.Snapshot()
			if err != nil {
				continue
			}
			snap.Providers[name] = data
		}
	}
	s.snapshot.mu.Unlock()

	snap.Checksum = snap.computeChecksum()
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.Warn("supervisor: marshal snapshot failed", logger.Error(err))
		return
	}

	s.snapshot.mu.Lock()
	err = s.snapshot.log.Append(data)
	s.snapshot.mu.Unlock()
	if err != nil {
		s.log.Warn("supervisor: persist snapshot failed", logger.Error(err))
	}
}

// LoadLatestSnapshot replays the snapshot log and returns the most
// recent record whose checksum verifies. A record that fails its
// checksum is skipped rather than trusted, per spec.md's "verifies a
// checksum before offering the owner a recovery option" rule.
func LoadLatestSnapshot(log *storage.Log) (*Snapshot, error) {
	var latest *Snapshot
	err := log.Replay(func(record []byte) error {
		var snap Snapshot
		if err := json.Unmarshal(record, &snap); err != nil {
			return nil // corrupt record: skip, don't abort the whole replay
		}
		want := snap.computeChecksum()
		if want != snap.Checksum {
			return nil
		}
		latest = &snap
		return nil
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}
