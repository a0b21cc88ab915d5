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

package health

import (
	"context"
	"fmt"
	"runtime"
	"syscall"
)

// Resource thresholds for the process health check.
const (
	MemoryThresholdDegraded  = 70.0
	MemoryThresholdUnhealthy = 85.0
	DiskThresholdDegraded    = 70.0
	DiskThresholdUnhealthy   = 85.0
)

// ResourceSnapshot reports memory, disk, and goroutine pressure for the
// running node process.
type ResourceSnapshot struct {
	Status        Status  `json:"status"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemorySysMB   uint64  `json:"memory_sys_mb"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskUsedGB    uint64  `json:"disk_used_gb"`
	DiskTotalGB   uint64  `json:"disk_total_gb"`
	DiskPercent   float64 `json:"disk_percent"`
	GoRoutines    int     `json:"goroutines"`
	Error         string  `json:"error,omitempty"`
}

// CheckResources samples runtime memory stats and disk usage of the
// working directory and classifies the result.
func CheckResources(dir string) *ResourceSnapshot {
	snap := &ResourceSnapshot{Status: StatusHealthy}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	snap.MemoryUsedMB = m.Alloc / 1024 / 1024
	snap.MemorySysMB = m.Sys / 1024 / 1024
	if snap.MemorySysMB > 0 {
		snap.MemoryPercent = float64(snap.MemoryUsedMB) / float64(snap.MemorySysMB) * 100
	}
	snap.GoRoutines = runtime.NumGoroutine()

	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		snap.Error = fmt.Sprintf("statfs %s: %v", dir, err)
	} else {
		total := stat.Blocks * uint64(stat.Bsize)
		free := stat.Bfree * uint64(stat.Bsize)
		snap.DiskTotalGB = total / 1024 / 1024 / 1024
		snap.DiskUsedGB = (total - free) / 1024 / 1024 / 1024
		if snap.DiskTotalGB > 0 {
			snap.DiskPercent = float64(snap.DiskUsedGB) / float64(snap.DiskTotalGB) * 100
		}
	}

	switch {
	case snap.MemoryPercent >= MemoryThresholdUnhealthy || snap.DiskPercent >= DiskThresholdUnhealthy:
		snap.Status = StatusUnhealthy
	case snap.MemoryPercent >= MemoryThresholdDegraded || snap.DiskPercent >= DiskThresholdDegraded:
		snap.Status = StatusDegraded
	}

	return snap
}

// ResourceHealthCheck adapts CheckResources into a HealthCheck so the
// process resource snapshot participates in CheckAll/GetSystemHealth
// alongside module checks.
func ResourceHealthCheck(dir string) HealthCheck {
	return func(_ context.Context) error {
		snap := CheckResources(dir)
		if snap.Status == StatusUnhealthy {
			return fmt.Errorf("resource pressure: mem=%.1f%% disk=%.1f%%", snap.MemoryPercent, snap.DiskPercent)
		}
		return nil
	}
}
