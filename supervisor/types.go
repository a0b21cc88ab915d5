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

// Package supervisor owns the node's service dependency graph, their
// lifecycle states, restart policies, and a process-wide event bus,
// per spec.md §4.10.
package supervisor

import (
	"context"
	"errors"
	"time"
)

// State is a service's lifecycle state.
type State string

const (
	StateRegistered  State = "REGISTERED"
	StateInitialized State = "INITIALIZED"
	StateStarting    State = "STARTING"
	StateRunning     State = "RUNNING"
	StateStopping    State = "STOPPING"
	StateStopped     State = "STOPPED"
	StateCrashed     State = "CRASHED"
)

// AutoStart is a service's restart policy.
type AutoStart string

const (
	// Always restarts with exponential backoff whenever the service
	// leaves RUNNING for any reason other than an explicit Stop.
	Always AutoStart = "ALWAYS"
	// OnFailure restarts only after a crash (health check failures
	// past the threshold), not after an explicit Stop.
	OnFailure AutoStart = "ON_FAILURE"
	// OnDemand never restarts automatically and is skipped by StartAll;
	// StartOne is the only path back to RUNNING.
	OnDemand AutoStart = "ON_DEMAND"
)

// Service is what the supervisor manages: Init/Start/Stop are called in
// dependency order (Init/Start forward, Stop reverse). HealthCheck is
// probed only when the Descriptor's HealthPeriod is non-zero; a nil
// return counts as healthy.
type Service interface {
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	HealthCheck(ctx context.Context) error
}

// Descriptor is a registered service's static configuration.
type Descriptor struct {
	Name         string
	DependsOn    []string
	AutoStart    AutoStart
	HealthPeriod time.Duration // 0 disables periodic health checks
	CrashAfter   int           // consecutive health-check failures before CRASHED; 0 uses DefaultCrashThreshold
}

// DefaultCrashThreshold is the number of consecutive health-check
// failures that move a RUNNING service to CRASHED.
const DefaultCrashThreshold = 3

// DefaultBackoffBase and DefaultBackoffCap bound the exponential
// restart backoff for ALWAYS/ON_FAILURE services.
const (
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffCap  = 5 * time.Minute
)

// Event is one entry on the event bus.
type Event struct {
	Kind      string // "service:registered" | "init" | "start" | "stop" | "error" | "crashed"
	Service   string
	Err       error
	Timestamp time.Time
}

var (
	ErrAlreadyRegistered = errors.New("supervisor: service already registered")
	ErrNotRegistered     = errors.New("supervisor: service not registered")
	ErrCycleDetected     = errors.New("supervisor: dependency cycle detected")
	ErrUnknownDependency = errors.New("supervisor: depends on an unregistered service")
)
