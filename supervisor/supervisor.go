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
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sage-x-project/nodecore/health"
	"github.com/sage-x-project/nodecore/internal/logger"
	"github.com/sage-x-project/nodecore/internal/metrics"
)

type entry struct {
	desc    Descriptor
	service Service
	state   State

	consecutiveFailures int
	restartAttempt      int

	stopHealth chan struct{}
}

// Supervisor computes start/stop order from a dependency graph and
// drives each service through Init/Start/Stop, restarting per its
// AutoStart policy and publishing lifecycle events on an EventBus.
type Supervisor struct {
	mu       sync.Mutex
	services map[string]*entry
	checker  *health.HealthChecker
	bus      *EventBus
	registry *Registry
	log      logger.Logger

	snapshot *snapshotter
}

// New creates an empty Supervisor. snapshot may be nil to disable
// crash-recovery snapshot persistence.
func New(registry *Registry, snapshot *snapshotter) *Supervisor {
	return &Supervisor{
		services: make(map[string]*entry),
		checker:  health.NewHealthChecker(5 * time.Second),
		bus:      NewEventBus(),
		registry: registry,
		log:      logger.GetDefaultLogger(),
		snapshot: snapshot,
	}
}

// Events returns the supervisor's event bus.
func (s *Supervisor) Events() *EventBus { return s.bus }

// Registry returns the module registry services use to look each other
// up once registered.
func (s *Supervisor) Registry() *Registry { return s.registry }

// Register adds svc under desc.Name. It does not start the service;
// StartAll (or StartOne, for ON_DEMAND services) does.
func (s *Supervisor) Register(desc Descriptor, svc Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.services[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, desc.Name)
	}
	if desc.CrashAfter == 0 {
		desc.CrashAfter = DefaultCrashThreshold
	}
	s.services[desc.Name] = &entry{desc: desc, service: svc, state: StateRegistered}
	s.bus.Publish(Event{Kind: "service:registered", Service: desc.Name, Timestamp: time.Now()})
	return nil
}

// topoOrder returns service names in dependency order (dependencies
// first) via Kahn's algorithm, the same way the general shape of a
// node-wiring registration table resolves "what must come up before
// what". Ties are broken alphabetically for deterministic output.
func (s *Supervisor) topoOrder() ([]string, error) {
	indegree := make(map[string]int, len(s.services))
	dependents := make(map[string][]string)

	for name, e := range s.services {
		indegree[name] += 0
		for _, dep := range e.desc.DependsOn {
			if _, ok := s.services[dep]; !ok {
				return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownDependency, name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(s.services) {
		return nil, ErrCycleDetected
	}
	return order, nil
}

// StartAll initializes and starts every registered service in
// dependency order, skipping ON_DEMAND services (callers start those
// explicitly via StartOne).
func (s *Supervisor) StartAll(ctx context.Context) error {
	s.mu.Lock()
	order, err := s.topoOrder()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, name := range order {
		s.mu.Lock()
		e := s.services[name]
		s.mu.Unlock()
		if e.desc.AutoStart == OnDemand {
			continue
		}
		if err := s.startOne(ctx, name); err != nil {
			return fmt.Errorf("supervisor: start %s: %w", name, err)
		}
	}
	return nil
}

// StartOne initializes (if needed) and starts a single service by
// name, regardless of its AutoStart policy.
func (s *Supervisor) StartOne(ctx context.Context, name string) error {
	return s.startOne(ctx, name)
}

func (s *Supervisor) startOne(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.services[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	if e.state == StateRegistered {
		if err := e.service.Init(ctx); err != nil {
			s.transition(name, StateCrashed)
			s.bus.Publish(Event{Kind: "error", Service: name, Err: err, Timestamp: time.Now()})
			return err
		}
		s.transition(name, StateInitialized)
		s.bus.Publish(Event{Kind: "init", Service: name, Timestamp: time.Now()})
	}

	s.transition(name, StateStarting)
	if err := e.service.Start(ctx); err != nil {
		s.transition(name, StateCrashed)
		s.bus.Publish(Event{Kind: "error", Service: name, Err: err, Timestamp: time.Now()})
		return err
	}
	s.transition(name, StateRunning)
	s.bus.Publish(Event{Kind: "start", Service: name, Timestamp: time.Now()})

	s.startHealthLoop(name)
	s.persistSnapshot()
	return nil
}

// StopAll stops every running service in reverse dependency order.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	order, err := s.topoOrder()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		if err := s.stopOne(ctx, order[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Supervisor) stopOne(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.services[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	if e.state != StateRunning {
		return nil
	}

	s.stopHealthLoop(name)
	s.transition(name, StateStopping)
	if err := e.service.Stop(ctx); err != nil {
		s.bus.Publish(Event{Kind: "error", Service: name, Err: err, Timestamp: time.Now()})
		return err
	}
	s.transition(name, StateStopped)
	s.bus.Publish(Event{Kind: "stop", Service: name, Timestamp: time.Now()})
	s.persistSnapshot()
	return nil
}

func (s *Supervisor) transition(name string, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.services[name]
	if !ok {
		return
	}
	was := e.state
	e.state = st

	if was == StateRunning && st != StateRunning {
		metrics.ModulesRunning.Dec()
	} else if was != StateRunning && st == StateRunning {
		metrics.ModulesRunning.Inc()
	}
}

// State reports a service's current lifecycle state.
func (s *Supervisor) State(name string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.services[name]
	if !ok {
		return "", false
	}
	return e.state, true
}

// Descriptors returns a snapshot of every registered service's
// descriptor and current state, used for the control API's status
// endpoint and crash-recovery snapshots.
func (s *Supervisor) Descriptors() []ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ServiceStatus, 0, len(s.services))
	for name, e := range s.services {
		out = append(out, ServiceStatus{Name: name, State: e.state, AutoStart: e.desc.AutoStart})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ServiceStatus is the public, read-only view of one service.
type ServiceStatus struct {
	Name      string
	State     State
	AutoStart AutoStart
}
