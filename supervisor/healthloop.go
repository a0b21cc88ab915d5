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
	"errors"
	"time"

	"github.com/sage-x-project/nodecore/health"
	"github.com/sage-x-project/nodecore/internal/logger"
	"github.com/sage-x-project/nodecore/internal/metrics"
)

// startHealthLoop registers name's periodic health check (if
// HealthPeriod > 0) with the shared health.HealthChecker and begins a
// ticker that evaluates it, applying the CRASHED transition and the
// restart policy after CrashAfter consecutive failures. It is a no-op
// for services with HealthPeriod == 0.
func (s *Supervisor) startHealthLoop(name string) {
	s.mu.Lock()
	e, ok := s.services[name]
	s.mu.Unlock()
	if !ok || e.desc.HealthPeriod <= 0 {
		return
	}

	s.checker.RegisterCheck(name, health.ModuleHealthCheck(e.service.HealthCheck))
	stop := make(chan struct{})

	s.mu.Lock()
	e.stopHealth = stop
	s.mu.Unlock()

	go s.healthLoop(name, e.desc.HealthPeriod, stop)
}

func (s *Supervisor) healthLoop(name string, period time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.evaluateHealth(name)
		}
	}
}

func (s *Supervisor) evaluateHealth(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := s.checker.Check(ctx, name)
	if err != nil {
		return // check was unregistered concurrently (service stopped)
	}

	s.mu.Lock()
	e, ok := s.services[name]
	if !ok || e.state != StateRunning {
		s.mu.Unlock()
		return
	}

	if result.Status == health.StatusHealthy {
		e.consecutiveFailures = 0
		s.mu.Unlock()
		return
	}

	e.consecutiveFailures++
	crashed := e.consecutiveFailures >= e.desc.CrashAfter
	autoStart := e.desc.AutoStart
	s.mu.Unlock()

	if !crashed {
		return
	}

	var crashErr error
	if result.Message != "" {
		crashErr = errors.New(result.Message)
	}
	s.transition(name, StateCrashed)
	s.bus.Publish(Event{Kind: "crashed", Service: name, Err: crashErr, Timestamp: time.Now()})
	s.stopHealthLoop(name)
	s.persistSnapshot()

	// The supervisor never silently restarts a service that failed its
	// own startup invariants; it only restarts services that crashed
	// after reaching RUNNING, which is exactly the state this code path
	// observed just above.
	if autoStart == Always || autoStart == OnFailure {
		metrics.ModuleRestarts.WithLabelValues(name, "health_check_failed").Inc()
		go s.restartWithBackoff(name)
	}
}

func (s *Supervisor) stopHealthLoop(name string) {
	s.mu.Lock()
	e, ok := s.services[name]
	var stop chan struct{}
	if ok {
		stop = e.stopHealth
		e.stopHealth = nil
	}
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	s.checker.UnregisterCheck(name)
}

func (s *Supervisor) restartWithBackoff(name string) {
	s.mu.Lock()
	e, ok := s.services[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.restartAttempt++
	attempt := e.restartAttempt
	s.mu.Unlock()

	delay := DefaultBackoffBase << attempt
	if delay > DefaultBackoffCap || delay <= 0 {
		delay = DefaultBackoffCap
	}
	time.Sleep(delay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.startOne(ctx, name); err != nil {
		logger.GetDefaultLogger().Warn("supervisor: restart failed",
			logger.String("service", name), logger.Error(err))
		return
	}

	s.mu.Lock()
	e.restartAttempt = 0
	s.mu.Unlock()
}
