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
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sage-x-project/nodecore/control"
	"github.com/sage-x-project/nodecore/internal/logger"
	"github.com/sage-x-project/nodecore/transport/tcp"
)

// tcpService wraps transport/tcp.Transport as a supervisor.Service so
// the peer wire listener starts and stops in dependency order with
// everything else, the same way the control surface's two listeners do.
type tcpService struct {
	transport *tcp.Transport
	addr      string
}

func (s *tcpService) Init(ctx context.Context) error { return nil }

func (s *tcpService) Start(ctx context.Context) error {
	if err := s.transport.Listen(s.addr); err != nil {
		return fmt.Errorf("nodecored: listen tcp %s: %w", s.addr, err)
	}
	return nil
}

func (s *tcpService) Stop(ctx context.Context) error {
	return s.transport.Close()
}

func (s *tcpService) HealthCheck(ctx context.Context) error {
	if s.transport.Addr() == nil {
		return errors.New("nodecored: tcp transport not listening")
	}
	return nil
}

// httpService wraps control.Server's handler in an http.Server so it
// can be started/stopped under supervision alongside the rest of the
// node, rather than being block-started from main directly.
type httpService struct {
	addr   string
	server *control.Server
	http   *http.Server
	log    logger.Logger
}

func newHTTPService(addr string, server *control.Server) *httpService {
	return &httpService{addr: addr, server: server, log: logger.GetDefaultLogger()}
}

func (s *httpService) Init(ctx context.Context) error {
	if s.addr == "" {
		return nil
	}
	s.http = &http.Server{
		Addr:    s.addr,
		Handler: s.server.Handler(),
	}
	return nil
}

func (s *httpService) Start(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			s.log.Error("control http server stopped", logger.Error(err))
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

func (s *httpService) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *httpService) HealthCheck(ctx context.Context) error { return nil }

// commandService wraps control.CommandServer's UNIX-socket listener the
// same way httpService wraps the HTTP one.
type commandService struct {
	path   string
	server *control.CommandServer
	log    logger.Logger
}

func newCommandService(path string, server *control.CommandServer) *commandService {
	return &commandService{path: path, server: server, log: logger.GetDefaultLogger()}
}

func (s *commandService) Init(ctx context.Context) error { return nil }

func (s *commandService) Start(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	if err := s.server.Listen(s.path); err != nil {
		return fmt.Errorf("nodecored: listen command socket %s: %w", s.path, err)
	}
	go func() {
		if err := s.server.Serve(); err != nil {
			s.log.Warn("control command server stopped", logger.Error(err))
		}
	}()
	return nil
}

func (s *commandService) Stop(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	return s.server.Close()
}

func (s *commandService) HealthCheck(ctx context.Context) error { return nil }
