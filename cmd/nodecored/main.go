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

// Command nodecored is the node kernel's daemon entrypoint: it unlocks
// the vault, derives this node's identity, wires the trust store,
// secure channels, router, dispatcher, and local control surface
// together, registers them with the supervisor, and runs until asked
// to stop.
package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sage-x-project/nodecore/channel"
	"github.com/sage-x-project/nodecore/control"
	"github.com/sage-x-project/nodecore/dispatcher"
	"github.com/sage-x-project/nodecore/internal/logger"
	"github.com/sage-x-project/nodecore/router"
	"github.com/sage-x-project/nodecore/storage"
	"github.com/sage-x-project/nodecore/storage/memory"
	"github.com/sage-x-project/nodecore/storage/postgres"
	"github.com/sage-x-project/nodecore/supervisor"
	"github.com/sage-x-project/nodecore/transport/tcp"
	"github.com/sage-x-project/nodecore/trust"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "nodecored: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	log := logger.GetDefaultLogger()

	cfg, err := parseConfig()
	if err != nil {
		return err
	}

	password, err := ownerPassword()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.dataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	id, err := bootstrapIdentity(cfg.dataDir, cfg.nodeID, password)
	if err != nil {
		return err
	}
	log.Info("identity unlocked", logger.String("node_id", id.nodeID))

	trustStore := trust.NewStore(id.nodeID, id.edPriv)
	chMgr := channel.NewManager(id.x25519, trustStore)

	// rtr and dsp are wired into the transport's inbound handler below,
	// via a closure that reads them after they're both assigned; the
	// handler only ever runs once Listen (started later, by tcpService)
	// accepts a connection, long after both are in place.
	var rtr *router.Router
	var dsp *dispatcher.Dispatcher

	tr := tcp.New(tcp.WithHandler(func(peerID string, frame []byte) {
		env, err := rtr.Receive(peerID, frame)
		if err != nil {
			log.Warn("router: drop inbound frame", logger.String("peer", peerID), logger.Error(err))
			return
		}
		if env == nil {
			return // forwarded on, not addressed to this node
		}
		if err := dsp.Dispatch(env); err != nil {
			log.Warn("dispatcher: handler error", logger.String("from", env.From), logger.String("type", env.Type), logger.Error(err))
		}
	}))

	rtr = router.New(id.nodeID, id.ed25519, chMgr, trustStore, tr)
	dsp = dispatcher.New(id.nodeID, id.edPriv, rtr)

	registerDefaultHandlers(dsp)
	registerGossipHandler(dsp, trustStore)
	trustStore.SetBroadcaster(newGossipRelay(dsp))

	kv, err := buildKVStore(cfg, id.storageKey)
	if err != nil {
		return err
	}

	nodeLog, err := storage.NewLog(cfg.dataDir, "supervisor", id.storageKey)
	if err != nil {
		return fmt.Errorf("open supervisor log: %w", err)
	}

	registry := supervisor.NewRegistry()
	registry.Register("trust", trustStore)
	registry.Register("router", rtr)
	registry.Register("dispatcher", dsp)
	registry.Register("kv", kv)

	sup := supervisor.New(registry, supervisor.NewSnapshotter(nodeLog))

	authCfg := control.Config{
		HTTPAddr:                 cfg.httpAddr,
		SocketPath:               cfg.socketPath,
		RequireRequestSignatures: cfg.requireSigs,
	}
	auth := control.NewAuthenticator(id.controlSecret, func(pw string) bool { return pw == password }, authCfg)

	deps := control.Deps{
		Supervisor: sup,
		Trust:      trustStore,
		Router:     rtr,
		KV:         kv,
		Identity: control.Identity{
			NodeID:        id.nodeID,
			Ed25519Public: []byte(id.edPriv.Public().(ed25519.PublicKey)),
			X25519Public:  id.x25519.PublicBytesKey(),
		},
		StartedAt: time.Now(),
		APIKeys:   cfg.apiKeys,
	}

	ctlServer := control.NewServer(authCfg, auth, deps)
	cmdServer := control.NewCommandServer(auth, deps)

	registerServices(sup, tr, cfg, ctlServer, cmdServer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.StartAll(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	log.Info("nodecored started",
		logger.String("node_id", id.nodeID),
		logger.String("tcp_addr", cfg.tcpAddr),
		logger.String("http_addr", cfg.httpAddr),
	)

	waitForShutdown(log)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := sup.StopAll(stopCtx); err != nil {
		log.Error("shutdown had errors", logger.Error(err))
	}
	trustStore.Close()
	rtr.Close()
	chMgr.Shutdown()
	return nil
}

// registerDefaultHandlers wires the protocol's always-on handler: ping
// answers with pong. hello/welcome/announce are left unregistered for a
// future discovery module; the dispatcher drops unknown types rather
// than rejecting them, so that's safe today.
func registerDefaultHandlers(d *dispatcher.Dispatcher) {
	d.RegisterHandler(dispatcher.TypePing, func(from string, body []byte) error {
		return d.Notify(dispatcher.TypePong, from, nil)
	})
}

func buildKVStore(cfg *daemonConfig, baseKey []byte) (*storage.KVStore, error) {
	switch cfg.kvBackend {
	case "postgres":
		backend, err := postgres.NewBackend(context.Background(), &postgres.Config{
			Host:     cfg.pgHost,
			Port:     cfg.pgPort,
			User:     cfg.pgUser,
			Password: cfg.pgPassword,
			Database: cfg.pgDatabase,
			SSLMode:  cfg.pgSSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres kv backend: %w", err)
		}
		return storage.NewKVStore(backend, baseKey), nil
	case "memory", "":
		return storage.NewKVStore(memory.NewBackend(), baseKey), nil
	default:
		return nil, fmt.Errorf("unknown -kv-backend %q", cfg.kvBackend)
	}
}

func registerServices(sup *supervisor.Supervisor, tr *tcp.Transport, cfg *daemonConfig, ctlServer *control.Server, cmdServer *control.CommandServer) {
	sup.Register(supervisor.Descriptor{Name: "tcp-transport", AutoStart: supervisor.Always}, &tcpService{transport: tr, addr: cfg.tcpAddr})
	sup.Register(supervisor.Descriptor{Name: "control-http", DependsOn: []string{"tcp-transport"}, AutoStart: supervisor.Always}, newHTTPService(cfg.httpAddr, ctlServer))
	sup.Register(supervisor.Descriptor{Name: "control-commands", DependsOn: []string{"tcp-transport"}, AutoStart: supervisor.Always}, newCommandService(cfg.socketPath, cmdServer))
}

func waitForShutdown(log logger.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", logger.String("signal", sig.String()))
}
