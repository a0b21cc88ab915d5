package main

import (
	"context"
	"crypto/ed25519"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/nodecore/channel"
	"github.com/sage-x-project/nodecore/control"
	"github.com/sage-x-project/nodecore/crypto/keys"
	"github.com/sage-x-project/nodecore/router"
	"github.com/sage-x-project/nodecore/storage"
	"github.com/sage-x-project/nodecore/storage/memory"
	"github.com/sage-x-project/nodecore/supervisor"
	"github.com/sage-x-project/nodecore/transport/tcp"
	"github.com/sage-x-project/nodecore/trust"
)

func freeLoopbackAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestTCPServiceStartStopHealth(t *testing.T) {
	svc := &tcpService{transport: tcp.New(), addr: freeLoopbackAddr(t)}
	ctx := context.Background()

	require.Error(t, svc.HealthCheck(ctx))
	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.HealthCheck(ctx))
	require.NoError(t, svc.Stop(ctx))
}

func newTestControlServer(t *testing.T) *control.Server {
	t.Helper()
	edPub, edPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	trustStore := trust.NewStore("node-under-test", edPriv)
	xPair, err := keys.GenerateX25519KeyPair()
	require.NoError(t, err)
	x25519Pair, ok := xPair.(*keys.X25519KeyPair)
	require.True(t, ok)

	chMgr := channel.NewManager(x25519Pair, trustStore)
	t.Cleanup(chMgr.Shutdown)
	selfKP := keys.NewEd25519KeyPairFromPrivate(edPriv)
	rtr := router.New("node-under-test", selfKP, chMgr, trustStore, tcp.New())

	kv := storage.NewKVStore(memory.NewBackend(), make([]byte, 32))
	sup := supervisor.New(supervisor.NewRegistry(), nil)
	auth := control.NewAuthenticator([]byte("unit-test-signing-key"), func(pw string) bool {
		return pw == "correct-horse"
	}, control.Config{})

	deps := control.Deps{
		Supervisor: sup,
		Trust:      trustStore,
		Router:     rtr,
		KV:         kv,
		Identity: control.Identity{
			NodeID:        "node-under-test",
			Ed25519Public: []byte(edPub),
			X25519Public:  x25519Pair.PublicBytesKey(),
		},
		StartedAt: time.Now(),
	}
	return control.NewServer(control.Config{}, auth, deps)
}

func TestHTTPServiceStartStop(t *testing.T) {
	addr := freeLoopbackAddr(t)
	svc := newHTTPService(addr, newTestControlServer(t))
	ctx := context.Background()

	require.NoError(t, svc.Init(ctx))
	require.NoError(t, svc.Start(ctx))

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(stopCtx))
}

func TestHTTPServiceSkipsWhenAddrEmpty(t *testing.T) {
	svc := newHTTPService("", newTestControlServer(t))
	ctx := context.Background()

	require.NoError(t, svc.Init(ctx))
	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Stop(ctx))
}

func TestCommandServiceStartStop(t *testing.T) {
	edPub, edPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	auth := control.NewAuthenticator([]byte("unit-test-signing-key"), func(pw string) bool {
		return pw == "correct-horse"
	}, control.Config{})
	deps := control.Deps{Identity: control.Identity{NodeID: "node-under-test", Ed25519Public: []byte(edPub)}}
	_ = edPriv

	path := filepath.Join(t.TempDir(), "control.sock")
	svc := newCommandService(path, control.NewCommandServer(auth, deps))
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx))
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, svc.Stop(ctx))
}

func TestCommandServiceSkipsWhenPathEmpty(t *testing.T) {
	svc := newCommandService("", nil)
	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Stop(ctx))
}
