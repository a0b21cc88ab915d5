package control

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCommandServer(t *testing.T) (*CommandServer, *Authenticator, string) {
	t.Helper()
	s, auth := newTestServer(t, Config{})
	cmdSrv := NewCommandServer(auth, s.deps)

	sockPath := filepath.Join(t.TempDir(), "control.sock")
	require.NoError(t, cmdSrv.Listen(sockPath))
	go cmdSrv.Serve()
	t.Cleanup(func() { cmdSrv.Close() })

	return cmdSrv, auth, sockPath
}

func dial(t *testing.T, sockPath string) (net.Conn, *bufio.Scanner) {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, err = net.Dial("unix", sockPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	return conn, bufio.NewScanner(conn)
}

func TestCommandServerRejectsMissingAuth(t *testing.T) {
	_, _, sockPath := newTestCommandServer(t)
	conn, scanner := dial(t, sockPath)
	defer conn.Close()

	fmt.Fprintf(conn, "state\n")
	require.True(t, scanner.Scan())
	require.Contains(t, scanner.Text(), "unauthorized")
}

func TestCommandServerAuthThenState(t *testing.T) {
	_, auth, sockPath := newTestCommandServer(t)
	access, _, _, err := auth.issuePair()
	require.NoError(t, err)

	conn, scanner := dial(t, sockPath)
	defer conn.Close()

	fmt.Fprintf(conn, "AUTH %s\n", access)
	require.True(t, scanner.Scan())
	require.Contains(t, scanner.Text(), "authenticated")

	fmt.Fprintf(conn, "state\n")
	require.True(t, scanner.Scan())
	require.Contains(t, scanner.Text(), "node-under-test")
}

func TestCommandServerTrustAddRemove(t *testing.T) {
	_, auth, sockPath := newTestCommandServer(t)
	access, _, _, err := auth.issuePair()
	require.NoError(t, err)

	conn, scanner := dial(t, sockPath)
	defer conn.Close()

	fmt.Fprintf(conn, "AUTH %s\n", access)
	require.True(t, scanner.Scan())

	pub := make([]byte, 32)
	for i := range pub {
		pub[i] = byte(i)
	}
	encoded := base64.StdEncoding.EncodeToString(pub)

	fmt.Fprintf(conn, "trust:add peer-z %s\n", encoded)
	require.True(t, scanner.Scan())
	require.Contains(t, scanner.Text(), "added")

	fmt.Fprintf(conn, "trust:list\n")
	require.True(t, scanner.Scan())
	require.Contains(t, scanner.Text(), "peer-z")

	fmt.Fprintf(conn, "trust:remove peer-z\n")
	require.True(t, scanner.Scan())
	require.Contains(t, scanner.Text(), "removed")
}

func TestCommandServerLogout(t *testing.T) {
	_, auth, sockPath := newTestCommandServer(t)
	access, _, _, err := auth.issuePair()
	require.NoError(t, err)

	conn, scanner := dial(t, sockPath)
	defer conn.Close()

	fmt.Fprintf(conn, "AUTH %s\n", access)
	require.True(t, scanner.Scan())

	fmt.Fprintf(conn, "LOGOUT\n")
	require.True(t, scanner.Scan())
	require.Contains(t, scanner.Text(), "bye")

	require.False(t, scanner.Scan())
}

func TestCommandServerUnknownCommand(t *testing.T) {
	_, auth, sockPath := newTestCommandServer(t)
	access, _, _, err := auth.issuePair()
	require.NoError(t, err)

	conn, scanner := dial(t, sockPath)
	defer conn.Close()

	fmt.Fprintf(conn, "AUTH %s\n", access)
	require.True(t, scanner.Scan())

	fmt.Fprintf(conn, "warp:drive\n")
	require.True(t, scanner.Scan())
	require.Contains(t, scanner.Text(), "unknown command")
}
