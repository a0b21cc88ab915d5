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

package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesConnectedClient(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return b.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	b.Broadcast(map[string]string{"kind": "start", "service": "router"})

	var got map[string]string
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "start", got["kind"])
	require.Equal(t, "router", got["service"])
}

func TestBroadcastDropsDisconnectedClient(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)
	conn.Close()

	require.Eventually(t, func() bool { return b.ConnectionCount() == 0 }, time.Second, 5*time.Millisecond)
}
