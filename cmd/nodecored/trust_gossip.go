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
	"fmt"

	"github.com/sage-x-project/nodecore/dispatcher"
	"github.com/sage-x-project/nodecore/internal/logger"
	"github.com/sage-x-project/nodecore/trust"
)

// gossipRelay implements trust.Broadcaster on top of the protocol
// dispatcher: trust.Store has no notion of peers or wire formats, it
// only decides that an update must go out and to whom, exactly the
// separation dispatcher.Sender draws between "what to send" and "how to
// send it".
type gossipRelay struct {
	dispatch *dispatcher.Dispatcher
	log      logger.Logger
}

func newGossipRelay(d *dispatcher.Dispatcher) *gossipRelay {
	return &gossipRelay{dispatch: d, log: logger.GetDefaultLogger()}
}

// BroadcastTrustUpdate implements trust.Broadcaster.
func (g *gossipRelay) BroadcastTrustUpdate(u *trust.Update, eligiblePeers []string) error {
	body := trust.EncodeUpdate(u)

	var firstErr error
	for _, peer := range eligiblePeers {
		if err := g.dispatch.Notify(dispatcher.TypeGossip, peer, body); err != nil {
			g.log.Warn("gossip relay: notify failed", logger.String("peer", peer), logger.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("nodecored: relay trust update to %s: %w", peer, err)
			}
		}
	}
	return firstErr
}

// registerGossipHandler wires the inbound half: a received "gossip"
// envelope is decoded back into a trust.Update and handed to
// trustStore.Ingest, which re-broadcasts it itself (via the same
// gossipRelay, set as the store's Broadcaster) if it survives
// validation.
func registerGossipHandler(d *dispatcher.Dispatcher, trustStore *trust.Store) {
	d.RegisterHandler(dispatcher.TypeGossip, func(from string, body []byte) error {
		u, err := trust.DecodeUpdate(body)
		if err != nil {
			return fmt.Errorf("nodecored: decode gossiped trust update from %s: %w", from, err)
		}
		if err := trustStore.Ingest(u); err != nil {
			// Replays, out-of-order, and unknown-issuer updates are
			// routine gossip noise, not dispatcher-level failures.
			return nil
		}
		return nil
	})
}
