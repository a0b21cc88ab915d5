package router

import (
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/sage-x-project/nodecore/channel"
	nodecrypto "github.com/sage-x-project/nodecore/crypto"
	"github.com/sage-x-project/nodecore/envelope"
	"github.com/sage-x-project/nodecore/internal/metrics"
	"github.com/sage-x-project/nodecore/trust"
)

// DefaultTTL is the hop budget for an ordinary routed message.
const DefaultTTL = 16

// DiscoveryTTL is the (small) hop budget for FIND_ROUTE floods, per
// spec.md's "own TTL, e.g. 4" note.
const DiscoveryTTL = 4

// FrameTransport hands router-encoded bytes to the next hop. The router
// has no opinion on the underlying byte stream (C7); it only needs a way
// to hand off a sealed frame to a known peer.
type FrameTransport interface {
	SendFrame(peerID string, frame []byte) error
}

// Router owns the routing table and implements the forwarding algorithm
// from spec.md §4.8 on top of a channel.Manager (C6) and trust.Lookup
// (C4).
type Router struct {
	mu     sync.RWMutex
	selfID string
	self   nodecrypto.KeyPair // Ed25519, used to sign hop attestations

	routes map[string]string // dst -> next hop peer id

	channels  *channel.Manager
	transport FrameTransport
	trust     trust.Lookup

	dedup *dedupWindow

	// onNoRoute is the optional FIND_ROUTE discovery hook; nil disables
	// discovery and NoRoute simply drops the message.
	onNoRoute func(dst string)
}

// New creates a Router bound to a node's own identity, its channel
// manager, a trust lookup, and the transport used to hand off frames.
func New(selfID string, self nodecrypto.KeyPair, channels *channel.Manager, lookup trust.Lookup, transport FrameTransport) *Router {
	return &Router{
		selfID:    selfID,
		self:      self,
		routes:    make(map[string]string),
		channels:  channels,
		transport: transport,
		trust:     lookup,
		dedup:     newDedupWindow(5 * time.Minute),
	}
}

// OnNoRoute registers the discovery hook invoked when Send or Receive
// can't find a next hop for a destination.
func (r *Router) OnNoRoute(fn func(dst string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onNoRoute = fn
}

// AddRoute installs or replaces the next hop for dst.
func (r *Router) AddRoute(dst, nextHop string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[dst] = nextHop
}

// RemoveRoute deletes the route to dst, if any.
func (r *Router) RemoveRoute(dst string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, dst)
}

// ListRoutes returns a snapshot of the routing table.
func (r *Router) ListRoutes() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.routes))
	for k, v := range r.routes {
		out[k] = v
	}
	return out
}

func (r *Router) nextHop(dst string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nh, ok := r.routes[dst]
	return nh, ok
}

// Send originates a message to dst: wraps payload (an already-signed
// envelope.Encode output) in a fresh RoutedMessage and forwards it to
// the routing table's next hop.
func (r *Router) Send(dst string, payload []byte) (DeliveryReceipt, error) {
	nextHop, ok := r.nextHop(dst)
	if !ok {
		r.triggerDiscovery(dst)
		return DeliveryReceipt{Reason: ErrNoRoute.Error()}, ErrNoRoute
	}

	msg := &RoutedMessage{
		Src:     r.selfID,
		Dst:     dst,
		TTL:     DefaultTTL,
		Payload: payload,
	}

	if err := r.forward(nextHop, msg); err != nil {
		return DeliveryReceipt{Reason: err.Error()}, err
	}

	return DeliveryReceipt{Delivered: true, NextHop: nextHop}, nil
}

// Receive decrypts an inbound frame from peerID (opening the channel to
// peerID on first contact, which channel.Manager allows only for a
// trusted peer), verifies the carried
// envelope's signature, and either returns the envelope for local
// dispatch (dst == self) or forwards it on per the algorithm in
// spec.md §4.8, returning (nil, nil) once forwarded.
func (r *Router) Receive(peerID string, frame []byte) (*envelope.Envelope, error) {
	start := time.Now()
	metrics.MessageSize.Observe(float64(len(frame)))
	defer func() {
		metrics.MessageProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	ch, err := r.channels.Open(peerID)
	if err != nil {
		metrics.MessagesProcessed.WithLabelValues("binary", "failure").Inc()
		return nil, fmt.Errorf("router: open channel to %s: %w", peerID, err)
	}

	nonce, ciphertext, err := splitFrame(frame)
	if err != nil {
		metrics.MessagesProcessed.WithLabelValues("binary", "failure").Inc()
		return nil, err
	}

	plaintext, err := ch.Unseal(nonce, ciphertext, nil)
	if err != nil {
		metrics.MessagesProcessed.WithLabelValues("binary", "failure").Inc()
		return nil, fmt.Errorf("router: unseal from %s: %w", peerID, err)
	}

	msg, err := DecodeRoutedMessage(plaintext)
	if err != nil {
		metrics.MessagesProcessed.WithLabelValues("binary", "failure").Inc()
		return nil, err
	}

	env, err := envelope.Decode(msg.Payload)
	if err != nil {
		metrics.MessagesProcessed.WithLabelValues("binary", "failure").Inc()
		return nil, fmt.Errorf("router: decode envelope: %w", err)
	}

	srcPub, ok := r.trust.Ed25519PublicKey(msg.Src)
	if !ok {
		metrics.MessagesProcessed.WithLabelValues("binary", "failure").Inc()
		return nil, ErrUnknownHop
	}
	if err := envelope.Verify(env, srcPub); err != nil {
		metrics.MessagesProcessed.WithLabelValues("binary", "failure").Inc()
		return nil, err
	}

	if err := r.verifyHops(msg); err != nil {
		metrics.MessagesProcessed.WithLabelValues("binary", "failure").Inc()
		return nil, err
	}

	if r.dedup.seen(msg.Src, env.GetNonce()) {
		metrics.ReplayAttacksDetected.Inc()
		metrics.NonceValidations.WithLabelValues("invalid").Inc()
		metrics.RouterForwards.WithLabelValues("dropped_duplicate").Inc()
		return nil, ErrDuplicate
	}
	metrics.NonceValidations.WithLabelValues("valid").Inc()

	if msg.Dst == r.selfID {
		metrics.MessagesProcessed.WithLabelValues("binary", "success").Inc()
		metrics.RouterForwards.WithLabelValues("delivered").Inc()
		return env, nil
	}

	if msg.TTL == 0 {
		metrics.RouterForwards.WithLabelValues("dropped_ttl").Inc()
		return nil, ErrTTLExpired
	}
	for _, hop := range msg.Hops {
		if hop.PeerID == r.selfID {
			metrics.RouterForwards.WithLabelValues("dropped_loop").Inc()
			return nil, ErrLoop
		}
	}

	nextHop, ok := r.nextHop(msg.Dst)
	if !ok {
		r.triggerDiscovery(msg.Dst)
		metrics.RouterForwards.WithLabelValues("dropped_no_route").Inc()
		return nil, ErrNoRoute
	}

	digest := hopDigest(msg.Src, msg.Dst, msg.Payload, msg.Hops)
	sig, err := r.self.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("router: sign hop: %w", err)
	}
	msg.Hops = append(msg.Hops, Hop{PeerID: r.selfID, Signature: sig})
	msg.TTL--

	if err := r.forward(nextHop, msg); err != nil {
		metrics.RouterForwards.WithLabelValues("dropped_no_route").Inc()
		return nil, err
	}
	metrics.MessagesProcessed.WithLabelValues("binary", "success").Inc()
	metrics.RouterForwards.WithLabelValues("relayed").Inc()
	return nil, nil
}

// verifyHops checks every recorded hop's signature against the digest it
// would have signed and rejects repeated hop IDs, per the RoutedMessage
// validity invariant in spec.md §3.
func (r *Router) verifyHops(msg *RoutedMessage) error {
	seen := make(map[string]struct{}, len(msg.Hops))
	for i, hop := range msg.Hops {
		if _, dup := seen[hop.PeerID]; dup {
			return ErrLoop
		}
		seen[hop.PeerID] = struct{}{}

		pub, ok := r.trust.Ed25519PublicKey(hop.PeerID)
		if !ok {
			return ErrUnknownHop
		}
		digest := hopDigest(msg.Src, msg.Dst, msg.Payload, msg.Hops[:i])
		if !ed25519.Verify(pub, digest, hop.Signature) {
			return ErrBadHopSig
		}
	}
	return nil
}

func (r *Router) forward(nextHop string, msg *RoutedMessage) error {
	start := time.Now()

	ch, err := r.channels.Open(nextHop)
	if err != nil {
		metrics.GetGlobalCollector().RecordRouterForward(false, time.Since(start))
		return fmt.Errorf("router: open channel to %s: %w", nextHop, err)
	}

	frame := EncodeRoutedMessage(msg)
	nonce, ciphertext, err := ch.Seal(frame, nil)
	if err != nil {
		metrics.GetGlobalCollector().RecordRouterForward(false, time.Since(start))
		return fmt.Errorf("router: seal to %s: %w", nextHop, err)
	}

	wire := joinFrame(nonce, ciphertext)
	if err := r.transport.SendFrame(nextHop, wire); err != nil {
		metrics.GetGlobalCollector().RecordRouterForward(false, time.Since(start))
		return fmt.Errorf("router: send to %s: %w", nextHop, err)
	}

	metrics.RouterHopLatency.Observe(time.Since(start).Seconds())
	metrics.GetGlobalCollector().RecordRouterForward(true, time.Since(start))
	return nil
}

// Close stops the router's background dedup GC.
func (r *Router) Close() {
	r.dedup.close()
}

func (r *Router) triggerDiscovery(dst string) {
	r.mu.RLock()
	hook := r.onNoRoute
	r.mu.RUnlock()
	if hook != nil {
		hook(dst)
	}
}
