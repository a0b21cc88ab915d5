// Package tcp implements the C7 transport: a length-prefixed framing over
// plain TCP connections, used to hand router-sealed envelope bytes between
// nodes. It implements router.FrameTransport so a *Transport can be passed
// directly to router.New.
package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sage-x-project/nodecore/internal/logger"
)

const (
	// lengthPrefixSize is the width of the frame-length header, per
	// spec.md §4.7's length-prefixed wire format.
	lengthPrefixSize = 4

	// maxFrameSize bounds a single frame so a corrupt or hostile peer
	// can't make a read loop allocate unbounded memory.
	maxFrameSize = 16 * 1024 * 1024

	defaultDialTimeout  = 10 * time.Second
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

var (
	// ErrFrameTooLarge is returned when a peer's declared frame length
	// exceeds maxFrameSize.
	ErrFrameTooLarge = errors.New("tcp: frame exceeds maximum size")
	// ErrUnknownPeer is returned by SendFrame when no connection is
	// registered for the given peer id.
	ErrUnknownPeer = errors.New("tcp: no connection for peer")
)

// FrameHandler receives a decoded frame from a peer connection. The router's
// dispatcher (C9) is the expected consumer: it re-parses the frame as an
// envelope and looks up the handler for its type.
type FrameHandler func(peerID string, frame []byte)

// ConnEvent is published to an optional event sink whenever a peer
// connection is established or lost, mirroring the connect/disconnect
// notifications a consensus-style TCP peer loop surfaces to its owner.
type ConnEvent struct {
	PeerID    string
	Connected bool
	Err       error
}

// Transport is a peer-id-addressed TCP connection pool. Each peer gets at
// most one active connection; SendFrame writes are serialized per
// connection so a frame is never interleaved with another writer's bytes.
type Transport struct {
	mu    sync.RWMutex
	conns map[string]*peerConn

	handler FrameHandler
	events  chan ConnEvent

	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	listener net.Listener
	log      *logger.StructuredLogger

	closed bool
}

type peerConn struct {
	conn net.Conn
	mu   sync.Mutex // serializes writes
}

// Option configures a Transport at construction time.
type Option func(*Transport)

// WithHandler installs the callback invoked for every frame read off any
// peer connection.
func WithHandler(h FrameHandler) Option {
	return func(t *Transport) { t.handler = h }
}

// WithEvents installs a buffered channel that receives connect/disconnect
// notifications. The caller owns draining it; a full channel drops the
// event rather than blocking the read loop.
func WithEvents(ch chan ConnEvent) Option {
	return func(t *Transport) { t.events = ch }
}

// New creates a Transport with no active connections.
func New(opts ...Option) *Transport {
	t := &Transport{
		conns:        make(map[string]*peerConn),
		dialTimeout:  defaultDialTimeout,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		log:          logger.NewDefaultLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Listen starts accepting inbound peer connections on addr. The caller
// supplies the peer id for each inbound connection via the handshake layer
// (C6/C9) after accept; until then the connection is tracked under its
// remote address.
func (t *Transport) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp: listen %s: %w", addr, err)
	}
	t.listener = ln
	go t.acceptLoop(ln)
	return nil
}

// Addr returns the listener's bound address, or nil if Listen was never
// called.
func (t *Transport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *Transport) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if t.isClosed() {
				return
			}
			t.log.Warn("tcp: accept failed", logger.Error(err))
			continue
		}
		// Inbound peers are identified by remote address until the
		// protocol dispatcher (C9) completes its handshake and calls
		// Adopt to rename the connection to the peer's node id.
		peerID := conn.RemoteAddr().String()
		t.register(peerID, conn)
		go t.readLoop(peerID, conn)
	}
}

// Dial opens an outbound connection to addr and registers it under peerID.
func (t *Transport) Dial(peerID, addr string) error {
	conn, err := net.DialTimeout("tcp", addr, t.dialTimeout)
	if err != nil {
		return fmt.Errorf("tcp: dial %s: %w", addr, err)
	}
	t.register(peerID, conn)
	go t.readLoop(peerID, conn)
	return nil
}

// Adopt renames a connection tracked under oldID (typically a bare remote
// address from an inbound accept) to the peer id learned once the
// handshake completes.
func (t *Transport) Adopt(oldID, peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pc, ok := t.conns[oldID]; ok {
		delete(t.conns, oldID)
		t.conns[peerID] = pc
	}
}

func (t *Transport) register(peerID string, conn net.Conn) {
	t.mu.Lock()
	t.conns[peerID] = &peerConn{conn: conn}
	t.mu.Unlock()
	t.notify(ConnEvent{PeerID: peerID, Connected: true})
}

func (t *Transport) unregister(peerID string, err error) {
	t.mu.Lock()
	delete(t.conns, peerID)
	t.mu.Unlock()
	t.notify(ConnEvent{PeerID: peerID, Connected: false, Err: err})
}

func (t *Transport) notify(ev ConnEvent) {
	if t.events == nil {
		return
	}
	select {
	case t.events <- ev:
	default:
	}
}

func (t *Transport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// SendFrame implements router.FrameTransport: it length-prefixes frame and
// writes it to the connection registered for peerID.
func (t *Transport) SendFrame(peerID string, frame []byte) error {
	if len(frame) > maxFrameSize {
		return ErrFrameTooLarge
	}

	t.mu.RLock()
	pc, ok := t.conns[peerID]
	t.mu.RUnlock()
	if !ok {
		return ErrUnknownPeer
	}

	header := make([]byte, lengthPrefixSize)
	binary.BigEndian.PutUint32(header, uint32(len(frame)))

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	if _, err := pc.conn.Write(header); err != nil {
		return fmt.Errorf("tcp: write header to %s: %w", peerID, err)
	}
	if _, err := pc.conn.Write(frame); err != nil {
		return fmt.Errorf("tcp: write frame to %s: %w", peerID, err)
	}
	return nil
}

func (t *Transport) readLoop(peerID string, conn net.Conn) {
	defer func() {
		_ = conn.Close()
		t.unregister(peerID, nil)
	}()

	header := make([]byte, lengthPrefixSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return
		}
		if _, err := io.ReadFull(conn, header); err != nil {
			if err != io.EOF {
				t.log.Warn("tcp: read header failed", logger.String("peer", peerID), logger.Error(err))
			}
			return
		}

		n := binary.BigEndian.Uint32(header)
		if n > maxFrameSize {
			t.log.Warn("tcp: oversized frame announced", logger.String("peer", peerID), logger.Int("size", int(n)))
			return
		}

		frame := make([]byte, n)
		if _, err := io.ReadFull(conn, frame); err != nil {
			t.log.Warn("tcp: read frame failed", logger.String("peer", peerID), logger.Error(err))
			return
		}

		if t.handler != nil {
			t.handler(peerID, frame)
		}
	}
}

// Disconnect closes and unregisters peerID's connection, if any.
func (t *Transport) Disconnect(peerID string) {
	t.mu.Lock()
	pc, ok := t.conns[peerID]
	delete(t.conns, peerID)
	t.mu.Unlock()
	if ok {
		_ = pc.conn.Close()
	}
	t.notify(ConnEvent{PeerID: peerID, Connected: false})
}

// Peers returns the ids of currently connected peers.
func (t *Transport) Peers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.conns))
	for id := range t.conns {
		out = append(out, id)
	}
	return out
}

// Close stops accepting new connections and closes every tracked peer
// connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	conns := t.conns
	t.conns = make(map[string]*peerConn)
	t.mu.Unlock()

	for _, pc := range conns {
		_ = pc.conn.Close()
	}
	if t.listener != nil {
		return t.listener.Close()
	}
	return nil
}
