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

package control

import (
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/sage-x-project/nodecore/internal/logger"
	"github.com/sage-x-project/nodecore/internal/metrics"
	"github.com/sage-x-project/nodecore/router"
	"github.com/sage-x-project/nodecore/storage"
	"github.com/sage-x-project/nodecore/supervisor"
	"github.com/sage-x-project/nodecore/transport/websocket"
	"github.com/sage-x-project/nodecore/trust"
)

// Identity is the read-only subset of the node's key material the
// control API is allowed to echo back: public halves only, per spec.md
// §4.11's "secret-bearing fields ... elided".
type Identity struct {
	NodeID        string
	Ed25519Public []byte
	X25519Public  []byte
	// Rotations is the key-rotation audit trail, exposed read-only.
	Rotations []RotationRecord
}

// RotationRecord is the JSON wire form of nodecrypto.KeyRotationEvent.
type RotationRecord struct {
	Timestamp time.Time `json:"timestamp"`
	OldKeyID  string    `json:"oldKeyId"`
	NewKeyID  string    `json:"newKeyId"`
	Reason    string    `json:"reason"`
}

// Deps bundles every already-constructed component the control API
// reads from or mutates. None of these are owned by Server; it never
// starts or stops them.
type Deps struct {
	Supervisor *supervisor.Supervisor
	Trust      *trust.Store
	Router     *router.Router
	KV         *storage.KVStore
	Identity   Identity
	StartedAt  time.Time
	APIKeys    []string
}

// Server is the loopback HTTP surface: spec.md §6's /api/* endpoints
// plus the /api/events WebSocket tail and the ambient /metrics
// enrichment endpoint. Grounded on pkg/agent/transport/http's
// MessageHandler/HTTPServer adapter shape, generalized from one
// /messages POST endpoint to the full surface, with JSON
// success/error helpers kept in the same spirit.
type Server struct {
	cfg    Config
	auth   *Authenticator
	deps   Deps
	log    logger.Logger
	events *websocket.Broadcaster
}

// NewServer builds the HTTP handler. Call Handler to get the
// http.Handler to pass to http.Serve / httptest, wrapped in the
// configured CORS policy.
func NewServer(cfg Config, auth *Authenticator, deps Deps) *Server {
	s := &Server{
		cfg:    cfg.WithDefaults(),
		auth:   auth,
		deps:   deps,
		log:    logger.GetDefaultLogger(),
		events: websocket.NewBroadcaster(),
	}
	if deps.Supervisor != nil {
		deps.Supervisor.Events().Subscribe(func(ev supervisor.Event) {
			wire := map[string]interface{}{
				"kind":      ev.Kind,
				"service":   ev.Service,
				"timestamp": ev.Timestamp,
			}
			if ev.Err != nil {
				wire["error"] = ev.Err.Error()
			}
			s.events.Broadcast(wire)
		})
	}
	return s
}

// Handler returns the complete, CORS-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetricsRedirectNote)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/auth/refresh", s.handleRefresh)
	mux.Handle("/api/state", s.authed(http.HandlerFunc(s.handleState)))
	mux.Handle("/api/status", s.authed(http.HandlerFunc(s.handleStatus)))
	mux.Handle("/api/identity", s.authed(http.HandlerFunc(s.handleIdentity)))
	mux.Handle("/api/services", s.authed(http.HandlerFunc(s.handleServices)))
	mux.Handle("/api/trust", s.authed(http.HandlerFunc(s.handleTrust)))
	mux.Handle("/api/routing", s.authed(http.HandlerFunc(s.handleRouting)))
	mux.Handle("/api/storage/kv", s.authed(http.HandlerFunc(s.handleStorageKV)))
	mux.Handle("/api/events", s.authed(http.HandlerFunc(s.handleEvents)))

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(s.limitBody(mux))
}

// limitBody caps every request body at 64 KiB per spec.md §6, a far
// lower ceiling than storage/file.go's DefaultMaxObjectSize (16 MiB)
// for at-rest objects.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// authed enforces Authorization: Bearer <token> or Authorization: ApiKey
// <key> on mutating and read endpoints alike, per spec.md §6.
func (s *Server) authed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.checkAuth(r) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, ErrUnauthorized)
	})
}

func (s *Server) checkAuth(r *http.Request) bool {
	if s.cfg.RequireRequestSignatures {
		return verifyRequestSignature(r, ed25519.PublicKey(s.deps.Identity.Ed25519Public)) == nil
	}

	header := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(header, "Bearer "):
		token := strings.TrimPrefix(header, "Bearer ")
		return s.auth.VerifyAccess(token) == nil
	case strings.HasPrefix(header, "ApiKey "):
		key := strings.TrimPrefix(header, "ApiKey ")
		for _, want := range s.deps.APIKeys {
			if subtle.ConstantTimeCompare([]byte(key), []byte(want)) == 1 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// --- JSON helpers -----------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// --- handlers -----------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"core_name": s.deps.Identity.NodeID,
	})
}

// handleMetricsRedirectNote documents that Prometheus metrics are served
// on a separate port (spec.md §4.0's metrics port), not multiplexed onto
// the control API's loopback port; this handler exists only so a client
// hitting /metrics here gets a useful pointer instead of a bare 404.
func (s *Server) handleMetricsRedirectNote(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "metrics are served on the dedicated metrics port, not the control API",
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int    `json:"expiresIn"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	access, refresh, expiresIn, err := s.auth.Login(sourceOf(r), req.Password)
	switch err {
	case nil:
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: refresh, ExpiresIn: expiresIn})
	case ErrLockedOut:
		writeError(w, http.StatusTooManyRequests, err)
	default:
		writeError(w, http.StatusUnauthorized, err)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	access, expiresIn, err := s.auth.Refresh(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, ExpiresIn: expiresIn})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	trustPeers := s.deps.Trust.ListPeers()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"startedAt":   s.deps.StartedAt,
		"node_id":     s.deps.Identity.NodeID,
		"ecdh_public": base64.StdEncoding.EncodeToString(s.deps.Identity.X25519Public),
		"trust":       map[string]interface{}{"peerCount": len(trustPeers)},
		"services":    s.deps.Supervisor.Descriptors(),
	})
}

// handleStatus exposes the in-process metrics rollup kept alongside the
// Prometheus series, for callers that want one cheap snapshot read
// instead of scraping /metrics.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := metrics.GetGlobalCollector().GetSnapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds":          snap.Uptime.Seconds(),
		"envelope_sign_count":     snap.EnvelopeSignCount,
		"envelope_verify_count":   snap.EnvelopeVerifyCount,
		"verify_success_rate":     snap.GetVerifySuccessRate(),
		"trust_lookup_count":      snap.TrustLookupCount,
		"trust_cache_hit_rate":    snap.GetTrustCacheHitRate(),
		"router_forward_count":    snap.RouterForwardCount,
		"router_drop_rate":        snap.GetRouterDropRate(),
		"avg_sign_time_us":        snap.AvgSignTime,
		"avg_verify_time_us":      snap.AvgVerifyTime,
		"avg_router_hop_time_us":  snap.AvgRouterHopLatency,
		"p95_sign_time_us":        snap.P95SignTime,
		"p95_verify_time_us":      snap.P95VerifyTime,
		"p95_router_hop_time_us":  snap.P95RouterHopLatency,
	})
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"node_id":        s.deps.Identity.NodeID,
		"ed25519_public": base64.StdEncoding.EncodeToString(s.deps.Identity.Ed25519Public),
		"x25519_public":  base64.StdEncoding.EncodeToString(s.deps.Identity.X25519Public),
		"rotations":      s.deps.Identity.Rotations,
	})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Supervisor.Descriptors())
}

type trustRequest struct {
	ID              string `json:"id"`
	PubkeyBase64_32 string `json:"pubkey_base64_32"`
}

func (s *Server) handleTrust(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.deps.Trust.ListPeers())
	case http.MethodPost:
		var req trustRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := validatePeerID(req.ID); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		pub, err := decodePublicKey32(req.PubkeyBase64_32)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		// The wire shape carries a single 32-byte key; trust.AddPeer
		// takes both halves, and this endpoint passes that one key as
		// both the Ed25519 signing key and the X25519 key-agreement key.
		if _, err := s.deps.Trust.AddPeer(req.ID, pub, pub, trust.LevelLow); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if err := validatePeerID(id); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if _, err := s.deps.Trust.RemovePeer(id); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type routingRequest struct {
	PeerID string `json:"peerId"`
	Pubkey string `json:"pubkey"`
}

func (s *Server) handleRouting(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.deps.Router.ListRoutes())
	case http.MethodPost:
		var req routingRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := validatePeerID(req.PeerID); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if _, err := decodePublicKey32(req.Pubkey); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		// Installs a direct next hop: peerId is reachable without an
		// intermediate relay. Trust membership (both signing and
		// key-agreement halves) is established separately via
		// POST /api/trust; this endpoint only wires the route table.
		s.deps.Router.AddRoute(req.PeerID, req.PeerID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStorageKV(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		key := r.URL.Query().Get("key")
		if key == "" {
			writeError(w, http.StatusBadRequest, ErrInvalidPubKey)
			return
		}
		val, err := s.deps.KV.Get(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": base64.StdEncoding.EncodeToString(val)})
	case http.MethodPost:
		var req struct {
			Key   string `json:"key"`
			Value string `json:"value"` // base64
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		val, err := base64.StdEncoding.DecodeString(req.Value)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.deps.KV.Put(r.Context(), req.Key, val); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleEvents upgrades to a WebSocket and tails the supervisor's event
// bus via the shared transport/websocket.Broadcaster, the ambient
// enrichment endpoint SPEC_FULL.md §6 adds alongside spec.md's unchanged
// surface.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.events.Handler().ServeHTTP(w, r)
}

func sourceOf(r *http.Request) string {
	return r.RemoteAddr
}

func validatePeerID(id string) error {
	if id == "" || len(id) > maxPeerIDLen {
		return ErrPeerIDTooLong
	}
	return nil
}

func decodePublicKey32(b64 string) ([]byte, error) {
	pub, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(pub) != 32 {
		return nil, ErrInvalidPubKey
	}
	return pub, nil
}
