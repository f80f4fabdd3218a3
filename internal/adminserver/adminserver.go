// Package adminserver exposes a read-only HTTP status/admin API for a
// running DAG logger: a JWT-authenticated status endpoint reporting the
// version vector's size, tip count, and replication frontier, and a websocket
// push channel streaming immutability-frontier advances to connected
// operators. It mirrors the teacher's node/rpc auth conventions (HS256
// bearer tokens, CORS-wrapped handlers) without pulling in the full JSON-RPC
// machinery this deployment has no use for.
package adminserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/mnemosyne/mnemosyne/daglogger"
	mnevent "github.com/mnemosyne/mnemosyne/event"
	"github.com/mnemosyne/mnemosyne/internal/metrics"
)

// maxClaimSkew bounds how far a bearer token's iat claim may drift from
// wall-clock time, the same window the teacher's auth tests exercise.
const maxClaimSkew = 5 * time.Second

// Status is the JSON body returned by GET /status.
type Status struct {
	Self                string           `json:"self"`
	VectorLen           int              `json:"vector_len"`
	TipCount            int              `json:"tip_count"`
	KnownSelfSeq        uint64           `json:"known_self_seq"`
	ReplicationFrontier uint64           `json:"replication_frontier"`
	SeenEventCount      int              `json:"seen_event_count"`
	Ready               bool             `json:"ready"`
	Metrics             metrics.Snapshot `json:"metrics"`
}

// Server serves the admin status API and the frontier-update websocket.
type Server struct {
	self   string
	logger *daglogger.Logger
	iface  *mnevent.Interface
	secret [32]byte

	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	sub interface{ Unsubscribe() }
}

// New constructs an admin server over an already-started logger and event
// interface, authenticating bearer requests against secret.
func New(self string, logger *daglogger.Logger, iface *mnevent.Interface, secret [32]byte) *Server {
	return &Server{
		self:     self,
		logger:   logger,
		iface:    iface,
		secret:   secret,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// ListenAndServe starts the HTTP server on addr and the frontier-update
// fan-out goroutine. It blocks until the server is closed.
func (s *Server) ListenAndServe(addr string) error {
	updates := make(chan mnevent.FrontierUpdate, 16)
	s.sub = s.iface.SubscribeFrontierUpdate(updates)
	go s.pump(updates)

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.withAuth(s.handleStatus))
	mux.HandleFunc("/ws", s.withAuth(s.handleWebsocket))

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(mux)

	s.httpServer = &http.Server{Addr: addr, Handler: handler}
	log.Info("adminserver: listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close shuts down the HTTP server and the frontier subscription.
func (s *Server) Close(ctx context.Context) error {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	s.mu.Lock()
	for c := range s.clients {
		c.Close()
	}
	s.mu.Unlock()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// pump fans every frontier update out to every connected websocket client.
func (s *Server) pump(updates <-chan mnevent.FrontierUpdate) {
	for u := range updates {
		payload, err := json.Marshal(u)
		if err != nil {
			continue
		}
		s.mu.Lock()
		for c := range s.clients {
			if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				delete(s.clients, c)
			}
		}
		s.mu.Unlock()
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{
		Self:           s.self,
		VectorLen:      s.logger.Vector().Len(),
		TipCount:       s.logger.TipCount(),
		KnownSelfSeq:   s.logger.KnownSelfSeq(),
		SeenEventCount: s.iface.SeenCount(),
		Ready:          s.iface.Ready(),
		Metrics:        metrics.Snap(),
	}
	if repl := s.logger.ReplicationCounter(); repl != nil {
		st.ReplicationFrontier = repl.MaxReferenceSeqNo()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		log.Error("adminserver: failed to encode status", "err", err)
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("adminserver: websocket upgrade failed", "err", err)
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
}

// withAuth wraps next with bearer-token verification: an HS256 token
// signed with s.secret, whose iat claim falls within maxClaimSkew of now.
// Any other signing method, most notably "none", is rejected outright.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.checkAuth(r); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) checkAuth(r *http.Request) error {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return errors.New("adminserver: missing bearer token")
	}
	raw := header[len(prefix):]

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("adminserver: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret[:], nil
	})
	if err != nil {
		return fmt.Errorf("adminserver: invalid token: %w", err)
	}

	iat, ok := claims["iat"]
	if !ok {
		return errors.New("adminserver: token missing iat claim")
	}
	issuedAt, ok := iat.(float64)
	if !ok {
		return errors.New("adminserver: malformed iat claim")
	}
	skew := time.Since(time.Unix(int64(issuedAt), 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxClaimSkew {
		return errors.New("adminserver: token outside allowed clock skew")
	}
	return nil
}
