// Package api is the node's read-only HTTP surface. World state is served
// from the document store, histories from the relational index, and /ws
// streams journal events as they execute. Everything is GET; the only write
// path into the chain is the source-chain ingester.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/echelon-net/echelond/internal/core/account"
	"github.com/echelon-net/echelond/internal/eventbus"
	"github.com/echelon-net/echelond/internal/state"
	"github.com/echelon-net/echelond/internal/storage/index"
)

// Config wires the server. Store, Ledger and Index are required; Bus is
// optional and enables /ws when set.
type Config struct {
	Store  *state.Store
	Ledger *account.Ledger
	Index  *index.Index
	Bus    *eventbus.Bus

	// Bind is the listen address, e.g. ":3000".
	Bind    string
	ChainID string
	Version string
	// Peers is the static peer list served by /peers.
	Peers []string
	// RateLimit caps requests per second per client ip; zero or negative
	// disables limiting.
	RateLimit float64
	RateBurst int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server owns the router and the listener.
type Server struct {
	cfg       Config
	hub       *wsHub
	hubCancel context.CancelFunc
	http      *http.Server
	limiter   *ipLimiter
	started   time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	s := &Server{cfg: cfg, started: time.Now()}
	if cfg.RateLimit > 0 {
		s.limiter = newIPLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst, 15*time.Minute)
	}
	if cfg.Bus != nil {
		s.hub = newWSHub(cfg.Bus)
		hubCtx, cancel := context.WithCancel(context.Background())
		s.hubCancel = cancel
		go s.hub.run(hubCtx)
	}

	r := mux.NewRouter()
	r.Use(commonMiddleware)
	r.Use(s.logMiddleware)
	r.Use(s.rateLimitMiddleware)
	s.registerRoutes(r)

	s.http = &http.Server{
		Addr:         cfg.Bind,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	if s.hubCancel != nil {
		defer s.hubCancel()
	}

	errc := make(chan error, 1)
	go func() { errc <- s.http.ListenAndServe() }()
	log.Printf("[api] listening on %s", s.cfg.Bind)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Handler exposes the routed handler; tests drive it through httptest.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[api] %s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
