// Package proxy is the inbound HTTP surface of the gateway: a
// wildcard reverse-proxy route that drives the decision pipeline for
// every request, plus the small operational API (health, stats,
// feedback submission, audit reads, model reload).
//
// Gateway-owned endpoints live under /api/v1/ and shadow any upstream
// paths with the same prefix; everything else is inspected and, when
// allowed, forwarded verbatim.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigil-proxy/vigil/internal/audit"
	"github.com/vigil-proxy/vigil/internal/classifier"
	"github.com/vigil-proxy/vigil/internal/feedback"
	"github.com/vigil-proxy/vigil/internal/pipeline"
	"github.com/vigil-proxy/vigil/internal/ratelimit"
)

// Response headers carrying per-request observability data.
const (
	HeaderRequestID   = "X-Request-ID"
	HeaderProcessTime = "X-Process-Time"
)

// Options wires the server's collaborators. All shared clients are
// injected here; the server holds no ambient global state.
type Options struct {
	Target            string
	APIKey            string
	BodyCap           int
	TrustForwardedFor bool
	RetryAfter        time.Duration
	StoreTimeout      time.Duration

	Chain      *pipeline.Chain
	AuditStore audit.Store
	Correlator *feedback.Correlator
	Counters   ratelimit.CounterStore
	Handle     *classifier.Handle
	Logger     *slog.Logger
}

// Server is the gateway HTTP server.
type Server struct {
	target       *url.URL
	reverseProxy *httputil.ReverseProxy
	mux          *http.ServeMux
	upgrader     websocket.Upgrader

	chain      *pipeline.Chain
	auditStore audit.Store
	correlator *feedback.Correlator
	counters   ratelimit.CounterStore
	handle     *classifier.Handle
	logger     *slog.Logger

	apiKey       string
	bodyCap      int
	trustXFF     bool
	retryAfter   time.Duration
	storeTimeout time.Duration
}

// NewServer creates the gateway server in front of the given target.
func NewServer(opts Options) (*Server, error) {
	u, err := url.Parse(opts.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid target URL %q: scheme and host are required", opts.Target)
	}

	s := &Server{
		target:       u,
		mux:          http.NewServeMux(),
		chain:        opts.Chain,
		auditStore:   opts.AuditStore,
		correlator:   opts.Correlator,
		counters:     opts.Counters,
		handle:       opts.Handle,
		logger:       opts.Logger,
		apiKey:       opts.APIKey,
		bodyCap:      opts.BodyCap,
		trustXFF:     opts.TrustForwardedFor,
		retryAfter:   opts.RetryAfter,
		storeTimeout: opts.StoreTimeout,
		upgrader: websocket.Upgrader{
			// The tail endpoint serves operator tooling, not
			// browsers with credentials; origin checks add nothing.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	rp := httputil.NewSingleHostReverseProxy(u)
	rp.ErrorHandler = s.upstreamError
	s.reverseProxy = rp

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	s.mux.HandleFunc("POST /api/v1/feedback", s.handleFeedback)
	s.mux.HandleFunc("GET /api/v1/audit", s.handleAuditQuery)
	s.mux.HandleFunc("GET /api/v1/audit/tail", s.handleAuditTail)
	s.mux.HandleFunc("POST /api/v1/model/reload", s.handleModelReload)
	s.mux.HandleFunc("/", s.handleTraffic)
}

// Handler returns the HTTP handler for embedding in http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the gateway and blocks until ctx is done or
// the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	s.logger.Info("starting gateway",
		"listen", addr,
		"target", s.target.String(),
	)
	return srv.ListenAndServe()
}
