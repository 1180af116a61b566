package proxy

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vigil-proxy/vigil/api"
	"github.com/vigil-proxy/vigil/internal/audit"
	"github.com/vigil-proxy/vigil/internal/classifier"
	"github.com/vigil-proxy/vigil/internal/feedback"
	"github.com/vigil-proxy/vigil/internal/pipeline"
	"github.com/vigil-proxy/vigil/internal/ratelimit"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTestModel(t *testing.T) string {
	t.Helper()
	a := classifier.Artifact{
		Metadata:         classifier.Metadata{Version: "v1", Algorithm: "IsolationForest", TrainedAt: "2026-08-01T12:00:00Z", Author: "ml-pipeline"},
		TransformVersion: classifier.TransformVersion,
		Forest: classifier.Forest{
			SampleSize: 256,
			Trees: []classifier.Tree{
				{Nodes: []classifier.Node{
					{Feature: 2, Threshold: 0.5, Left: 1, Right: 2},
					{Left: -1, Right: -1, Size: 256},
					{Left: -1, Right: -1, Size: 1},
				}},
			},
		},
	}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

type testGateway struct {
	server *Server
	audit  *audit.MemoryStore
	handle *classifier.Handle
}

type gatewayConfig struct {
	target    string
	apiKey    string
	limit     int
	window    time.Duration
	loadModel bool
	trustXFF  bool
	counters  ratelimit.CounterStore
}

func newTestGateway(t *testing.T, cfg gatewayConfig) *testGateway {
	t.Helper()

	if cfg.limit == 0 {
		cfg.limit = 100
	}
	if cfg.window == 0 {
		cfg.window = time.Minute
	}
	if cfg.counters == nil {
		cfg.counters = ratelimit.NewMemoryCounter()
	}
	if cfg.target == "" {
		cfg.target = "http://127.0.0.1:9"
	}

	auditStore := audit.NewMemoryStore()
	handle := classifier.NewHandle(discard())
	if cfg.loadModel {
		if err := handle.Load(writeTestModel(t)); err != nil {
			t.Fatal(err)
		}
	}

	limiter := ratelimit.NewLimiter(cfg.counters, cfg.limit, cfg.window, time.Second, discard())
	chain := pipeline.NewChain(discard(),
		pipeline.NewAdmissionGate(limiter),
		pipeline.NewAnomalyGate(classifier.NewGate(handle, 2, discard())),
		pipeline.NewAuditGate(auditStore, 24*time.Hour, time.Second, discard()),
	)

	srv, err := NewServer(Options{
		Target:            cfg.target,
		APIKey:            cfg.apiKey,
		BodyCap:           1000,
		TrustForwardedFor: cfg.trustXFF,
		RetryAfter:        cfg.window,
		StoreTimeout:      time.Second,
		Chain:             chain,
		AuditStore:        auditStore,
		Correlator:        feedback.NewCorrelator(feedback.NewMemoryStore(), auditStore, discard()),
		Counters:          cfg.counters,
		Handle:            handle,
		Logger:            discard(),
	})
	if err != nil {
		t.Fatal(err)
	}

	return &testGateway{server: srv, audit: auditStore, handle: handle}
}

func (g *testGateway) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "http://gateway"+path, r)
	req.RemoteAddr = "1.2.3.4:51234"
	w := httptest.NewRecorder()
	g.server.Handler().ServeHTTP(w, req)
	return w
}

func TestTraffic_AllowedIsForwardedVerbatim(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/user/7" {
			t.Errorf("unexpected upstream path %s", r.URL.Path)
		}
		if r.URL.RawQuery != "full=1" {
			t.Errorf("query must be forwarded, got %q", r.URL.RawQuery)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"k":"v"}` {
			t.Errorf("body must be forwarded, got %q", body)
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("<ok/>"))
	}))
	defer upstream.Close()

	g := newTestGateway(t, gatewayConfig{target: upstream.URL})

	w := g.do("POST", "/api/user/7?full=1", `{"k":"v"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected upstream status 201, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/xml" {
		t.Errorf("content type must be relayed, got %q", got)
	}
	if w.Body.String() != "<ok/>" {
		t.Errorf("body must be relayed, got %q", w.Body.String())
	}
	if w.Header().Get(HeaderRequestID) == "" {
		t.Error("response must carry the request id header")
	}
	if w.Header().Get(HeaderProcessTime) == "" {
		t.Error("response must carry the process time header")
	}
}

func TestTraffic_EveryOutcomeIsAuditedWithMatchingID(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	g := newTestGateway(t, gatewayConfig{target: upstream.URL, limit: 2, loadModel: true})

	// allowed, blocked_anomaly, then the limit trips: blocked_rate.
	responses := []*httptest.ResponseRecorder{
		g.do("GET", "/api/users", ""),
		g.do("GET", "/admin'%20OR%201=1", ""),
		g.do("GET", "/api/users", ""),
	}

	entries, err := g.audit.Range(context.Background(), api.QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(entries))
	}

	wantVerdicts := []api.Verdict{api.VerdictAllowed, api.VerdictBlockedAnomaly, api.VerdictBlockedRate}
	for i, entry := range entries {
		if entry.Verdict != wantVerdicts[i] {
			t.Errorf("entry %d: expected %s, got %s", i, wantVerdicts[i], entry.Verdict)
		}
		if got := responses[i].Header().Get(HeaderRequestID); got != entry.CorrelationID {
			t.Errorf("entry %d: response header %s does not match audit correlation id %s",
				i, got, entry.CorrelationID)
		}
	}
}

func TestTraffic_RateLimitScenario(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	g := newTestGateway(t, gatewayConfig{target: upstream.URL, limit: 5, window: time.Minute})

	for i := 1; i <= 5; i++ {
		if w := g.do("GET", "/", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d should be forwarded, got %d", i, w.Code)
		}
	}

	w := g.do("GET", "/", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("6th request should be 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("rate block must carry Retry-After")
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["correlation_id"] != w.Header().Get(HeaderRequestID) {
		t.Error("block body must carry the correlation id")
	}
}

func TestTraffic_AnomalyBlockPage(t *testing.T) {
	g := newTestGateway(t, gatewayConfig{loadModel: true})

	w := g.do("GET", "/admin'%20OR%201=1", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected HTML block page, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), w.Header().Get(HeaderRequestID)) {
		t.Error("block page must contain the correlation id")
	}
	if !strings.Contains(w.Body.String(), "1.2.3.4") {
		t.Error("block page must contain the client key")
	}
}

func TestTraffic_DegradedClassifierFailsOpen(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	g := newTestGateway(t, gatewayConfig{target: upstream.URL}) // no model

	w := g.do("GET", "/admin'%20OR%201=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("degraded classifier must fail open, got %d", w.Code)
	}

	entries, _ := g.audit.Range(context.Background(), api.QueryFilter{})
	if len(entries) != 1 || entries[0].RiskScore != 0.0 {
		t.Errorf("fail-open decision must be audited with risk 0.0, got %v", entries)
	}
}

func TestTraffic_UpstreamFailureIs502NotBlock(t *testing.T) {
	// Nothing listens on the target.
	g := newTestGateway(t, gatewayConfig{target: "http://127.0.0.1:1"})

	w := g.do("GET", "/api/users", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}

	// Still audited as allowed: the verdict was rendered before the
	// forward failed.
	entries, _ := g.audit.Range(context.Background(), api.QueryFilter{})
	if len(entries) != 1 || entries[0].Verdict != api.VerdictAllowed {
		t.Errorf("upstream failure must not rewrite the verdict, got %v", entries)
	}
}

func TestTraffic_APIKeyGuard(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	g := newTestGateway(t, gatewayConfig{target: upstream.URL, apiKey: "secret"})

	if w := g.do("GET", "/api/users", ""); w.Code != http.StatusForbidden {
		t.Fatalf("missing key should be rejected, got %d", w.Code)
	}

	req := httptest.NewRequest("GET", "http://gateway/api/users", nil)
	req.RemoteAddr = "1.2.3.4:51234"
	req.Header.Set("X-API-Key", "secret")
	w := httptest.NewRecorder()
	g.server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid key should pass, got %d", w.Code)
	}
}

func TestTraffic_ForwardedForTrust(t *testing.T) {
	g := newTestGateway(t, gatewayConfig{limit: 1, trustXFF: true})

	req := httptest.NewRequest("GET", "http://gateway/", nil)
	req.RemoteAddr = "10.0.0.1:40000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	w := httptest.NewRecorder()
	g.server.Handler().ServeHTTP(w, req)

	entries, _ := g.audit.Range(context.Background(), api.QueryFilter{})
	if len(entries) != 1 || entries[0].ClientKey != "203.0.113.9" {
		t.Errorf("expected first forwarded hop as client key, got %v", entries)
	}
}

func TestPayloadPreview(t *testing.T) {
	if got := payloadPreview(nil, 10); got != "" {
		t.Errorf("empty body: got %q", got)
	}
	if got := payloadPreview([]byte{0xff, 0xfe}, 10); got != "[binary data]" {
		t.Errorf("binary body: got %q", got)
	}
	if got := payloadPreview([]byte("abcdef"), 3); got != "abc" {
		t.Errorf("truncation: got %q", got)
	}
	// Multi-byte rune straddling the cap is dropped, not split.
	if got := payloadPreview([]byte("aaé"), 3); got != "aa" {
		t.Errorf("rune boundary: got %q", got)
	}
}
