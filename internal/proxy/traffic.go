package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vigil-proxy/vigil/api"
	"github.com/vigil-proxy/vigil/internal/blockpage"
	"github.com/vigil-proxy/vigil/internal/pipeline"
)

// handleTraffic is the wildcard route: every inspected request passes
// through the gate chain before being forwarded or blocked.
func (s *Server) handleTraffic(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	correlationID := uuid.NewString()
	w.Header().Set(HeaderRequestID, correlationID)

	if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
		s.setProcessTime(w, start)
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":          "invalid or missing API key",
			"correlation_id": correlationID,
		})
		return
	}

	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		s.logger.Error("reading request body", "error", err)
		s.setProcessTime(w, start)
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":          "failed to read request body",
			"correlation_id": correlationID,
		})
		return
	}

	rc := pipeline.NewRequestContext(
		correlationID,
		s.clientKey(r),
		r.Method,
		r.URL.Path,
		headerSnapshot(r.Header),
		payloadPreview(body, s.bodyCap),
	)

	if err := s.chain.Process(r.Context(), rc); err != nil {
		s.logger.Error("gate chain error", "correlation_id", correlationID, "error", err)
		s.setProcessTime(w, start)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":          "internal gate error",
			"correlation_id": correlationID,
		})
		return
	}

	// Decision latency only; upstream time is the backend's business.
	s.setProcessTime(w, start)

	switch rc.Verdict {
	case api.VerdictBlockedRate:
		w.Header().Set("Retry-After", strconv.Itoa(int(s.retryAfter.Seconds())))
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":          "too many requests",
			"correlation_id": correlationID,
		})

	case api.VerdictBlockedAnomaly:
		s.logger.Warn("request blocked",
			"correlation_id", correlationID,
			"client", rc.ClientKey,
			"path", rc.Path,
			"risk_score", rc.RiskScore,
		)
		s.writeBlockPage(w, rc)

	default:
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		s.reverseProxy.ServeHTTP(w, r)
	}
}

func (s *Server) writeBlockPage(w http.ResponseWriter, rc *pipeline.RequestContext) {
	view := blockpage.View{ClientKey: rc.ClientKey, CorrelationID: rc.CorrelationID}

	var buf bytes.Buffer
	if err := blockpage.Render(&buf, view); err != nil {
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":          "request blocked",
			"correlation_id": rc.CorrelationID,
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	w.Write(buf.Bytes())
}

// upstreamError surfaces backend failures as an explicit gateway
// error, never as a block: an unreachable backend is an infra
// failure, not a security decision.
func (s *Server) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("upstream error", "url", r.URL.String(), "error", err)
	writeJSON(w, http.StatusBadGateway, map[string]string{
		"error": "upstream unreachable",
	})
}

func (s *Server) setProcessTime(w http.ResponseWriter, start time.Time) {
	w.Header().Set(HeaderProcessTime, time.Since(start).String())
}

// clientKey extracts the rate-limit key for a request. Trusting
// X-Forwarded-For is a deployment decision; it is off unless
// explicitly configured.
func (s *Server) clientKey(r *http.Request) string {
	if s.trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
				return first
			}
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// payloadPreview renders the request body for feature extraction and
// the audit trail: capped at n bytes, with non-text payloads replaced
// by a placeholder.
func payloadPreview(body []byte, n int) string {
	if len(body) == 0 {
		return ""
	}
	if !utf8.Valid(body) {
		return "[binary data]"
	}
	if len(body) > n {
		body = body[:n]
		// Do not cut a rune in half at the cap.
		for len(body) > 0 && !utf8.Valid(body) {
			body = body[:len(body)-1]
		}
	}
	return string(body)
}

func headerSnapshot(h http.Header) map[string]string {
	snap := make(map[string]string, len(h))
	for k := range h {
		snap[k] = h.Get(k)
	}
	return snap
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
