package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/vigil-proxy/vigil/api"
	"github.com/vigil-proxy/vigil/internal/classifier"
)

type healthResponse struct {
	Status       string `json:"status"`
	CounterStore string `json:"counter_store"`
	AuditStore   string `json:"audit_store"`
	Classifier   string `json:"classifier"`
}

// handleHealth reports pipeline readiness. An unreachable collaborator
// degrades the report without taking the proxy route down, consistent
// with the fail-open policy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.storeTimeout)
	defer cancel()

	resp := healthResponse{
		Status:       "ok",
		CounterStore: "connected",
		AuditStore:   "connected",
		Classifier:   "ready",
	}

	if err := s.counters.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.CounterStore = err.Error()
	}
	if err := s.auditStore.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.AuditStore = err.Error()
	}
	if s.handle.Degraded() {
		resp.Status = "degraded"
		resp.Classifier = "degraded"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type statsResponse struct {
	Audit *api.AuditStats      `json:"audit"`
	Model *classifier.Metadata `json:"model,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.auditStore.Stats(r.Context())
	if err != nil {
		s.logger.Error("reading audit stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read stats"})
		return
	}

	resp := statsResponse{Audit: stats}
	if meta, ok := s.handle.Metadata(); ok {
		resp.Model = &meta
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFeedback accepts operator corrections. Success means the
// record is stored; whether it matches an audit entry is resolved at
// extraction time, not here.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req api.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid feedback body"})
		return
	}
	if req.CorrelationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "correlation_id is required"})
		return
	}
	if req.Label != api.LabelSafe && req.Label != api.LabelMalicious {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "label must be safe or malicious"})
		return
	}

	rec := &api.FeedbackRecord{
		CorrelationID: req.CorrelationID,
		Label:         req.Label,
		Comment:       req.Comment,
		SubmittedAt:   time.Now(),
	}
	if err := s.correlator.Ingest(r.Context(), rec); err != nil {
		s.logger.Error("storing feedback", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store feedback"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "stored",
		"correlation_id": req.CorrelationID,
	})
}

// handleAuditQuery serves range reads for forensics and export,
// resumable via since_id.
func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := api.QueryFilter{
		SinceID:       q.Get("since_id"),
		CorrelationID: q.Get("correlation_id"),
		ClientKey:     q.Get("client_key"),
		Verdict:       api.Verdict(q.Get("verdict")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	entries, err := s.auditStore.Range(r.Context(), filter)
	if err != nil {
		s.logger.Error("reading audit log", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read audit log"})
		return
	}
	if entries == nil {
		entries = []*api.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type reloadRequest struct {
	Path string `json:"path"`
}

// handleModelReload hot-swaps the classifier artifact. In-flight
// requests keep scoring against the previous model until the swap
// lands.
func (s *Server) handleModelReload(w http.ResponseWriter, r *http.Request) {
	if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid or missing API key"})
		return
	}

	var req reloadRequest
	if r.Body != nil {
		// An empty body means reload from the current artifact path.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	path := req.Path
	if path == "" {
		path = s.handle.Path()
	}
	if path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no artifact path configured"})
		return
	}

	if err := s.handle.Load(path); err != nil {
		s.logger.Error("model reload failed", "path", path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	meta, _ := s.handle.Metadata()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "loaded",
		"model":  meta,
	})
}
