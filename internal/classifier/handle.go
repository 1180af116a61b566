package classifier

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Handle owns the currently loaded model. It is read-only for the
// request path and hot-swapped as a whole on reload, so in-flight
// requests never observe a half-loaded model. A handle with no model
// is degraded, not broken: the gate fails open against it.
type Handle struct {
	current atomic.Pointer[loadedModel]
	logger  *slog.Logger
}

type loadedModel struct {
	model Model
	path  string
}

// NewHandle creates an empty (degraded) handle.
func NewHandle(logger *slog.Logger) *Handle {
	return &Handle{logger: logger}
}

// Load reads the artifact at path and installs it atomically. On
// error the previously loaded model, if any, stays active.
func (h *Handle) Load(path string) error {
	model, err := LoadArtifact(path)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	h.current.Store(&loadedModel{model: model, path: path})
	meta := model.Metadata()
	h.logger.Info("model loaded",
		"path", path,
		"version", meta.Version,
		"algorithm", meta.Algorithm,
	)
	return nil
}

// Model returns the active model, or nil when degraded.
func (h *Handle) Model() Model {
	if lm := h.current.Load(); lm != nil {
		return lm.model
	}
	return nil
}

// Degraded reports whether no model is loaded.
func (h *Handle) Degraded() bool {
	return h.current.Load() == nil
}

// Metadata returns the active model's metadata, if any.
func (h *Handle) Metadata() (Metadata, bool) {
	if lm := h.current.Load(); lm != nil {
		return lm.model.Metadata(), true
	}
	return Metadata{}, false
}

// Path returns the artifact path the active model was loaded from.
func (h *Handle) Path() string {
	if lm := h.current.Load(); lm != nil {
		return lm.path
	}
	return ""
}
