package proxy

import "net/http"

// handleAuditTail streams new audit entries over a websocket, one
// JSON object per message. Readers tolerate concurrent appends by
// construction: entries are handed over only after the store write
// completes.
func (s *Server) handleAuditTail(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	entries, cancel := s.auditStore.Subscribe(r.Context())
	defer cancel()

	// Drain control frames so we notice the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
