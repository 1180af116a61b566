package proxy

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigil-proxy/vigil/api"
)

func TestHandleAuditTail(t *testing.T) {
	g := newTestGateway(t, gatewayConfig{})

	srv := httptest.NewServer(g.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/audit/tail"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing tail endpoint: %v", err)
	}
	defer conn.Close()

	// The server registers its subscription after the upgrade
	// handshake completes, so keep appending until the stream
	// delivers.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(25 * time.Millisecond)
		defer tick.Stop()
		for {
			entry := &api.AuditEntry{
				CorrelationID: "live-1",
				Timestamp:     time.Now(),
				ClientKey:     "1.2.3.4",
				Method:        "GET",
				Path:          "/api/users",
				Verdict:       api.VerdictAllowed,
			}
			g.audit.Append(context.Background(), entry)
			select {
			case <-stop:
				return
			case <-tick.C:
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got api.AuditEntry
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("reading tailed entry: %v", err)
	}
	if got.CorrelationID != "live-1" || got.Verdict != api.VerdictAllowed {
		t.Errorf("unexpected tailed entry: %+v", got)
	}
}
