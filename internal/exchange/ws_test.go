package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// flappyServer accepts the websocket upgrade, reads the subscribe
// message, and drops the connection immediately.
func flappyServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.ReadMessage()
		conn.Close()
	}))
}

func TestFeed_BackoffResetsAfterSubscribe(t *testing.T) {
	srv := flappyServer(t)
	defer srv.Close()

	f := NewFeed("ws"+strings.TrimPrefix(srv.URL, "http"), "SOL")
	f.backoffBase = 2 * time.Millisecond
	f.backoffMax = 50 * time.Millisecond

	reconnects := make(chan struct{}, 1)
	f.OnReconnect = func() {
		select {
		case reconnects <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	// Every session subscribes before the server drops it, so even after
	// several disconnects the wait must stay at the base schedule.
	for i := 0; i < 4; i++ {
		select {
		case <-reconnects:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a reconnect attempt")
		}
	}
	cancel()
	<-done

	if f.backoff > 2*f.backoffBase {
		t.Fatalf("backoff grew to %v despite successful subscribes", f.backoff)
	}
}
