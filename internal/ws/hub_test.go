package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func newObserver(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewHub(zap.NewNop(), context.Background())
	engine := gin.New()
	h.Register(engine)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("observer never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return h, conn
}

func TestBroadcastReachesObserver(t *testing.T) {
	h, conn := newObserver(t)

	h.Broadcast(EventRoundStart, map[string]any{"round_number": 1})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != EventRoundStart {
		t.Fatalf("type = %q, want %s", env.Type, EventRoundStart)
	}
}

func TestDropClosesSendQueue(t *testing.T) {
	h, _ := newObserver(t)

	h.mu.Lock()
	var cl *client
	for c := range h.clients {
		cl = c
	}
	h.mu.Unlock()

	h.drop(cl, websocket.StatusNormalClosure, "bye")

	// A dropped client's send queue must be closed so its writeLoop exits.
	select {
	case _, ok := <-cl.send:
		if ok {
			t.Fatalf("expected closed send queue, got a queued frame")
		}
	case <-time.After(time.Second):
		t.Fatalf("send queue left open after drop")
	}
	if h.ClientCount() != 0 {
		t.Fatalf("client still registered after drop")
	}
}
