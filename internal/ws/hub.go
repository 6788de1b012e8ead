// Package ws broadcasts competition events to observer clients. Observers are
// read-only; the hub never accepts inbound commands.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	EventCountdownTick    = "countdown_tick"
	EventSessionStatus    = "session_status"
	EventSessionPaused    = "session_paused"
	EventSessionResumed   = "session_resumed"
	EventRoundStart       = "round_start"
	EventProposalCreated  = "proposal_created"
	EventTradeExecuted    = "trade_executed"
	EventAgentStateUpdate = "agent_state_update"
)

// Envelope is the wire shape of every broadcast frame.
type Envelope struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to connected observers. A client whose send queue is
// full is dropped rather than allowed to stall the broadcast path.
type Hub struct {
	Logger *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	baseCtx context.Context
}

func NewHub(logger *zap.Logger, baseCtx context.Context) *Hub {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Hub{
		Logger:  logger,
		clients: make(map[*client]struct{}),
		baseCtx: baseCtx,
	}
}

func (h *Hub) Register(r gin.IRouter) {
	if h == nil || r == nil {
		return
	}
	r.GET("/ws", h.handle)
}

func (h *Hub) handle(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("ws accept failed", zap.Error(err))
		}
		return
	}

	cl := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	if h.Logger != nil {
		h.Logger.Info("observer connected", zap.Int("clients", total))
	}

	go h.writeLoop(cl)
	h.readLoop(cl)
}

// readLoop drains inbound frames so close frames and pings are processed.
// Observer payloads are ignored.
func (h *Hub) readLoop(cl *client) {
	ctx := h.baseCtx
	for {
		if _, _, err := cl.conn.Read(ctx); err != nil {
			h.drop(cl, websocket.StatusNormalClosure, "bye")
			return
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	for msg := range cl.send {
		writeCtx, cancel := context.WithTimeout(h.baseCtx, 5*time.Second)
		err := cl.conn.Write(writeCtx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			h.drop(cl, websocket.StatusInternalError, "write failed")
			return
		}
	}
	_ = cl.conn.Close(websocket.StatusNormalClosure, "shutdown")
}

func (h *Hub) drop(cl *client, status websocket.StatusCode, reason string) {
	h.mu.Lock()
	_, ok := h.clients[cl]
	if ok {
		delete(h.clients, cl)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	// Map removal above is single-shot, so closing send here releases the
	// client's writeLoop exactly once.
	close(cl.send)
	_ = cl.conn.Close(status, reason)
}

// Broadcast serializes the event once and queues it on every client. Clients
// with a full queue are disconnected.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(Envelope{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("ws marshal failed", zap.String("type", eventType), zap.Error(err))
		}
		return
	}

	h.mu.Lock()
	var slow []*client
	for cl := range h.clients {
		select {
		case cl.send <- payload:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.Unlock()

	for _, cl := range slow {
		if h.Logger != nil {
			h.Logger.Warn("observer dropped: send queue full")
		}
		h.drop(cl, websocket.StatusPolicyViolation, "client too slow")
	}
}

// Shutdown closes every observer connection.
func (h *Hub) Shutdown() {
	if h == nil {
		return
	}
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, cl := range clients {
		close(cl.send)
	}
}

// ClientCount reports the number of connected observers.
func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
