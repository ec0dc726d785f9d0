package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 4
)

// hub fans metrics documents out to websocket clients. Each client gets
// the report computed with its own profile's filters.
type hub struct {
	srv      *Server
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn    *websocket.Conn
	profile string
	send    chan []byte

	mu     sync.Mutex
	closed bool
	gen    uint64 // highest snapshot generation queued
}

// trySend queues msg, built from snapshot gen, without blocking. Reports
// built from an older snapshot than one already queued are skipped. It
// reports false when the buffer is full.
func (c *wsClient) trySend(msg []byte, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen < c.gen {
		return true
	}
	select {
	case c.send <- msg:
		c.gen = gen
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func newHub(s *Server, log *zap.Logger) *hub {
	return &hub{
		srv: s,
		log: log.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: map[*wsClient]struct{}{},
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{conn: conn, profile: profileOf(r), send: make(chan []byte, wsSendBuffer)}
	s.hub.register(c)
	go s.hub.writePump(c)

	s.hub.push(r.Context(), c.profile, []*wsClient{c})
	s.hub.readPump(c)
}

func (h *hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("client connected", zap.String("profile", c.profile), zap.Int("clients", n))
}

func (h *hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// readPump discards client messages and detects disconnects.
func (h *hub) readPump(c *wsClient) {
	defer h.unregister(c)

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("client read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump is the connection's only writer.
func (h *hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("client write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *hub) byProfile() map[string][]*wsClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := map[string][]*wsClient{}
	for c := range h.clients {
		out[c.profile] = append(out[c.profile], c)
	}
	return out
}

// broadcast pushes a fresh report to every connected client.
func (h *hub) broadcast() {
	for profile, clients := range h.byProfile() {
		h.push(context.Background(), profile, clients)
	}
}

// refreshProfile pushes to the clients of one profile after a preference
// change.
func (h *hub) refreshProfile(profile string) {
	if clients := h.byProfile()[profile]; len(clients) > 0 {
		h.push(context.Background(), profile, clients)
	}
}

func (h *hub) push(ctx context.Context, profile string, clients []*wsClient) {
	st := h.srv.loadDashboard(ctx, profile)
	msg, err := json.Marshal(st.report)
	if err != nil {
		h.log.Error("marshal report", zap.Error(err))
		return
	}
	for _, c := range clients {
		if !c.trySend(msg, st.generation) {
			h.log.Warn("dropping slow client", zap.String("profile", profile))
			h.unregister(c)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = map[*wsClient]struct{}{}
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}
