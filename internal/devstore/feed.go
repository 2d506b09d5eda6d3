package devstore

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/park285/h2h-ledger/internal/stats"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type feedMessage struct {
	Type    string            `json:"type"`
	Players []stats.Aggregate `json:"players"`
}

type hub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	logger *zap.Logger
}

func newHub(logger *zap.Logger) *hub {
	return &hub{conns: make(map[*websocket.Conn]struct{}), logger: logger}
}

func (h *hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *hub) broadcast(list []stats.Aggregate) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	msg := feedMessage{Type: "players", Players: list}
	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := wsjson.Write(ctx, c, msg)
		cancel()
		if err != nil {
			h.logger.Debug("devstore_feed_drop", zap.Error(err))
			h.remove(c)
		}
	}
}

// Connected reports the number of live feed subscribers.
func (s *Server) Connected() int {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return len(s.hub.conns)
}

func (s *Server) feed(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("devstore_feed_accept_failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	ctx := conn.CloseRead(c.Request.Context())

	// Holding mu keeps a concurrent mutation from broadcasting before the
	// initial snapshot is on the wire.
	s.mu.Lock()
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = wsjson.Write(wctx, conn, feedMessage{Type: "players", Players: s.listLocked()})
	cancel()
	if err == nil {
		s.hub.add(conn)
	}
	s.mu.Unlock()
	if err != nil {
		return
	}
	defer s.hub.remove(conn)
	<-ctx.Done()
}
