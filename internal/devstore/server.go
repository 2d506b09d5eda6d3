// Package devstore is an in-memory implementation of the remote store contract
// used for local development and end-to-end tests.
package devstore

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/park285/h2h-ledger/internal/delta"
	"github.com/park285/h2h-ledger/internal/match"
	"github.com/park285/h2h-ledger/internal/stats"
	"go.uber.org/zap"
)

type Server struct {
	mu      sync.Mutex
	p1, p2  string
	players map[string]stats.Aggregate
	order   []string

	hub    *hub
	logger *zap.Logger
	engine *gin.Engine
}

func New(p1, p2 string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		p1:      strings.TrimSpace(p1),
		p2:      strings.TrimSpace(p2),
		players: make(map[string]stats.Aggregate),
		hub:     newHub(logger),
		logger:  logger,
	}
	s.put(stats.Zero(s.p1))
	s.put(stats.Zero(s.p2))
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler serving /api.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(recovery(), requestLogger(s.logger), CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/players", s.listPlayers)
		api.GET("/players/:name", s.getPlayer)
		api.PUT("/players/:name", s.putPlayer)
		api.POST("/matches", s.addMatch)
		api.POST("/matches/reverse", s.reverseMatch)
		api.GET("/feed", s.feed)
	}
	return r
}

// Snapshot returns both participants as currently stored.
func (s *Server) Snapshot() stats.Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairLocked()
}

func (s *Server) pairLocked() stats.Pair {
	return stats.Pair{P1: s.players[s.p1], P2: s.players[s.p2]}
}

func (s *Server) listLocked() []stats.Aggregate {
	out := make([]stats.Aggregate, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.players[name])
	}
	return out
}

func (s *Server) put(a stats.Aggregate) {
	if _, ok := s.players[a.Name]; !ok {
		s.order = append(s.order, a.Name)
	}
	if a.ID == "" {
		a.ID = "player-" + strings.ToLower(a.Name)
	}
	s.players[a.Name] = a
}

func (s *Server) listPlayers(c *gin.Context) {
	s.mu.Lock()
	list := s.listLocked()
	s.mu.Unlock()
	c.JSON(http.StatusOK, list)
}

func (s *Server) getPlayer(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	s.mu.Lock()
	a, ok := s.players[name]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) putPlayer(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	var in stats.Aggregate
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.Name = name
	if err := in.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	if prev, ok := s.players[name]; ok {
		in.ID = prev.ID
	}
	s.put(in)
	out := s.players[name]
	list := s.listLocked()
	s.mu.Unlock()

	s.hub.broadcast(list)
	c.JSON(http.StatusOK, out)
}

func (s *Server) addMatch(c *gin.Context) {
	s.applyMatch(c, "match_applied", delta.ApplyEntry)
}

func (s *Server) reverseMatch(c *gin.Context) {
	s.applyMatch(c, "match_reversed", delta.ReverseEntry)
}

func (s *Server) applyMatch(c *gin.Context, event string, fn func(stats.Pair, match.Entry) (stats.Pair, []*delta.IntegrityError)) {
	var e match.Entry
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !e.Result.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "result must be win, draw or loss"})
		return
	}

	s.mu.Lock()
	next, clamped := fn(s.pairLocked(), match.Sanitize(e))
	s.players[s.p1] = next.P1
	s.players[s.p2] = next.P2
	list := s.listLocked()
	s.mu.Unlock()

	for _, ie := range clamped {
		s.logger.Warn("devstore_clamped", zap.String("event", event), zap.Error(ie))
	}
	s.logger.Info(event, zap.String("entry_id", e.ID), zap.String("result", string(e.Result)))
	s.hub.broadcast(list)
	c.JSON(http.StatusOK, next)
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred"})
		c.Abort()
	})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("devstore_request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("request_id", c.GetHeader("X-Request-Id")),
			zap.Duration("took", time.Since(start)),
		)
	}
}
