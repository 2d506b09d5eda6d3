package remote

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/h2h-ledger/internal/stats"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type FeedState string

const (
	FeedDisconnected FeedState = "disconnected"
	FeedConnecting   FeedState = "connecting"
	FeedConnected    FeedState = "connected"
	FeedReconnecting FeedState = "reconnecting"
	FeedFailed       FeedState = "failed"
)

// MessageTypePlayers carries a full players listing.
const MessageTypePlayers = "players"

// FeedMessage is one server push.
type FeedMessage struct {
	Type    string            `json:"type"`
	Players []stats.Aggregate `json:"players,omitempty"`
}

type MessageCallback func(msg *FeedMessage)

type StateCallback func(state FeedState)

type callbackEntry struct {
	id       int
	callback MessageCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// Feed subscribes to the store's player snapshots over WebSocket.
type Feed struct {
	wsURL  string
	logger *zap.Logger

	conn   *websocket.Conn
	connM  sync.Mutex
	state  FeedState
	stateM sync.RWMutex

	msgCbs   []callbackEntry
	stateCbs []stateCallbackEntry
	nextID   int
	cbM      sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	headers HeaderFunc
}

func NewFeed(wsURL string, maxReconnectAttempts int, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		wsURL:                wsURL,
		logger:               logger,
		state:                FeedDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
	}
}

// SetHeaders injects headers into the handshake.
func (f *Feed) SetHeaders(h HeaderFunc) {
	f.headers = h
}

func (f *Feed) State() FeedState {
	f.stateM.RLock()
	defer f.stateM.RUnlock()
	return f.state
}

// Connect dials once; on failure a background reconnect is scheduled and the error returned.
func (f *Feed) Connect(ctx context.Context) error {
	switch f.State() {
	case FeedConnected, FeedConnecting:
		return nil
	}
	f.setState(FeedConnecting)

	conn, err := f.dial(ctx)
	if err != nil {
		f.logger.Warn("feed_dial_failed", zap.String("url", f.wsURL), zap.Error(err))
		f.setState(FeedFailed)
		f.scheduleReconnect()
		return err
	}
	f.attach(conn)
	return nil
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, f.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      f.buildHeaders(),
	})
	return conn, err
}

func (f *Feed) attach(conn *websocket.Conn) {
	f.connM.Lock()
	f.conn = conn
	f.connM.Unlock()
	f.setState(FeedConnected)

	f.wg.Add(2)
	go f.listen(conn)
	go f.pingLoop(conn)
}

func (f *Feed) listen(conn *websocket.Conn) {
	defer f.wg.Done()
	for {
		var msg FeedMessage
		if err := wsjson.Read(f.rootCtx, conn, &msg); err != nil {
			if f.isStopping() {
				return
			}
			f.logger.Info("feed_read_closed", zap.Error(err))
			f.drop(conn, "reconnect")
			return
		}

		f.cbM.RLock()
		callbacks := make([]callbackEntry, len(f.msgCbs))
		copy(callbacks, f.msgCbs)
		f.cbM.RUnlock()
		for _, entry := range callbacks {
			if entry.callback != nil {
				entry.callback(&msg)
			}
		}
	}
}

func (f *Feed) pingLoop(conn *websocket.Conn) {
	defer f.wg.Done()
	t := time.NewTicker(f.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-f.stopCh:
			return
		case <-t.C:
			if !f.isCurrent(conn) {
				return
			}
			ctx, cancel := context.WithTimeout(f.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				if f.isStopping() {
					return
				}
				f.drop(conn, "ping failure")
				return
			}
		}
	}
}

// drop closes conn if it is still the active one and starts reconnecting.
func (f *Feed) drop(conn *websocket.Conn, reason string) {
	f.connM.Lock()
	if f.conn != conn {
		f.connM.Unlock()
		return
	}
	f.conn = nil
	f.connM.Unlock()
	_ = conn.Close(websocket.StatusGoingAway, reason)
	f.setState(FeedDisconnected)
	f.scheduleReconnect()
}

func (f *Feed) isCurrent(conn *websocket.Conn) bool {
	f.connM.Lock()
	defer f.connM.Unlock()
	return f.conn == conn
}

func (f *Feed) scheduleReconnect() {
	if f.maxReconnectAttempts <= 0 || f.isStopping() {
		return
	}
	f.setState(FeedReconnecting)

	go func() {
		for attempt := 1; attempt <= f.maxReconnectAttempts; attempt++ {
			select {
			case <-f.stopCh:
				return
			case <-time.After(retryDelay(attempt)):
			}

			conn, err := f.dial(f.rootCtx)
			if err != nil {
				f.logger.Debug("feed_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			if f.isStopping() {
				_ = conn.Close(websocket.StatusNormalClosure, "close")
				return
			}
			f.attach(conn)
			return
		}
		f.setState(FeedFailed)
	}()
}

func (f *Feed) OnMessage(cb MessageCallback) int {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	f.nextID++
	f.msgCbs = append(f.msgCbs, callbackEntry{id: f.nextID, callback: cb})
	return f.nextID
}

func (f *Feed) RemoveMessageCallback(id int) {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	for i, cb := range f.msgCbs {
		if cb.id == id {
			f.msgCbs = append(f.msgCbs[:i], f.msgCbs[i+1:]...)
			break
		}
	}
}

func (f *Feed) OnStateChange(cb StateCallback) int {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	f.nextID++
	f.stateCbs = append(f.stateCbs, stateCallbackEntry{id: f.nextID, callback: cb})
	return f.nextID
}

func (f *Feed) RemoveStateCallback(id int) {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	for i, cb := range f.stateCbs {
		if cb.id == id {
			f.stateCbs = append(f.stateCbs[:i], f.stateCbs[i+1:]...)
			break
		}
	}
}

func (f *Feed) setState(state FeedState) {
	f.stateM.Lock()
	changed := f.state != state
	f.state = state
	f.stateM.Unlock()
	if !changed {
		return
	}

	f.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(f.stateCbs))
	copy(callbacks, f.stateCbs)
	f.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

func (f *Feed) Close(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stopCh) })

	f.connM.Lock()
	conn := f.conn
	f.conn = nil
	f.connM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	f.rootCancel()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		f.setState(FeedDisconnected)
		return nil
	}
}

func (f *Feed) isStopping() bool {
	select {
	case <-f.stopCh:
		return true
	default:
		return false
	}
}

func (f *Feed) buildHeaders() http.Header {
	hdr := http.Header{}
	if f.headers == nil {
		return hdr
	}
	for k, v := range f.headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
