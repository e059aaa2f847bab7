package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tracefood/internal/core"
)

const (
	feedBuffer      = 64
	feedWriteWait   = 5 * time.Second
	feedReadLimit   = 512
	feedPingPeriod  = 30 * time.Second
	feedPongTimeout = 2 * feedPingPeriod
)

// FeedEvent is pushed to feed subscribers after every committed mutation.
type FeedEvent struct {
	LotID               string             `json:"lot_id"`
	CurrentStage        string             `json:"current_stage"`
	ExpectedNextActorID *string            `json:"expected_next_actor_id"`
	PaymentStatus       core.PaymentStatus `json:"payment_status"`
}

// Feed is a websocket hub. It implements core.LotObserver; slow subscribers
// lose events rather than blocking the service.
type Feed struct {
	logger   core.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	closed  bool
}

type feedClient struct {
	conn *websocket.Conn
	send chan FeedEvent
	once sync.Once
}

func (c *feedClient) stop() {
	c.once.Do(func() { close(c.send) })
}

// NewFeed returns an empty hub. allowedOrigins restricts the websocket
// handshake; empty or "*" accepts any origin.
func NewFeed(logger core.Logger, allowedOrigins ...string) *Feed {
	if logger == nil {
		logger = nopLogger{}
	}
	f := &Feed{logger: logger, clients: make(map[*feedClient]struct{})}
	f.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return f
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// LotChanged fans the lot's summary out to every subscriber.
func (f *Feed) LotChanged(_ context.Context, lot core.FoodLot) {
	ev := FeedEvent{
		LotID:               lot.LotID,
		CurrentStage:        lot.CurrentStage,
		ExpectedNextActorID: lot.ExpectedNextActorID,
		PaymentStatus:       lot.PaymentStatus,
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- ev:
		default:
			f.logger.Debug("feed subscriber lagging; event dropped", "lot_id", lot.LotID)
		}
	}
}

// Clients reports the number of connected subscribers.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("feed upgrade failed", "error", err)
		return
	}
	c := &feedClient{conn: conn, send: make(chan FeedEvent, feedBuffer)}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = conn.Close()
		return
	}
	f.clients[c] = struct{}{}
	f.mu.Unlock()
	f.logger.Debug("feed subscriber connected", "remote", conn.RemoteAddr().String())

	go f.writeLoop(c)
	f.readLoop(c)
	f.remove(c)
}

// readLoop only services control frames; subscribers never send data.
func (f *Feed) readLoop(c *feedClient) {
	c.conn.SetReadLimit(feedReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writeLoop(c *feedClient) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				f.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.remove(c)
				return
			}
		}
	}
}

func (f *Feed) remove(c *feedClient) {
	f.mu.Lock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		f.logger.Debug("feed subscriber disconnected", "remote", c.conn.RemoteAddr().String())
	}
	f.mu.Unlock()
	c.stop()
}

// Close disconnects every subscriber and rejects new ones.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	clients := f.clients
	f.clients = make(map[*feedClient]struct{})
	f.mu.Unlock()
	for c := range clients {
		c.stop()
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
