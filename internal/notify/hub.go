package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	writeTimeout  = 5 * time.Second
	subscriberBuf = 16
)

// Hub pushes notifications to learners connected over websocket. It is a
// Channel, so register it on the Gateway next to the inbox.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	origins     []string
}

type subscriber struct {
	ch chan Notification
}

// NewHub creates a hub. originPatterns are passed to websocket.Accept; leave
// empty to only allow same-origin connections.
func NewHub(originPatterns ...string) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		origins:     originPatterns,
	}
}

// Deliver queues n for every live connection of n.UserID. Slow connections
// that have a full buffer miss the notification; the inbox still has it.
func (h *Hub) Deliver(_ context.Context, n Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers[n.UserID] {
		select {
		case sub.ch <- n:
		default:
			slog.Warn("websocket subscriber buffer full, dropping notification",
				"user_id", n.UserID,
				"kind", n.Kind,
			)
		}
	}
	return nil
}

// Subscribers returns the number of live connections for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}

// Serve upgrades the request and streams userID's notifications until the
// client goes away or ctx is done.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	sub := &subscriber{ch: make(chan Notification, subscriberBuf)}
	h.add(userID, sub)
	defer h.remove(userID, sub)

	slog.Info("websocket connected", "user_id", userID)

	// Incoming frames are not expected; CloseRead handles control frames and
	// cancels ctx when the peer closes.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			slog.Info("websocket disconnected", "user_id", userID)
			return nil
		case n := <-sub.ch:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, n)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (h *Hub) add(userID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[*subscriber]struct{})
	}
	h.subscribers[userID][sub] = struct{}{}
}

func (h *Hub) remove(userID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers[userID], sub)
	if len(h.subscribers[userID]) == 0 {
		delete(h.subscribers, userID)
	}
}
