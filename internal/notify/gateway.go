// Package notify delivers learner notifications (module completed, certificate
// issued) to every registered channel: the persistent inbox and live websocket
// subscribers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what a notification is about.
type Kind string

const (
	KindModuleCompleted   Kind = "module_completed"
	KindCertificateIssued Kind = "certificate_issued"
)

// Notification is an informational message for one learner.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Kind      Kind           `json:"kind"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	ReadAt    *time.Time     `json:"readAt,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Channel is the interface each delivery target must implement.
type Channel interface {
	Deliver(ctx context.Context, n Notification) error
}

// Gateway fans notifications out to registered channels.
type Gateway struct {
	channels map[string]Channel
	names    []string
	mu       sync.RWMutex
}

// NewGateway creates a new notification gateway.
func NewGateway() *Gateway {
	return &Gateway{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the gateway. Channels are delivered to in
// registration order.
func (g *Gateway) Register(name string, ch Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.channels[name]; !ok {
		g.names = append(g.names, name)
	}
	g.channels[name] = ch
	slog.Info("notification channel registered", "channel", name)
}

// HasChannel returns true if the named channel is registered.
func (g *Gateway) HasChannel(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.channels[name]
	return ok
}

// Notify delivers n to every channel. A failing channel does not stop the
// others; all failures are returned joined.
func (g *Gateway) Notify(ctx context.Context, n Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("notification user_id is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	g.mu.RLock()
	names := append([]string(nil), g.names...)
	channels := make([]Channel, 0, len(names))
	for _, name := range names {
		channels = append(channels, g.channels[name])
	}
	g.mu.RUnlock()

	var errs []error
	for i, ch := range channels {
		if err := ch.Deliver(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("deliver via %s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }
