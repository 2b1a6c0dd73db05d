package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/notify"
)

// Notifier delivers informational notifications. Failures never fail the
// operation that produced them.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

// EngineConfig holds dependencies for the progress engine.
type EngineConfig struct {
	Catalog  catalog.Repository
	Store    Store
	Notifier Notifier
	Locker   Locker
	Now      func() time.Time // defaults to time.Now
}

// Engine evaluates unlock rules and applies progress updates. It holds no
// per-learner state; everything is re-derived from the store on each call.
type Engine struct {
	catalog  catalog.Repository
	store    Store
	notifier Notifier
	locker   Locker
	now      func() time.Time
}

// NewEngine creates a new progress engine.
func NewEngine(cfg EngineConfig) *Engine {
	repo := cfg.Catalog
	if repo == nil {
		repo = catalog.NewMemoryRepository()
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	locker := cfg.Locker
	if locker == nil {
		locker = NewKeyedMutex()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		catalog:  repo,
		store:    store,
		notifier: notifier,
		locker:   locker,
		now:      now,
	}
}

// authorize is the gate every learner-facing operation passes before any
// unlock logic runs.
func authorize(l Learner) error {
	if l.Anonymous() {
		return ErrUnauthenticated
	}
	if !l.EmailVerified {
		return ErrEmailNotVerified
	}
	return nil
}

// dispatch sends notifications collected during a committed transaction.
func (e *Engine) dispatch(ctx context.Context, pending []notify.Notification) {
	for _, n := range pending {
		if err := e.notifier.Notify(ctx, n); err != nil {
			slog.Warn("notification delivery failed",
				"user_id", n.UserID,
				"kind", n.Kind,
				"error", err,
			)
		}
	}
}

// timestamp returns the engine clock truncated to microseconds, the
// precision Postgres stores.
func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}
