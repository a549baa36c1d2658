// Package notification fans workflow events out to user inboxes and external
// channels. Delivery is best-effort and never feeds back into the workflows.
package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
)

// Emitter accepts workflow events. Emit never blocks on delivery and cannot fail
// the transition that produced the event.
type Emitter interface {
	Emit(ctx context.Context, event models.Event)
}

// Sink delivers one event to its resolved recipients.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event models.Event, recipients []models.User) error
}

// Bus queues events on a buffered channel and delivers them from a single worker.
type Bus struct {
	events    chan models.Event
	directory Directory
	sinks     []Sink
	timeout   time.Duration
	logger    *zap.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

var _ Emitter = (*Bus)(nil)

// NewBus builds a bus; call Start before emitting and Stop on shutdown.
func NewBus(directory Directory, sinks []Sink, buffer int, timeout time.Duration, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bus{
		events:    make(chan models.Event, buffer),
		directory: directory,
		sinks:     sinks,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start launches the delivery worker.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for event := range b.events {
			b.deliver(event)
		}
	}()
	b.logger.Info("notification bus started", zap.Int("sinks", len(b.sinks)))
}

// Stop refuses new events and waits until queued ones are delivered.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.events)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("notification bus stopped")
}

// Emit enqueues event, dropping it with a warning when the queue is full.
func (b *Bus) Emit(_ context.Context, event models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("notification dropped, bus stopped", zap.String("type", string(event.Type)), zap.String("reference_id", event.ReferenceID))
		return
	}

	select {
	case b.events <- event:
	default:
		b.logger.Warn("notification dropped, queue full", zap.String("type", string(event.Type)), zap.String("reference_id", event.ReferenceID))
	}
}

func (b *Bus) deliver(event models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	recipients := b.resolve(ctx, event)
	for _, sink := range b.sinks {
		if err := sink.Deliver(ctx, event, recipients); err != nil {
			b.logger.Error("notification delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("type", string(event.Type)),
				zap.String("reference_id", event.ReferenceID),
				zap.Error(err))
		}
	}
}

func (b *Bus) resolve(ctx context.Context, event models.Event) []models.User {
	seen := make(map[string]struct{})
	var out []models.User
	add := func(u models.User) {
		if u.ID == "" {
			return
		}
		if _, ok := seen[u.ID]; ok {
			return
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}

	for _, id := range event.UserIDs {
		u, err := b.directory.User(ctx, id)
		if err != nil {
			b.logger.Debug("recipient lookup failed, notifying by id only", zap.String("user_id", id), zap.Error(err))
			u = models.User{ID: id}
		}
		add(u)
	}
	for _, role := range event.Roles {
		users, err := b.directory.UsersWithRole(ctx, role)
		if err != nil {
			b.logger.Error("role lookup failed", zap.String("role", role), zap.Error(err))
			continue
		}
		for _, u := range users {
			add(u)
		}
	}
	return out
}

// Discard is an Emitter that drops every event.
type Discard struct{}

// Emit drops event.
func (Discard) Emit(context.Context, models.Event) {}
