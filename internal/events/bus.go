package events

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mmynk/whobought/internal/metrics"
)

// Sender forwards frames to the remote side. The connection manager
// implements it.
type Sender interface {
	Send(f Frame) error
}

// Handler receives a dispatched event.
type Handler func(ev Event)

// Subscription identifies one Subscribe call.
type Subscription struct {
	eventType Type
	handler   Handler
}

// Type returns the event type the subscription listens to.
func (s *Subscription) Type() Type {
	return s.eventType
}

// Bus delivers events to local subscribers and forwards published events to
// the Sender.
//
// Subscriber lists are copy-on-write: Subscribe and Unsubscribe replace the
// slice, so a dispatch in progress keeps iterating the list it started with.
type Bus struct {
	sender Sender
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[Type][]*Subscription
}

// NewBus creates a bus that publishes through sender. A nil logger means
// slog.Default().
func NewBus(sender Sender, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		sender:      sender,
		logger:      logger,
		subscribers: make(map[Type][]*Subscription),
	}
}

// Subscribe registers handler for events of type t. Handlers for the same
// type run in subscription order.
func (b *Bus) Subscribe(t Type, handler Handler) *Subscription {
	sub := &Subscription{eventType: t, handler: handler}

	b.mu.Lock()
	defer b.mu.Unlock()
	next := slices.Clone(b.subscribers[t])
	b.subscribers[t] = append(next, sub)
	return sub
}

// Unsubscribe removes a subscription. Removing twice is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.subscribers[sub.eventType]
	i := slices.Index(current, sub)
	if i < 0 {
		// not present
		return
	}
	next := slices.Delete(slices.Clone(current), i, i+1)
	if len(next) == 0 {
		delete(b.subscribers, sub.eventType)
		return
	}
	b.subscribers[sub.eventType] = next
}

// Publish sends an event to the remote side. It does not dispatch locally;
// the originator applies its own change before publishing.
func (b *Bus) Publish(ev Event) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}
	if b.sender == nil {
		return fmt.Errorf("no sender for %s", ev.Type())
	}
	if err := b.sender.Send(frame); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type(), err)
	}
	return nil
}

// Deliver decodes an inbound frame and dispatches it. Frames that cannot be
// decoded are dropped with a diagnostic.
func (b *Bus) Deliver(f Frame) {
	ev, err := Decode(f)
	if err != nil {
		metrics.FramesDropped.WithLabelValues("undecodable").Inc()
		b.logger.Warn("Dropping inbound frame", "type", f.Type, "error", err)
		return
	}
	b.Dispatch(ev)
}

// Dispatch hands ev to a snapshot of the current subscribers of its type.
func (b *Bus) Dispatch(ev Event) {
	b.mu.Lock()
	subs := b.subscribers[ev.Type()]
	b.mu.Unlock()

	for _, sub := range subs {
		b.invoke(sub, ev)
	}
}

func (b *Bus) invoke(sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked", "type", ev.Type(), "panic", r)
		}
	}()
	sub.handler(ev)
}

// Run is the dispatch loop: it delivers frames one at a time, in the order
// they arrive, until ctx is done or frames is closed.
func (b *Bus) Run(ctx context.Context, frames <-chan Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			b.Deliver(f)
		}
	}
}
