package pubsub

import (
	"context"
	"slices"
	"time"
)

type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
	EventTypeDeleted EventType = "deleted"
)

// Event is a typed notification. At is stamped by the broker on publish.
type Event[T any] struct {
	Type    EventType
	Payload T
	At      time.Time
}

type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}

// Only forwards events of the given types from in. The returned channel is
// closed when in is closed or ctx is done.
func Only[T any](ctx context.Context, in <-chan Event[T], types ...EventType) <-chan Event[T] {
	out := make(chan Event[T])
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					return
				}
				if len(types) > 0 && !slices.Contains(types, ev.Type) {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
