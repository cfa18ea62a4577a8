// Package progress routes ordered status messages from running generation
// jobs to any number of observers, keyed by correlation id.
//
// Messages for one correlation id reach every subscriber in publish order.
// A subscription ends after the "[DONE]" sentinel has been delivered, when
// it is closed, or when its subscribe context is done. Observers never
// influence the job that produces the messages.
package progress

import (
	"context"
	"sync"
)

// Bus is the publish/subscribe transport behind the progress channel.
type Bus interface {
	Publish(ctx context.Context, correlationID string, msg Message) error
	Subscribe(ctx context.Context, correlationID string) (*Subscription, error)
}

// Subscription delivers the messages of one correlation id on C. C is closed
// once the stream has ended.
type Subscription struct {
	C <-chan Message

	once   sync.Once
	cancel func()
}

func newSubscription(c <-chan Message, cancel func()) *Subscription {
	return &Subscription{C: c, cancel: cancel}
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}
