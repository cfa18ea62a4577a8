package progress

import (
	"context"
	"sync"
)

// MemoryBus is the in-process Bus. Every subscriber has its own unbounded
// queue drained by a dedicated goroutine, so a slow reader neither blocks
// publishers nor loses messages.
type MemoryBus struct {
	mu     sync.Mutex
	topics map[string]map[*subscriber]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics: make(map[string]map[*subscriber]struct{}),
	}
}

type subscriber struct {
	mu     sync.Mutex
	queue  []Message
	notify chan struct{}

	out      chan Message
	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}
}

func newSubscriber() *subscriber {
	return &subscriber{
		notify:   make(chan struct{}, 1),
		out:      make(chan Message),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (s *subscriber) push(msg Message) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) next() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Message{}, false
	}
	msg := s.queue[0]
	s.queue[0] = Message{}
	s.queue = s.queue[1:]
	return msg, true
}

func (s *subscriber) halt() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// pump forwards queued messages to out until the sentinel or a stop.
func (s *subscriber) pump() {
	defer close(s.finished)
	defer close(s.out)

	for {
		msg, ok := s.next()
		if !ok {
			select {
			case <-s.notify:
				continue
			case <-s.stop:
				return
			}
		}

		select {
		case s.out <- msg:
		case <-s.stop:
			return
		}

		if msg.IsDone() {
			return
		}
	}
}

// Publish enqueues msg for every current subscriber of correlationID. After
// the sentinel the id has no subscribers left.
func (b *MemoryBus) Publish(ctx context.Context, correlationID string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[correlationID]
	if !ok {
		return nil
	}
	for sub := range subs {
		sub.push(msg)
	}
	if msg.IsDone() {
		delete(b.topics, correlationID)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, correlationID string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := newSubscriber()

	b.mu.Lock()
	subs, ok := b.topics[correlationID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		b.topics[correlationID] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.pump()

	cancel := func() {
		b.remove(correlationID, sub)
		sub.halt()
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.finished:
			b.remove(correlationID, sub)
		}
	}()

	return newSubscription(sub.out, cancel), nil
}

func (b *MemoryBus) remove(correlationID string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[correlationID]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, correlationID)
	}
}
