package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one consumer of broker events, usually backing a single
// RWP connection. Delivery is credit-gated: the consumer grants credits
// for the number of events it is ready to take, and the broker drops
// events for a subscriber whose credits are spent rather than block.
type Subscriber struct {
	id string

	// ch carries delivered events to the consumer.
	ch chan *Event

	// credits is the remaining delivery allowance. At zero the broker
	// skips this subscriber.
	credits atomic.Int64

	mu     sync.RWMutex
	topics map[string]struct{}

	// filter, when set, suppresses events it rejects.
	filter func(*Event) bool

	closed atomic.Bool
}

// NewSubscriber creates a subscriber with the given channel buffer and
// starting credit allowance.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(initialCredits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only event channel.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits grants n additional deliveries.
func (s *Subscriber) AddCredits(n int64) {
	s.credits.Add(n)
}

// Credits returns the remaining delivery allowance.
func (s *Subscriber) Credits() int64 {
	return s.credits.Load()
}

// SetFilter installs a predicate; events it rejects are not delivered.
func (s *Subscriber) SetFilter(fn func(*Event) bool) {
	s.filter = fn
}

func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// Topics returns a copy of the subscribed topic names.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// send delivers evt if the subscriber is open, the filter accepts it, a
// credit is available, and the channel has room. Returns false when the
// event was dropped for any of those reasons.
func (s *Subscriber) send(evt *Event) bool {
	if s.closed.Load() {
		return false
	}

	if s.filter != nil && !s.filter(evt) {
		return false
	}

	for {
		current := s.credits.Load()
		if current <= 0 {
			return false
		}
		if s.credits.CompareAndSwap(current, current-1) {
			break
		}
	}

	select {
	case s.ch <- evt:
		return true
	default:
		// Buffer full; the credit was not used.
		s.credits.Add(1)
		return false
	}
}

// Close closes the event channel. Safe to call more than once.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
