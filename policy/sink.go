package policy

import (
	"context"
	"sync"
)

// Sink receives flushed batches. body is a concatenation of frames and is
// owned by the sink once Deliver is called.
//
// Implementations may POST to an HTTP endpoint, publish to a broker, or
// record for testing. Errors are reported but the policy never retries.
type Sink interface {
	Deliver(ctx context.Context, body []byte) error
	Close() error
}

// StubSink is a test sink that records delivered bodies.
type StubSink struct {
	mu sync.Mutex

	// Bodies holds every delivered body in delivery order.
	Bodies [][]byte
	// Closed indicates whether Close was called.
	Closed bool
	// ErrorOnDeliver, if non-nil, is returned by Deliver (the body is
	// still recorded).
	ErrorOnDeliver error

	notify chan struct{}
}

// NewStubSink creates a new stub sink.
func NewStubSink() *StubSink {
	return &StubSink{notify: make(chan struct{}, 1024)}
}

// Deliver records the body.
func (s *StubSink) Deliver(_ context.Context, body []byte) error {
	s.mu.Lock()
	s.Bodies = append(s.Bodies, body)
	err := s.ErrorOnDeliver
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return err
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Delivered returns a copy of the recorded bodies.
func (s *StubSink) Delivered() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.Bodies))
	copy(out, s.Bodies)
	return out
}

// Wait blocks until at least n bodies were delivered or ctx ends.
// It reports whether n was reached.
func (s *StubSink) Wait(ctx context.Context, n int) bool {
	for {
		s.mu.Lock()
		got := len(s.Bodies)
		s.mu.Unlock()
		if got >= n {
			return true
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return false
		}
	}
}

// Verify StubSink implements Sink.
var _ Sink = (*StubSink)(nil)
