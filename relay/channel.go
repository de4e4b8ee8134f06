package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/teeline/types"
)

// DefaultQueueSize is the capacity of a Channel.
const DefaultQueueSize = 256

// ErrChannelClosed is returned by Post and Receive on a closed channel.
var ErrChannelClosed = errors.New("channel closed")

// ErrChannelFull is returned by Post when the queue has no free slot. The
// message is dropped.
var ErrChannelFull = errors.New("channel full")

// Channel is the private in-process channel between the interceptor and
// the relay. The interceptor posts on it, the relay receives from it.
//
// Post hands msg over to the receiver. The sender must not touch msg or its
// payload afterwards.
type Channel struct {
	queue     chan *types.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewChannel creates a channel holding up to size queued messages.
func NewChannel(size int) *Channel {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Channel{
		queue: make(chan *types.Message, size),
		done:  make(chan struct{}),
	}
}

// Post queues msg without blocking. A full queue drops msg with
// ErrChannelFull so a stalled receiver never holds up the sender.
func (c *Channel) Post(msg *types.Message) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.queue <- msg:
		return nil
	default:
		return ErrChannelFull
	}
}

// Receive returns the next message in post order. After Close, queued
// messages are still returned before ErrChannelClosed.
func (c *Channel) Receive(ctx context.Context) (*types.Message, error) {
	select {
	case msg := <-c.queue:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		select {
		case msg := <-c.queue:
			return msg, nil
		default:
			return nil, ErrChannelClosed
		}
	}
}

// Close closes the channel. Safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Verify Channel is a port end.
var _ types.Poster = (*Channel)(nil)
