package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/pithecene-io/teeline/ipc"
	"github.com/pithecene-io/teeline/types"
)

// ErrPortBroken is returned by Send once a write on the port has failed.
var ErrPortBroken = errors.New("port broken")

// Port is the persistent connection from a relay to the aggregator.
//
// The first frame is a Hello naming the channel and the source; every
// following frame is one msgpack-encoded Message. A failed write breaks the
// port for good: there is no reconnection and later sends fail fast.
type Port struct {
	conn net.Conn

	mu     sync.Mutex
	broken error
}

// DialPort connects to the aggregator at addr and sends hello.
func DialPort(ctx context.Context, network, addr string, hello types.Hello) (*Port, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial aggregator: %w", err)
	}
	p, err := NewPort(conn, hello)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

// NewPort sends hello on an established connection and wraps it.
func NewPort(conn net.Conn, hello types.Hello) (*Port, error) {
	payload, err := ipc.EncodeHello(&hello)
	if err != nil {
		return nil, fmt.Errorf("encode hello: %w", err)
	}
	if err := ipc.WriteFrame(conn, payload); err != nil {
		return nil, fmt.Errorf("send hello: %w", err)
	}
	return &Port{conn: conn}, nil
}

// Send writes msg as one frame.
func (p *Port) Send(msg *types.Message) error {
	payload, err := ipc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broken != nil {
		return p.broken
	}
	if err := ipc.WriteFrame(p.conn, payload); err != nil {
		p.broken = fmt.Errorf("%w: %v", ErrPortBroken, err)
		return p.broken
	}
	return nil
}

// Close closes the connection.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.broken == nil {
		p.broken = fmt.Errorf("%w: closed", ErrPortBroken)
	}
	p.mu.Unlock()
	return p.conn.Close()
}
