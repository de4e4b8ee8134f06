package intercept

import (
	"io"
	"sync"
)

// DefaultReadSize is the buffer size of one read from the teed source.
const DefaultReadSize = 32 << 10

const (
	sideCapture = iota
	sidePass
)

// Tee splits one source into two readers that advance independently.
//
// Every read from the source is recorded as one chunk in a shared queue.
// Each side keeps a cursor into the queue; a chunk is dropped once every
// open side has moved past it. Whichever side runs out of buffered chunks
// pulls the next one from the source, so neither side waits for the other.
// Both sides see the same bytes in the same order and the same terminal
// error. The source is closed when both sides are closed.
type Tee struct {
	src      io.ReadCloser
	readSize int

	mu      sync.Mutex
	cond    *sync.Cond
	chunks  [][]byte
	base    int    // absolute index of chunks[0]
	cursor  [2]int // absolute index of the next chunk per side
	offset  int    // bytes of the current chunk already read by the pass side
	closed  [2]bool
	reading bool  // a side is blocked in src.Read
	err     error // terminal source error, io.EOF on a clean end
}

// NewTee wraps src. readSize <= 0 uses DefaultReadSize.
func NewTee(src io.ReadCloser, readSize int) *Tee {
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	t := &Tee{src: src, readSize: readSize}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Capture returns the chunk-oriented side.
func (t *Tee) Capture() *CaptureReader {
	return &CaptureReader{t: t}
}

// PassThrough returns the byte-stream side handed back to the caller.
func (t *Tee) PassThrough() io.ReadCloser {
	return &passReader{t: t}
}

// next blocks until the chunk at the side's cursor is available. It
// returns io.ErrClosedPipe once the side is closed and the terminal source
// error once the side is past the last chunk. Caller must hold mu.
func (t *Tee) next(side int) error {
	for {
		if t.closed[side] {
			return io.ErrClosedPipe
		}
		if t.cursor[side] < t.base+len(t.chunks) {
			return nil
		}
		if t.err != nil {
			return t.err
		}
		if !t.reading {
			t.fill()
			continue
		}
		t.cond.Wait()
	}
}

// fill reads one chunk from the source with mu released. Caller must hold mu.
func (t *Tee) fill() {
	t.reading = true
	t.mu.Unlock()

	buf := make([]byte, t.readSize)
	n, err := t.src.Read(buf)

	t.mu.Lock()
	t.reading = false
	if n > 0 || err == nil {
		t.chunks = append(t.chunks, buf[:n])
	}
	if err != nil && t.err == nil {
		t.err = err
	}
	t.cond.Broadcast()
}

// advance moves the side's cursor past the current chunk and drops chunks
// no open side still needs. Caller must hold mu.
func (t *Tee) advance(side int) {
	t.cursor[side]++
	t.trim()
}

func (t *Tee) trim() {
	low := t.base + len(t.chunks)
	for side := range t.cursor {
		if !t.closed[side] && t.cursor[side] < low {
			low = t.cursor[side]
		}
	}
	drop := low - t.base
	if drop <= 0 {
		return
	}
	for i := 0; i < drop; i++ {
		t.chunks[i] = nil
	}
	t.chunks = t.chunks[drop:]
	t.base = low
}

func (t *Tee) close(side int) error {
	t.mu.Lock()
	if t.closed[side] {
		t.mu.Unlock()
		return nil
	}
	t.closed[side] = true
	t.trim()
	both := t.closed[sideCapture] && t.closed[sidePass]
	t.cond.Broadcast()
	t.mu.Unlock()

	if both {
		return t.src.Close()
	}
	return nil
}

// CaptureReader reads the teed source one source chunk at a time.
type CaptureReader struct {
	t *Tee
}

// ReadChunk returns the next chunk exactly as the source produced it. A
// zero-length source read yields an empty chunk with a nil error. At the
// end of the stream it returns io.EOF, or the source's read error.
//
// The returned slice is shared with the pass-through side and must not be
// modified.
func (c *CaptureReader) ReadChunk() ([]byte, error) {
	t := c.t
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.next(sideCapture); err != nil {
		return nil, err
	}
	chunk := t.chunks[t.cursor[sideCapture]-t.base]
	t.advance(sideCapture)
	return chunk, nil
}

// Close detaches the capture side.
func (c *CaptureReader) Close() error {
	return c.t.close(sideCapture)
}

type passReader struct {
	t *Tee
}

func (p *passReader) Read(b []byte) (int, error) {
	t := p.t
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed[sidePass] {
		return 0, io.ErrClosedPipe
	}
	if len(b) == 0 {
		return 0, nil
	}
	for {
		if err := t.next(sidePass); err != nil {
			return 0, err
		}
		chunk := t.chunks[t.cursor[sidePass]-t.base]
		n := copy(b, chunk[t.offset:])
		t.offset += n
		if t.offset >= len(chunk) {
			t.offset = 0
			t.advance(sidePass)
		}
		if n > 0 {
			return n, nil
		}
	}
}

func (p *passReader) Close() error {
	return p.t.close(sidePass)
}
