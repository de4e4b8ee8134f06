// Package intercept captures matching HTTP streaming responses.
//
// Transport wraps an http.RoundTripper. Responses that match the configured
// Target are teed: the caller gets a reconstructed response reading one half,
// and a capture goroutine reads the other half and emits open, data, error
// and close messages on the port attached by the relay.
//
// Nothing here may break the caller's request. Panics in matching or teeing
// fall back to the original response, and emission errors are dropped.
package intercept

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/pithecene-io/teeline/log"
	"github.com/pithecene-io/teeline/types"
)

// Target defaults.
const (
	DefaultOrigin      = "https://chatgpt.com"
	DefaultPath        = "/backend-api/f/conversation"
	DefaultContentType = "text/event-stream"
)

// streamContentType is forced on reconstructed responses.
const streamContentType = "text/event-stream; charset=utf-8"

// ErrHandshakeMismatch is returned by Attach for a handshake carrying the
// wrong port name.
var ErrHandshakeMismatch = errors.New("handshake name mismatch")

// Target selects the responses to capture.
type Target struct {
	// Origin is scheme://host[:port]. Empty matches any origin.
	Origin string
	// Path is an exact path or a glob pattern ('/' separated). Empty matches
	// any path.
	Path string
	// ContentType must be a substring of the response content type.
	ContentType string
}

// DefaultTarget returns the target used when none is configured.
func DefaultTarget() Target {
	return Target{
		Origin:      DefaultOrigin,
		Path:        DefaultPath,
		ContentType: DefaultContentType,
	}
}

type matcher struct {
	origin      string
	path        glob.Glob
	contentType string
}

func compileTarget(t Target) (*matcher, error) {
	m := &matcher{contentType: strings.ToLower(t.ContentType)}
	if t.Origin != "" {
		u, err := url.Parse(strings.TrimSuffix(t.Origin, "/"))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid target origin %q (want scheme://host[:port])", t.Origin)
		}
		m.origin = originOf(u.Scheme, u.Host)
	}
	if t.Path != "" {
		g, err := glob.Compile(t.Path, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid target path %q: %w", t.Path, err)
		}
		m.path = g
	}
	return m, nil
}

func (m *matcher) match(u *url.URL, resp *http.Response) bool {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return false
	}
	if m.origin != "" && originOf(u.Scheme, u.Host) != m.origin {
		return false
	}
	if m.path != nil && !m.path.Match(u.Path) {
		return false
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	return strings.Contains(ct, m.contentType)
}

// originOf is the lower-cased scheme://host with the scheme's default port
// removed, so https://h:443 and https://h compare equal.
func originOf(scheme, host string) string {
	scheme, host = strings.ToLower(scheme), strings.ToLower(host)
	switch scheme {
	case "https":
		host = strings.TrimSuffix(host, ":443")
	case "http":
		host = strings.TrimSuffix(host, ":80")
	}
	return scheme + "://" + host
}

// Config configures a Transport.
type Config struct {
	// Target selects responses to capture.
	Target Target
	// PortName is the handshake name Attach accepts
	// (default types.DefaultHandshakeName).
	PortName string
	// ReadSize is the tee read buffer size (default DefaultReadSize).
	ReadSize int
	// Logger is an optional logger.
	Logger *log.Logger
}

// Transport is an http.RoundTripper that tees matching streaming responses.
type Transport struct {
	base     http.RoundTripper
	match    *matcher
	portName string
	readSize int
	logger   *log.Logger

	mu   sync.RWMutex
	port types.Poster

	wg sync.WaitGroup
}

// New wraps base. A nil base uses http.DefaultTransport.
func New(base http.RoundTripper, cfg Config) (*Transport, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.PortName == "" {
		cfg.PortName = types.DefaultHandshakeName
	}
	m, err := compileTarget(cfg.Target)
	if err != nil {
		return nil, err
	}
	return &Transport{
		base:     base,
		match:    m,
		portName: cfg.PortName,
		readSize: cfg.ReadSize,
		logger:   cfg.Logger,
	}, nil
}

// Attach installs the port end handed over by the relay. Until a port is
// attached, captured messages are discarded.
func (t *Transport) Attach(h types.Handshake) error {
	if h.Name != t.portName {
		return fmt.Errorf("%w: got %q, want %q", ErrHandshakeMismatch, h.Name, t.portName)
	}
	if h.Port == nil {
		return errors.New("handshake carries no port")
	}
	t.mu.Lock()
	t.port = h.Port
	t.mu.Unlock()
	return nil
}

// RoundTrip calls the base transport unchanged and tees the response body
// when the response matches the target.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}
	return t.intercept(req, resp), nil
}

// intercept returns either resp untouched or a reconstructed response over
// the pass-through half of a tee.
func (t *Transport) intercept(req *http.Request, resp *http.Response) (out *http.Response) {
	out = resp
	defer func() {
		if r := recover(); r != nil {
			t.logger.Debug("intercept panic recovered", map[string]any{"panic": fmt.Sprint(r)})
			out = resp
		}
	}()

	u := resolvedURL(req, resp)
	if u == nil || !t.match.match(u, resp) {
		return resp
	}

	tee := NewTee(resp.Body, t.readSize)

	clone := new(http.Response)
	*clone = *resp
	clone.Header = resp.Header.Clone()
	clone.Header.Set("Content-Type", streamContentType)
	clone.Header.Del("Content-Length")
	clone.ContentLength = -1
	clone.Body = tee.PassThrough()

	t.wg.Add(1)
	go t.capture(u.String(), tee.Capture())

	return clone
}

// resolvedURL is the final URL after redirects.
func resolvedURL(req *http.Request, resp *http.Response) *url.URL {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL
	}
	return req.URL
}

// capture reads the capture half until the end of the stream and emits the
// lifecycle of one captured response.
func (t *Transport) capture(rawURL string, c *CaptureReader) {
	defer t.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			t.logger.Debug("capture panic recovered", map[string]any{"url": rawURL, "panic": fmt.Sprint(r)})
		}
	}()
	defer func() { _ = c.Close() }()
	defer t.emit(&types.Message{Type: types.ChunkClose, URL: rawURL})

	t.emit(&types.Message{Type: types.ChunkOpen, URL: rawURL})

	var seq int64
	for {
		chunk, err := c.ReadChunk()
		if len(chunk) > 0 {
			t.emit(&types.Message{
				Type: types.ChunkData,
				URL:  rawURL,
				Seq:  seq,
				Data: exactCopy(chunk),
			})
			seq++
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.emit(&types.Message{Type: types.ChunkError, URL: rawURL, Meta: err.Error()})
			}
			return
		}
	}
}

// exactCopy returns a copy of b whose capacity equals its length.
func exactCopy(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// emit posts msg on the attached port. Ownership of msg.Data moves to the
// port.
func (t *Transport) emit(msg *types.Message) {
	t.mu.RLock()
	port := t.port
	t.mu.RUnlock()
	if port == nil {
		return
	}

	// Send errors end here. The captured stream is telemetry only.
	if err := port.Post(msg); err != nil {
		t.logger.Debug("emit dropped", map[string]any{"type": string(msg.Type), "error": err.Error()})
	}
}

// Wait blocks until every capture goroutine started so far has emitted its
// close message.
func (t *Transport) Wait() {
	t.wg.Wait()
}

// Verify Transport implements http.RoundTripper.
var _ http.RoundTripper = (*Transport)(nil)
