// Package ingest is the local sink that receives framed batches.
//
// POST /ingest stores the request body unchanged as one segment and logs a
// short preview of every complete frame in it. OPTIONS /ingest answers CORS
// preflight. Every response carries the CORS headers, including 404s.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"

	"github.com/pithecene-io/teeline/ipc"
	"github.com/pithecene-io/teeline/log"
	"github.com/pithecene-io/teeline/metrics"
)

// Path is the ingest endpoint.
const Path = "/ingest"

// Defaults.
const (
	DefaultAllowOrigin = "*"
	DefaultMaxBodySize = 64 << 20
	PreviewLen         = 100
)

// Appender stores one body. *lode.SegmentStore implements it.
type Appender interface {
	Append(ctx context.Context, body []byte) (string, error)
}

// Config configures a Handler.
type Config struct {
	// AllowOrigin is the Access-Control-Allow-Origin value (default "*").
	AllowOrigin string
	// MaxBodySize bounds a decoded request body (default 64 MiB).
	MaxBodySize int64
	// Logger is an optional logger. Frame previews are logged at debug.
	Logger *log.Logger
	// Metrics is an optional Prometheus collector.
	Metrics *metrics.Collector
}

// Handler serves the ingest endpoint.
type Handler struct {
	store       Appender
	allowOrigin string
	maxBody     int64
	logger      *log.Logger
	metrics     *metrics.Collector
}

// NewHandler creates a handler storing bodies in store.
func NewHandler(store Appender, cfg Config) *Handler {
	if cfg.AllowOrigin == "" {
		cfg.AllowOrigin = DefaultAllowOrigin
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	return &Handler{
		store:       store,
		allowOrigin: cfg.AllowOrigin,
		maxBody:     cfg.MaxBodySize,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

func (h *Handler) setCORS(w http.ResponseWriter) {
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", h.allowOrigin)
	hdr.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	hdr.Set("Access-Control-Allow-Headers", "content-type, content-encoding")
	hdr.Set("Access-Control-Max-Age", "86400")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setCORS(w)

	if r.URL.Path != Path {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		h.ingest(w, r)
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.logger.Warn("ingest body rejected", map[string]any{"error": err.Error()})
		http.Error(w, err.Error(), status)
		return
	}

	path, err := h.store.Append(r.Context(), body)
	if err != nil {
		h.logger.Error("ingest store failed", map[string]any{"error": err.Error(), "bytes": len(body)})
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}
	h.metrics.AddIngest(len(body))

	frames := h.logPreviews(body)
	h.logger.Info("ingest stored", map[string]any{
		"path":   path,
		"bytes":  len(body),
		"frames": frames,
	})

	w.WriteHeader(http.StatusOK)
}

// readBody reads the request body, gunzipping it when the client said so.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	var src io.Reader = http.MaxBytesReader(w, r.Body, h.maxBody)

	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer func() { _ = zr.Close() }()
		src = io.LimitReader(zr, h.maxBody+1)
	}

	body, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > h.maxBody {
		return nil, &http.MaxBytesError{Limit: h.maxBody}
	}
	return body, nil
}

// logPreviews logs the length and a short UTF-8 preview of each complete
// frame. A truncated tail only ends the previews; the body was stored as
// received. It returns the number of complete frames.
func (h *Handler) logPreviews(body []byte) int {
	frames, err := ipc.SplitFrames(body)
	for _, f := range frames {
		h.logger.Debug("frame", map[string]any{
			"len":     len(f),
			"preview": Preview(f, PreviewLen),
		})
	}
	if err != nil {
		h.logger.Debug("trailing partial frame", map[string]any{"error": err.Error()})
	}
	return len(frames)
}

// Preview returns up to n leading bytes of b as text, with invalid UTF-8
// replaced by U+FFFD.
func Preview(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
