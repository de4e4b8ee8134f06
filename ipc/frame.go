// Package ipc implements the length-prefixed framing shared by the relay
// port and the sink wire format, and the msgpack codec for port records.
//
// A frame is a 4-byte little-endian unsigned length L followed by exactly
// L payload bytes. Frames are self-delimiting and are concatenated with no
// separator.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame size constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
	// MaxFrameSize bounds frames read from a port (16 MiB, prefix included).
	// Sink bodies are split with SplitFrames, which has no such bound.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum port payload size.
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream can not be resynchronised after e.
// Partial and oversized frames are fatal; a bad payload is not.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameLen returns the encoded size of a frame carrying n payload bytes.
func FrameLen(n int) int {
	return LengthPrefixSize + n
}

// AppendFrame appends the frame for payload to dst and returns the
// extended slice.
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// EncodeFrame returns a new, exactly sized frame for payload.
func EncodeFrame(payload []byte) []byte {
	return AppendFrame(make([]byte, 0, FrameLen(len(payload))), payload)
}

// WriteFrame writes one frame to w in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	_, err := w.Write(EncodeFrame(payload))
	return err
}

// FrameDecoder decodes length-prefixed frames from a stream.
type FrameDecoder struct {
	reader  io.Reader
	maxSize uint32
}

// NewFrameDecoder creates a frame decoder bounded by MaxPayloadSize.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r, maxSize: MaxPayloadSize}
}

// ReadFrame reads a single frame from the stream and returns its payload.
//
// Errors:
//   - io.EOF: stream ended cleanly on a frame boundary
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.LittleEndian.Uint32(lengthBuf[:])
	if payloadSize > d.maxSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, d.maxSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// SplitFrames decodes a concatenation of frames held in memory. Returned
// payloads alias buf.
//
// A truncated trailing frame stops decoding; the complete frames before
// it are returned together with a FrameErrorPartial.
func SplitFrames(buf []byte) ([][]byte, error) {
	var frames [][]byte
	for off := 0; off < len(buf); {
		if len(buf)-off < LengthPrefixSize {
			return frames, &FrameError{
				Kind: FrameErrorPartial,
				Msg:  fmt.Sprintf("truncated length prefix at offset %d", off),
			}
		}
		n := int(binary.LittleEndian.Uint32(buf[off:]))
		off += LengthPrefixSize
		if n > len(buf)-off {
			return frames, &FrameError{
				Kind: FrameErrorPartial,
				Msg:  fmt.Sprintf("frame at offset %d needs %d bytes, %d left", off-LengthPrefixSize, n, len(buf)-off),
			}
		}
		frames = append(frames, buf[off:off+n:off+n])
		off += n
	}
	return frames, nil
}

// Concat joins already-encoded frames into one contiguous body, preserving
// order.
func Concat(frames [][]byte) []byte {
	total := 0
	for _, f := range frames {
		total += len(f)
	}
	body := make([]byte, 0, total)
	for _, f := range frames {
		body = append(body, f...)
	}
	return body
}
