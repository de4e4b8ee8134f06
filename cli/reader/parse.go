package reader

import (
	"github.com/pithecene-io/teeline/ipc"
)

// ParseSegment decodes a stored ingest body into frames. A truncated tail
// is not an error: the complete frames are returned and Trailing counts the
// leftover bytes.
func ParseSegment(path string, body []byte) *SegmentView {
	frames, _ := ipc.SplitFrames(body)

	consumed := 0
	for _, f := range frames {
		consumed += ipc.FrameLen(len(f))
	}
	return &SegmentView{
		Path:     path,
		Bytes:    len(body),
		Frames:   entryViews(frames),
		Trailing: len(body) - consumed,
	}
}

// Payloads returns the raw frame payloads of body, for dumping bytes
// unchanged.
func Payloads(body []byte) [][]byte {
	frames, _ := ipc.SplitFrames(body)
	return frames
}
