package types

// ChunkKind is the discriminator of a captured stream event.
type ChunkKind string

// Chunk kinds, in stream lifecycle order.
const (
	// ChunkOpen marks the start of a captured stream. Carries no bytes.
	ChunkOpen ChunkKind = "open"
	// ChunkData carries one non-empty read from the capture side.
	ChunkData ChunkKind = "data"
	// ChunkError reports a capture read failure. Always followed by ChunkClose.
	ChunkError ChunkKind = "error"
	// ChunkClose marks the end of a captured stream, on success or failure.
	ChunkClose ChunkKind = "close"
)

// Valid returns true for the four known kinds.
func (k ChunkKind) Valid() bool {
	switch k {
	case ChunkOpen, ChunkData, ChunkError, ChunkClose:
		return true
	}
	return false
}

// SourceID identifies the logical origin of a captured stream (a tab, a
// client process). It is opaque to the pipeline.
type SourceID string

// UnknownSource is used when a connection does not identify its source.
const UnknownSource SourceID = "-1"

// RingEntry is one element of a per-source ring buffer.
type RingEntry struct {
	Bytes []byte `json:"bytes"`
}
