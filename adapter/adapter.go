// Package adapter defines the boundary between the batch policy and the
// external sink that receives framed batches.
//
// Adapters are transport only. They deliver one body per call and never
// retry; the caller decides what a failure means (the batch policy drops it).
package adapter

import "context"

// ContentType is the media type of a batch body: concatenated
// length-prefixed frames.
const ContentType = "application/octet-stream"

// Adapter delivers batch bodies to a downstream system.
type Adapter interface {
	// Deliver sends body as one unit. Must respect ctx cancellation.
	Deliver(ctx context.Context, body []byte) error

	// Close releases adapter resources.
	Close() error
}
