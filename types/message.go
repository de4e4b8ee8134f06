package types

// Message is the record carried from the interceptor, through the relay,
// to the aggregator. All fields use msgpack tags; the relay port encodes
// one Message per frame.
//
// Data is normally a []byte whose ownership moves with the message. Other
// shapes (ByteView, or whatever a foreign producer sends) are coerced by
// the aggregator.
type Message struct {
	// Type is the chunk kind.
	Type ChunkKind `msgpack:"type" json:"type"`
	// URL is the resolved absolute URL of the captured response.
	URL string `msgpack:"url" json:"url"`
	// Seq is the data sequence number, starting at 0. Only meaningful for data.
	Seq int64 `msgpack:"seq" json:"seq"`
	// Data is the payload of a data message.
	Data any `msgpack:"data,omitempty" json:"-"`
	// Meta carries the cause of an error message.
	Meta string `msgpack:"meta,omitempty" json:"meta,omitempty"`
}

// ByteView is a window over a larger buffer. The aggregator copies exactly
// Buffer[ByteOffset:ByteOffset+ByteLength] out of it.
type ByteView struct {
	Buffer     []byte `msgpack:"buffer"`
	ByteOffset int    `msgpack:"byte_offset"`
	ByteLength int    `msgpack:"byte_length"`
}

// Hello is the first record written on a relay port. The aggregator only
// accepts connections whose Name matches its channel name.
type Hello struct {
	Name   string   `msgpack:"name"`
	Source SourceID `msgpack:"source"`
}

// Handshake carries one end of a private channel from the relay to the
// interceptor. Name must match the interceptor's configured port name.
type Handshake struct {
	Name string
	Port Poster
}

// Poster accepts messages for transport. Post transfers ownership of any
// byte slice inside msg.
type Poster interface {
	Post(msg *Message) error
}
