package ipc

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/teeline/types"
)

// EncodeHello encodes the connection preamble.
func EncodeHello(h *types.Hello) ([]byte, error) {
	return msgpack.Marshal(h)
}

// DecodeHello decodes the connection preamble.
func DecodeHello(payload []byte) (*types.Hello, error) {
	var h types.Hello
	if err := msgpack.Unmarshal(payload, &h); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode hello",
			Err:  err,
		}
	}
	return &h, nil
}

// EncodeMessage encodes a port message.
func EncodeMessage(m *types.Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

// DecodeMessage decodes a port message. Data keeps whatever generic shape
// msgpack produced ([]byte for bin, map[string]any for a view, ...).
func DecodeMessage(payload []byte) (*types.Message, error) {
	var m types.Message
	if err := msgpack.Unmarshal(payload, &m); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode message",
			Err:  err,
		}
	}
	return &m, nil
}
