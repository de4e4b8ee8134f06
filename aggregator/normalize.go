package aggregator

import (
	"github.com/pithecene-io/teeline/types"
)

// Normalize coerces a message payload into an exact-length byte slice.
//
//   - []byte is owned by the message and returned as is.
//   - A ByteView, or a map with the same keys as decoded from the wire, is
//     copied out of its buffer over exactly the viewed range.
//   - Anything else, including a view whose range falls outside its buffer,
//     becomes a zero-length slice so the chunk still takes its ring slot.
func Normalize(data any) []byte {
	switch v := data.(type) {
	case []byte:
		if v == nil {
			return []byte{}
		}
		return v
	case types.ByteView:
		return copyView(v.Buffer, v.ByteOffset, v.ByteLength)
	case *types.ByteView:
		if v == nil {
			return []byte{}
		}
		return copyView(v.Buffer, v.ByteOffset, v.ByteLength)
	case map[string]any:
		return normalizeViewMap(v)
	default:
		return []byte{}
	}
}

func normalizeViewMap(m map[string]any) []byte {
	buf, ok := m["buffer"].([]byte)
	if !ok {
		return []byte{}
	}
	off, ok := toInt(m["byte_offset"], 0)
	if !ok {
		return []byte{}
	}
	n, ok := toInt(m["byte_length"], len(buf)-off)
	if !ok {
		return []byte{}
	}
	return copyView(buf, off, n)
}

func copyView(buf []byte, off, n int) []byte {
	if off < 0 || n < 0 || off > len(buf) || n > len(buf)-off {
		return []byte{}
	}
	out := make([]byte, n)
	copy(out, buf[off:off+n])
	return out
}

// toInt accepts any integer type msgpack may decode to. A missing value
// yields def.
func toInt(v any, def int) (int, bool) {
	switch n := v.(type) {
	case nil:
		return def, true
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
