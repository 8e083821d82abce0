package tuple

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pborman/uuid"
)

// ErrTruncated is returned by Unpack when the input ends in the middle of
// an element.
var ErrTruncated = fmt.Errorf("tuple: truncated input")

// Unpack deserializes the packed form produced by Pack. unpack(pack(t)) ==
// t for every representable t.
func Unpack(b []byte) (Tuple, error) {
	out, rest, err := unpackSeq(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("tuple: %d trailing bytes after last element", len(rest))
	}
	return out, nil
}

// unpackSeq unpacks elements until b is exhausted (top level) and returns
// the tuple plus any unconsumed remainder (always empty at the top level).
func unpackSeq(b []byte) (Tuple, []byte, error) {
	var out Tuple
	for len(b) > 0 {
		elem, rest, err := unpackOne(b, false)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, elem)
		b = rest
	}
	return out, b, nil
}

// unpackNested unpacks elements until a bare 0x00 terminator is found,
// honoring the 0x00 0xFF null escape, and returns the remainder after the
// terminator.
func unpackNested(b []byte) (Tuple, []byte, error) {
	var out Tuple
	for {
		if len(b) == 0 {
			return nil, nil, ErrTruncated
		}
		if b[0] == 0x00 {
			if len(b) > 1 && b[1] == 0xFF {
				out = append(out, nil)
				b = b[2:]
				continue
			}
			return out, b[1:], nil
		}
		elem, rest, err := unpackOne(b, true)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, elem)
		b = rest
	}
}

func unpackOne(b []byte, nested bool) (interface{}, []byte, error) {
	code := b[0]
	rest := b[1:]
	switch {
	case code == codeNull:
		if nested && len(rest) > 0 && rest[0] == 0xFF {
			return nil, rest[1:], nil
		}
		return nil, rest, nil
	case code == codeBytes:
		raw, rest, err := unpackEscaped(rest)
		if err != nil {
			return nil, nil, err
		}
		return raw, rest, nil
	case code == codeString:
		raw, rest, err := unpackEscaped(rest)
		if err != nil {
			return nil, nil, err
		}
		return string(raw), rest, nil
	case code == codeNested:
		inner, rest, err := unpackNested(rest)
		if err != nil {
			return nil, nil, err
		}
		return inner, rest, nil
	case code >= codeIntMin && code <= codeIntMax:
		return unpackInt(code, rest)
	case code == codeFloat:
		return unpackFloat32(rest)
	case code == codeDouble:
		return unpackFloat64(rest)
	case code == codeFalse:
		return false, rest, nil
	case code == codeTrue:
		return true, rest, nil
	case code == codeUUID:
		if len(rest) < 16 {
			return nil, nil, ErrTruncated
		}
		u := make(uuid.UUID, 16)
		copy(u, rest[:16])
		return u, rest[16:], nil
	case code == codeVersion:
		if len(rest) < versionstampLen {
			return nil, nil, ErrTruncated
		}
		var vs Versionstamp
		copy(vs.TransactionVersion[:], rest[:10])
		vs.UserVersion = binary.BigEndian.Uint16(rest[10:12])
		vs.Incomplete = allFF(vs.TransactionVersion[:])
		return vs, rest[12:], nil
	default:
		return nil, nil, fmt.Errorf("tuple: unrecognized type code 0x%02x", code)
	}
}

func allFF(b []byte) bool {
	for _, x := range b {
		if x != 0xFF {
			return false
		}
	}
	return true
}

// unpackEscaped consumes bytes up to (and consuming) the first unescaped
// 0x00, undoing the 0x00 0xFF escape along the way.
func unpackEscaped(b []byte) ([]byte, []byte, error) {
	var out []byte
	i := 0
	for {
		if i >= len(b) {
			return nil, nil, ErrTruncated
		}
		if b[i] == 0x00 {
			if i+1 < len(b) && b[i+1] == 0xFF {
				out = append(out, 0x00)
				i += 2
				continue
			}
			return out, b[i+1:], nil
		}
		out = append(out, b[i])
		i++
	}
}

func unpackInt(code byte, b []byte) (int64, []byte, error) {
	if code == codeIntZero {
		return 0, b, nil
	}
	if code > codeIntZero {
		n := int(code - codeIntZero)
		if len(b) < n {
			return 0, nil, ErrTruncated
		}
		v := readBigEndian(b[:n], n)
		return int64(v), b[n:], nil
	}
	n := int(codeIntZero - code)
	if len(b) < n {
		return 0, nil, ErrTruncated
	}
	maxv := uint64(1)<<(uint(n)*8) - 1
	v := readBigEndian(b[:n], n)
	return -int64(maxv - v), b[n:], nil
}

func readBigEndian(b []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func unpackFloat32(b []byte) (float32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, ErrTruncated
	}
	bits := binary.BigEndian.Uint32(b[:4])
	if bits&0x80000000 != 0 {
		bits &^= 0x80000000
	} else {
		bits = ^bits
	}
	return math.Float32frombits(bits), b[4:], nil
}

func unpackFloat64(b []byte) (float64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, ErrTruncated
	}
	bits := binary.BigEndian.Uint64(b[:8])
	if bits&0x8000000000000000 != 0 {
		bits &^= 0x8000000000000000
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), b[8:], nil
}
