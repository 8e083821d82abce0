package tuple

import (
	"encoding/binary"
	"math"
)

// Pack serializes t into an order-preserving byte string: for any two
// representable tuples t1, t2, t1 < t2 (element-by-element, typed order)
// iff Pack(t1) < Pack(t2) bytewise.
func Pack(t Tuple) []byte {
	out, _ := packTuple(t, nil, -1)
	return out
}

// PackWithVersionstamp serializes t the same way Pack does, but t must
// contain exactly one incomplete Versionstamp; the returned bytes carry a
// trailing 4-byte little-endian offset pointing at that versionstamp's
// position, which the engine uses to splice in the assigned 10-byte commit
// stamp atomically (see found.Transaction.AtomicOp, SetVersionstampedKey/Value).
func PackWithVersionstamp(t Tuple) ([]byte, error) {
	if !HasIncompleteVersionstamp(t) {
		return nil, errNoIncompleteVersionstamp
	}
	buf, vsOffset := packTuple(t, nil, 0)
	if vsOffset < 0 {
		return nil, errNoIncompleteVersionstamp
	}
	var offsetBytes [4]byte
	binary.LittleEndian.PutUint32(offsetBytes[:], uint32(vsOffset))
	return append(buf, offsetBytes[:]...), nil
}

// HasIncompleteVersionstamp reports whether any element of t (recursively)
// is a still-unassigned Versionstamp.
func HasIncompleteVersionstamp(t Tuple) bool {
	for _, e := range t {
		switch v := e.(type) {
		case Versionstamp:
			if v.Incomplete {
				return true
			}
		case Tuple:
			if HasIncompleteVersionstamp(v) {
				return true
			}
		}
	}
	return false
}

// packTuple appends the packed form of t to buf and returns the new buffer
// plus the offset at which an incomplete versionstamp was written (-1 if
// none was found), tracked only when track >= 0.
func packTuple(t Tuple, buf []byte, track int) ([]byte, int) {
	found := -1
	for _, e := range t {
		before := len(buf)
		buf = packElement(e, buf)
		if track >= 0 {
			if vs, ok := e.(Versionstamp); ok && vs.Incomplete {
				found = before + 1 // +1 to skip the type code byte
			}
		}
	}
	return buf, found
}

func packElement(e interface{}, buf []byte) []byte {
	if e == nil {
		return append(buf, codeNull)
	}
	switch v := e.(type) {
	case []byte:
		return packBytes(codeBytes, v, buf)
	case string:
		return packBytes(codeString, []byte(v), buf)
	case Tuple:
		buf = append(buf, codeNested)
		for _, inner := range v {
			buf = packNestedElement(inner, buf)
		}
		return append(buf, 0x00)
	case bool:
		if v {
			return append(buf, codeTrue)
		}
		return append(buf, codeFalse)
	case int:
		return packInt(int64(v), buf)
	case int8:
		return packInt(int64(v), buf)
	case int16:
		return packInt(int64(v), buf)
	case int32:
		return packInt(int64(v), buf)
	case int64:
		return packInt(v, buf)
	case uint:
		return packInt(int64(v), buf)
	case uint32:
		return packInt(int64(v), buf)
	case uint64:
		return packInt(int64(v), buf)
	case float32:
		return packFloat32(v, buf)
	case float64:
		return packFloat64(v, buf)
	case Versionstamp:
		return packVersionstamp(v, buf)
	default:
		if u, ok := asUUID(v); ok {
			buf = append(buf, codeUUID)
			return append(buf, []byte(u)...)
		}
		panic(ErrInvalidElement{Value: e})
	}
}

// packNestedElement escapes a null byte inside a nested tuple as 0x00 0xFF
// so it cannot be confused with the nested tuple's own 0x00 terminator.
func packNestedElement(e interface{}, buf []byte) []byte {
	if e == nil {
		return append(buf, codeNull, 0xFF)
	}
	return packElement(e, buf)
}

// packBytes escapes every 0x00 byte in v as 0x00 0xFF so a byte string or
// text string element never terminates early when nested.
func packBytes(code byte, v []byte, buf []byte) []byte {
	buf = append(buf, code)
	for _, b := range v {
		buf = append(buf, b)
		if b == 0x00 {
			buf = append(buf, 0xFF)
		}
	}
	return append(buf, 0x00)
}

func byteLength(v uint64) int {
	n := 0
	for v > 0 {
		n++
		v >>= 8
	}
	if n == 0 {
		n = 0
	}
	return n
}

func packInt(v int64, buf []byte) []byte {
	if v == 0 {
		return append(buf, codeIntZero)
	}
	if v > 0 {
		n := byteLength(uint64(v))
		buf = append(buf, byte(codeIntZero+n))
		return appendBigEndian(buf, uint64(v), n)
	}
	neg := uint64(-v)
	n := byteLength(neg)
	maxv := uint64(1)<<(uint(n)*8) - 1
	buf = append(buf, byte(codeIntZero-n))
	return appendBigEndian(buf, maxv-neg, n)
}

func appendBigEndian(buf []byte, v uint64, n int) []byte {
	start := len(buf)
	buf = append(buf, make([]byte, n)...)
	for i := n - 1; i >= 0; i-- {
		buf[start+i] = byte(v)
		v >>= 8
	}
	return buf
}

// packFloat32/packFloat64 apply the NaN-safe remapping: the sign bit is
// flipped for non-negative values and every bit is flipped for negative
// ones, so the resulting unsigned integer orders the same way the floats
// themselves do (negative before positive, and within a sign, smaller
// magnitude orders correctly for positives and inversely for negatives
// which the full-flip already accounts for).
func packFloat32(f float32, buf []byte) []byte {
	bits := math.Float32bits(f)
	if bits&0x80000000 != 0 {
		bits = ^bits
	} else {
		bits |= 0x80000000
	}
	buf = append(buf, codeFloat)
	return appendBigEndian32(buf, bits)
}

func packFloat64(f float64, buf []byte) []byte {
	bits := math.Float64bits(f)
	if bits&0x8000000000000000 != 0 {
		bits = ^bits
	} else {
		bits |= 0x8000000000000000
	}
	buf = append(buf, codeDouble)
	return appendBigEndian(buf, bits, 8)
}

func appendBigEndian32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func packVersionstamp(v Versionstamp, buf []byte) []byte {
	buf = append(buf, codeVersion)
	buf = append(buf, v.TransactionVersion[:]...)
	var uv [2]byte
	binary.BigEndian.PutUint16(uv[:], v.UserVersion)
	return append(buf, uv[:]...)
}
