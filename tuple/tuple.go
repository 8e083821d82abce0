// Package tuple implements the order-preserving tuple codec shared by every
// store in this repository: N-store, VN-store, B-store, EAV-store and
// P-store all pack their composite keys through Pack/Unpack so that the
// engine's byte-lexicographic range scans agree with the typed ordering of
// the tuple elements they encode.
package tuple

import (
	"fmt"

	"github.com/pborman/uuid"
)

// Tuple is an ordered, heterogeneous sequence of packable elements.
//
// A nil interface{} element packs as the null type. Recognized concrete
// types are: []byte, string, the signed integer kinds (coerced to int64),
// float32, float64, bool, uuid.UUID, Tuple (nested), and Versionstamp.
type Tuple []interface{}

// Versionstamp is a 10-byte identifier assigned by the engine at commit
// time (see found.Transaction.AtomicOp with SetVersionstampedKey/SetVersionstampedValue),
// usable as an in-key timestamp. An Incomplete versionstamp stands for "to
// be filled in by the engine"; it may appear at most meaningfully once per
// packed tuple and is only valid as an argument to PackWithVersionstamp.
type Versionstamp struct {
	TransactionVersion [10]byte
	UserVersion        uint16
	Incomplete         bool
}

// IncompleteVersionstamp returns a Versionstamp that PackWithVersionstamp
// will splice the engine-assigned commit version into.
func IncompleteVersionstamp(userVersion uint16) Versionstamp {
	var tv [10]byte
	for i := range tv {
		tv[i] = 0xFF
	}
	return Versionstamp{TransactionVersion: tv, UserVersion: userVersion, Incomplete: true}
}

// ErrInvalidElement is the value Pack panics with when a tuple contains a
// value of a kind the codec does not recognize.
type ErrInvalidElement struct {
	Value interface{}
}

func (e ErrInvalidElement) Error() string {
	return fmt.Sprintf("tuple: cannot pack value of type %T: %v", e.Value, e.Value)
}

// asUUID reports whether v is a uuid.UUID and returns it. A plain []byte
// is not treated as a UUID; it packs as a byte string.
func asUUID(v interface{}) (uuid.UUID, bool) {
	switch u := v.(type) {
	case uuid.UUID:
		return u, true
	default:
		return nil, false
	}
}
