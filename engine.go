package found

import "context"

// KeyValue is a single observed (key, value) pair copied out of engine-owned
// buffers: the engine may free its own range-scan buffers once the
// enclosing call returns, so every KeyValue the adapter hands back is a
// caller-owned copy.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// StreamingMode hints the engine at how aggressively to batch a range scan.
// See spec §6.3; StreamingModeIterator is the default and grows batch sizes
// across successive iterations.
type StreamingMode int

const (
	StreamingModeWantAll  StreamingMode = -2
	StreamingModeIterator StreamingMode = -1
	StreamingModeExact    StreamingMode = 0
	StreamingModeSmall    StreamingMode = 1
	StreamingModeMedium   StreamingMode = 2
	StreamingModeLarge    StreamingMode = 3
	StreamingModeSerial   StreamingMode = 4
)

// KeySelector denotes "the key at Offset from the first key that is (OrEqual
// ? >= : >) Key", resolved by the engine into a concrete key at scan time.
type KeySelector struct {
	Key     []byte
	OrEqual bool
	Offset  int
}

// LastLessThan returns a selector for the greatest key strictly less than key.
func LastLessThan(key []byte) KeySelector { return KeySelector{Key: key, OrEqual: false, Offset: 0} }

// LastLessOrEqual returns a selector for the greatest key less than or equal to key.
func LastLessOrEqual(key []byte) KeySelector { return KeySelector{Key: key, OrEqual: true, Offset: 0} }

// FirstGreaterThan returns a selector for the least key strictly greater than key.
func FirstGreaterThan(key []byte) KeySelector { return KeySelector{Key: key, OrEqual: true, Offset: 1} }

// FirstGreaterOrEqual returns a selector for the least key greater than or equal to key.
func FirstGreaterOrEqual(key []byte) KeySelector { return KeySelector{Key: key, OrEqual: false, Offset: 1} }

// RangeOptions configures a GetRange call.
type RangeOptions struct {
	Limit   int
	Reverse bool
	Mode    StreamingMode
}

// RangeResult is the lazy result of a range scan: each call to Next may
// suspend on an engine round-trip (a batch fetch).
type RangeResult interface {
	// Next advances to the next key-value pair. It returns false once the
	// range is exhausted or ctx is done.
	Next(ctx context.Context) bool
	// KeyValue returns the pair last advanced to by Next.
	KeyValue() KeyValue
	// Err returns the first error encountered, if any.
	Err() error
}

// Transaction is the set of per-transaction operations the adapter exposes,
// mirroring the FoundationDB C API this engine is modeled on (spec §6.1).
type Transaction interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(key, value []byte)
	Clear(key []byte)
	ClearRange(begin, end []byte)
	GetRange(begin, end KeySelector, opts RangeOptions) RangeResult
	AtomicOp(opcode int, key, param []byte)
	GetReadVersion(ctx context.Context) (int64, error)
	SetReadVersion(version int64)
	GetEstimatedRangeSizeBytes(ctx context.Context, begin, end []byte) (int64, error)
	Commit(ctx context.Context) error
	OnError(ctx context.Context, err error) error

	// Vars is a keyed map whose lifetime is the transaction, used by
	// vnstore to stash the active change id across nested calls and
	// retries (spec §4.2, §9 "VN-store active-change smuggling").
	Vars() map[string]interface{}

	// Snapshot reports whether reads through this transaction disable
	// read-conflict tracking (spec §5).
	Snapshot() bool
}

// Database opens transactions against the underlying engine.
type Database interface {
	// CreateTransaction begins a fresh transaction. Used directly by
	// Transactional; most callers should go through Transactional instead.
	CreateTransaction(snapshot bool) (Transaction, error)
}
