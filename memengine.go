package found

import (
	"context"
	"encoding/binary"
	"errors"
	"sort"
	"sync"
)

// MemDatabase is an in-process implementation of Database used by this
// module's own test suite, the way ethdb.NewMemDatabase gives turbo-geth a
// backend-agnostic in-memory database for tests without requiring a real
// LMDB/Badger environment. It requires no cluster, no network thread, and
// completes every operation synchronously; every write is still buffered
// per-transaction and only applied at Commit, so read-your-own-writes and
// retry semantics match the real engine adapter (OpenFDB).
type MemDatabase struct {
	mu        sync.Mutex
	data      map[string][]byte
	vsCounter uint64
	rv        int64
}

// NewMemDatabase returns a fresh, empty in-memory engine.
func NewMemDatabase() *MemDatabase {
	return &MemDatabase{data: make(map[string][]byte)}
}

func (db *MemDatabase) CreateTransaction(snapshot bool) (Transaction, error) {
	db.mu.Lock()
	rv := db.rv
	db.mu.Unlock()
	return &memTxn{db: db, snapshot: snapshot, readVersion: rv, vars: make(map[string]interface{})}, nil
}

type memOpKind int

const (
	opSet memOpKind = iota
	opClear
	opClearRange
	opAtomic
)

type memOp struct {
	kind   memOpKind
	key    []byte
	value  []byte
	end    []byte
	opcode int
}

type memTxn struct {
	db          *MemDatabase
	snapshot    bool
	readVersion int64
	vars        map[string]interface{}
	ops         []memOp
}

func (tx *memTxn) Vars() map[string]interface{} { return tx.vars }
func (tx *memTxn) Snapshot() bool                { return tx.snapshot }

func (tx *memTxn) reset() { tx.ops = nil }

// overlay replays the transaction's buffered ops over a snapshot of the
// committed database state, without mutating either, so reads observe
// read-your-own-writes before commit.
func (tx *memTxn) overlay() map[string][]byte {
	tx.db.mu.Lock()
	base := make(map[string][]byte, len(tx.db.data))
	for k, v := range tx.db.data {
		base[k] = v
	}
	tx.db.mu.Unlock()

	for _, op := range tx.ops {
		switch op.kind {
		case opSet:
			base[string(op.key)] = op.value
		case opClear:
			delete(base, string(op.key))
		case opClearRange:
			for k := range base {
				if k >= string(op.key) && k < string(op.end) {
					delete(base, k)
				}
			}
		case opAtomic:
			cur := base[string(op.key)]
			base[string(op.key)] = applyAtomic(op.opcode, cur, op.value)
		}
	}
	return base
}

func (tx *memTxn) Get(ctx context.Context, key []byte) ([]byte, error) {
	view := tx.overlay()
	v, ok := view[string(key)]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (tx *memTxn) Set(key, value []byte) {
	tx.ops = append(tx.ops, memOp{kind: opSet, key: copyBytes(key), value: copyBytes(value)})
}

func (tx *memTxn) Clear(key []byte) {
	tx.ops = append(tx.ops, memOp{kind: opClear, key: copyBytes(key)})
}

func (tx *memTxn) ClearRange(begin, end []byte) {
	tx.ops = append(tx.ops, memOp{kind: opClearRange, key: copyBytes(begin), end: copyBytes(end)})
}

func (tx *memTxn) AtomicOp(opcode int, key, param []byte) {
	tx.ops = append(tx.ops, memOp{kind: opAtomic, key: copyBytes(key), value: copyBytes(param), opcode: opcode})
}

func (tx *memTxn) GetReadVersion(ctx context.Context) (int64, error) { return tx.readVersion, nil }

func (tx *memTxn) SetReadVersion(version int64) { tx.readVersion = version }

func (tx *memTxn) GetEstimatedRangeSizeBytes(ctx context.Context, begin, end []byte) (int64, error) {
	view := tx.overlay()
	var total int64
	for k, v := range view {
		if k >= string(begin) && k < string(end) {
			total += int64(len(k) + len(v))
		}
	}
	return total, nil
}

func (tx *memTxn) Commit(ctx context.Context) error {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for _, op := range tx.ops {
		switch op.kind {
		case opSet:
			tx.db.data[string(op.key)] = op.value
		case opClear:
			delete(tx.db.data, string(op.key))
		case opClearRange:
			for k := range tx.db.data {
				if k >= string(op.key) && k < string(op.end) {
					delete(tx.db.data, k)
				}
			}
		case opAtomic:
			if op.opcode == MutationSetVersionstampedKey {
				tx.db.vsCounter++
				newKey, err := spliceVersionstamp(op.key, tx.db.vsCounter)
				if err != nil {
					return err
				}
				tx.db.data[string(newKey)] = op.value
			} else if op.opcode == MutationSetVersionstampedValue {
				tx.db.vsCounter++
				newValue, err := spliceVersionstamp(op.value, tx.db.vsCounter)
				if err != nil {
					return err
				}
				tx.db.data[string(op.key)] = newValue
			} else {
				cur := tx.db.data[string(op.key)]
				tx.db.data[string(op.key)] = applyAtomic(op.opcode, cur, op.value)
			}
		}
	}
	tx.db.rv++
	tx.reset()
	return nil
}

func (tx *memTxn) OnError(ctx context.Context, err error) error {
	var ee *EngineError
	if errors.As(err, &ee) && ee.Retryable {
		tx.reset()
		return nil
	}
	return err
}

func (tx *memTxn) GetRange(begin, end KeySelector, opts RangeOptions) RangeResult {
	view := tx.overlay()
	keys := make([]string, 0, len(view))
	for k := range view {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bi := resolveSelector(keys, begin)
	ei := resolveSelector(keys, end)
	if bi < 0 {
		bi = 0
	}
	if ei > len(keys) {
		ei = len(keys)
	}
	if bi > ei {
		bi = ei
	}

	out := make([]KeyValue, 0, ei-bi)
	for _, k := range keys[bi:ei] {
		out = append(out, KeyValue{Key: []byte(k), Value: view[k]})
	}
	if opts.Reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return &memRangeResult{items: out, index: -1}
}

// resolveSelector implements the canonical key-selector resolution: first
// find K, the largest key that is (OrEqual ? <= : <) Key, then resolve to
// the Offset-th key following K (Offset 0 meaning K itself). bound is the
// index just past K, so the resolved index is bound - 1 + Offset.
func resolveSelector(keys []string, sel KeySelector) int {
	k := string(sel.Key)
	var bound int
	if sel.OrEqual {
		bound = sort.Search(len(keys), func(i int) bool { return keys[i] > k })
	} else {
		bound = sort.Search(len(keys), func(i int) bool { return keys[i] >= k })
	}
	return bound - 1 + sel.Offset
}

type memRangeResult struct {
	items []KeyValue
	index int
	err   error
}

func (r *memRangeResult) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		r.err = ctx.Err()
		return false
	}
	if r.index+1 >= len(r.items) {
		return false
	}
	r.index++
	return true
}

func (r *memRangeResult) KeyValue() KeyValue { return r.items[r.index] }
func (r *memRangeResult) Err() error         { return r.err }

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func applyAtomic(opcode int, cur, param []byte) []byte {
	switch opcode {
	case MutationAdd:
		return addLE(cur, param)
	case MutationBitAnd:
		return bitwise(cur, param, func(a, b byte) byte { return a & b })
	case MutationBitOr:
		return bitwise(cur, param, func(a, b byte) byte { return a | b })
	case MutationBitXor:
		return bitwise(cur, param, func(a, b byte) byte { return a ^ b })
	case MutationMax:
		if cur == nil || ltLE(cur, param) {
			return param
		}
		return cur
	case MutationMin:
		if cur == nil || ltLE(param, cur) {
			return param
		}
		return cur
	case MutationByteMax:
		if cur == nil || string(cur) < string(param) {
			return param
		}
		return cur
	case MutationByteMin:
		if cur == nil || string(param) < string(cur) {
			return param
		}
		return cur
	default:
		return cur
	}
}

func addLE(cur, param []byte) []byte {
	n := len(param)
	out := make([]byte, n)
	carry := uint16(0)
	for i := 0; i < n; i++ {
		var c byte
		if i < len(cur) {
			c = cur[i]
		}
		sum := uint16(c) + uint16(param[i]) + carry
		out[i] = byte(sum)
		carry = sum >> 8
	}
	return out
}

func ltLE(a, b []byte) bool {
	for i := len(a) - 1; i >= 0; i-- {
		var bb byte
		if i < len(b) {
			bb = b[i]
		}
		if a[i] != bb {
			return a[i] < bb
		}
	}
	return false
}

func bitwise(cur, param []byte, f func(a, b byte) byte) []byte {
	n := len(param)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		var c byte
		if i < len(cur) {
			c = cur[i]
		}
		out[i] = f(c, param[i])
	}
	return out
}

// spliceVersionstamp overwrites the 10 bytes at the offset recorded in
// buf's trailing 4-byte little-endian suffix with the engine-assigned
// commit version, and returns buf with that suffix stripped.
func spliceVersionstamp(buf []byte, commitVersion uint64) ([]byte, error) {
	if len(buf) < 4 {
		return nil, &UsageError{Message: "versionstamped atomic op: param too short to carry an offset"}
	}
	offset := int(binary.LittleEndian.Uint32(buf[len(buf)-4:]))
	body := buf[:len(buf)-4]
	if offset < 0 || offset+10 > len(body) {
		return nil, &UsageError{Message: "versionstamped atomic op: offset out of range"}
	}
	out := make([]byte, len(body))
	copy(out, body)
	var stamp [10]byte
	binary.BigEndian.PutUint64(stamp[:8], commitVersion)
	copy(out[offset:offset+10], stamp[:])
	return out, nil
}
