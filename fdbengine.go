package found

import (
	"context"
	"errors"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
)

// apiVersion is the FoundationDB client API version this adapter was
// written against (spec §6.1). Bumping it is a deliberate, tested change,
// not something a caller can override.
const apiVersion = 630

// fdbDatabase adapts fdb.Database to Database.
type fdbDatabase struct {
	db fdb.Database
}

// OpenFDB selects the API version, opens the named cluster file (the
// empty string means "use the default cluster file"), and returns a
// Database backed by the real FoundationDB client. Call it once per
// process: the underlying client library starts a network thread on
// first use and that thread cannot be restarted (spec §6.1).
func OpenFDB(clusterFile string) (Database, error) {
	if err := fdb.APIVersion(apiVersion); err != nil {
		if fe, ok := err.(fdb.Error); ok && fe.Code == apiVersionNotSupported {
			return nil, &VersionHandshakeError{Requested: apiVersion}
		}
		return nil, wrapFDBErr(err)
	}
	db, err := fdb.OpenDatabase(clusterFile)
	if err != nil {
		return nil, wrapFDBErr(err)
	}
	return &fdbDatabase{db: db}, nil
}

func (d *fdbDatabase) CreateTransaction(snapshot bool) (Transaction, error) {
	tx, err := d.db.CreateTransaction()
	if err != nil {
		return nil, wrapFDBErr(err)
	}
	return &fdbTransaction{tx: tx, snapshot: snapshot, vars: make(map[string]interface{})}, nil
}

// fdbTransaction adapts fdb.Transaction to Transaction. Reads go through
// the snapshot view when the transaction was created with snapshot=true,
// matching the Python binding's separate Snapshot type (spec §5).
type fdbTransaction struct {
	tx       fdb.Transaction
	snapshot bool
	vars     map[string]interface{}
}

func (t *fdbTransaction) Vars() map[string]interface{} { return t.vars }
func (t *fdbTransaction) Snapshot() bool                { return t.snapshot }

func (t *fdbTransaction) reader() fdb.ReadTransaction {
	if t.snapshot {
		return t.tx.Snapshot()
	}
	return t.tx
}

func (t *fdbTransaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	v, err := t.reader().Get(fdb.Key(key)).Get()
	if err != nil {
		return nil, wrapFDBErr(err)
	}
	return v, nil
}

func (t *fdbTransaction) Set(key, value []byte) { t.tx.Set(fdb.Key(key), value) }

func (t *fdbTransaction) Clear(key []byte) { t.tx.Clear(fdb.Key(key)) }

func (t *fdbTransaction) ClearRange(begin, end []byte) {
	t.tx.ClearRange(fdb.KeyRange{Begin: fdb.Key(begin), End: fdb.Key(end)})
}

func (t *fdbTransaction) AtomicOp(opcode int, key, param []byte) {
	k := fdb.Key(key)
	switch opcode {
	case MutationAdd:
		t.tx.Add(k, param)
	case MutationBitAnd:
		t.tx.BitAnd(k, param)
	case MutationBitOr:
		t.tx.BitOr(k, param)
	case MutationBitXor:
		t.tx.BitXor(k, param)
	case MutationMax:
		t.tx.Max(k, param)
	case MutationMin:
		t.tx.Min(k, param)
	case MutationByteMin:
		t.tx.ByteMin(k, param)
	case MutationByteMax:
		t.tx.ByteMax(k, param)
	case MutationSetVersionstampedKey:
		t.tx.SetVersionstampedKey(k, param)
	case MutationSetVersionstampedValue:
		t.tx.SetVersionstampedValue(k, param)
	}
}

func toSelector(sel KeySelector) fdb.KeySelector {
	return fdb.KeySelector{Key: fdb.Key(sel.Key), OrEqual: sel.OrEqual, Offset: sel.Offset}
}

func (t *fdbTransaction) GetRange(begin, end KeySelector, opts RangeOptions) RangeResult {
	rng := fdb.SelectorRange{Begin: toSelector(begin), End: toSelector(end)}
	iter := t.reader().GetRange(rng, fdb.RangeOptions{
		Limit:   opts.Limit,
		Reverse: opts.Reverse,
		Mode:    fdb.StreamingMode(opts.Mode),
	}).Iterator()
	return &fdbRangeResult{iter: iter}
}

func (t *fdbTransaction) GetReadVersion(ctx context.Context) (int64, error) {
	v, err := t.tx.GetReadVersion().Get()
	if err != nil {
		return 0, wrapFDBErr(err)
	}
	return v, nil
}

func (t *fdbTransaction) SetReadVersion(version int64) { t.tx.SetReadVersion(version) }

func (t *fdbTransaction) GetEstimatedRangeSizeBytes(ctx context.Context, begin, end []byte) (int64, error) {
	v, err := t.tx.GetEstimatedRangeSizeBytes(fdb.KeyRange{Begin: fdb.Key(begin), End: fdb.Key(end)}).Get()
	if err != nil {
		return 0, wrapFDBErr(err)
	}
	return v, nil
}

func (t *fdbTransaction) Commit(ctx context.Context) error {
	return wrapFDBErr(t.tx.Commit().Get())
}

func (t *fdbTransaction) OnError(ctx context.Context, err error) error {
	fe, ok := asFDBError(err)
	if !ok {
		return err
	}
	if onErr := t.tx.OnError(fe).Get(); onErr != nil {
		return wrapFDBErr(onErr)
	}
	return nil
}

type fdbRangeResult struct {
	iter *fdb.RangeIterator
	kv   KeyValue
	err  error
}

func (r *fdbRangeResult) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		r.err = err
		return false
	}
	if !r.iter.Advance() {
		return false
	}
	kv, err := r.iter.Get()
	if err != nil {
		r.err = wrapFDBErr(err)
		return false
	}
	r.kv = KeyValue{Key: kv.Key, Value: kv.Value}
	return true
}

func (r *fdbRangeResult) KeyValue() KeyValue { return r.kv }
func (r *fdbRangeResult) Err() error         { return r.err }

// wrapFDBErr turns the client's error taxonomy into ours: retryable
// errors (txn too old, not committed, commit unknown result, ...) surface
// as an EngineError the harness will retry; everything else about the
// request itself should already have been caught closer to the call site.
func wrapFDBErr(err error) error {
	if err == nil {
		return nil
	}
	fe, ok := err.(fdb.Error)
	if !ok {
		return err
	}
	return &EngineError{Code: fe.Code, Description: fe.Error(), Retryable: isRetryableFDBCode(fe.Code)}
}

func asFDBError(err error) (fdb.Error, bool) {
	if err == nil {
		return fdb.Error{}, false
	}
	if fe, ok := err.(fdb.Error); ok {
		return fe, true
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return fdb.Error{Code: ee.Code}, true
	}
	return fdb.Error{}, false
}

// isRetryableFDBCode reports whether the FDB client itself would retry
// this error class from transaction.on_error (spec §7): conflicts,
// timeouts, and transient cluster unavailability are retryable; malformed
// requests and past_version reads of data that will never come back are
// not.
func isRetryableFDBCode(code int) bool {
	switch code {
	case 1007, // transaction_too_old
		1009,  // future_version
		1020,  // not_committed (conflict)
		1021,  // commit_unknown_result
		1031,  // transaction_timed_out
		1038,  // transaction_cancelled
		1040,  // not_committed (alternate form some client versions use)
		1213: // tag_throttled
		return true
	default:
		return false
	}
}
