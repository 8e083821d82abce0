// Package vnstore is nstore with a change-tracking layer on top: every
// tuple add/remove happens as part of a named change, and a change only
// becomes visible to readers once it is applied, at which point it is
// assigned a significance the engine itself orders (see ChangeApply) —
// giving consistent time-travel queries without a client-generated clock.
package vnstore

import (
	"bytes"
	"context"

	"github.com/pborman/uuid"

	"github.com/ledgerwatch/found"
	"github.com/ledgerwatch/found/nstore"
	"github.com/ledgerwatch/found/tuple"
)

// VNStore tracks tuples of arity len(Items) under two auxiliary nstores:
// Changes (changeid, key, value) holds each change's own small metadata
// record (type/significance/message); Tuples (items..., changeid, alive)
// holds every version of every tuple this store has ever held.
type VNStore struct {
	Items   []string
	Changes *nstore.NStore
	Tuples  *nstore.NStore
}

// Make builds a VNStore for the named items under prefix.
func Make(prefix []byte, items []string) *VNStore {
	changesPrefix := append(append([]byte{}, prefix...), "-changes"...)
	tuplesPrefix := append(append([]byte{}, prefix...), "-tuples"...)
	return &VNStore{
		Items:   items,
		Changes: nstore.Make(changesPrefix, 3),
		Tuples:  nstore.Make(tuplesPrefix, len(items)+2),
	}
}

const varsActiveChange = "vnstore_active_change"

// ChangeCreate starts a new, not-yet-visible change, makes it the
// transaction's active change (as ChangeContinue does), and returns its id.
// Its significance starts as nil (invisible to Ask/Select) until
// ChangeApply assigns it an engine-ordered one.
func ChangeCreate(tx found.Transaction, vn *VNStore) (uuid.UUID, error) {
	changeid := uuid.NewRandom()
	tx.Vars()[varsActiveChange] = changeid
	if err := nstore.Add(tx, vn.Changes, nil, changeid, "type", "change"); err != nil {
		return nil, err
	}
	if err := nstore.Add(tx, vn.Changes, nil, changeid, "significance", nil); err != nil {
		return nil, err
	}
	if err := nstore.Add(tx, vn.Changes, nil, changeid, "message", nil); err != nil {
		return nil, err
	}
	return changeid, nil
}

// ChangeContinue marks changeid as the active change for every
// Add/Remove made through tx from here on, until the transaction is
// retried (in which case the caller's body re-runs ChangeContinue too;
// spec's "VN-store active-change smuggling" over Transaction.Vars).
func ChangeContinue(tx found.Transaction, changeid uuid.UUID) {
	tx.Vars()[varsActiveChange] = changeid
}

func activeChange(tx found.Transaction) (uuid.UUID, error) {
	v, ok := tx.Vars()[varsActiveChange]
	if !ok {
		return nil, &found.UsageError{Message: "vnstore: no active change on this transaction; call ChangeContinue first"}
	}
	return v.(uuid.UUID), nil
}

// ChangeGet returns a change's metadata keyed by field name ("type",
// "significance", "message"), plus "uid", or nil if changeid names no
// change.
func ChangeGet(ctx context.Context, tx found.Transaction, vn *VNStore, changeid uuid.UUID) (map[string]interface{}, error) {
	cur, err := nstore.Query(ctx, tx, vn.Changes, []interface{}{changeid, nstore.Variable{Name: "key"}, nstore.Variable{Name: "value"}})
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{})
	for cur.Next(ctx) {
		b := cur.Bindings()
		out[b["key"].(string)] = b["value"]
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	out["uid"] = changeid
	return out, nil
}

// ChangeList returns every change this store has ever recorded.
func ChangeList(ctx context.Context, tx found.Transaction, vn *VNStore) ([]map[string]interface{}, error) {
	cur, err := nstore.Query(ctx, tx, vn.Changes, []interface{}{nstore.Variable{Name: "uid"}, "type", "change"})
	if err != nil {
		return nil, err
	}
	var out []map[string]interface{}
	for cur.Next(ctx) {
		uid := cur.Bindings()["uid"].(uuid.UUID)
		change, err := ChangeGet(ctx, tx, vn, uid)
		if err != nil {
			return nil, err
		}
		out = append(out, change)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ChangeMessage replaces changeid's message.
func ChangeMessage(ctx context.Context, tx found.Transaction, vn *VNStore, changeid uuid.UUID, message string) error {
	cur, err := nstore.Query(ctx, tx, vn.Changes, []interface{}{changeid, "message", nstore.Variable{Name: "message"}})
	if err != nil {
		return err
	}
	for cur.Next(ctx) {
		if err := nstore.Remove(tx, vn.Changes, changeid, "message", cur.Bindings()["message"]); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return nstore.Add(tx, vn.Changes, nil, changeid, "message", message)
}

// ChangeChanges returns every (items..., alive) tuple this change has
// ever written, across its entire lifetime.
func ChangeChanges(ctx context.Context, tx found.Transaction, vn *VNStore, changeid uuid.UUID) ([]nstore.Bindings, error) {
	pattern := make([]interface{}, 0, len(vn.Items)+2)
	for _, name := range vn.Items {
		pattern = append(pattern, nstore.Variable{Name: name})
	}
	pattern = append(pattern, changeid, nstore.Variable{Name: "alive"})
	cur, err := nstore.Query(ctx, tx, vn.Tuples, pattern)
	if err != nil {
		return nil, err
	}
	var out []nstore.Bindings
	for cur.Next(ctx) {
		out = append(out, cur.Bindings())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ChangeApply assigns changeid an engine-ordered significance, making
// every tuple it wrote visible to Ask/Select/Where/Query from this point
// on. Applying an already-applied change is a no-op (logged, not an
// error): it can legitimately happen when a transaction retries after
// its Commit raced with another one that also applied the same change.
func ChangeApply(ctx context.Context, tx found.Transaction, vn *VNStore, changeid uuid.UUID) error {
	value, err := nstore.Get(ctx, tx, vn.Changes, changeid, "significance", nil)
	if err != nil {
		return err
	}
	if value == nil {
		found.Root.Warn("vnstore: change already applied", "changeid", changeid)
		return nil
	}
	if err := nstore.Remove(tx, vn.Changes, changeid, "significance", nil); err != nil {
		return err
	}
	return nstore.AddWithVersionstamp(tx, vn.Changes, nil, changeid, "significance", tuple.IncompleteVersionstamp(0))
}

// Ask reports whether items is currently alive: among every change that
// ever wrote or removed exactly items, the applied change with the
// greatest significance wins; changes not yet applied (significance
// still nil) are invisible.
func Ask(ctx context.Context, tx found.Transaction, vn *VNStore, items ...interface{}) (bool, error) {
	if len(items) != len(vn.Items) {
		return false, &found.UsageError{Message: "vnstore: Ask: invalid item count"}
	}
	pattern := append(append([]interface{}{}, items...), nstore.Variable{Name: "changeid"}, nstore.Variable{Name: "alive"})
	cur, err := nstore.Select(ctx, tx, vn.Tuples, pattern, nstore.Bindings{})
	if err != nil {
		return false, err
	}
	ok := false
	var maxSig tuple.Versionstamp
	haveMax := false
	for cur.Next(ctx) {
		b := cur.Bindings()
		changeid := b["changeid"]
		isAlive, _ := b["alive"].(bool)
		sigCur, err := nstore.Select(ctx, tx, vn.Changes, []interface{}{changeid, "significance", nstore.Variable{Name: "significance"}}, nstore.Bindings{})
		if err != nil {
			return false, err
		}
		var sig interface{}
		if sigCur.Next(ctx) {
			sig = sigCur.Bindings()["significance"]
		}
		if err := sigCur.Err(); err != nil {
			return false, err
		}
		if sig == nil {
			continue
		}
		vs := sig.(tuple.Versionstamp)
		if !haveMax || versionstampGreater(vs, maxSig) {
			maxSig, haveMax = vs, true
			ok = isAlive
		}
	}
	if err := cur.Err(); err != nil {
		return false, err
	}
	return ok, nil
}

func versionstampGreater(a, b tuple.Versionstamp) bool {
	if c := bytes.Compare(a.TransactionVersion[:], b.TransactionVersion[:]); c != 0 {
		return c > 0
	}
	return a.UserVersion > b.UserVersion
}

// Add records items as alive under the transaction's active change (see
// ChangeContinue). The write is invisible to every reader until that
// change is applied.
func Add(tx found.Transaction, vn *VNStore, value []byte, items ...interface{}) error {
	if len(items) != len(vn.Items) {
		return &found.UsageError{Message: "vnstore: Add: invalid item count"}
	}
	changeid, err := activeChange(tx)
	if err != nil {
		return err
	}
	args := append(append([]interface{}{}, items...), changeid, true)
	return nstore.Add(tx, vn.Tuples, value, args...)
}

// Remove records items as dead under the active change, if items is
// currently alive; it reports whether it actually did anything.
func Remove(ctx context.Context, tx found.Transaction, vn *VNStore, items ...interface{}) (bool, error) {
	if len(items) != len(vn.Items) {
		return false, &found.UsageError{Message: "vnstore: Remove: invalid item count"}
	}
	ok, err := Ask(ctx, tx, vn, items...)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	changeid, err := activeChange(tx)
	if err != nil {
		return false, err
	}
	args := append(append([]interface{}{}, items...), changeid, false)
	if err := nstore.Add(tx, vn.Tuples, nil, args...); err != nil {
		return false, err
	}
	return true, nil
}

// Cursor lazily yields Bindings that are currently alive, re-validated
// against Ask as they are produced (spec's temporal-consistency
// invariant: a binding is never yielded for a tuple some later-applied
// change has since retracted).
type Cursor interface {
	Next(ctx context.Context) bool
	Bindings() nstore.Bindings
	Err() error
}

// Select yields, for every currently-alive tuple matching pattern, a
// Bindings extending seed with every variable position bound.
func Select(ctx context.Context, tx found.Transaction, vn *VNStore, pattern []interface{}, seed nstore.Bindings) (Cursor, error) {
	if len(pattern) != len(vn.Items) {
		return nil, &found.UsageError{Message: "vnstore: Select: invalid pattern arity"}
	}
	extended := append(append([]interface{}{}, pattern...), nstore.Variable{Name: "__changeid"}, nstore.Variable{Name: "__alive"})
	inner, err := nstore.Select(ctx, tx, vn.Tuples, extended, seed)
	if err != nil {
		return nil, err
	}
	return &selectCursor{tx: tx, vn: vn, pattern: pattern, inner: inner}, nil
}

type selectCursor struct {
	tx      found.Transaction
	vn      *VNStore
	pattern []interface{}
	inner   nstore.Cursor
	cur     nstore.Bindings
	err     error
}

func (c *selectCursor) Next(ctx context.Context) bool {
	for c.inner.Next(ctx) {
		b := c.inner.Bindings()
		alive, _ := b["__alive"].(bool)
		if !alive {
			continue
		}
		items := make([]interface{}, len(c.pattern))
		for i, item := range c.pattern {
			if v, isVar := item.(nstore.Variable); isVar {
				items[i] = b[v.Name]
			} else {
				items[i] = item
			}
		}
		ok, err := Ask(ctx, c.tx, c.vn, items...)
		if err != nil {
			c.err = err
			return false
		}
		if !ok {
			continue
		}
		out := make(nstore.Bindings, len(b))
		for k, v := range b {
			if k == "__changeid" || k == "__alive" {
				continue
			}
			out[k] = v
		}
		c.cur = out
		return true
	}
	if c.err == nil {
		c.err = c.inner.Err()
	}
	return false
}

func (c *selectCursor) Bindings() nstore.Bindings { return c.cur }
func (c *selectCursor) Err() error                 { return c.err }

// Where joins in against pattern, the same way nstore.Where does but over
// currently-alive tuples.
func Where(ctx context.Context, tx found.Transaction, vn *VNStore, in Cursor, pattern []interface{}) Cursor {
	return &whereCursor{tx: tx, vn: vn, in: in, pattern: pattern}
}

type whereCursor struct {
	tx      found.Transaction
	vn      *VNStore
	in      Cursor
	pattern []interface{}
	inner   Cursor
	err     error
}

func (c *whereCursor) Next(ctx context.Context) bool {
	for {
		if c.inner != nil {
			if c.inner.Next(ctx) {
				return true
			}
			if err := c.inner.Err(); err != nil {
				c.err = err
				return false
			}
			c.inner = nil
		}
		if !c.in.Next(ctx) {
			c.err = c.in.Err()
			return false
		}
		bindings := c.in.Bindings()
		bound := make([]interface{}, len(c.pattern))
		for i, item := range c.pattern {
			if v, isVar := item.(nstore.Variable); isVar {
				if value, ok := bindings[v.Name]; ok {
					bound[i] = value
					continue
				}
			}
			bound[i] = item
		}
		inner, err := Select(ctx, c.tx, c.vn, bound, bindings)
		if err != nil {
			c.err = err
			return false
		}
		c.inner = inner
	}
}

func (c *whereCursor) Bindings() nstore.Bindings { return c.inner.Bindings() }
func (c *whereCursor) Err() error                 { return c.err }

// Query chains Select over the first pattern and Where over each
// subsequent one.
func Query(ctx context.Context, tx found.Transaction, vn *VNStore, patterns ...[]interface{}) (Cursor, error) {
	if len(patterns) == 0 {
		return nil, &found.UsageError{Message: "vnstore: Query: at least one pattern is required"}
	}
	cur, err := Select(ctx, tx, vn, patterns[0], nstore.Bindings{})
	if err != nil {
		return nil, err
	}
	for _, pattern := range patterns[1:] {
		cur = Where(ctx, tx, vn, cur, pattern)
	}
	return cur, nil
}
