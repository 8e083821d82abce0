// Package nstore implements a fixed-arity relation store over an ordered
// key-value engine: every tuple of N items is indexed under a minimal
// covering set of permutations, chosen so that any pattern with at least
// one ground item resolves with a single range scan no matter which
// positions are bound.
package nstore

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/ledgerwatch/found"
	"github.com/ledgerwatch/found/tuple"
)

// Variable marks an unbound position in a pattern passed to Select, Where
// or Query.
type Variable struct {
	Name string
}

// NStore is an arity-N relation indexed under prefix.
type NStore struct {
	Prefix  []byte
	N       int
	Indices [][]int
}

// Make builds an NStore of the given arity under prefix, computing its
// covering set of index permutations once up front.
func Make(prefix []byte, n int) *NStore {
	return &NStore{Prefix: prefix, N: n, Indices: computeIndices(n)}
}

// Bindings maps variable names to the values they were resolved to. Each
// Set returns a new Bindings sharing the receiver's entries, so a caller
// holding an earlier Bindings never observes a later mutation.
type Bindings map[string]interface{}

// Set returns a copy of b with name bound to value.
func (b Bindings) Set(name string, value interface{}) Bindings {
	out := make(Bindings, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	out[name] = value
	return out
}

// itemKey packs (subspace, items...) as a tuple and prepends ns's raw
// subspace prefix bytes, the standard subspace convention: the prefix is
// never itself a tuple element, so a scan bounded by it can never be
// confused with one bounded by a different store's prefix.
func itemKey(prefix []byte, subspace int, items []interface{}) []byte {
	t := make(tuple.Tuple, 0, len(items)+1)
	t = append(t, int64(subspace))
	t = append(t, items...)
	packed := tuple.Pack(t)
	out := make([]byte, 0, len(prefix)+len(packed))
	out = append(out, prefix...)
	out = append(out, packed...)
	return out
}

// Add indexes items, one entry per covering permutation.
func Add(tx found.Transaction, ns *NStore, value []byte, items ...interface{}) error {
	if len(items) != ns.N {
		return &found.UsageError{Message: "nstore: Add: invalid item count"}
	}
	for subspace, index := range ns.Indices {
		permutation := permute(items, index)
		tx.Set(itemKey(ns.Prefix, subspace, permutation), value)
	}
	return nil
}

// AddWithVersionstamp is like Add, but one element of items is an
// incomplete tuple.Versionstamp (see tuple.IncompleteVersionstamp): the
// engine splices its own commit version into every covering-permutation
// key that contains it, atomically, instead of the caller picking an id.
// Used by vnstore to assign a change's significance from the engine's own
// commit ordering rather than a client-generated identifier.
func AddWithVersionstamp(tx found.Transaction, ns *NStore, value []byte, items ...interface{}) error {
	if len(items) != ns.N {
		return &found.UsageError{Message: "nstore: AddWithVersionstamp: invalid item count"}
	}
	for subspace, index := range ns.Indices {
		permutation := permute(items, index)
		key, err := itemKeyWithVersionstamp(ns.Prefix, subspace, permutation)
		if err != nil {
			return err
		}
		tx.AtomicOp(found.MutationSetVersionstampedKey, key, value)
	}
	return nil
}

func itemKeyWithVersionstamp(prefix []byte, subspace int, items []interface{}) ([]byte, error) {
	t := make(tuple.Tuple, 0, len(items)+1)
	t = append(t, int64(subspace))
	t = append(t, items...)
	packed, err := tuple.PackWithVersionstamp(t)
	if err != nil {
		return nil, err
	}
	tupleLen := len(packed) - 4
	offset := binary.LittleEndian.Uint32(packed[tupleLen:]) + uint32(len(prefix))
	out := make([]byte, 0, len(prefix)+len(packed))
	out = append(out, prefix...)
	out = append(out, packed[:tupleLen]...)
	var offBytes [4]byte
	binary.LittleEndian.PutUint32(offBytes[:], offset)
	out = append(out, offBytes[:]...)
	return out, nil
}

// Remove deletes every index entry for items.
func Remove(tx found.Transaction, ns *NStore, items ...interface{}) error {
	if len(items) != ns.N {
		return &found.UsageError{Message: "nstore: Remove: invalid item count"}
	}
	for subspace, index := range ns.Indices {
		permutation := permute(items, index)
		tx.Clear(itemKey(ns.Prefix, subspace, permutation))
	}
	return nil
}

// Get reads the value stored for the fully-ground tuple items, using
// subspace 0 (the identity permutation is always index 0's role as the
// primary key order). It returns a nil slice, nil error if absent.
func Get(ctx context.Context, tx found.Transaction, ns *NStore, items ...interface{}) ([]byte, error) {
	if len(items) != ns.N {
		return nil, &found.UsageError{Message: "nstore: Get: invalid item count"}
	}
	return tx.Get(ctx, itemKey(ns.Prefix, 0, items))
}

func permute(items []interface{}, index []int) []interface{} {
	out := make([]interface{}, len(index))
	for i, pos := range index {
		out[i] = items[pos]
	}
	return out
}

// Cursor lazily yields Bindings, the way found.RangeResult lazily yields
// key-value pairs: each Next may suspend on an engine round-trip.
type Cursor interface {
	Next(ctx context.Context) bool
	Bindings() Bindings
	Err() error
}

// Select yields, for every stored tuple matching pattern, a Bindings
// extending seed with every variable position in pattern bound to the
// matching tuple's value at that position.
func Select(ctx context.Context, tx found.Transaction, ns *NStore, pattern []interface{}, seed Bindings) (Cursor, error) {
	if len(pattern) != ns.N {
		return nil, &found.UsageError{Message: "nstore: Select: invalid pattern arity"}
	}
	var combination []int
	for i, item := range pattern {
		if _, isVar := item.(Variable); !isVar {
			combination = append(combination, i)
		}
	}
	subspace := -1
	var index []int
	for s, idx := range ns.Indices {
		if isPermutationPrefix(combination, idx) {
			subspace, index = s, idx
			break
		}
	}
	if subspace == -1 {
		return nil, &found.DataError{Message: "nstore: Select: no covering permutation resolves this pattern"}
	}

	prefixItems := make([]interface{}, 0, len(combination))
	for _, i := range index {
		if _, isVar := pattern[i].(Variable); !isVar {
			prefixItems = append(prefixItems, pattern[i])
		}
	}
	start := itemKey(ns.Prefix, subspace, prefixItems)
	end, err := tuple.NextPrefix(start)
	if err != nil {
		return nil, err
	}

	rr := tx.GetRange(found.FirstGreaterOrEqual(start), found.FirstGreaterOrEqual(end), found.RangeOptions{})
	return &selectCursor{rr: rr, ns: ns, pattern: pattern, index: index, prefixLen: len(ns.Prefix), seed: seed}, nil
}

type selectCursor struct {
	rr        found.RangeResult
	ns        *NStore
	pattern   []interface{}
	index     []int
	prefixLen int
	seed      Bindings
	cur       Bindings
	err       error
}

func (c *selectCursor) Next(ctx context.Context) bool {
	if !c.rr.Next(ctx) {
		c.err = c.rr.Err()
		return false
	}
	kv := c.rr.KeyValue()
	t, err := tuple.Unpack(kv.Key[c.prefixLen:])
	if err != nil {
		c.err = err
		return false
	}
	// t[0] is the subspace marker; the remaining n elements are in index order.
	permuted := t[1:]
	orig := make([]interface{}, c.ns.N)
	for j, pos := range c.index {
		orig[pos] = permuted[j]
	}
	bindings := c.seed
	for i, item := range c.pattern {
		if v, isVar := item.(Variable); isVar {
			bindings = bindings.Set(v.Name, orig[i])
		}
	}
	c.cur = bindings
	return true
}

func (c *selectCursor) Bindings() Bindings { return c.cur }
func (c *selectCursor) Err() error          { return c.err }

// Where joins in against pattern: for every Bindings in, unbound
// positions of pattern are resolved against in's own bindings where a
// name already has a value, then Select is run over the remainder.
func Where(ctx context.Context, tx found.Transaction, ns *NStore, in Cursor, pattern []interface{}) Cursor {
	return &whereCursor{ctx: ctx, tx: tx, ns: ns, in: in, pattern: pattern}
}

type whereCursor struct {
	ctx     context.Context
	tx      found.Transaction
	ns      *NStore
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
			if v, isVar := item.(Variable); isVar {
				if value, ok := bindings[v.Name]; ok {
					bound[i] = value
					continue
				}
			}
			bound[i] = item
		}
		inner, err := Select(ctx, c.tx, c.ns, bound, bindings)
		if err != nil {
			c.err = err
			return false
		}
		c.inner = inner
	}
}

func (c *whereCursor) Bindings() Bindings {
	return c.inner.Bindings()
}

func (c *whereCursor) Err() error { return c.err }

// Query chains Select over the first pattern and Where over each
// subsequent one, the way a conjunctive query is built clause by clause.
func Query(ctx context.Context, tx found.Transaction, ns *NStore, patterns ...[]interface{}) (Cursor, error) {
	if len(patterns) == 0 {
		return nil, &found.UsageError{Message: "nstore: Query: at least one pattern is required"}
	}
	cur, err := Select(ctx, tx, ns, patterns[0], Bindings{})
	if err != nil {
		return nil, err
	}
	for _, pattern := range patterns[1:] {
		cur = Where(ctx, tx, ns, cur, pattern)
	}
	return cur, nil
}

// isPermutationPrefix reports whether the first len(combination)
// positions of index are, as a set, exactly combination — i.e. whether
// some permutation of combination is a prefix of index.
func isPermutationPrefix(combination []int, index []int) bool {
	if len(combination) > len(index) {
		return false
	}
	if len(combination) == 0 {
		return true
	}
	want := append([]int(nil), combination...)
	got := append([]int(nil), index[:len(combination)]...)
	sort.Ints(want)
	sort.Ints(got)
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

// computeIndices returns a minimal set of permutations of 0..n-1 such
// that for any subset of bound positions, at least one permutation in
// the set has exactly that subset as a prefix (in some order). See
// https://stackoverflow.com/a/55148433 for the construction this ports.
func computeIndices(n int) [][]int {
	k := n / 2
	var result [][]int
	for _, c := range combinations(n, k) {
		inC := make(map[int]bool, len(c))
		for _, x := range c {
			inC[x] = true
		}
		type item struct {
			idx  int
			flag bool
		}
		l := make([]item, n)
		for i := 0; i < n; i++ {
			l[i] = item{idx: i, flag: inC[i]}
		}
		var a, b []int
		for {
			matched := -1
			for i := 0; i < len(l)-1; i++ {
				if !l[i].flag && l[i+1].flag {
					matched = i
					break
				}
			}
			if matched == -1 {
				break
			}
			a = append(a, l[matched+1].idx)
			b = append(b, l[matched].idx)
			l = append(l[:matched], l[matched+2:]...)
		}
		perm := make([]int, 0, n)
		perm = append(perm, a...)
		for _, it := range l {
			perm = append(perm, it.idx)
		}
		perm = append(perm, b...)
		result = append(result, perm)
	}
	return result
}

// combinations returns every k-combination of 0..n-1, in lexicographic
// order, the way itertools.combinations does.
func combinations(n, k int) [][]int {
	if k == 0 {
		return [][]int{{}}
	}
	if k > n {
		return nil
	}
	indices := make([]int, k)
	for i := range indices {
		indices[i] = i
	}
	var result [][]int
	for {
		combo := make([]int, k)
		copy(combo, indices)
		result = append(result, combo)

		i := k - 1
		for i >= 0 && indices[i] == i+n-k {
			i--
		}
		if i < 0 {
			return result
		}
		indices[i]++
		for j := i + 1; j < k; j++ {
			indices[j] = indices[j-1] + 1
		}
	}
}
