// Package eavstore stores records as flat dictionaries of attribute/value
// pairs keyed by a uid, with a secondary index on (attribute, value) for
// reverse lookups.
package eavstore

import (
	"context"

	"github.com/pborman/uuid"

	"github.com/ledgerwatch/found"
	"github.com/ledgerwatch/found/tuple"
)

// EAVStore is a record store under prefix. dataPrefix maps (uid, attr) to
// the attribute's packed value; indexPrefix maps (attr, value, uid) to
// nothing, for reverse lookups by value.
type EAVStore struct {
	dataPrefix  []byte
	indexPrefix []byte
}

// Make builds an EAVStore under prefix.
func Make(prefix []byte) *EAVStore {
	return &EAVStore{
		dataPrefix:  append(append([]byte{}, prefix...), 0x01),
		indexPrefix: append(append([]byte{}, prefix...), 0x02),
	}
}

func dataKey(e *EAVStore, uid uuid.UUID, attr string) []byte {
	return append(append([]byte{}, e.dataPrefix...), tuple.Pack(tuple.Tuple{uid, attr})...)
}

func dataPrefixKey(e *EAVStore, uid uuid.UUID) []byte {
	return append(append([]byte{}, e.dataPrefix...), tuple.Pack(tuple.Tuple{uid})...)
}

func indexKey(e *EAVStore, attr string, value interface{}, uid uuid.UUID) []byte {
	return append(append([]byte{}, e.indexPrefix...), tuple.Pack(tuple.Tuple{attr, value, uid})...)
}

func indexPrefixKey(e *EAVStore, attr string, value interface{}) []byte {
	return append(append([]byte{}, e.indexPrefix...), tuple.Pack(tuple.Tuple{attr, value})...)
}

// Create stores dict under a fresh random uid and returns it. Use
// CreateWithUID to assign the record's own uid, e.g. when it names an
// entity that already exists elsewhere.
func Create(tx found.Transaction, e *EAVStore, dict map[string]interface{}) (uuid.UUID, error) {
	return CreateWithUID(tx, e, uuid.NewRandom(), dict)
}

// CreateWithUID stores dict under uid, writing both the data entry and
// the reverse index entry for every attribute.
func CreateWithUID(tx found.Transaction, e *EAVStore, uid uuid.UUID, dict map[string]interface{}) (uuid.UUID, error) {
	for attr, value := range dict {
		tx.Set(dataKey(e, uid, attr), tuple.Pack(tuple.Tuple{value}))
	}
	for attr, value := range dict {
		tx.Set(indexKey(e, attr, value, uid), []byte{})
	}
	return uid, nil
}

// Get reassembles the dictionary stored under uid, empty if uid names no
// record.
func Get(ctx context.Context, tx found.Transaction, e *EAVStore, uid uuid.UUID) (map[string]interface{}, error) {
	start := dataPrefixKey(e, uid)
	end, err := tuple.NextPrefix(start)
	if err != nil {
		return nil, err
	}
	rr := tx.GetRange(found.FirstGreaterOrEqual(start), found.FirstGreaterOrEqual(end), found.RangeOptions{})
	out := make(map[string]interface{})
	for rr.Next(ctx) {
		kv := rr.KeyValue()
		t, err := tuple.Unpack(kv.Key[len(e.dataPrefix):])
		if err != nil {
			return nil, err
		}
		attr := t[len(t)-1].(string)
		v, err := tuple.Unpack(kv.Value)
		if err != nil {
			return nil, err
		}
		out[attr] = v[0]
	}
	if err := rr.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Remove clears every data and index entry belonging to uid.
func Remove(ctx context.Context, tx found.Transaction, e *EAVStore, uid uuid.UUID) error {
	dict, err := Get(ctx, tx, e, uid)
	if err != nil {
		return err
	}
	for attr, value := range dict {
		tx.Clear(indexKey(e, attr, value, uid))
	}
	start := dataPrefixKey(e, uid)
	end, err := tuple.NextPrefix(start)
	if err != nil {
		return err
	}
	tx.ClearRange(start, end)
	return nil
}

// Update replaces the record under uid with dict.
func Update(ctx context.Context, tx found.Transaction, e *EAVStore, uid uuid.UUID, dict map[string]interface{}) error {
	if err := Remove(ctx, tx, e, uid); err != nil {
		return err
	}
	_, err := CreateWithUID(tx, e, uid, dict)
	return err
}

// Cursor iterates uids found in the reverse index.
type Cursor interface {
	Next(ctx context.Context) bool
	UID() uuid.UUID
	Err() error
}

type queryCursor struct {
	rr     found.RangeResult
	prefix []byte
	cur    uuid.UUID
	err    error
}

func (c *queryCursor) Next(ctx context.Context) bool {
	if !c.rr.Next(ctx) {
		c.err = c.rr.Err()
		return false
	}
	kv := c.rr.KeyValue()
	t, err := tuple.Unpack(kv.Key[len(c.prefix):])
	if err != nil {
		c.err = err
		return false
	}
	c.cur = t[len(t)-1].(uuid.UUID)
	return true
}

func (c *queryCursor) UID() uuid.UUID { return c.cur }
func (c *queryCursor) Err() error     { return c.err }

// Query returns every uid whose record has attr set to value.
func Query(ctx context.Context, tx found.Transaction, e *EAVStore, attr string, value interface{}) (Cursor, error) {
	start := indexPrefixKey(e, attr, value)
	end, err := tuple.NextPrefix(start)
	if err != nil {
		return nil, err
	}
	rr := tx.GetRange(found.FirstGreaterOrEqual(start), found.FirstGreaterOrEqual(end), found.RangeOptions{})
	return &queryCursor{rr: rr, prefix: e.indexPrefix}, nil
}
