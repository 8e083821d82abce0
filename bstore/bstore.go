// Package bstore is a content-addressed blob store: identical blobs are
// stored once, under a random uid that their hash maps to, and chunked so
// no single value ever exceeds the engine's per-value size limit.
package bstore

import (
	"context"

	"github.com/c2h5oh/datasize"
	"github.com/pborman/uuid"
	"github.com/RoaringBitmap/roaring"
	"golang.org/x/crypto/blake2b"

	"github.com/ledgerwatch/found"
	"github.com/ledgerwatch/found/tuple"
)

// BStore is a blob store under prefix. hashPrefix maps a content hash to
// the uid that owns it (for dedup); blobPrefix maps (uid, chunk index) to
// each chunk of the blob's bytes; refPrefix maps (uid, shard) to a Roaring
// bitmap of the small integer ids that reference uid.
type BStore struct {
	hashPrefix []byte
	blobPrefix []byte
	refPrefix  []byte
}

// Make builds a BStore under prefix.
func Make(prefix []byte) *BStore {
	return &BStore{
		hashPrefix: append(append([]byte{}, prefix...), 0x01),
		blobPrefix: append(append([]byte{}, prefix...), 0x02),
		refPrefix:  append(append([]byte{}, prefix...), 0x03),
	}
}

func hashKey(b *BStore, hash []byte) []byte {
	return append(append([]byte{}, b.hashPrefix...), tuple.Pack(tuple.Tuple{hash})...)
}

func blobChunkKey(b *BStore, uid uuid.UUID, index int) []byte {
	return append(append([]byte{}, b.blobPrefix...), tuple.Pack(tuple.Tuple{uid, int64(index)})...)
}

func blobPrefixKey(b *BStore, uid uuid.UUID) []byte {
	return append(append([]byte{}, b.blobPrefix...), tuple.Pack(tuple.Tuple{uid})...)
}

// GetOrCreate hashes blob and returns the uid already holding that
// content, chunking and storing it under a fresh uid the first time a
// given hash is seen.
func GetOrCreate(ctx context.Context, tx found.Transaction, b *BStore, blob []byte) (uuid.UUID, error) {
	hash := blake2b.Sum512(blob)
	key := hashKey(b, hash[:])
	existing, err := tx.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return uuid.UUID(existing), nil
	}

	uid := uuid.NewRandom()
	tx.Set(key, uid)
	for index := 0; index*found.MaxValue < len(blob); index++ {
		start := index * found.MaxValue
		end := start + found.MaxValue
		if end > len(blob) {
			end = len(blob)
		}
		tx.Set(blobChunkKey(b, uid, index), blob[start:end])
	}
	if len(blob) == 0 {
		// Even an empty blob gets one (empty) chunk, so Get can tell
		// "stored, empty" apart from "never stored".
		tx.Set(blobChunkKey(b, uid, 0), nil)
	}
	return uid, nil
}

// Get reassembles the blob stored under uid. It returns a DataError if
// uid names no blob: every uid ever handed out by GetOrCreate has at
// least one chunk, so an empty result means the uid is simply wrong.
func Get(ctx context.Context, tx found.Transaction, b *BStore, uid uuid.UUID) ([]byte, error) {
	start := blobPrefixKey(b, uid)
	end, err := tuple.NextPrefix(start)
	if err != nil {
		return nil, err
	}
	rr := tx.GetRange(found.FirstGreaterOrEqual(start), found.FirstGreaterOrEqual(end), found.RangeOptions{})
	var out []byte
	anyChunk := false
	for rr.Next(ctx) {
		anyChunk = true
		out = append(out, rr.KeyValue().Value...)
	}
	if err := rr.Err(); err != nil {
		return nil, err
	}
	if !anyChunk {
		return nil, &found.DataError{Message: "bstore: blob should be in database: uid=" + uid.String()}
	}
	return out, nil
}

// MaxShardBytes is the serialized size of a single reference shard's
// Roaring bitmap above which Ref and Unref log a warning when they store
// it; the shard is still written. The shard width (refShardWidth) is a
// package-wide constant, the same for every store.
const MaxShardBytes = 8 * datasize.KB

const refShardWidth = uint32(1 << 16)

func refShardKey(b *BStore, uid uuid.UUID, shard uint32) []byte {
	return append(append([]byte{}, b.refPrefix...), tuple.Pack(tuple.Tuple{uid, int64(shard)})...)
}

func loadShard(ctx context.Context, tx found.Transaction, key []byte) (*roaring.Bitmap, error) {
	raw, err := tx.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	bm := roaring.New()
	if raw != nil {
		if err := bm.UnmarshalBinary(raw); err != nil {
			return nil, &found.DataError{Message: "bstore: corrupt reference shard: " + err.Error()}
		}
	}
	return bm, nil
}

func storeShard(tx found.Transaction, key []byte, bm *roaring.Bitmap) error {
	if bm.IsEmpty() {
		tx.Clear(key)
		return nil
	}
	raw, err := bm.MarshalBinary()
	if err != nil {
		return err
	}
	if datasize.ByteSize(len(raw)) > MaxShardBytes {
		found.Root.Warn("bstore: reference shard exceeds soft size limit", "bytes", len(raw), "limit", uint64(MaxShardBytes))
	}
	tx.Set(key, raw)
	return nil
}

// Ref records that refID (an opaque small integer — a counter, another
// store's own id — not a UUID; Roaring bitmaps index uint32 members) now
// references uid.
func Ref(ctx context.Context, tx found.Transaction, b *BStore, uid uuid.UUID, refID uint32) error {
	shard, member := refID/refShardWidth, refID%refShardWidth
	key := refShardKey(b, uid, shard)
	bm, err := loadShard(ctx, tx, key)
	if err != nil {
		return err
	}
	bm.Add(member)
	return storeShard(tx, key, bm)
}

// Unref reverses a prior Ref. Unref-ing an id that was never Ref'd is a
// no-op.
func Unref(ctx context.Context, tx found.Transaction, b *BStore, uid uuid.UUID, refID uint32) error {
	shard, member := refID/refShardWidth, refID%refShardWidth
	key := refShardKey(b, uid, shard)
	bm, err := loadShard(ctx, tx, key)
	if err != nil {
		return err
	}
	bm.Remove(member)
	return storeShard(tx, key, bm)
}

// Refs returns every refID currently referencing uid, reconstructed from
// its sharded bitmaps.
func Refs(ctx context.Context, tx found.Transaction, b *BStore, uid uuid.UUID) ([]uint32, error) {
	start := append(append([]byte{}, b.refPrefix...), tuple.Pack(tuple.Tuple{uid})...)
	end, err := tuple.NextPrefix(start)
	if err != nil {
		return nil, err
	}
	rr := tx.GetRange(found.FirstGreaterOrEqual(start), found.FirstGreaterOrEqual(end), found.RangeOptions{})
	var out []uint32
	for rr.Next(ctx) {
		kv := rr.KeyValue()
		t, err := tuple.Unpack(kv.Key[len(b.refPrefix):])
		if err != nil {
			return nil, err
		}
		shard := uint32(t[1].(int64))
		bm := roaring.New()
		if err := bm.UnmarshalBinary(kv.Value); err != nil {
			return nil, &found.DataError{Message: "bstore: corrupt reference shard: " + err.Error()}
		}
		it := bm.Iterator()
		for it.HasNext() {
			out = append(out, shard*refShardWidth+it.Next())
		}
	}
	if err := rr.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RefCount is len(Refs(...)) without materializing the member list.
func RefCount(ctx context.Context, tx found.Transaction, b *BStore, uid uuid.UUID) (uint64, error) {
	start := append(append([]byte{}, b.refPrefix...), tuple.Pack(tuple.Tuple{uid})...)
	end, err := tuple.NextPrefix(start)
	if err != nil {
		return 0, err
	}
	rr := tx.GetRange(found.FirstGreaterOrEqual(start), found.FirstGreaterOrEqual(end), found.RangeOptions{})
	var total uint64
	for rr.Next(ctx) {
		bm := roaring.New()
		if err := bm.UnmarshalBinary(rr.KeyValue().Value); err != nil {
			return 0, &found.DataError{Message: "bstore: corrupt reference shard: " + err.Error()}
		}
		total += bm.GetCardinality()
	}
	if err := rr.Err(); err != nil {
		return 0, err
	}
	return total, nil
}
