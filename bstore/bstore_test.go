package bstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/pborman/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/found"
)

func mustRandomUID() uuid.UUID {
	return uuid.NewRandom()
}

func newTx(t *testing.T) found.Transaction {
	t.Helper()
	db := found.NewMemDatabase()
	tx, err := db.CreateTransaction(false)
	require.NoError(t, err)
	return tx
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	b := Make([]byte("blobs"))

	blob := []byte("the quick brown fox jumps over the lazy dog")
	uid1, err := GetOrCreate(ctx, tx, b, blob)
	require.NoError(t, err)
	uid2, err := GetOrCreate(ctx, tx, b, blob)
	require.NoError(t, err)
	require.Equal(t, uid1, uid2)

	got, err := Get(ctx, tx, b, uid1)
	require.NoError(t, err)
	require.True(t, bytes.Equal(blob, got))
}

func TestLargeBlobIsChunked(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	b := Make([]byte("blobs"))

	blob := bytes.Repeat([]byte{0x42}, found.MaxValue*3+17)
	uid, err := GetOrCreate(ctx, tx, b, blob)
	require.NoError(t, err)

	got, err := Get(ctx, tx, b, uid)
	require.NoError(t, err)
	require.True(t, bytes.Equal(blob, got))
}

func TestDifferentContentGetsDifferentUID(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	b := Make([]byte("blobs"))

	u1, err := GetOrCreate(ctx, tx, b, []byte("one"))
	require.NoError(t, err)
	u2, err := GetOrCreate(ctx, tx, b, []byte("two"))
	require.NoError(t, err)
	require.NotEqual(t, u1, u2)
}

func TestRefUnref(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	b := Make([]byte("blobs"))

	uid, err := GetOrCreate(ctx, tx, b, []byte("referenced blob"))
	require.NoError(t, err)

	require.NoError(t, Ref(ctx, tx, b, uid, 7))
	require.NoError(t, Ref(ctx, tx, b, uid, 70000))

	count, err := RefCount(ctx, tx, b, uid)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)

	refs, err := Refs(ctx, tx, b, uid)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint32{7, 70000}, refs)

	require.NoError(t, Unref(ctx, tx, b, uid, 7))
	count, err = RefCount(ctx, tx, b, uid)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
}

func TestGetUnknownUIDIsDataError(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	b := Make([]byte("blobs"))

	_, err := GetOrCreate(ctx, tx, b, []byte("something"))
	require.NoError(t, err)

	_, err = Get(ctx, tx, b, mustRandomUID())
	require.Error(t, err)
	var dataErr *found.DataError
	require.ErrorAs(t, err, &dataErr)
}
