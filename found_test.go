package found

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedKeys(t *testing.T, tx Transaction, keys ...string) {
	t.Helper()
	for _, k := range keys {
		tx.Set([]byte(k), []byte(k))
	}
}

func collectKeys(ctx context.Context, rr RangeResult) ([]string, error) {
	var out []string
	for rr.Next(ctx) {
		out = append(out, string(rr.KeyValue().Key))
	}
	return out, rr.Err()
}

func TestKeyRangeScanIsOrderedAndHalfOpen(t *testing.T) {
	ctx := context.Background()
	db := NewMemDatabase()
	tx, err := db.CreateTransaction(false)
	require.NoError(t, err)

	seedKeys(t, tx, "a", "b", "c", "d", "e")

	rr := tx.GetRange(FirstGreaterOrEqual([]byte("b")), FirstGreaterOrEqual([]byte("d")), RangeOptions{})
	keys, err := collectKeys(ctx, rr)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, keys)
}

func TestReverseScanReturnsDescendingOrder(t *testing.T) {
	ctx := context.Background()
	db := NewMemDatabase()
	tx, err := db.CreateTransaction(false)
	require.NoError(t, err)

	seedKeys(t, tx, "a", "b", "c", "d", "e")

	rr := tx.GetRange(FirstGreaterOrEqual([]byte("a")), FirstGreaterOrEqual([]byte("e")), RangeOptions{Reverse: true})
	keys, err := collectKeys(ctx, rr)
	require.NoError(t, err)
	require.Equal(t, []string{"d", "c", "b", "a"}, keys)
}

func TestLastLessThanExcludesTheKeyItself(t *testing.T) {
	ctx := context.Background()
	db := NewMemDatabase()
	tx, err := db.CreateTransaction(false)
	require.NoError(t, err)

	seedKeys(t, tx, "a", "b", "c")

	// LastLessThan("b") resolves to the key strictly before "b"; paired
	// with FirstGreaterOrEqual("b") as the exclusive end, the range covers
	// ["a", "b") and yields only "a".
	rr := tx.GetRange(LastLessThan([]byte("b")), FirstGreaterOrEqual([]byte("b")), RangeOptions{})
	keys, err := collectKeys(ctx, rr)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, keys)
}

func TestLastLessOrEqualIncludesTheKeyItself(t *testing.T) {
	ctx := context.Background()
	db := NewMemDatabase()
	tx, err := db.CreateTransaction(false)
	require.NoError(t, err)

	seedKeys(t, tx, "a", "b", "c")

	// LastLessOrEqual("b") resolves to "b" itself, so scanning up to
	// FirstGreaterThan("b") yields exactly the single key "b".
	rr := tx.GetRange(LastLessOrEqual([]byte("b")), FirstGreaterThan([]byte("b")), RangeOptions{})
	keys, err := collectKeys(ctx, rr)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, keys)
}
