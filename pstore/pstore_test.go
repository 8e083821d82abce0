package pstore

import (
	"context"
	"testing"

	"github.com/pborman/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/found"
)

func newTx(t *testing.T) found.Transaction {
	t.Helper()
	db := found.NewMemDatabase()
	tx, err := db.CreateTransaction(false)
	require.NoError(t, err)
	return tx
}

func TestSearchScoresAndFiltersByKeyword(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	p := Make([]byte("search"))

	doc0 := uuid.NewRandom()
	doc1 := uuid.NewRandom()
	doc2 := uuid.NewRandom()

	require.NoError(t, Index(ctx, tx, p, doc0, map[string]int{"foundationdb": 1, "okvs": 2, "database": 42}))
	require.NoError(t, Index(ctx, tx, p, doc1, map[string]int{"sqlite": 1, "sql": 2, "database": 3}))
	require.NoError(t, Index(ctx, tx, p, doc2, map[string]int{"spam": 42}))

	hits, err := Search(ctx, tx, p, []string{"foundationdb"}, 10)
	require.NoError(t, err)
	require.Equal(t, []Hit{{DocUID: doc0, Score: 1}}, hits)

	hits, err = Search(ctx, tx, p, []string{"spam"}, 10)
	require.NoError(t, err)
	require.Equal(t, []Hit{{DocUID: doc2, Score: 42}}, hits)

	hits, err = Search(ctx, tx, p, []string{"database"}, 10)
	require.NoError(t, err)
	require.Equal(t, []Hit{{DocUID: doc0, Score: 42}, {DocUID: doc1, Score: 3}}, hits)
}

func TestSearchUnknownKeywordIsEmpty(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	p := Make([]byte("search"))

	require.NoError(t, Index(ctx, tx, p, uuid.NewRandom(), map[string]int{"alpha": 1}))

	hits, err := Search(ctx, tx, p, []string{"never-indexed"}, 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestSearchRequiresAllKeywords(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	p := Make([]byte("search"))

	doc0 := uuid.NewRandom()
	require.NoError(t, Index(ctx, tx, p, doc0, map[string]int{"foundationdb": 1, "okvs": 2}))
	require.NoError(t, Index(ctx, tx, p, uuid.NewRandom(), map[string]int{"foundationdb": 5}))

	hits, err := Search(ctx, tx, p, []string{"foundationdb", "okvs"}, 10)
	require.NoError(t, err)
	require.Equal(t, []Hit{{DocUID: doc0, Score: 3}}, hits)
}

func TestSearchRespectsLimit(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	p := Make([]byte("search"))

	for i := 0; i < 5; i++ {
		require.NoError(t, Index(ctx, tx, p, uuid.NewRandom(), map[string]int{"common": i + 1}))
	}

	hits, err := Search(ctx, tx, p, []string{"common"}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}
