package eavstore

import (
	"context"
	"testing"

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

func TestCreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	e := Make([]byte("records"))

	uid, err := Create(tx, e, map[string]interface{}{
		"title": "Fractal queries for the win",
		"slug":  "fractal-queries",
	})
	require.NoError(t, err)

	got, err := Get(ctx, tx, e, uid)
	require.NoError(t, err)
	require.Equal(t, "Fractal queries for the win", got["title"])
	require.Equal(t, "fractal-queries", got["slug"])
}

func TestQueryByAttribute(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	e := Make([]byte("records"))

	uid, err := Create(tx, e, map[string]interface{}{"slug": "fractal-queries"})
	require.NoError(t, err)

	cur, err := Query(ctx, tx, e, "slug", "fractal-queries")
	require.NoError(t, err)
	var matches []interface{}
	for cur.Next(ctx) {
		matches = append(matches, cur.UID())
	}
	require.NoError(t, cur.Err())
	require.Len(t, matches, 1)
	require.Equal(t, uid, matches[0])
}

func TestUpdateReplacesRecordAndIndex(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	e := Make([]byte("records"))

	uid, err := Create(tx, e, map[string]interface{}{"slug": "old-slug"})
	require.NoError(t, err)

	require.NoError(t, Update(ctx, tx, e, uid, map[string]interface{}{"slug": "new-slug"}))

	got, err := Get(ctx, tx, e, uid)
	require.NoError(t, err)
	require.Equal(t, "new-slug", got["slug"])

	cur, err := Query(ctx, tx, e, "slug", "old-slug")
	require.NoError(t, err)
	require.False(t, cur.Next(ctx))
	require.NoError(t, cur.Err())

	cur, err = Query(ctx, tx, e, "slug", "new-slug")
	require.NoError(t, err)
	require.True(t, cur.Next(ctx))
	require.Equal(t, uid, cur.UID())
}

func TestRemoveClearsDataAndIndex(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	e := Make([]byte("records"))

	uid, err := Create(tx, e, map[string]interface{}{"slug": "gone-soon"})
	require.NoError(t, err)

	require.NoError(t, Remove(ctx, tx, e, uid))

	got, err := Get(ctx, tx, e, uid)
	require.NoError(t, err)
	require.Empty(t, got)

	cur, err := Query(ctx, tx, e, "slug", "gone-soon")
	require.NoError(t, err)
	require.False(t, cur.Next(ctx))
	require.NoError(t, cur.Err())
}
