package vnstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/found"
	"github.com/ledgerwatch/found/nstore"
)

func newDB() *found.MemDatabase { return found.NewMemDatabase() }

func TestAddApplyQueryThenRemove(t *testing.T) {
	ctx := context.Background()
	db := newDB()
	vn := Make([]byte("test"), []string{"subject", "key", "value"})

	for i := 0; i < 5; i++ {
		subjectQuery := func(tx found.Transaction) (interface{}, error) {
			cur, err := Query(ctx, tx, vn, []interface{}{nstore.Variable{Name: "subject"}, "title", "hypermove.fr"})
			if err != nil {
				return nil, err
			}
			var out []nstore.Bindings
			for cur.Next(ctx) {
				out = append(out, cur.Bindings())
			}
			return out, cur.Err()
		}

		res, err := found.Transactional(ctx, db, func(ctx context.Context, tx found.Transaction) (interface{}, error) {
			return subjectQuery(tx)
		})
		require.NoError(t, err)
		require.Empty(t, res)

		expected := "subject-" + string(rune('a'+i))

		_, err = found.Transactional(ctx, db, func(ctx context.Context, tx found.Transaction) (interface{}, error) {
			changeid, err := ChangeCreate(tx, vn)
			if err != nil {
				return nil, err
			}
			ChangeContinue(tx, changeid)
			if err := Add(tx, vn, nil, expected, "title", "hypermove"); err != nil {
				return nil, err
			}
			return nil, ChangeApply(ctx, tx, vn, changeid)
		})
		require.NoError(t, err)

		res, err = found.Transactional(ctx, db, func(ctx context.Context, tx found.Transaction) (interface{}, error) {
			cur, err := Query(ctx, tx, vn, []interface{}{nstore.Variable{Name: "subject"}, "title", "hypermove"})
			if err != nil {
				return nil, err
			}
			var out []nstore.Bindings
			for cur.Next(ctx) {
				out = append(out, cur.Bindings())
			}
			return out, cur.Err()
		})
		require.NoError(t, err)
		bindings := res.([]nstore.Bindings)
		require.Len(t, bindings, 1)
		require.Equal(t, expected, bindings[0]["subject"])

		_, err = found.Transactional(ctx, db, func(ctx context.Context, tx found.Transaction) (interface{}, error) {
			changeid, err := ChangeCreate(tx, vn)
			if err != nil {
				return nil, err
			}
			ChangeContinue(tx, changeid)
			if _, err := Remove(ctx, tx, vn, expected, "title", "hypermove"); err != nil {
				return nil, err
			}
			return nil, ChangeApply(ctx, tx, vn, changeid)
		})
		require.NoError(t, err)

		res, err = found.Transactional(ctx, db, func(ctx context.Context, tx found.Transaction) (interface{}, error) {
			cur, err := Query(ctx, tx, vn, []interface{}{nstore.Variable{Name: "subject"}, "title", "hypermove"})
			if err != nil {
				return nil, err
			}
			var out []nstore.Bindings
			for cur.Next(ctx) {
				out = append(out, cur.Bindings())
			}
			return out, cur.Err()
		})
		require.NoError(t, err)
		require.Empty(t, res)
	}
}

func TestUnappliedChangeIsInvisible(t *testing.T) {
	ctx := context.Background()
	db := newDB()
	vn := Make([]byte("test2"), []string{"subject", "key", "value"})

	_, err := found.Transactional(ctx, db, func(ctx context.Context, tx found.Transaction) (interface{}, error) {
		changeid, err := ChangeCreate(tx, vn)
		if err != nil {
			return nil, err
		}
		ChangeContinue(tx, changeid)
		return nil, Add(tx, vn, nil, "s", "title", "unapplied")
	})
	require.NoError(t, err)

	res, err := found.Transactional(ctx, db, func(ctx context.Context, tx found.Transaction) (interface{}, error) {
		ok, err := Ask(ctx, tx, vn, "s", "title", "unapplied")
		return ok, err
	})
	require.NoError(t, err)
	require.Equal(t, false, res)
}

func TestJoinAcrossPatterns(t *testing.T) {
	ctx := context.Background()
	db := newDB()
	vn := Make([]byte("test3"), []string{"subject", "key", "value"})

	_, err := found.Transactional(ctx, db, func(ctx context.Context, tx found.Transaction) (interface{}, error) {
		changeid, err := ChangeCreate(tx, vn)
		if err != nil {
			return nil, err
		}
		ChangeContinue(tx, changeid)
		if err := Add(tx, vn, nil, "euid", "title", "Fractal queries for the win"); err != nil {
			return nil, err
		}
		if err := Add(tx, vn, nil, "euid", "slug", "fractal-queries"); err != nil {
			return nil, err
		}
		return nil, ChangeApply(ctx, tx, vn, changeid)
	})
	require.NoError(t, err)

	res, err := found.Transactional(ctx, db, func(ctx context.Context, tx found.Transaction) (interface{}, error) {
		cur, err := Query(ctx, tx, vn,
			[]interface{}{nstore.Variable{Name: "subject"}, "slug", "fractal-queries"},
			[]interface{}{nstore.Variable{Name: "subject"}, "title", nstore.Variable{Name: "title"}},
		)
		if err != nil {
			return nil, err
		}
		var out []nstore.Bindings
		for cur.Next(ctx) {
			out = append(out, cur.Bindings())
		}
		return out, cur.Err()
	})
	require.NoError(t, err)
	bindings := res.([]nstore.Bindings)
	require.Len(t, bindings, 1)
	require.Equal(t, "euid", bindings[0]["subject"])
	require.Equal(t, "Fractal queries for the win", bindings[0]["title"])
}
