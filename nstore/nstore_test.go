package nstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
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

func TestComputeIndicesCoversEveryCombination(t *testing.T) {
	for n := 1; n <= 6; n++ {
		ns := Make([]byte("t"), n)
		for _, idx := range ns.Indices {
			assert.Len(t, idx, n)
			seen := make(map[int]bool, n)
			for _, v := range idx {
				seen[v] = true
			}
			assert.Len(t, seen, n, "index must be a permutation of 0..n-1")
		}
		for mask := 1; mask < (1 << n); mask++ {
			var combination []int
			for i := 0; i < n; i++ {
				if mask&(1<<i) != 0 {
					combination = append(combination, i)
				}
			}
			ok := false
			for _, idx := range ns.Indices {
				if isPermutationPrefix(combination, idx) {
					ok = true
					break
				}
			}
			assert.Truef(t, ok, "n=%d combination=%v has no covering permutation", n, combination)
		}
	}
}

func TestAddGetRemove(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	ns := Make([]byte("test"), 3)

	require.NoError(t, Add(tx, ns, []byte("v1"), "alice", "knows", "bob"))
	require.NoError(t, Add(tx, ns, []byte("v2"), "bob", "knows", "carol"))

	v, err := Get(ctx, tx, ns, "alice", "knows", "bob")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, Remove(tx, ns, "alice", "knows", "bob"))
	v, err = Get(ctx, tx, ns, "alice", "knows", "bob")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSelectAllPatternsOfGroundPositions(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	ns := Make([]byte("test"), 3)

	require.NoError(t, Add(tx, ns, nil, "alice", "knows", "bob"))
	require.NoError(t, Add(tx, ns, nil, "alice", "knows", "carol"))
	require.NoError(t, Add(tx, ns, nil, "bob", "knows", "alice"))

	collect := func(cur Cursor, err error) []Bindings {
		require.NoError(t, err)
		var out []Bindings
		for cur.Next(ctx) {
			out = append(out, cur.Bindings())
		}
		require.NoError(t, cur.Err())
		return out
	}

	who := collect(Select(ctx, tx, ns, []interface{}{"alice", "knows", Variable{"whom"}}, Bindings{}))
	require.Len(t, who, 2)
	var whoms []interface{}
	for _, b := range who {
		whoms = append(whoms, b["whom"])
	}
	assert.ElementsMatch(t, []interface{}{"bob", "carol"}, whoms)

	subjects := collect(Select(ctx, tx, ns, []interface{}{Variable{"who"}, "knows", "alice"}, Bindings{}))
	require.Len(t, subjects, 1)
	assert.Equal(t, "bob", subjects[0]["who"])

	everything := collect(Select(ctx, tx, ns, []interface{}{Variable{"s"}, Variable{"p"}, Variable{"o"}}, Bindings{}))
	assert.Len(t, everything, 3)
}

func TestQueryJoinsAcrossPatterns(t *testing.T) {
	ctx := context.Background()
	tx := newTx(t)
	ns := Make([]byte("test"), 3)

	require.NoError(t, Add(tx, ns, nil, "alice", "knows", "bob"))
	require.NoError(t, Add(tx, ns, nil, "bob", "knows", "carol"))
	require.NoError(t, Add(tx, ns, nil, "alice", "knows", "carol"))

	// Find X such that alice knows X and X knows someone.
	cur, err := Query(ctx, tx, ns,
		[]interface{}{"alice", "knows", Variable{"x"}},
		[]interface{}{Variable{"x"}, "knows", Variable{"y"}},
	)
	require.NoError(t, err)
	var results []string
	for cur.Next(ctx) {
		b := cur.Bindings()
		results = append(results, b["x"].(string)+"->"+b["y"].(string))
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, []string{"bob->carol"}, results)
}
