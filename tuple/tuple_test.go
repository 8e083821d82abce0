package tuple

import (
	"bytes"
	"sort"
	"testing"

	"github.com/pborman/uuid"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	u := uuid.NewRandom()
	cases := []Tuple{
		{},
		{nil},
		{[]byte("hello")},
		{"hyper.dev"},
		{int64(0), int64(-1), int64(1), int64(-255), int64(255), int64(1 << 40)},
		{float32(3.5), float32(-3.5)},
		{3.14159, -3.14159},
		{true, false},
		{u},
		{Tuple{int64(1), "nested", nil}},
		{int64(42), "mixed", []byte{0x00, 0x01, 0xFF}, nil},
	}
	for _, tup := range cases {
		packed := Pack(tup)
		got, err := Unpack(packed)
		require.NoError(t, err)
		require.Equal(t, normalize(tup), normalize(got))
	}
}

// normalize flattens empty-vs-nil Tuple distinctions introduced by append
// semantics so comparisons focus on element values.
func normalize(t Tuple) Tuple {
	if len(t) == 0 {
		return Tuple{}
	}
	out := make(Tuple, len(t))
	for i, e := range t {
		if nested, ok := e.(Tuple); ok {
			out[i] = normalize(nested)
		} else {
			out[i] = e
		}
	}
	return out
}

func TestOrderMatchesBytewiseOrder(t *testing.T) {
	values := []int64{-1 << 40, -256, -255, -1, 0, 1, 255, 256, 1 << 40}
	packed := make([][]byte, len(values))
	for i, v := range values {
		packed[i] = Pack(Tuple{v})
	}
	sorted := append([][]byte{}, packed...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })
	for i := range packed {
		require.Equal(t, packed[i], sorted[i], "values must already be in bytewise-sorted order")
	}

	strs := []string{"a", "aa", "ab", "b", "hyper.dev"}
	for i := 0; i < len(strs)-1; i++ {
		a := Pack(Tuple{strs[i]})
		b := Pack(Tuple{strs[i+1]})
		require.True(t, bytes.Compare(a, b) < 0)
	}
}

func TestNegativeFloatsSortBeforePositive(t *testing.T) {
	neg := Pack(Tuple{float64(-1.5)})
	pos := Pack(Tuple{float64(1.5)})
	require.True(t, bytes.Compare(neg, pos) < 0)

	neg32 := Pack(Tuple{float32(-1.5)})
	pos32 := Pack(Tuple{float32(1.5)})
	require.True(t, bytes.Compare(neg32, pos32) < 0)
}

func TestNextPrefix(t *testing.T) {
	next, err := NextPrefix([]byte{0x01, 0x02})
	require.NoError(t, err)
	require.True(t, bytes.Compare(next, []byte{0x01, 0x02}) > 0)
	require.True(t, bytes.Compare(next, []byte{0x01, 0x02, 0x00}) > 0)
	require.True(t, bytes.Compare(next, []byte{0x01, 0x03}) == 0)

	_, err = NextPrefix([]byte{0xFF, 0xFF})
	require.ErrorIs(t, err, ErrAllFF)

	_, err = NextPrefix(nil)
	require.ErrorIs(t, err, ErrAllFF)
}

func TestPackWithVersionstamp(t *testing.T) {
	vs := IncompleteVersionstamp(0)
	require.True(t, HasIncompleteVersionstamp(Tuple{"prefix", vs}))

	packed, err := PackWithVersionstamp(Tuple{"prefix", vs})
	require.NoError(t, err)
	require.True(t, len(packed) >= 4)

	_, err = PackWithVersionstamp(Tuple{"no versionstamp here"})
	require.Error(t, err)
}

func TestUnpackTruncated(t *testing.T) {
	_, err := Unpack([]byte{codeBytes, 'a'})
	require.ErrorIs(t, err, ErrTruncated)
}
