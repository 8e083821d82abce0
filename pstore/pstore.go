// Package pstore is an inverted-index search store: documents are indexed
// as token/count bags, and search resolves keywords to postings, picks the
// smallest posting list as a scan seed, then scores candidates against
// their compressed counters.
package pstore

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/pborman/uuid"
	"github.com/valyala/gozstd"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerwatch/found"
	"github.com/ledgerwatch/found/nstore"
	"github.com/ledgerwatch/found/tuple"
)

// errKeywordNotIndexed signals, internally to Search's fanned-out keyword
// resolution, that one keyword has no token — the search as a whole then
// returns an empty result rather than an error.
var errKeywordNotIndexed = errors.New("pstore: keyword not indexed")

// defaultSampleCount bounds how many candidates a search will score, so a
// popular keyword's posting list can't blow up tail latency. Overridable
// via FOUND_PSTORE_SAMPLE_COUNT.
const defaultSampleCount = 1337

func sampleCount() int {
	if raw := os.Getenv("FOUND_PSTORE_SAMPLE_COUNT"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultSampleCount
}

// PStore is a search index under prefix. Tokens is an arity-2 NStore
// mapping a token string to its uid and back; indexPrefix maps
// (token_uid, doc_uid) to nothing (a posting); countersPrefix maps doc_uid
// to its zstd-compressed, packed (token_uid, count) list.
type PStore struct {
	Tokens         *nstore.NStore
	indexPrefix    []byte
	countersPrefix []byte
}

// Make builds a PStore under prefix.
func Make(prefix []byte) *PStore {
	return &PStore{
		Tokens:         nstore.Make(append(append([]byte{}, prefix...), 0x01), 2),
		indexPrefix:    append(append([]byte{}, prefix...), 0x02),
		countersPrefix: append(append([]byte{}, prefix...), 0x03),
	}
}

func postingKey(p *PStore, tokenUID, docUID uuid.UUID) []byte {
	return append(append([]byte{}, p.indexPrefix...), tuple.Pack(tuple.Tuple{tokenUID, docUID})...)
}

func postingPrefixKey(p *PStore, tokenUID uuid.UUID) []byte {
	return append(append([]byte{}, p.indexPrefix...), tuple.Pack(tuple.Tuple{tokenUID})...)
}

func counterKey(p *PStore, docUID uuid.UUID) []byte {
	return append(append([]byte{}, p.countersPrefix...), tuple.Pack(tuple.Tuple{docUID})...)
}

func internToken(ctx context.Context, tx found.Transaction, p *PStore, word string) (uuid.UUID, error) {
	cur, err := nstore.Select(ctx, tx, p.Tokens, []interface{}{word, nstore.Variable{Name: "uid"}}, nstore.Bindings{})
	if err != nil {
		return nil, err
	}
	if cur.Next(ctx) {
		return cur.Bindings()["uid"].(uuid.UUID), nil
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	tokenUID := uuid.NewRandom()
	if err := nstore.Add(tx, p.Tokens, nil, word, tokenUID); err != nil {
		return nil, err
	}
	return tokenUID, nil
}

func lookupToken(ctx context.Context, tx found.Transaction, p *PStore, word string) (uuid.UUID, bool, error) {
	cur, err := nstore.Select(ctx, tx, p.Tokens, []interface{}{word, nstore.Variable{Name: "uid"}}, nstore.Bindings{})
	if err != nil {
		return nil, false, err
	}
	if cur.Next(ctx) {
		return cur.Bindings()["uid"].(uuid.UUID), true, nil
	}
	return nil, false, cur.Err()
}

// Index replaces docUID's token bag with counter, a mapping from token
// string to occurrence count, writing the compressed counter blob and one
// posting per distinct token.
func Index(ctx context.Context, tx found.Transaction, p *PStore, docUID uuid.UUID, counter map[string]int) error {
	tokens := make(map[string]int64, len(counter))
	tokenUIDs := make(map[string]uuid.UUID, len(counter))
	for word, count := range counter {
		tokenUID, err := internToken(ctx, tx, p, word)
		if err != nil {
			return err
		}
		tokens[tokenUID.String()] = int64(count)
		tokenUIDs[tokenUID.String()] = tokenUID
	}

	packed := make(tuple.Tuple, 0, len(tokens))
	for key, count := range tokens {
		packed = append(packed, tuple.Tuple{tokenUIDs[key], count})
	}
	tx.Set(counterKey(p, docUID), gozstd.Compress(nil, tuple.Pack(packed)))

	for _, tokenUID := range tokenUIDs {
		tx.Set(postingKey(p, tokenUID, docUID), []byte{})
	}
	return nil
}

// Hit is one scored search result.
type Hit struct {
	DocUID uuid.UUID
	Score  int64
}

// Search resolves keywords to tokens, scans the smallest posting list as a
// candidate seed, and returns the limit highest-scoring candidates that
// carry every keyword. It returns an empty result, no error, if any
// keyword was never indexed.
func Search(ctx context.Context, tx found.Transaction, p *PStore, keywords []string, limit int) ([]Hit, error) {
	tokenUIDs := make([]uuid.UUID, len(keywords))
	lookupGroup, lookupCtx := errgroup.WithContext(ctx)
	for i, word := range keywords {
		i, word := i, word
		lookupGroup.Go(func() error {
			tokenUID, ok, err := lookupToken(lookupCtx, tx, p, word)
			if err != nil {
				return err
			}
			if !ok {
				return errKeywordNotIndexed
			}
			tokenUIDs[i] = tokenUID
			return nil
		})
	}
	if err := lookupGroup.Wait(); err != nil {
		if errors.Is(err, errKeywordNotIndexed) {
			return nil, nil
		}
		return nil, err
	}

	seedIdx := 0
	var seedSize int64 = -1
	for i, tokenUID := range tokenUIDs {
		start := postingPrefixKey(p, tokenUID)
		end, err := tuple.NextPrefix(start)
		if err != nil {
			return nil, err
		}
		size, err := tx.GetEstimatedRangeSizeBytes(ctx, start, end)
		if err != nil {
			return nil, err
		}
		if seedSize == -1 || size < seedSize {
			seedSize, seedIdx = size, i
		}
	}

	start := postingPrefixKey(p, tokenUIDs[seedIdx])
	end, err := tuple.NextPrefix(start)
	if err != nil {
		return nil, err
	}
	rr := tx.GetRange(found.FirstGreaterOrEqual(start), found.FirstGreaterOrEqual(end), found.RangeOptions{})
	var candidates []uuid.UUID
	for rr.Next(ctx) {
		t, err := tuple.Unpack(rr.KeyValue().Key[len(p.indexPrefix):])
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, t[len(t)-1].(uuid.UUID))
	}
	if err := rr.Err(); err != nil {
		return nil, err
	}

	if max := sampleCount(); len(candidates) > max {
		rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
		candidates = candidates[:max]
	}

	var mu sync.Mutex
	var hits []Hit
	g, gctx := errgroup.WithContext(ctx)
	for _, candidate := range candidates {
		candidate := candidate
		g.Go(func() error {
			score, ok, err := scoreCandidate(gctx, tx, p, candidate, tokenUIDs)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				hits = append(hits, Hit{DocUID: candidate, Score: score})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func scoreCandidate(ctx context.Context, tx found.Transaction, p *PStore, docUID uuid.UUID, requiredTokens []uuid.UUID) (int64, bool, error) {
	raw, err := tx.Get(ctx, counterKey(p, docUID))
	if err != nil {
		return 0, false, err
	}
	if raw == nil {
		return 0, false, nil
	}
	decompressed, err := gozstd.Decompress(nil, raw)
	if err != nil {
		return 0, false, &found.DataError{Message: "pstore: corrupt counter blob: " + err.Error()}
	}
	t, err := tuple.Unpack(decompressed)
	if err != nil {
		return 0, false, err
	}
	counter := make(map[string]int64, len(t))
	for _, elem := range t {
		pair := elem.(tuple.Tuple)
		counter[pair[0].(uuid.UUID).String()] = pair[1].(int64)
	}

	var score int64
	for _, tokenUID := range requiredTokens {
		count, ok := counter[tokenUID.String()]
		if !ok {
			return 0, false, nil
		}
		score += count
	}
	return score, true, nil
}
