package scan

import (
	"context"
	"path"
	"sort"
	"sync"
)

// emptyCursorBase flags a cursor returned with an empty batch; the offset is the remainder.
const emptyCursorBase = 1 << 20

// fakeStore is an in-memory sharded store whose native cursor is an offset into the sorted key list of a shard.
type fakeStore struct {
	mu      sync.Mutex
	shards  map[string][]string
	types   map[string]KeyType
	batch   int
	empties map[string]int   // shard -> number of empty non-terminal batches returned before real ones
	fail    map[string]error // shard -> error returned by the next call
	calls   []fakeCall
}

type fakeCall struct {
	Shard  string
	Cursor uint64
	Filter Filter
}

func newFakeStore(batch int) *fakeStore {
	return &fakeStore{
		shards:  make(map[string][]string),
		types:   make(map[string]KeyType),
		batch:   batch,
		empties: make(map[string]int),
		fail:    make(map[string]error),
	}
}

func (s *fakeStore) add(shard string, t KeyType, keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shards[shard] = append(s.shards[shard], keys...)
	sort.Strings(s.shards[shard])
	for _, k := range keys {
		s.types[k] = t
	}
}

func (s *fakeStore) drop(shard string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.shards, shard)
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeStore) CurrentShards(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["topology"]; err != nil {
		delete(s.fail, "topology")
		return nil, err
	}
	ids := make([]string, 0, len(s.shards))
	for id := range s.shards {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) ScanShard(ctx context.Context, shard string, cursor uint64, f Filter) (uint64, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fakeCall{Shard: shard, Cursor: cursor, Filter: f})
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if err := s.fail[shard]; err != nil {
		delete(s.fail, shard)
		return 0, nil, err
	}

	keys := s.shards[shard]
	cursor %= emptyCursorBase
	if s.empties[shard] > 0 {
		s.empties[shard]--
		return cursor + emptyCursorBase, nil, nil
	}
	if int(cursor) > len(keys) {
		cursor = uint64(len(keys))
	}

	batch := s.batch
	if count, ok := f.Count(); ok {
		batch = int(count)
	}
	end := int(cursor) + batch
	if end > len(keys) {
		end = len(keys)
	}
	var out []string
	for _, k := range keys[cursor:end] {
		if f.Match() != "" {
			if ok, _ := path.Match(f.Match(), k); !ok {
				continue
			}
		}
		if f.Type() != "" && s.types[k] != f.Type() {
			continue
		}
		out = append(out, k)
	}
	if end >= len(keys) {
		return 0, out, nil
	}
	return uint64(end), out, nil
}
