package kredis

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/KyberNetwork/kscan/pkg/scan"
)

// ShardedStore is a key space partitioned client-side over named Redis nodes. Membership may change while
// scans are running; the store is its own topology provider.
type ShardedStore struct {
	opt storeOpt

	mu     sync.RWMutex
	shards map[string]redis.UniversalClient
}

// NewShardedStore returns a ShardedStore over the named clients, which stay owned by the caller.
func NewShardedStore(shards map[string]redis.UniversalClient, opts ...StoreOption) *ShardedStore {
	s := &ShardedStore{
		opt:    newStoreOpt(opts...),
		shards: make(map[string]redis.UniversalClient, len(shards)),
	}
	for name, c := range shards {
		s.shards[name] = c
	}
	return s
}

// AddShard adds or replaces the client of shard name.
func (s *ShardedStore) AddShard(name string, c redis.UniversalClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shards[name] = c
}

// RemoveShard removes shard name and returns its client, nil if there was none.
func (s *ShardedStore) RemoveShard(name string) redis.UniversalClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.shards[name]
	delete(s.shards, name)
	return c
}

// CurrentShards returns the sorted shard names.
func (s *ShardedStore) CurrentShards(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.shards))
	for name := range s.shards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ScanShard issues one SCAN on shard.
func (s *ShardedStore) ScanShard(ctx context.Context, shard string, cursor uint64, f scan.Filter) (uint64,
	[]string, error) {
	s.mu.RLock()
	c, ok := s.shards[shard]
	s.mu.RUnlock()
	if !ok {
		return 0, nil, errors.Wrapf(ErrUnknownShard, "shard %q", shard)
	}
	return scanNode(ctx, c, cursor, f, s.opt.legacyTypeFilter)
}

// Close is a no-op: the clients belong to the caller.
func (s *ShardedStore) Close() error {
	return nil
}
