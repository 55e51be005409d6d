package kredis

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KyberNetwork/kutils/klog"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/KyberNetwork/kscan/pkg/scan"
)

const (
	clusterSlotCount = 16384

	DefaultShardsTTL      = 10 * time.Second
	DefaultNodeCloseDelay = time.Minute
)

// ClusterStore scans a Redis Cluster master by master. Shards are master addresses taken from CLUSTER SLOTS.
type ClusterStore struct {
	c   *redis.ClusterClient
	opt storeOpt

	mu          sync.Mutex
	nodes       map[string]*redis.Client
	masters     []string
	refreshedAt time.Time
}

// NewClusterStore returns a ClusterStore over c. The cluster client stays owned by the caller, the per-node
// clients are closed by Close.
func NewClusterStore(c *redis.ClusterClient, opts ...StoreOption) *ClusterStore {
	return &ClusterStore{
		c:     c,
		opt:   newStoreOpt(opts...),
		nodes: make(map[string]*redis.Client),
	}
}

// CurrentShards returns the sorted addresses of the masters owning at least one slot. Unless uncovered slots
// are allowed, a slot map with holes fails with ErrSlotsNotCovered. The list is cached for the shards TTL.
func (s *ClusterStore) CurrentShards(ctx context.Context) ([]string, error) {
	if masters, ok := s.cachedMasters(); ok {
		return masters, nil
	}

	slots, err := s.c.ClusterSlots(ctx).Result()
	if err != nil {
		return nil, errors.Wrap(err, "ClusterStore.CurrentShards")
	}
	masters, err := mastersFromSlots(slots, s.opt.allowUncoveredSlots)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.masters = masters
	s.refreshedAt = time.Now()
	s.pruneNodes(ctx, masters)
	return append([]string(nil), masters...), nil
}

func (s *ClusterStore) cachedMasters() ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.masters == nil || time.Since(s.refreshedAt) >= s.opt.shardsTTL {
		return nil, false
	}
	return append([]string(nil), s.masters...), true
}

// invalidate drops the cached master list so the next CurrentShards reads the slot map again.
func (s *ClusterStore) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masters = nil
}

// mastersFromSlots returns the sorted unique master addresses of slots. Ranges without a master count as
// uncovered.
func mastersFromSlots(slots []redis.ClusterSlot, allowUncovered bool) ([]string, error) {
	covered := 0
	seen := make(map[string]struct{})
	masters := make([]string, 0, len(slots))
	for _, slot := range slots {
		if len(slot.Nodes) == 0 || slot.Nodes[0].Addr == "" {
			continue
		}
		covered += slot.End - slot.Start + 1
		addr := slot.Nodes[0].Addr
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		masters = append(masters, addr)
	}
	if covered < clusterSlotCount && !allowUncovered {
		return nil, errors.Wrapf(ErrSlotsNotCovered, "%d of %d slots covered", covered, clusterSlotCount)
	}
	sort.Strings(masters)
	return masters, nil
}

// ScanShard issues one SCAN on the master at address shard.
func (s *ClusterStore) ScanShard(ctx context.Context, shard string, cursor uint64, f scan.Filter) (uint64,
	[]string, error) {
	if shard == "" {
		return 0, nil, errors.Wrap(ErrUnknownShard, "empty cluster node address")
	}
	next, keys, err := scanNode(ctx, s.node(shard), cursor, f, s.opt.legacyTypeFilter)
	if err != nil {
		// MOVED, a dead node or a failover: the slot map is likely stale.
		s.invalidate()
	}
	return next, keys, err
}

// Close closes the per-node clients.
func (s *ClusterStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for addr, c := range s.nodes {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close node %s", addr)
		}
		delete(s.nodes, addr)
	}
	return firstErr
}

func (s *ClusterStore) node(addr string) *redis.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.nodes[addr]; ok {
		return c
	}

	opt := s.c.Options()
	nodeOpt := &redis.Options{
		Addr:            addr,
		Protocol:        opt.Protocol,
		Username:        opt.Username,
		Password:        opt.Password,
		MaxRetries:      opt.MaxRetries,
		MinRetryBackoff: opt.MinRetryBackoff,
		MaxRetryBackoff: opt.MaxRetryBackoff,
		DialTimeout:     opt.DialTimeout,
		ReadTimeout:     opt.ReadTimeout,
		WriteTimeout:    opt.WriteTimeout,
		PoolSize:        opt.PoolSize,
		MinIdleConns:    opt.MinIdleConns,
		TLSConfig:       opt.TLSConfig,
	}
	var c *redis.Client
	if opt.NewClient != nil {
		c = opt.NewClient(nodeOpt)
	} else {
		c = redis.NewClient(nodeOpt)
	}
	if s.opt.onNewNode != nil {
		s.opt.onNewNode(c)
	}
	s.nodes[addr] = c
	return c
}

// pruneNodes closes, after the node close delay, the clients of nodes that are no longer masters. s.mu is held.
func (s *ClusterStore) pruneNodes(ctx context.Context, masters []string) {
	keep := make(map[string]struct{}, len(masters))
	for _, addr := range masters {
		keep[addr] = struct{}{}
	}
	for addr, c := range s.nodes {
		if _, ok := keep[addr]; ok {
			continue
		}
		delete(s.nodes, addr)
		old := c
		time.AfterFunc(s.opt.nodeCloseDelay, func() {
			if err := old.Close(); err != nil {
				klog.Errorf(ctx, "ClusterStore.pruneNodes|close failed|addr=%s|err=%v", old.Options().Addr, err)
			}
		})
	}
}
