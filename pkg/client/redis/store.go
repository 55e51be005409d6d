package kredis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/KyberNetwork/kscan/pkg/scan"
)

var (
	ErrUnsupportedClient = errors.New("unsupported redis client")
	ErrUnknownShard      = errors.New("unknown shard")
	ErrSlotsNotCovered   = errors.New("cluster slots not fully covered")
)

// Store is a Redis-backed scan primitive. Sharded stores also implement scan.Topology.
type Store interface {
	scan.ShardScanner
	Close() error
}

type storeOpt struct {
	legacyTypeFilter    bool
	allowUncoveredSlots bool
	onNewNode           func(*redis.Client)
	shardsTTL           time.Duration
	nodeCloseDelay      time.Duration
}

// StoreOption configures a Store.
type StoreOption func(*storeOpt)

// WithLegacyTypeFilter applies the type filter in a Lua script for servers without SCAN ... TYPE (before 6.0).
func WithLegacyTypeFilter() StoreOption {
	return func(o *storeOpt) {
		o.legacyTypeFilter = true
	}
}

// WithAllowUncoveredSlots lets cluster scans proceed while some hash slots have no owner. Keys of those slots
// are not returned.
func WithAllowUncoveredSlots() StoreOption {
	return func(o *storeOpt) {
		o.allowUncoveredSlots = true
	}
}

// WithOnNewNode calls fn with every per-node client a ClusterStore creates, e.g. to instrument it.
func WithOnNewNode(fn func(*redis.Client)) StoreOption {
	return func(o *storeOpt) {
		o.onNewNode = fn
	}
}

// WithShardsTTL sets how long a ClusterStore reuses the master list read from CLUSTER SLOTS. A failed shard
// scan drops the cached list earlier. Zero reads the slot map on every call.
func WithShardsTTL(ttl time.Duration) StoreOption {
	return func(o *storeOpt) {
		o.shardsTTL = ttl
	}
}

// WithNodeCloseDelay sets how long a ClusterStore keeps the client of a demoted master open, so that scans
// already in flight on it can finish.
func WithNodeCloseDelay(d time.Duration) StoreOption {
	return func(o *storeOpt) {
		o.nodeCloseDelay = d
	}
}

func newStoreOpt(opts ...StoreOption) storeOpt {
	o := storeOpt{
		shardsTTL:      DefaultShardsTTL,
		nodeCloseDelay: DefaultNodeCloseDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewStore picks the store matching the concrete client: a ClusterStore for cluster clients, a NodeStore for
// anything talking to one logical node (plain, failover or wrapped clients).
func NewStore(c redis.UniversalClient, opts ...StoreOption) (Store, error) {
	switch c := c.(type) {
	case *redis.ClusterClient:
		return NewClusterStore(c, opts...), nil
	case *redis.Ring:
		return nil, errors.Wrap(ErrUnsupportedClient, "ring clients shard keys client-side, use ShardedStore")
	case nil:
		return nil, errors.Wrap(ErrUnsupportedClient, "nil client")
	default:
		return NewNodeStore(c, opts...), nil
	}
}

// NewSession returns a scan session over store. Redis may return a key more than once during a SCAN, so every
// batch is flagged accordingly; stores implementing scan.Topology get composite cursors.
func NewSession(store scan.ShardScanner, opts ...scan.Option) *scan.Session {
	sessionOpts := []scan.Option{scan.WithDuplicatesPossible()}
	if topology, ok := store.(scan.Topology); ok {
		sessionOpts = append(sessionOpts, scan.WithTopology(topology))
	}
	return scan.NewSession(store, append(sessionOpts, opts...)...)
}

// NodeStore scans a single, non-partitioned Redis.
type NodeStore struct {
	c   redis.UniversalClient
	opt storeOpt
}

// NewNodeStore returns a NodeStore over c. The client stays owned by the caller.
func NewNodeStore(c redis.UniversalClient, opts ...StoreOption) *NodeStore {
	return &NodeStore{c: c, opt: newStoreOpt(opts...)}
}

// ScanShard issues one SCAN. The shard id is ignored.
func (s *NodeStore) ScanShard(ctx context.Context, _ string, cursor uint64, f scan.Filter) (uint64, []string,
	error) {
	return scanNode(ctx, s.c, cursor, f, s.opt.legacyTypeFilter)
}

// Close is a no-op: the client belongs to the caller.
func (s *NodeStore) Close() error {
	return nil
}

func scanNode(ctx context.Context, c redis.UniversalClient, cursor uint64, f scan.Filter,
	legacyTypeFilter bool) (uint64, []string, error) {
	count, _ := f.Count()
	var cmd *redis.ScanCmd
	if legacyTypeFilter && f.Type() != "" {
		cmd = ScanTypeByScript(ctx, c, cursor, f.Match(), count, string(f.Type()))
	} else {
		cmd = c.ScanType(ctx, cursor, f.Match(), count, string(f.Type()))
	}
	keys, next, err := cmd.Result()
	if err != nil {
		return 0, nil, err
	}
	return next, keys, nil
}
