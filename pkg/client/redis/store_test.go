package kredis

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/KyberNetwork/kscan/pkg/scan"
)

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

type StoreSuite struct {
	suite.Suite
	ctx       context.Context
	mockRedis *miniredis.Miniredis
	client    redis.UniversalClient
}

func (ts *StoreSuite) SetupTest() {
	ts.ctx = context.Background()
	ts.mockRedis = miniredis.RunT(ts.T())
	ts.client = redis.NewClient(&redis.Options{
		Addr: ts.mockRedis.Addr(),
	})
}

func (ts *StoreSuite) TearDownTest() {
	ts.Require().NoError(ts.client.Close())
}

// populate inserts n string keys key:{uuid}:{i} and n unrelated keys into m, returning the former.
func populate(m *miniredis.Miniredis, n int) []string {
	prefix := uuid.NewString()
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key:%s:%d", prefix, i)
		keys = append(keys, key)
		_ = m.Set(key, "value")
		_ = m.Set(fmt.Sprintf("%s:%d", uuid.NewString(), i), "value")
	}
	return keys
}

func (ts *StoreSuite) TestNewStorePicksAdapter() {
	store, err := NewStore(ts.client)
	ts.Require().NoError(err)
	ts.IsType(&NodeStore{}, store)

	cluster := redis.NewClusterClient(&redis.ClusterOptions{Addrs: []string{ts.mockRedis.Addr()}})
	defer cluster.Close()
	store, err = NewStore(cluster)
	ts.Require().NoError(err)
	ts.IsType(&ClusterStore{}, store)

	ring := redis.NewRing(&redis.RingOptions{Addrs: map[string]string{"a": ts.mockRedis.Addr()}})
	defer ring.Close()
	_, err = NewStore(ring)
	ts.ErrorIs(err, ErrUnsupportedClient)
}

func (ts *StoreSuite) TestNodeStoreScansMatchingKeys() {
	want := populate(ts.mockRedis, 100)
	store, err := NewStore(ts.client)
	ts.Require().NoError(err)
	session := NewSession(store)
	ts.False(session.Partitioned())

	keys, err := CollectKeys(ts.ctx, session, scan.MustFilter(scan.WithMatch("key:*")))
	ts.Require().NoError(err)
	ts.ElementsMatch(want, keys)
}

func (ts *StoreSuite) TestNodeStoreEveryKeyWithCount() {
	want := populate(ts.mockRedis, 50)
	session := NewSession(NewNodeStore(ts.client))

	var all []string
	batches := 0
	err := Paginate(ts.ctx, session, scan.MustFilter(scan.WithCount(10)), func(keys []string) error {
		batches++
		all = append(all, keys...)
		return nil
	})
	ts.Require().NoError(err)
	ts.Len(all, 100)
	ts.Subset(all, want)
	ts.Positive(batches)
}

func (ts *StoreSuite) TestTypeFilter() {
	ts.Require().NoError(ts.mockRedis.Set("key:string", "v"))
	ts.mockRedis.HSet("key:hash", "f", "v")
	_, err := ts.mockRedis.Lpush("key:list", "v")
	ts.Require().NoError(err)
	_, err = ts.mockRedis.SetAdd("key:set", "v")
	ts.Require().NoError(err)
	ts.Require().NoError(ts.mockRedis.Set("other:string", "v"))

	session := NewSession(NewNodeStore(ts.client))
	keys, err := CollectKeys(ts.ctx, session, scan.MustFilter(scan.WithMatch("key:*"), scan.WithType(scan.TypeString)))
	ts.Require().NoError(err)
	ts.Equal([]string{"key:string"}, keys)

	keys, err = CollectKeys(ts.ctx, session, scan.MustFilter(scan.WithType(scan.TypeHash)))
	ts.Require().NoError(err)
	ts.Equal([]string{"key:hash"}, keys)
}

func (ts *StoreSuite) TestLegacyTypeFilterScript() {
	ts.Require().NoError(ts.mockRedis.Set("key:1", "v"))
	ts.Require().NoError(ts.mockRedis.Set("key:2", "v"))
	ts.mockRedis.HSet("key:h", "f", "v")
	ts.Require().NoError(ts.mockRedis.Set("other", "v"))

	keys, cursor, err := ScanTypeByScript(ts.ctx, ts.client, 0, "key:*", 100, "string").Result()
	ts.Require().NoError(err)
	ts.Equal(uint64(0), cursor)
	ts.ElementsMatch([]string{"key:1", "key:2"}, keys)

	session := NewSession(NewNodeStore(ts.client, WithLegacyTypeFilter()))
	keys, err = CollectKeys(ts.ctx, session, scan.MustFilter(scan.WithType(scan.TypeHash)))
	ts.Require().NoError(err)
	ts.Equal([]string{"key:h"}, keys)
}

func (ts *StoreSuite) TestShardedStoreCompleteness() {
	var want []string
	shards := make(map[string]redis.UniversalClient)
	for _, name := range []string{"s1", "s2", "s3"} {
		m := miniredis.RunT(ts.T())
		want = append(want, populate(m, 100)...)
		c := redis.NewClient(&redis.Options{Addr: m.Addr()})
		defer c.Close()
		shards[name] = c
	}
	session := NewSession(NewShardedStore(shards))
	ts.True(session.Partitioned())

	keys, err := CollectKeys(ts.ctx, session, scan.MustFilter(scan.WithMatch("key:*"), scan.WithCount(25)))
	ts.Require().NoError(err)
	ts.ElementsMatch(want, keys)
}

func (ts *StoreSuite) TestShardedStoreMembershipChange() {
	m1, m2 := miniredis.RunT(ts.T()), miniredis.RunT(ts.T())
	want := append(populate(m1, 10), populate(m2, 10)...)
	c1 := redis.NewClient(&redis.Options{Addr: m1.Addr()})
	c2 := redis.NewClient(&redis.Options{Addr: m2.Addr()})
	defer c1.Close()
	defer c2.Close()

	store := NewShardedStore(map[string]redis.UniversalClient{"b": c1})
	session := NewSession(store)

	batch, err := session.Next(ts.ctx, scan.StartCursor, scan.MustFilter(scan.WithMatch("key:*")))
	ts.Require().NoError(err)
	keys := batch.Keys

	store.AddShard("a", c2)
	for !batch.Done() {
		batch, err = session.Next(ts.ctx, batch.Cursor, scan.MustFilter(scan.WithMatch("key:*")))
		ts.Require().NoError(err)
		keys = append(keys, batch.Keys...)
	}
	ts.ElementsMatch(want, keys)
	ts.Equal(c2, store.RemoveShard("a"))
	ts.Nil(store.RemoveShard("a"))
}

func (ts *StoreSuite) TestShardedStoreUnknownShard() {
	store := NewShardedStore(nil)
	_, _, err := store.ScanShard(ts.ctx, "nope", 0, scan.Filter{})
	ts.ErrorIs(err, ErrUnknownShard)
}

func (ts *StoreSuite) TestClusterStore() {
	want := populate(ts.mockRedis, 100)
	cluster := redis.NewClusterClient(&redis.ClusterOptions{Addrs: []string{ts.mockRedis.Addr()}})
	defer cluster.Close()
	nodes := 0
	store := NewClusterStore(cluster, WithOnNewNode(func(*redis.Client) { nodes++ }))
	defer store.Close()

	shards, err := store.CurrentShards(ts.ctx)
	ts.Require().NoError(err)
	ts.Len(shards, 1)

	session := NewSession(store)
	ts.True(session.Partitioned())
	keys, err := CollectKeys(ts.ctx, session, scan.MustFilter(scan.WithMatch("key:*")))
	ts.Require().NoError(err)
	ts.ElementsMatch(want, keys)
	ts.Equal(1, nodes)
}

func (ts *StoreSuite) TestStoreErrorIsScanIoError() {
	store := NewNodeStore(ts.client)
	session := NewSession(store)
	ts.mockRedis.SetError("server is loading")

	_, err := session.Next(ts.ctx, scan.StartCursor, scan.Filter{})
	ts.True(scan.IsScanIoError(err))

	ts.mockRedis.SetError("")
	batch, err := session.Next(ts.ctx, scan.StartCursor, scan.Filter{})
	ts.Require().NoError(err)
	ts.True(batch.DuplicatesPossible)
}

func (ts *StoreSuite) TestPaginateStopsOnCallbackError() {
	populate(ts.mockRedis, 10)
	stop := errors.New("stop")
	err := Paginate(ts.ctx, NewSession(NewNodeStore(ts.client)), scan.Filter{}, func([]string) error {
		return stop
	})
	ts.ErrorIs(err, stop)
}

func (ts *StoreSuite) TestPaginateRetriesThroughRetrier() {
	populate(ts.mockRedis, 10)
	attempts := 0
	session := scan.NexterFunc(func(ctx context.Context, cursor string, f scan.Filter) (scan.Batch, error) {
		attempts++
		if attempts == 1 {
			return scan.Batch{}, &scan.ScanIoError{Err: errors.New("flaky")}
		}
		return scan.Batch{Cursor: scan.StartCursor, Keys: []string{"k"}}, nil
	})
	retry := func(op backoff.Operation) error {
		if err := op(); err != nil {
			return op()
		}
		return nil
	}

	keys, err := CollectKeys(ts.ctx, session, scan.Filter{}, WithRetry(retry))
	ts.Require().NoError(err)
	ts.Equal([]string{"k"}, keys)
	ts.Equal(2, attempts)
}
