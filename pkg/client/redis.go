package client

import (
	"time"

	"github.com/KyberNetwork/kyber-trace-go/pkg/metric"
	"github.com/KyberNetwork/kyber-trace-go/pkg/tracer"
	"github.com/KyberNetwork/logger"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	kredis "github.com/KyberNetwork/kscan/pkg/client/redis"
	"github.com/KyberNetwork/kscan/pkg/client/redis/reconnectable"
	"github.com/KyberNetwork/kscan/pkg/scan"
)

const RedisCloseDelay = time.Minute

// RedisCfg is a hotcfg to create the redis client and the scan store over it.
type RedisCfg struct {
	redis.UniversalOptions `mapstructure:",squash"`
	Reconnect              bool          // replace the client after "connection refused", non-cluster only
	ReconnectCooldown      time.Duration // minimum time between two replacements
	LegacyTypeFilter       bool          // filter by type in a script, for servers before 6.0
	AllowUncoveredSlots    bool          // scan clusters whose slot map has holes
	ShardsTTL              time.Duration // how long a cluster master list is reused, 0 keeps the default

	C     redis.UniversalClient
	Store kredis.Store
}

func (*RedisCfg) OnUpdate(old, new *RedisCfg) {
	if new.Reconnect && !new.isCluster() {
		opts := []reconnectable.Option{reconnectable.WithOnNewClient(instrumentRedis)}
		if new.ReconnectCooldown > 0 {
			opts = append(opts, reconnectable.WithRefreshCooldown(new.ReconnectCooldown))
		}
		new.C = reconnectable.New(&new.UniversalOptions, opts...)
	} else {
		new.C = redis.NewUniversalClient(&new.UniversalOptions)
		instrumentRedis(new.C)
	}

	store, err := kredis.NewStore(new.C, new.storeOptions()...)
	if err != nil {
		logger.Errorf("RedisCfg.OnUpdate|kredis.NewStore failed|err=%v", err)
	}
	new.Store = store

	if old != nil && old.C != nil {
		oldC, oldStore := old.C, old.Store
		time.AfterFunc(RedisCloseDelay, func() {
			if oldStore != nil {
				if err := oldStore.Close(); err != nil {
					logger.Errorf("RedisCfg.OnUpdate|old.Store.Close() failed|err=%v", err)
				}
			}
			if err := oldC.Close(); err != nil {
				logger.Errorf("RedisCfg.OnUpdate|old.C.Close() failed|err=%v", err)
			}
		})
	}
}

// NewSession returns a scan session over the current store.
func (c *RedisCfg) NewSession(opts ...scan.Option) *scan.Session {
	return kredis.NewSession(c.Store, opts...)
}

func (c *RedisCfg) isCluster() bool {
	return c.MasterName == "" && len(c.Addrs) > 1
}

func (c *RedisCfg) storeOptions() []kredis.StoreOption {
	opts := []kredis.StoreOption{kredis.WithOnNewNode(func(node *redis.Client) { instrumentRedis(node) })}
	if c.LegacyTypeFilter {
		opts = append(opts, kredis.WithLegacyTypeFilter())
	}
	if c.AllowUncoveredSlots {
		opts = append(opts, kredis.WithAllowUncoveredSlots())
	}
	if c.ShardsTTL > 0 {
		opts = append(opts, kredis.WithShardsTTL(c.ShardsTTL))
	}
	return opts
}

func instrumentRedis(c redis.UniversalClient) {
	if metric.Provider() != nil {
		if err := redisotel.InstrumentMetrics(c); err != nil {
			logger.Errorf("RedisCfg.OnUpdate|redisotel.InstrumentMetrics failed|err=%v", err)
		}
	}
	if tracer.Provider() != nil {
		if err := redisotel.InstrumentTracing(c); err != nil {
			logger.Errorf("RedisCfg.OnUpdate|redisotel.InstrumentTracing failed|err=%v", err)
		}
	}
}
