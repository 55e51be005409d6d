package reconnectable

import (
	"context"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/KyberNetwork/kutils/klog"
	"github.com/redis/go-redis/v9"

	"github.com/KyberNetwork/kscan/pkg/observe/kmetric"
)

const DefaultRefreshCooldown = 10 * time.Second

// Client is a redis.UniversalClient that replaces its underlying client when the server refuses connections,
// at most once per cooldown. Scans in flight keep their cursors: the replacement talks to the same address.
type Client struct {
	redis.UniversalClient

	opts *redis.UniversalOptions

	lastRefreshTime   atomic.Value
	refreshCooldown   time.Duration
	refreshInProgress atomic.Bool
	refreshes         atomic.Int64
	onNewClient       func(redis.UniversalClient)
}

type Option func(*Client)

// WithOnNewClient calls fn with every underlying client, the initial one and each replacement, e.g. to
// instrument it.
func WithOnNewClient(fn func(redis.UniversalClient)) Option {
	return func(c *Client) {
		c.onNewClient = fn
	}
}

// WithRefreshCooldown sets the minimum time between two refreshes.
func WithRefreshCooldown(cooldown time.Duration) Option {
	return func(c *Client) {
		c.refreshCooldown = cooldown
	}
}

func New(cfg *redis.UniversalOptions, opts ...Option) *Client {
	c := &Client{
		opts:            cfg,
		refreshCooldown: DefaultRefreshCooldown,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.UniversalClient = c.newClient()
	return c
}

func (c *Client) newClient() redis.UniversalClient {
	client := redis.NewUniversalClient(c.opts)
	client.AddHook(c)
	if c.onNewClient != nil {
		c.onNewClient(client)
	}
	return client
}

// Refreshes returns how many times the underlying client was replaced.
func (c *Client) Refreshes() int64 {
	return c.refreshes.Load()
}

func (c *Client) canRefresh() bool {
	lastRefresh, ok := c.lastRefreshTime.Load().(time.Time)
	if !ok {
		return true
	}
	return time.Since(lastRefresh) >= c.refreshCooldown
}

func (c *Client) refresh(ctx context.Context, cause error) {
	if c.refreshInProgress.Load() || !c.refreshInProgress.CompareAndSwap(false, true) {
		return
	}
	defer c.refreshInProgress.Store(false)

	if !c.canRefresh() {
		return
	}

	oldClient := c.UniversalClient
	c.UniversalClient = c.newClient()
	c.lastRefreshTime.Store(time.Now())
	c.refreshes.Add(1)

	kmetric.IncClientRefresh(ctx)
	klog.Infof(ctx, "reconnectable.Client.refresh|client replaced|addrs=%v|err=%v", c.opts.Addrs, cause)

	go func() {
		if oldClient != nil {
			_ = oldClient.Close()
		}
	}()
}

func shouldRefresh(err error) bool {
	return err != nil && strings.Contains(err.Error(), "connection refused")
}

func (c *Client) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (c *Client) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if shouldRefresh(err) {
			c.refresh(ctx, err)
		}
		return err
	}
}

func (c *Client) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if shouldRefresh(err) {
			c.refresh(ctx, err)
		}
		return err
	}
}
