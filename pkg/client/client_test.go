package client

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	kredis "github.com/KyberNetwork/kscan/pkg/client/redis"
	"github.com/KyberNetwork/kscan/pkg/client/redis/reconnectable"
	"github.com/KyberNetwork/kscan/pkg/scan"
	"github.com/KyberNetwork/kscan/pkg/server/scanhttp"
)

func TestRetryScan(t *testing.T) {
	cfg := &BackoffCfg{MaxRetries: 3}
	cfg.InitialInterval = 1
	cfg.OnUpdate(nil, cfg)

	attempts := 0
	err := cfg.RetryScan(func() error {
		attempts++
		return &scan.ScanIoError{Shard: "s", Err: errors.New("down")}
	})
	assert.True(t, scan.IsScanIoError(err))
	assert.Equal(t, 4, attempts)

	attempts = 0
	err = cfg.RetryScan(func() error {
		attempts++
		return fmt.Errorf("bad cursor: %w", scan.ErrMalformedCursor)
	})
	assert.ErrorIs(t, err, scan.ErrMalformedCursor)
	assert.Equal(t, 1, attempts)

	attempts = 0
	err = cfg.RetryScan(func() error {
		if attempts++; attempts < 2 {
			return &scan.ScanIoError{Err: errors.New("flaky")}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestScanCfgSessionOptions(t *testing.T) {
	cfg := &ScanCfg{DefaultCount: 7}
	cfg.Retry.MaxRetries = 1
	cfg.OnUpdate(nil, cfg)
	assert.NotNil(t, cfg.Retry.BackOff)
	assert.Len(t, cfg.SessionOptions(), 1)
	assert.Len(t, cfg.PaginateOptions(), 1)
	assert.Empty(t, (&ScanCfg{}).SessionOptions())
}

func TestRedisCfgSuite(t *testing.T) {
	suite.Run(t, new(RedisCfgSuite))
}

type RedisCfgSuite struct {
	suite.Suite
	ctx       context.Context
	mockRedis *miniredis.Miniredis
	want      []string
}

func (ts *RedisCfgSuite) SetupTest() {
	ts.ctx = context.Background()
	ts.mockRedis = miniredis.RunT(ts.T())
	ts.want = nil
	prefix := uuid.NewString()
	for i := 0; i < 30; i++ {
		key := fmt.Sprintf("key:%s:%d", prefix, i)
		ts.want = append(ts.want, key)
		ts.Require().NoError(ts.mockRedis.Set(key, "v"))
	}
}

func (ts *RedisCfgSuite) TestOnUpdateBuildsStoreAndSession() {
	cfg := &RedisCfg{}
	cfg.Addrs = []string{ts.mockRedis.Addr()}
	cfg.OnUpdate(nil, cfg)
	defer cfg.C.Close()

	ts.IsType(&redis.Client{}, cfg.C)
	ts.IsType(&kredis.NodeStore{}, cfg.Store)

	scanCfg := &ScanCfg{DefaultCount: 5}
	scanCfg.OnUpdate(nil, scanCfg)
	session := cfg.NewSession(scanCfg.SessionOptions()...)
	keys, err := kredis.CollectKeys(ts.ctx, session, scan.MustFilter(scan.WithMatch("key:*")),
		scanCfg.PaginateOptions()...)
	ts.Require().NoError(err)
	ts.ElementsMatch(ts.want, keys)
}

func (ts *RedisCfgSuite) TestOnUpdateReconnectable() {
	cfg := &RedisCfg{Reconnect: true, ReconnectCooldown: 1}
	cfg.Addrs = []string{ts.mockRedis.Addr()}
	cfg.OnUpdate(nil, cfg)
	defer cfg.C.Close()

	ts.IsType(&reconnectable.Client{}, cfg.C)
	keys, err := kredis.CollectKeys(ts.ctx, cfg.NewSession(), scan.Filter{})
	ts.Require().NoError(err)
	ts.ElementsMatch(ts.want, keys)
}

func (ts *RedisCfgSuite) TestRemoteSession() {
	cfg := &RedisCfg{}
	cfg.Addrs = []string{ts.mockRedis.Addr()}
	cfg.OnUpdate(nil, cfg)
	defer cfg.C.Close()

	srv := httptest.NewServer(scanhttp.NewServer(&scanhttp.Config{BasePath: "api"}, cfg.NewSession()).Handler())
	defer srv.Close()
	remote := NewRemoteSession(resty.New().SetBaseURL(srv.URL), "/api/")

	keys, err := kredis.CollectKeys(ts.ctx, remote, scan.MustFilter(scan.WithMatch("key:*"), scan.WithCount(4)))
	ts.Require().NoError(err)
	ts.ElementsMatch(ts.want, keys)

	_, err = remote.Next(ts.ctx, "not-a-cursor", scan.Filter{})
	ts.ErrorIs(err, scan.ErrMalformedCursor)

	var unknownType scan.Filter
	scan.WithType("blob")(&unknownType)
	_, err = remote.Next(ts.ctx, scan.StartCursor, unknownType)
	ts.ErrorIs(err, scan.ErrInvalidScanArgument)

	ts.mockRedis.SetError("server is loading")
	_, err = remote.Next(ts.ctx, scan.StartCursor, scan.Filter{})
	ts.True(scan.IsScanIoError(err))
}

func TestScanHttpCfg(t *testing.T) {
	cfg := &ScanHttpCfg{BasePath: "scanner"}
	cfg.OnUpdate(nil, cfg)
	require.NotNil(t, cfg.C)
	assert.Equal(t, "/scanner"+scanhttp.ScanPath, cfg.NewSession().path)
}
