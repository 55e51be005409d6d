package client

import (
	"github.com/KyberNetwork/kyber-trace-go/pkg/tracer"

	kredis "github.com/KyberNetwork/kscan/pkg/client/redis"
	"github.com/KyberNetwork/kscan/pkg/observe"
	"github.com/KyberNetwork/kscan/pkg/scan"
)

// ScanCfg is a hotcfg for scan sessions and the retry policy of full scans.
type ScanCfg struct {
	DefaultCount int64
	Retry        BackoffCfg
}

func (*ScanCfg) OnUpdate(old, new *ScanCfg) {
	var oldRetry *BackoffCfg
	if old != nil {
		oldRetry = &old.Retry
	}
	new.Retry.OnUpdate(oldRetry, &new.Retry)
}

// SessionOptions returns the session options matching the config.
func (c *ScanCfg) SessionOptions() []scan.Option {
	var opts []scan.Option
	if c.DefaultCount > 0 {
		opts = append(opts, scan.WithDefaultCount(c.DefaultCount))
	}
	if tracer.Provider() != nil {
		opts = append(opts, scan.WithTracer(observe.Tracer()))
	}
	return opts
}

// PaginateOptions retries every page of a full scan with the configured backoff.
func (c *ScanCfg) PaginateOptions() []kredis.PaginateOption {
	return []kredis.PaginateOption{kredis.WithRetry(c.Retry.RetryScan)}
}
