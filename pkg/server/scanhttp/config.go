package scanhttp

import (
	"context"
	"net"
	"strconv"
)

type AppMode string

// A list of app modes.
const (
	Development AppMode = "develop"
	Production  AppMode = "production"
)

var DefaultHTTP = Listen{
	Host: "0.0.0.0",
	Port: 8080,
}

type (
	// Config hold http server config
	Config struct {
		Mode     AppMode
		HTTP     Listen
		BasePath string
		Log      Log

		logger func(context.Context) Logger // to override logger used by the request logger
	}

	Log struct {
		IgnoreReq  bool // log the query as <...>
		IgnoreResp bool // log the returned keys as <...>
	}

	// Listen config for host/port socket listener
	Listen struct {
		Host string
		Port int
	}
)

// String return socket listen DSN
func (l *Listen) String() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// Apply config options
func (c Config) Apply(opts ...Opt) Config {
	for _, opt := range opts {
		opt.opt(&c)
	}
	return c
}

// Opt is an option for server config
type Opt interface {
	opt(*Config)
}

// OptFn implements Opt by calling itself
type OptFn func(*Config)

// opt implements Opt
func (o OptFn) opt(c *Config) {
	o(c)
}

// WithLogger overrides the logger used by the request logger
func WithLogger(logger func(ctx context.Context) Logger) Opt {
	return OptFn(func(c *Config) {
		c.logger = logger
	})
}
