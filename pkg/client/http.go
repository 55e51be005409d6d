package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/KyberNetwork/kutils"
	"github.com/KyberNetwork/kyber-trace-go/pkg/tracer"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KyberNetwork/kscan/pkg/scan"
	"github.com/KyberNetwork/kscan/pkg/server/scanhttp"
)

type HttpCfg struct {
	kutils.HttpCfg `mapstructure:",squash"`
	C              *resty.Client
}

func (*HttpCfg) OnUpdate(_, new *HttpCfg) {
	new.C = new.NewRestyClient()
	if tracer.Provider() != nil {
		new.C.SetTransport(otelhttp.NewTransport(new.C.GetClient().Transport))
	}
}

// ScanHttpCfg is a hotcfg for a RemoteSession talking to a scanhttp server.
type ScanHttpCfg struct {
	HttpCfg  `mapstructure:",squash"`
	BasePath string
}

func (*ScanHttpCfg) OnUpdate(old, new *ScanHttpCfg) {
	var oldHttp *HttpCfg
	if old != nil {
		oldHttp = &old.HttpCfg
	}
	new.HttpCfg.OnUpdate(oldHttp, &new.HttpCfg)
}

// NewSession returns a RemoteSession over the current client.
func (c *ScanHttpCfg) NewSession() *RemoteSession {
	return NewRemoteSession(c.C, c.BasePath)
}

// RemoteSession pages through a scan served by a scanhttp server. It implements scan.Nexter with the same error
// taxonomy as a local session.
type RemoteSession struct {
	c    *resty.Client
	path string
}

// NewRemoteSession returns a RemoteSession calling the scan endpoint under basePath.
func NewRemoteSession(c *resty.Client, basePath string) *RemoteSession {
	basePath = strings.TrimSuffix(basePath, "/")
	if basePath != "" && basePath[0] != '/' {
		basePath = "/" + basePath
	}
	return &RemoteSession{c: c, path: basePath + scanhttp.ScanPath}
}

func (s *RemoteSession) Next(ctx context.Context, cursor string, f scan.Filter) (scan.Batch, error) {
	if err := f.Validate(); err != nil {
		return scan.Batch{}, err
	}

	var result scanhttp.ScanResponse
	var errResp scanhttp.ErrorResponse
	resp, err := s.c.R().
		SetContext(ctx).
		SetQueryParams(scanhttp.FilterQuery(cursor, f)).
		SetResult(&result).
		SetError(&errResp).
		Get(s.path)
	if err != nil {
		return scan.Batch{}, &scan.ScanIoError{Err: errors.Wrap(err, "RemoteSession.Next")}
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return scan.Batch{
			Cursor:             result.Cursor,
			Keys:               result.Keys,
			DuplicatesPossible: result.DuplicatesPossible,
		}, nil
	case http.StatusBadRequest:
		return scan.Batch{}, errors.Wrapf(scan.ErrInvalidScanArgument, "remote|%s", errResp.Message)
	case http.StatusUnprocessableEntity:
		return scan.Batch{}, errors.Wrapf(scan.ErrMalformedCursor, "remote|%s", errResp.Message)
	default:
		return scan.Batch{}, &scan.ScanIoError{
			Shard: errResp.Shard,
			Err:   errors.Errorf("RemoteSession.Next|code=%d|err=%s", resp.StatusCode(), errResp.Message),
		}
	}
}

var _ scan.Nexter = (*RemoteSession)(nil)
