package scanhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/KyberNetwork/kutils/klog"

	"github.com/KyberNetwork/kscan/pkg/common"
)

// Logger is a logger with infof/warnf/errorf methods.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// ignored is a string that indicates that the request or response is ignored.
const ignored = "<...>"

func defaultLogger(ctx context.Context) Logger {
	return klog.LoggerFromCtx(ctx)
}

// Logf maps response status codes to log levels.
func Logf(log Logger, code int, format string, args ...any) {
	switch {
	case code < http.StatusBadRequest, code == http.StatusBadRequest, code == http.StatusUnprocessableEntity,
		code == http.StatusNotFound:
		log.Infof(format, args...)
	case code < http.StatusInternalServerError, code == http.StatusBadGateway:
		log.Warnf(format, args...)
	default:
		log.Errorf(format, args...)
	}
}

// logRequest logs one served scan request in plain format.
func (s *Server) logRequest(r *http.Request, code int, err error, resp any, duration time.Duration) {
	req := r.URL.RawQuery
	if s.cfg.Log.IgnoreReq {
		req = ignored
	}
	if s.cfg.Log.IgnoreResp {
		resp = ignored
	}
	from := r.Header.Values(common.HeaderXForwardedFor)
	from = append(from, r.RemoteAddr)
	Logf(s.logger(r.Context()), code, "cmd=%s|code=%d|err=%v|req=%s|resp=%+v|dur=%s|from=%v",
		r.URL.Path, code, err, req, resp, duration, from)
}
