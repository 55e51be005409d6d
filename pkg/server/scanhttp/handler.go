package scanhttp

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/KyberNetwork/kutils/klog"
	"github.com/pkg/errors"

	"github.com/KyberNetwork/kscan/pkg/common"
	"github.com/KyberNetwork/kscan/pkg/observe/kmetric"
	"github.com/KyberNetwork/kscan/pkg/scan"
)

const ScanPath = "/v1/scan"

// query parameters of the scan endpoint
const (
	ParamCursor = "cursor"
	ParamMatch  = "match"
	ParamType   = "type"
	ParamCount  = "count"
)

// ScanResponse is the body of a successful scan response.
type ScanResponse struct {
	Cursor             string   `json:"cursor"`
	Keys               []string `json:"keys"`
	DuplicatesPossible bool     `json:"duplicatesPossible"`
}

// ParseFilter builds a filter from the match, type and count query parameters.
func ParseFilter(q url.Values) (scan.Filter, error) {
	var opts []scan.FilterOption
	if q.Has(ParamMatch) {
		opts = append(opts, scan.WithMatch(q.Get(ParamMatch)))
	}
	if t := q.Get(ParamType); t != "" {
		keyType, err := scan.ParseKeyType(t)
		if err != nil {
			return scan.Filter{}, err
		}
		opts = append(opts, scan.WithType(keyType))
	}
	if c := q.Get(ParamCount); c != "" {
		count, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			return scan.Filter{}, errors.Wrapf(scan.ErrInvalidScanArgument, "count %q is not an integer", c)
		}
		opts = append(opts, scan.WithCount(count))
	}
	return scan.NewFilter(opts...)
}

// FilterQuery returns the query parameters of a scan request for cursor and f.
func FilterQuery(cursor string, f scan.Filter) map[string]string {
	params := map[string]string{ParamCursor: cursor}
	if match := f.Match(); match != "" {
		params[ParamMatch] = match
	}
	if keyType := f.Type(); keyType != "" {
		params[ParamType] = string(keyType)
	}
	if count, ok := f.Count(); ok {
		params[ParamCount] = strconv.FormatInt(count, 10)
	}
	return params
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	code, resp, err := s.scan(r)
	writeJSON(w, code, resp)
	s.logRequest(r, code, err, resp, time.Since(startTime))
}

func (s *Server) scan(r *http.Request) (int, any, error) {
	q := r.URL.Query()
	f, err := ParseFilter(q)
	if err == nil {
		cursor := q.Get(ParamCursor)
		if cursor == "" {
			cursor = scan.StartCursor
		}
		var batch scan.Batch
		if batch, err = s.session.Next(r.Context(), cursor, f); err == nil {
			keys := batch.Keys
			if keys == nil {
				keys = []string{}
			}
			return http.StatusOK, ScanResponse{
				Cursor:             batch.Cursor,
				Keys:               keys,
				DuplicatesPossible: batch.DuplicatesPossible,
			}, nil
		}
	}
	code, resp := s.status.Status(err)
	return code, resp, err
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "SERVING"})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// trace copies the span trace id to the response, injects it into the request logger, and records incoming
// request metrics.
func trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if traceId, ok := common.TraceIdFromCtx(ctx); ok {
			traceIdStr := traceId.String()
			w.Header().Set(common.HeaderXTraceId, traceIdStr)
			ctx = klog.CtxWithLogger(ctx,
				klog.WithFields(ctx, klog.Fields{common.LogFieldTraceId: traceIdStr}))
		}

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		kmetric.IncIncomingRequest(ctx, common.ClientIdOrUnknown(r.Header.Get(common.HeaderXClientId)), rec.code)
	})
}
