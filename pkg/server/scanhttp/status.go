package scanhttp

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/KyberNetwork/kscan/pkg/scan"
)

// error codes carried in ErrorResponse.Code
const (
	CodeInvalidArgument  = "invalid_argument"
	CodeMalformedCursor  = "malformed_cursor"
	CodeStoreUnavailable = "store_unavailable"
	CodeCanceled         = "canceled"
	CodeInternal         = "internal"
)

// ErrorResponse is the body of every non-2xx scan response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Shard   string `json:"shard,omitempty"`
}

// statusWrapper converts scan errors to HTTP statuses.
type statusWrapper struct {
	development bool
}

// Status returns the HTTP status and body for err. Outside development mode store failures keep their shard
// but not their raw message.
func (w statusWrapper) Status(err error) (int, ErrorResponse) {
	var ioErr *scan.ScanIoError
	switch {
	case errors.Is(err, scan.ErrInvalidScanArgument):
		return http.StatusBadRequest, ErrorResponse{Code: CodeInvalidArgument, Message: err.Error()}
	case errors.Is(err, scan.ErrMalformedCursor):
		return http.StatusUnprocessableEntity, ErrorResponse{Code: CodeMalformedCursor, Message: err.Error()}
	case errors.As(err, &ioErr):
		resp := ErrorResponse{Code: CodeStoreUnavailable, Message: "store unavailable", Shard: ioErr.Shard}
		if w.development {
			resp.Message = err.Error()
		}
		return http.StatusBadGateway, resp
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrorResponse{Code: CodeCanceled, Message: err.Error()}
	}
	resp := ErrorResponse{Code: CodeInternal, Message: "internal error"}
	if w.development {
		resp.Message = err.Error()
	}
	return http.StatusInternalServerError, resp
}
