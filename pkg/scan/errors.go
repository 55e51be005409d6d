package scan

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidScanArgument is returned when a Filter is malformed. It is detected before any store call.
	ErrInvalidScanArgument = errors.New("invalid scan argument")
	// ErrMalformedCursor is returned when a cursor string cannot be decoded.
	ErrMalformedCursor = errors.New("malformed cursor")
)

// ScanIoError is a store or transport failure while driving one shard. The cursor the caller passed in
// stays valid and the same call can be retried.
type ScanIoError struct {
	Shard  string // shard being driven, empty for single-node stores and topology reads
	Cursor uint64 // native cursor sent to the shard
	Err    error
}

func (e *ScanIoError) Error() string {
	if e.Shard == "" {
		return fmt.Sprintf("scan io error|cursor=%d|err=%v", e.Cursor, e.Err)
	}
	return fmt.Sprintf("scan io error|shard=%s|cursor=%d|err=%v", e.Shard, e.Cursor, e.Err)
}

func (e *ScanIoError) Unwrap() error {
	return e.Err
}

// IsScanIoError reports whether err is (or wraps) a *ScanIoError.
func IsScanIoError(err error) bool {
	var ioErr *ScanIoError
	return errors.As(err, &ioErr)
}

func invalidArgf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidScanArgument, format, args...)
}

func malformedf(format string, args ...any) error {
	return errors.Wrapf(ErrMalformedCursor, format, args...)
}
