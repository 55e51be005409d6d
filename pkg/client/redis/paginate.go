package kredis

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/KyberNetwork/kscan/pkg/scan"
)

type paginateOpt struct {
	retry func(backoff.Operation) error
}

// PaginateOption configures Paginate.
type PaginateOption func(*paginateOpt)

// WithRetry retries each page through retry, e.g. client.BackoffCfg.RetryScan. Retrying is safe because a
// failed page leaves the cursor untouched.
func WithRetry(retry func(backoff.Operation) error) PaginateOption {
	return func(o *paginateOpt) {
		o.retry = retry
	}
}

// Paginate runs a full scan from the start cursor, calling callbackFn with every non-empty batch. It stops at
// the first error, from the session or from callbackFn.
func Paginate(ctx context.Context, session scan.Nexter, f scan.Filter, callbackFn func(keys []string) error,
	opts ...PaginateOption) error {
	var o paginateOpt
	for _, opt := range opts {
		opt(&o)
	}

	for cursor := scan.StartCursor; ; {
		var batch scan.Batch
		page := func() (err error) {
			batch, err = session.Next(ctx, cursor, f)
			return err
		}
		var err error
		if o.retry != nil {
			err = o.retry(page)
		} else {
			err = page()
		}
		if err != nil {
			return err
		}

		if len(batch.Keys) > 0 {
			if err := callbackFn(batch.Keys); err != nil {
				return err
			}
		}

		if batch.Done() {
			return nil
		}
		cursor = batch.Cursor
	}
}

// CollectKeys runs a full scan and returns each key once, in the order first seen.
func CollectKeys(ctx context.Context, session scan.Nexter, f scan.Filter, opts ...PaginateOption) ([]string,
	error) {
	var keys []string
	seen := make(map[string]struct{})
	err := Paginate(ctx, session, f, func(batch []string) error {
		for _, key := range batch {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		return nil
	}, opts...)
	return keys, err
}
