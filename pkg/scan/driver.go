package scan

import (
	"context"
	"time"

	"github.com/KyberNetwork/kscan/pkg/observe/kmetric"
)

// ShardScanner is the store's native scan primitive for one shard. It returns the next native cursor, 0 once
// the shard has been fully iterated, and the batch of keys matching f. Single-node stores ignore shard.
type ShardScanner interface {
	ScanShard(ctx context.Context, shard string, cursor uint64, f Filter) (uint64, []string, error)
}

// ShardScannerFunc adapts a function to ShardScanner.
type ShardScannerFunc func(ctx context.Context, shard string, cursor uint64, f Filter) (uint64, []string, error)

// ScanShard implements ShardScanner by calling itself.
func (fn ShardScannerFunc) ScanShard(ctx context.Context, shard string, cursor uint64, f Filter) (uint64,
	[]string, error) {
	return fn(ctx, shard, cursor, f)
}

// StepResult is the outcome of one native scan call.
type StepResult struct {
	Next      uint64
	Keys      []string
	Exhausted bool
}

// Driver issues native scan calls against one shard at a time.
type Driver struct {
	scanner ShardScanner
}

// NewDriver returns a Driver over scanner.
func NewDriver(scanner ShardScanner) Driver {
	return Driver{scanner: scanner}
}

// Step issues exactly one native scan call. The filter is passed through as is; the store applies it. An empty
// batch with a non-zero cursor is not the end of the shard. Failures come back as *ScanIoError, never retried.
func (d Driver) Step(ctx context.Context, shard string, cursor uint64, f Filter) (StepResult, error) {
	start := time.Now()
	next, keys, err := d.scanner.ScanShard(ctx, shard, cursor, f)
	kmetric.PushScanStepDuration(ctx, time.Since(start), shard)
	if err != nil {
		kmetric.IncScanStep(ctx, shard, kmetric.OutcomeError)
		return StepResult{}, &ScanIoError{Shard: shard, Cursor: cursor, Err: err}
	}

	outcome := kmetric.OutcomeContinue
	if next == 0 {
		outcome = kmetric.OutcomeExhausted
	}
	kmetric.IncScanStep(ctx, shard, outcome)
	kmetric.PushScanBatchKeys(ctx, len(keys), shard)

	return StepResult{Next: next, Keys: keys, Exhausted: next == 0}, nil
}
