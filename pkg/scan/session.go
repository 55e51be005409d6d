package scan

import (
	"context"

	"github.com/KyberNetwork/kutils/klog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Batch is the result of one Session.Next call.
type Batch struct {
	Cursor             string   // pass to the next call; StartCursor once the scan is complete
	Keys               []string // may be empty even when the scan is not complete
	DuplicatesPossible bool     // a key may be returned more than once over the whole scan
}

// Done reports whether the scan is complete.
func (b Batch) Done() bool {
	return IsTerminal(b.Cursor)
}

// Session is the entry point of a scan. It holds no per-scan state: the cursor is the only thing threaded
// between calls, so one Session serves any number of independent scans concurrently. Two concurrent Next
// calls with the same cursor are a caller error; which result is authoritative is undefined.
type Session struct {
	driver       Driver
	orchestrator *Orchestrator
	duplicates   bool
	defaultCount int64
	tracer       trace.Tracer
}

// Option configures a Session.
type Option func(*Session)

// WithTopology makes the session shard-aware: cursors are composite and shards listed by topology are
// scanned one after another.
func WithTopology(topology Topology) Option {
	return func(s *Session) {
		o := NewOrchestrator(s.driver, topology)
		s.orchestrator = &o
	}
}

// WithDuplicatesPossible marks every batch as possibly repeating keys, for stores whose scan may return a key
// more than once.
func WithDuplicatesPossible() Option {
	return func(s *Session) {
		s.duplicates = true
	}
}

// WithDefaultCount sets the count hint used when the caller's filter carries none.
func WithDefaultCount(count int64) Option {
	return func(s *Session) {
		s.defaultCount = count
	}
}

// WithTracer sets the tracer used to record one span per Next call.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Session) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewSession returns a Session over scanner. Without WithTopology it scans a single, non-partitioned store.
func NewSession(scanner ShardScanner, opts ...Option) *Session {
	s := &Session{
		driver: NewDriver(scanner),
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Partitioned reports whether the session produces composite cursors.
func (s *Session) Partitioned() bool {
	return s.orchestrator != nil
}

// Next returns the batch following cursor, starting from StartCursor. Exactly one native scan call is made.
// On error nothing changes: the same cursor can be passed again.
func (s *Session) Next(ctx context.Context, cursor string, f Filter) (Batch, error) {
	ctx, span := s.tracer.Start(ctx, "kscan.Next", trace.WithAttributes(
		attribute.String("kscan.cursor", cursor),
		attribute.String("kscan.filter", f.String()),
	))
	defer span.End()

	batch, err := s.next(ctx, cursor, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if IsScanIoError(err) {
			klog.LoggerFromCtx(ctx).Warnf("Session.Next|scan failed|cursor=%s|err=%v", cursor, err)
		}
		return Batch{}, err
	}
	span.SetAttributes(attribute.Int("kscan.keys", len(batch.Keys)), attribute.Bool("kscan.done", batch.Done()))
	return batch, nil
}

func (s *Session) next(ctx context.Context, cursor string, f Filter) (Batch, error) {
	if err := f.Validate(); err != nil {
		return Batch{}, err
	}
	f = f.withDefaultCount(s.defaultCount)

	state, err := Decode(cursor)
	if err != nil {
		return Batch{}, err
	}

	if s.orchestrator == nil {
		if state.Composite {
			return Batch{}, malformedf("composite cursor passed to a single-node scan")
		}
		res, err := s.driver.Step(ctx, "", state.Native, f)
		if err != nil {
			return Batch{}, err
		}
		return Batch{
			Cursor:             Encode(State{Native: res.Next}),
			Keys:               res.Keys,
			DuplicatesPossible: s.duplicates,
		}, nil
	}

	if !state.IsStart() && !state.Composite {
		return Batch{}, malformedf("simple cursor %q passed to a sharded scan", cursor)
	}
	out, keys, err := s.orchestrator.Step(ctx, state, f)
	if err != nil {
		return Batch{}, err
	}
	return Batch{
		Cursor:             Encode(out),
		Keys:               keys,
		DuplicatesPossible: s.duplicates || out.Reshaped,
	}, nil
}

// Nexter is anything serving scan pages, local or remote.
type Nexter interface {
	Next(ctx context.Context, cursor string, f Filter) (Batch, error)
}

// NexterFunc adapts a function to Nexter.
type NexterFunc func(ctx context.Context, cursor string, f Filter) (Batch, error)

// Next implements Nexter by calling itself.
func (fn NexterFunc) Next(ctx context.Context, cursor string, f Filter) (Batch, error) {
	return fn(ctx, cursor, f)
}

var _ Nexter = (*Session)(nil)
