package kmetric

import (
	"context"
	"strconv"
	"time"

	"github.com/KyberNetwork/kyber-trace-go/pkg/constant"
	kybermetric "github.com/KyberNetwork/kyber-trace-go/pkg/metric"
	"github.com/KyberNetwork/kyber-trace-go/pkg/util/env"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ScanStep           = "scan_step"
	ScanStepDuration   = "scan_step_duration"
	ScanBatchKeys      = "scan_batch_keys"
	ScanTopologyChange = "scan_topology_change"
	ClientRefresh      = "client_refresh"
	IncomingRequest    = "incoming_request"

	AttrClientName = "client.name"
	AttrClientId   = "client.id"
	AttrShard      = "shard"
	AttrOutcome    = "outcome"
	AttrAdded      = "added"
	AttrDropped    = "dropped"
	AttrCode       = "code"
)

// scan step outcomes
const (
	OutcomeContinue  = "continue"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"
)

var (
	serviceName    = env.StringFromEnv(constant.EnvKeyOtelServiceName, constant.OtelDefaultServiceName)
	clientNameAttr = attribute.String(AttrClientName, serviceName)

	meter = kybermetric.Meter()

	scanStepCounter = noErr(meter.Int64Counter(ScanStep,
		metric.WithDescription("Counter of native scan calls")))
	topologyCounter = noErr(meter.Int64Counter(ScanTopologyChange,
		metric.WithDescription("Counter of shard set changes observed mid-scan")))
	refreshCounter  = noErr(meter.Int64Counter(ClientRefresh,
		metric.WithDescription("Counter of client refreshes")))
	incomingCounter = noErr(meter.Int64Counter(IncomingRequest,
		metric.WithDescription("Counter of incoming requests")))

	batchKeysHistogram    = noErr(meter.Int64Histogram(ScanBatchKeys,
		metric.WithDescription("Histogram of keys returned per native scan call")))
	stepDurationHistogram = noErr(meter.Float64Histogram(ScanStepDuration,
		metric.WithUnit("ms"), metric.WithDescription("Histogram of native scan call durations")))
)

func noErr[T any](t T, _ error) T {
	return t
}

func IncScanStep(ctx context.Context, shard, outcome string) {
	scanStepCounter.Add(ctx, 1, metric.WithAttributes(clientNameAttr,
		attribute.String(AttrShard, shard), attribute.String(AttrOutcome, outcome)))
}

func PushScanBatchKeys(ctx context.Context, keys int, shard string) {
	batchKeysHistogram.Record(ctx, int64(keys), metric.WithAttributes(clientNameAttr,
		attribute.String(AttrShard, shard)))
}

func PushScanStepDuration(ctx context.Context, duration time.Duration, shard string) {
	stepDurationHistogram.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(clientNameAttr,
		attribute.String(AttrShard, shard)))
}

func IncTopologyChange(ctx context.Context, added, dropped int) {
	topologyCounter.Add(ctx, 1, metric.WithAttributes(clientNameAttr,
		attribute.String(AttrAdded, strconv.Itoa(added)), attribute.String(AttrDropped, strconv.Itoa(dropped))))
}

func IncClientRefresh(ctx context.Context) {
	refreshCounter.Add(ctx, 1, metric.WithAttributes(clientNameAttr))
}

func IncIncomingRequest(ctx context.Context, clientId string, code int) {
	incomingCounter.Add(ctx, 1, metric.WithAttributes(clientNameAttr,
		attribute.String(AttrClientId, clientId), attribute.Int(AttrCode, code)))
}
