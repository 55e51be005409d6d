package observe

import (
	"context"

	"github.com/KyberNetwork/kutils/klog"
	kybermetric "github.com/KyberNetwork/kyber-trace-go/pkg/metric"
	kybertracer "github.com/KyberNetwork/kyber-trace-go/pkg/tracer"
)

// Shutdown flushes and shuts down the kyber-trace-go tracer and meter providers, when configured.
func Shutdown(ctx context.Context) {
	shutdownTracer(ctx)
	shutdownMetric(ctx)
}

func shutdownTracer(ctx context.Context) {
	if kybertracer.Provider() != nil {
		err := kybertracer.Flush(ctx)
		if err != nil {
			klog.Errorf(ctx, "Failed to flush tracer: %v", err)
		}
		klog.Info(ctx, "start shutdown tracer")
		err = kybertracer.Shutdown(ctx)
		if err != nil {
			klog.Errorf(ctx, "Failed to shutdown tracer: %v", err)
		}
	}
}

func shutdownMetric(ctx context.Context) {
	if kybermetric.Provider() != nil {
		err := kybermetric.Flush(ctx)
		if err != nil {
			klog.Errorf(ctx, "Failed to flush metric: %v", err)
		}
		klog.Info(ctx, "start shutdown metric")
		err = kybermetric.Shutdown(ctx)
		if err != nil {
			klog.Errorf(ctx, "Failed to shutdown metric: %v", err)
		}
	}
}
