package scanhttp

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/KyberNetwork/kutils"
	"github.com/KyberNetwork/kutils/klog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/KyberNetwork/kscan/pkg/common"
	"github.com/KyberNetwork/kscan/pkg/observe"
	"github.com/KyberNetwork/kscan/pkg/scan"
)

const ShutdownTimeout = 10 * time.Second

// Server serves scan sessions over HTTP.
type Server struct {
	cfg     *Config
	session scan.Nexter
	status  statusWrapper
	logger  func(context.Context) Logger
	handler http.Handler
}

// NewServer return a new http server paging through session
func NewServer(cfg *Config, session scan.Nexter) *Server {
	if cfg.HTTP.Host == "" && cfg.HTTP.Port == 0 {
		cfg.HTTP = DefaultHTTP
	}
	s := &Server{
		cfg:     cfg,
		session: session,
		status:  statusWrapper{development: cfg.Mode == Development},
		logger:  cfg.logger,
	}
	if s.logger == nil {
		s.logger = defaultLogger
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+ScanPath, s.handleScan)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	httpMux := http.NewServeMux()
	basePath := normalizeBasePath(cfg.BasePath)
	httpMux.Handle(basePath+"/", stripBasePath(trace(mux), basePath))
	observe.EnsureTracerProvider()
	s.handler = otelhttp.NewHandler(httpMux, "kscan",
		otelhttp.WithPropagators(&requestIdExtractor{otel.GetTextMapPropagator()}))
	return s
}

// Handler returns the instrumented handler of the server, without h2c.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens for HTTP until ctx is done or os.Interrupt or syscall.SIGTERM is received.
func (s *Server) Serve(ctx context.Context) (err error) {
	stop := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	h2s := &http2.Server{}
	httpServer := &http.Server{
		Addr:    s.cfg.HTTP.String(),
		Handler: h2c.NewHandler(s.handler, h2s),
	}
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(kutils.CtxWithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			klog.Errorf(ctx, "failed to shutdown http server: %v", err)
		}
	}()

	klog.WithFields(ctx, klog.Fields{
		"http_addr": s.cfg.HTTP.String(),
		"base_path": s.cfg.BasePath}).Info("Starting server...")
	select {
	case sig := <-stop:
		klog.Infof(ctx, "Received %s signal, stopping server...", sig.String())
		return nil
	case <-ctx.Done():
		klog.Info(ctx, "Context done, stopping server...")
		return nil
	case err = <-errCh:
		klog.Infof(ctx, "Received fatal error %v, stopping server...", err)
		return err
	}
}

// Serve starts the HTTP scan server. It blocks until ctx is done or os.Interrupt or syscall.SIGTERM is received,
// then flushes traces and metrics.
// Example usage:
//
//	scanhttp.Serve(ctx, cfg, session, scanhttp.WithLogger(myLoggerFactory))
func Serve(ctx context.Context, cfg Config, session scan.Nexter, opts ...Opt) error {
	defer observe.Shutdown(kutils.CtxWithoutCancel(ctx))

	cfg = cfg.Apply(opts...)
	return NewServer(&cfg, session).Serve(ctx)
}

func normalizeBasePath(path string) string {
	if path == "" {
		return ""
	}
	if path[0] != '/' {
		path = "/" + path
	}
	if path[len(path)-1] == '/' {
		return path[:len(path)-1]
	}
	return path
}

func stripBasePath(h http.Handler, path string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = strings.TrimPrefix(r.URL.Path, path)
		r.URL.RawPath = strings.TrimPrefix(r.URL.RawPath, path)
		h.ServeHTTP(w, r)
	})
}

// requestIdExtractor falls back to the x-request-id header when no trace context was propagated.
type requestIdExtractor struct {
	propagation.TextMapPropagator
}

func (r *requestIdExtractor) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	ctx = r.TextMapPropagator.Extract(ctx, carrier)
	if _, ok := common.TraceIdFromCtx(ctx); ok {
		return ctx
	}
	requestId := carrier.Get(common.HeaderXRequestId)
	if requestId == "" {
		return ctx
	}
	return common.CtxWithTraceId(ctx, requestId)
}
