package boot

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"envcheck/internal/platform/logging"
	"envcheck/internal/platform/metrics"
	"envcheck/internal/platform/otel"

	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Deps are the platform dependencies handed to the job.
type Deps struct {
	Log     *zap.Logger
	Metrics *metrics.CheckMetrics // nil unless MetricsFile is set
	RunID   string
}

// Options configures the platform boot.
type Options struct {
	ServiceName string

	// MetricsFile, when set, receives a Prometheus textfile after the job.
	MetricsFile string

	// ShutdownTimeout bounds telemetry flushing.
	ShutdownTimeout time.Duration
}

// Run boots the common platform pieces (logger, tracing, optional metrics),
// runs job once with a context cancelled on SIGINT/SIGTERM, then flushes
// telemetry. The job's error is returned unchanged; telemetry problems are
// logged and never replace it.
func Run(ctx context.Context, opts Options, job func(ctx context.Context, deps Deps) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.ServiceName == "" {
		return errors.New("boot: ServiceName is required")
	}
	if job == nil {
		return errors.New("boot: nil job")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	log, err := logging.New(opts.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logging.With(runCtx, log)

	attrs := []attribute.KeyValue{attribute.String("envcheck.run_id", runID)}

	// A broken exporter must not hide the report.
	shutdownTrace, err := otel.Init(runCtx, opts.ServiceName, attrs...)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
		shutdownTrace = func(context.Context) error { return nil }
	}

	deps := Deps{Log: log, RunID: runID}
	var reg *prom.Registry
	shutdownMetrics := func(context.Context) error { return nil }
	if opts.MetricsFile != "" {
		r, shutdown, err := otel.InitMetricsPrometheus(runCtx, opts.ServiceName, attrs...)
		if err != nil {
			log.Warn("metrics disabled", zap.Error(err))
		} else {
			reg, shutdownMetrics = r, shutdown
			if deps.Metrics, err = metrics.NewCheckMetrics(opts.ServiceName); err != nil {
				log.Warn("check metrics disabled", zap.Error(err))
			}
		}
	}

	jobErr := job(runCtx, deps)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()

	// The Prometheus exporter reads on Gather, so write before shutdown.
	var errs []error
	if reg != nil {
		if err := otel.WriteTextfile(opts.MetricsFile, reg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := shutdownTrace(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn("telemetry shutdown", zap.Error(err))
	}
	return jobErr
}
