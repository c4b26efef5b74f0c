// Package verify checks that a developer machine can run the RAG stack:
// a recent Go toolchain, the POSTGRES_* variables, and a reachable
// PostgreSQL with a working pgvector extension.
package verify

import (
	"context"
	"errors"
	"fmt"
	"go/version"
	"io"
	"os"
	"runtime"
	"strings"

	"envcheck/internal/platform/config"
	"envcheck/internal/platform/health"
	"envcheck/internal/platform/logging"
	"envcheck/internal/platform/metrics"
	"envcheck/internal/vectorstore"

	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MinGoVersion is the oldest toolchain the project builds with.
const MinGoVersion = "go1.22"

// NearestLimit is the number of neighbors requested from the scratch table.
const NearestLimit = 3

// Session is one acquired database connection.
type Session interface {
	ServerVersion(ctx context.Context) (string, error)
	ProbeVector(ctx context.Context) error
	ExtensionVersion(ctx context.Context) (string, error)
	RegisterTypes(ctx context.Context) error
	Distance(ctx context.Context) (float64, error)
	CreateScratchTable(ctx context.Context) error
	InsertRows(ctx context.Context, rows []vectorstore.Row) error
	Nearest(ctx context.Context, ref pgvector.Vector, limit int) ([]vectorstore.Neighbor, error)
	DropScratchTable(ctx context.Context) error
	Release()
}

// Connector is the connection pool. Close is called exactly once per run.
type Connector interface {
	Acquire(ctx context.Context) (Session, error)
	Close()
}

// OpenFunc creates the pool. It should not perform network I/O.
type OpenFunc func(ctx context.Context) (Connector, error)

// Postgres opens a pgxpool-backed Connector for cfg.
func Postgres(cfg config.Postgres) OpenFunc {
	return func(ctx context.Context) (Connector, error) {
		logging.From(ctx, nil).Debug("opening connection pool", zap.String("dsn", cfg.Redacted()))
		p, err := vectorstore.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return pgConnector{pool: p}, nil
	}
}

type pgConnector struct {
	pool *vectorstore.Pool
}

func (c pgConnector) Acquire(ctx context.Context) (Session, error) {
	s, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c pgConnector) Close() { c.pool.Close() }

type Options struct {
	Log     *zap.Logger
	Metrics *metrics.CheckMetrics
	Tracer  trace.Tracer

	Stdout io.Writer
	Stderr io.Writer

	// RunID, when set, is printed under the report title.
	RunID string

	// Lookup defaults to os.LookupEnv.
	Lookup config.LookupFunc
	// GoVersion defaults to runtime.Version().
	GoVersion string
	// Open defaults to Postgres with the config read through Lookup.
	Open OpenFunc
}

type Verifier struct {
	log     *zap.Logger
	metrics *metrics.CheckMetrics
	tracer  trace.Tracer
	out     *Printer
	runID   string
	lookup  config.LookupFunc
	goVer   string
	open    OpenFunc
}

func New(opts Options) *Verifier {
	v := &Verifier{
		log:     opts.Log,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		out:     NewPrinter(opts.Stdout, opts.Stderr),
		runID:   opts.RunID,
		lookup:  opts.Lookup,
		goVer:   opts.GoVersion,
		open:    opts.Open,
	}
	if v.log == nil {
		v.log = zap.NewNop()
	}
	if v.tracer == nil {
		v.tracer = otel.Tracer("envcheck/verify")
	}
	if v.lookup == nil {
		v.lookup = os.LookupEnv
	}
	if v.goVer == "" {
		v.goVer = runtime.Version()
	}
	return v
}

// Run executes every check in order, prints the report and returns it.
// The connection is released and the pool closed before the summary.
func (v *Verifier) Run(ctx context.Context) Report {
	ctx = logging.With(ctx, logging.From(ctx, v.log))
	v.out.Title(v.runID)

	results := v.evaluate(ctx)
	for _, r := range results {
		if r.Skipped {
			v.metrics.Record(ctx, r)
		}
	}

	rep := Report{Results: results, Outcome: classify(results)}
	v.out.Summary(rep)
	logging.From(ctx, v.log).Info("verification finished",
		zap.String("outcome", rep.Outcome.String()),
		zap.Int("failed", len(rep.Failed())),
		zap.Int("skipped", len(rep.Skipped())),
	)
	return rep
}

func (v *Verifier) evaluate(ctx context.Context) []health.Result {
	cfg, warns := config.PostgresFromEnv(v.lookup)
	r := &run{Verifier: v, warns: warns, open: v.open}
	if r.open == nil {
		r.open = Postgres(cfg)
	}
	defer r.cleanup(ctx)

	root := &health.Node{Name: "envcheck"}
	root.Add(CheckRuntime, r.checkRuntime)
	root.Add(CheckEnv, r.checkEnv)
	pg := root.Add(CheckPostgres, r.checkPostgres)
	ext := pg.Add(CheckPgvector, r.checkPgvector)
	ext.Add(CheckVectorOps, r.checkVectorOps)

	return health.Evaluate(ctx, root, v)
}

// Start implements health.Observer: one span, one log line and one metric
// data point per executed check.
func (v *Verifier) Start(ctx context.Context, name string) (context.Context, func(health.Result)) {
	ctx, span := v.tracer.Start(ctx, "check "+name, trace.WithAttributes(attribute.String("envcheck.check", name)))
	return ctx, func(res health.Result) {
		defer span.End()
		l := logging.WithTrace(ctx, logging.From(ctx, v.log)).With(
			zap.String("check", name),
			zap.Duration("duration", res.Duration),
		)
		if res.Error != nil {
			span.RecordError(res.Error)
			span.SetStatus(codes.Error, res.Error.Error())
			l.Warn("check failed", zap.Error(res.Error))
		} else {
			l.Debug("check passed")
		}
		v.metrics.Record(ctx, res)
	}
}

// run holds the resources acquired during one Run.
type run struct {
	*Verifier
	warns []error
	open  OpenFunc

	conn Connector
	sess Session
}

func (r *run) cleanup(ctx context.Context) {
	if r.sess != nil {
		r.sess.Release()
		r.sess = nil
	}
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
		logging.From(ctx, r.log).Debug("connection pool closed")
	}
}

func (r *run) checkRuntime(ctx context.Context) error {
	r.out.Line("Go version: %s", r.goVer)

	// runtime.Version may carry experiment suffixes: "go1.24.9 X:boringcrypto".
	goVer := r.goVer
	if f := strings.Fields(goVer); len(f) > 0 {
		goVer = f[0]
	}
	if !version.IsValid(goVer) {
		r.out.Line("Go version not recognized, assuming compatible")
		return nil
	}
	if version.Compare(goVer, MinGoVersion) < 0 {
		r.out.Fail("Go %s+ required", strings.TrimPrefix(MinGoVersion, "go"))
		return fmt.Errorf("go version %s is older than %s", goVer, MinGoVersion)
	}
	r.out.Line("Go version compatible")
	return nil
}

func (r *run) checkEnv(ctx context.Context) error {
	missing := config.Missing(r.lookup, config.Required)
	for _, k := range missing {
		r.out.Fail("Missing environment variable: %s", k)
	}
	for _, w := range r.warns {
		r.out.Fail("Invalid environment variable: %v", w)
	}
	if len(missing) == 0 && len(r.warns) == 0 {
		r.out.Line("Environment variables configured")
		return nil
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}
	errs = append(errs, r.warns...)
	return errors.Join(errs...)
}

func (r *run) checkPostgres(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			r.out.Fail("PostgreSQL connection failed: %v", err)
		}
	}()

	conn, err := r.open(ctx)
	if err != nil {
		return err
	}
	r.conn = conn

	sess, err := conn.Acquire(ctx)
	if err != nil {
		return err
	}
	r.sess = sess
	r.out.Line("PostgreSQL connection successful")

	ver, err := sess.ServerVersion(ctx)
	if err != nil {
		return err
	}
	r.out.Line("PostgreSQL version: %s", ver)
	return nil
}

func (r *run) checkPgvector(ctx context.Context) error {
	log := logging.From(ctx, r.log)

	if err := r.sess.ProbeVector(ctx); err != nil {
		r.out.Fail("pgvector extension not found")
		r.out.Fail("   Run: CREATE EXTENSION IF NOT EXISTS vector;")
		log.Debug("vector probe failed", zap.String("sqlstate", vectorstore.SQLState(err)))
		return err
	}
	r.out.Line("pgvector extension working")

	if ver, err := r.sess.ExtensionVersion(ctx); err != nil {
		log.Debug("pgvector version unavailable", zap.Error(err))
	} else {
		r.out.Line("pgvector version: %s", ver)
	}
	if err := r.sess.RegisterTypes(ctx); err != nil {
		log.Warn("pgvector binary codecs unavailable, using text encoding", zap.Error(err))
	}
	return nil
}

func (r *run) checkVectorOps(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			r.out.Fail("Vector operations failed: %v", err)
		}
	}()

	d, err := r.sess.Distance(ctx)
	if err != nil {
		return err
	}
	r.out.Line("Vector distance calculation: %v", d)

	if err := r.sess.CreateScratchTable(ctx); err != nil {
		return err
	}
	defer func() {
		// Drop even when ctx was cancelled mid-run.
		dropErr := r.sess.DropScratchTable(context.WithoutCancel(ctx))
		switch {
		case dropErr == nil:
		case err == nil:
			err = dropErr
		default:
			logging.From(ctx, r.log).Warn("scratch table left behind",
				zap.String("table", vectorstore.ScratchTable),
				zap.Error(dropErr),
			)
		}
	}()

	if err := r.sess.InsertRows(ctx, vectorstore.SampleRows()); err != nil {
		return err
	}

	neighbors, err := r.sess.Nearest(ctx, vectorstore.Reference(), NearestLimit)
	if err != nil {
		return err
	}
	if len(neighbors) == 0 {
		return errors.New("similarity search returned no rows")
	}
	r.out.Line("Vector similarity search working:")
	for i, n := range neighbors {
		r.out.Line("  %d. %q (distance: %v)", i+1, n.Content, n.Distance)
	}
	return nil
}
