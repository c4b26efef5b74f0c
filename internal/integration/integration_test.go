//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"net"
	"net/url"
	"strconv"
	"testing"
	"time"

	"envcheck/internal/db"
	"envcheck/internal/platform/config"
	"envcheck/internal/verify"
	"envcheck/internal/vectorstore"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

const (
	pgvectorImage = "pgvector/pgvector:pg16"
	plainImage    = "postgres:16"
)

func TestIntegration_HealthyDatabase(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := startPostgres(t, ctx, pgvectorImage)
	dsn := mustConnString(t, ctx, pg)
	pool := mustPool(t, ctx, dsn)
	defer pool.Close()

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		t.Fatalf("create extension err=%v", err)
	}

	env := envFromDSN(t, dsn)

	for i := 1; i <= 2; i++ {
		var stdout, stderr bytes.Buffer
		rep := verify.New(verify.Options{
			Log:    zap.NewNop(),
			Stdout: &stdout,
			Stderr: &stderr,
			Lookup: lookup(env),
		}).Run(ctx)

		if !rep.OK() {
			t.Fatalf("run %d outcome=%s stderr=%s", i, rep.Outcome, stderr.String())
		}
		if !bytes.Contains(stdout.Bytes(), []byte(`  1. "First document" (distance: 0)`)) {
			t.Fatalf("run %d: closest neighbor missing from output:\n%s", i, stdout.String())
		}
		if tableExists(t, ctx, pool) {
			t.Fatalf("run %d: %s still exists", i, vectorstore.ScratchTable)
		}
	}
}

func TestIntegration_StoreNearestOrdering(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := startPostgres(t, ctx, pgvectorImage)
	dsn := mustConnString(t, ctx, pg)
	admin := mustPool(t, ctx, dsn)
	defer admin.Close()
	if _, err := admin.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		t.Fatalf("create extension err=%v", err)
	}

	p, err := vectorstore.Open(ctx, configFromEnv(t, envFromDSN(t, dsn)))
	if err != nil {
		t.Fatalf("Open err=%v", err)
	}
	defer p.Close()

	s, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire err=%v", err)
	}
	defer s.Release()

	if err := s.ProbeVector(ctx); err != nil {
		t.Fatalf("ProbeVector err=%v", err)
	}
	if err := s.RegisterTypes(ctx); err != nil {
		t.Fatalf("RegisterTypes err=%v", err)
	}
	if d, err := s.Distance(ctx); err != nil || d != 1 {
		t.Fatalf("Distance=%v err=%v", d, err)
	}
	if err := s.CreateScratchTable(ctx); err != nil {
		t.Fatalf("CreateScratchTable err=%v", err)
	}
	defer func() { _ = s.DropScratchTable(context.Background()) }()
	if err := s.InsertRows(ctx, vectorstore.SampleRows()); err != nil {
		t.Fatalf("InsertRows err=%v", err)
	}

	got, err := s.Nearest(ctx, vectorstore.Reference(), 3)
	if err != nil {
		t.Fatalf("Nearest err=%v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 neighbors, got %d", len(got))
	}
	want := []string{"First document", "Third document", "Second document"}
	for i, n := range got {
		if n.Content != want[i] {
			t.Fatalf("neighbor %d=%q want %q", i, n.Content, want[i])
		}
		if i > 0 && n.Distance < got[i-1].Distance {
			t.Fatalf("neighbors not in ascending distance: %+v", got)
		}
	}
	if got[0].Distance != 0 || len(got[0].Embedding.Slice()) != 3 {
		t.Fatalf("unexpected closest neighbor: %+v", got[0])
	}
}

func TestIntegration_ExtensionMissing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := startPostgres(t, ctx, plainImage)
	dsn := mustConnString(t, ctx, pg)

	var stdout, stderr bytes.Buffer
	rep := verify.New(verify.Options{
		Stdout: &stdout,
		Stderr: &stderr,
		Lookup: lookup(envFromDSN(t, dsn)),
	}).Run(ctx)

	if rep.Outcome != verify.ExtensionMissing {
		t.Fatalf("outcome=%s want %s", rep.Outcome, verify.ExtensionMissing)
	}
	if !bytes.Contains(stderr.Bytes(), []byte("CREATE EXTENSION IF NOT EXISTS vector;")) {
		t.Fatalf("remediation hint missing:\n%s", stderr.String())
	}
}

func TestIntegration_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	env := map[string]string{
		"POSTGRES_HOST":            "127.0.0.1",
		"POSTGRES_PORT":            "1",
		"POSTGRES_DB":              "nope",
		"POSTGRES_USER":            "nope",
		"POSTGRES_PASSWORD":        "nope",
		"POSTGRES_SSLMODE":         "disable",
		"ENVCHECK_CONNECT_TIMEOUT": "2s",
	}
	rep := verify.New(verify.Options{Lookup: lookup(env)}).Run(ctx)
	if rep.Outcome != verify.ConnectivityFailure {
		t.Fatalf("outcome=%s want %s", rep.Outcome, verify.ConnectivityFailure)
	}
}

func startPostgres(t *testing.T, ctx context.Context, image string) *postgres.PostgresContainer {
	t.Helper()
	pg, err := postgres.Run(ctx,
		image,
		postgres.WithDatabase("rag"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres err=%v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })
	return pg
}

func mustConnString(t *testing.T, ctx context.Context, pg *postgres.PostgresContainer) string {
	t.Helper()
	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("conn string err=%v", err)
	}
	return dsn
}

func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	pool, err := db.NewPool(ctx, dsn, db.Options{InitialPingTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewPool err=%v", err)
	}
	if err := db.Check(ctx, pool); err != nil {
		t.Fatalf("Check err=%v", err)
	}
	return pool
}

// envFromDSN turns a container DSN back into the POSTGRES_* variables.
func envFromDSN(t *testing.T, dsn string) map[string]string {
	t.Helper()
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse dsn err=%v", err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host err=%v", err)
	}
	pw, _ := u.User.Password()
	return map[string]string{
		"POSTGRES_HOST":     host,
		"POSTGRES_PORT":     port,
		"POSTGRES_DB":       u.Path[1:],
		"POSTGRES_USER":     u.User.Username(),
		"POSTGRES_PASSWORD": pw,
		"POSTGRES_SSLMODE":  "disable",
	}
}

func configFromEnv(t *testing.T, env map[string]string) config.Postgres {
	t.Helper()
	cfg, warns := config.PostgresFromEnv(lookup(env))
	if len(warns) > 0 {
		t.Fatalf("config warnings: %v", warns)
	}
	if cfg.Port != mustAtoi(t, env["POSTGRES_PORT"]) {
		t.Fatalf("port not parsed: %+v", cfg)
	}
	return cfg
}

func lookup(env map[string]string) config.LookupFunc {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func tableExists(t *testing.T, ctx context.Context, pool *pgxpool.Pool) bool {
	t.Helper()
	var ok bool
	if err := pool.QueryRow(ctx, `SELECT to_regclass('public.test_vectors') IS NOT NULL`).Scan(&ok); err != nil {
		t.Fatalf("to_regclass err=%v", err)
	}
	return ok
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	if err != nil {
		t.Fatalf("atoi %q err=%v", s, err)
	}
	return n
}
