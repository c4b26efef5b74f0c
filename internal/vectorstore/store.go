// Package vectorstore runs the pgvector statements used to verify an
// environment. Every method works on one acquired connection so that the
// scratch table, type registration and session state stay together.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"envcheck/internal/db"
	"envcheck/internal/platform/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// ScratchTable is created, filled, queried and dropped within one run.
const ScratchTable = "test_vectors"

// ErrExtensionMissing wraps any failure of the vector type probe.
var ErrExtensionMissing = errors.New("pgvector extension not found")

// Row is one sample inserted into the scratch table.
type Row struct {
	Content   string
	Embedding pgvector.Vector
}

// Neighbor is one nearest-neighbor result. Field order matches the SELECT list.
type Neighbor struct {
	Content   string
	Embedding pgvector.Vector
	Distance  float64
}

// SampleRows are inserted on every run.
func SampleRows() []Row {
	return []Row{
		{Content: "First document", Embedding: pgvector.NewVector([]float32{1, 2, 3})},
		{Content: "Second document", Embedding: pgvector.NewVector([]float32{4, 5, 6})},
		{Content: "Third document", Embedding: pgvector.NewVector([]float32{1, 2, 4})},
	}
}

// Reference is the query vector for the nearest-neighbor check.
func Reference() pgvector.Vector {
	return pgvector.NewVector([]float32{1, 2, 3})
}

// Pool owns the connection pool for one run.
type Pool struct {
	pool *pgxpool.Pool
}

// Open builds a single-connection pool. No connection is made until Acquire.
func Open(ctx context.Context, cfg config.Postgres) (*Pool, error) {
	p, err := db.NewPool(ctx, cfg.DSN(), db.Options{
		ApplicationName:    "envcheck",
		MaxConns:           1,
		InitialPingTimeout: -1,
	})
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p}, nil
}

func (p *Pool) Acquire(ctx context.Context) (*Store, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Store{conn: c}, nil
}

func (p *Pool) Close() {
	p.pool.Close()
}

// Store issues statements on a single acquired connection.
type Store struct {
	conn *pgxpool.Conn
}

func (s *Store) Release() {
	s.conn.Release()
}

// ServerVersion returns the short server version, e.g. "16.4".
func (s *Store) ServerVersion(ctx context.Context) (string, error) {
	_, short, err := db.ServerVersion(ctx, s.conn)
	return short, err
}

// ProbeVector succeeds only when the vector type exists in this database.
func (s *Store) ProbeVector(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "SELECT '[1,2,3]'::vector;"); err != nil {
		return fmt.Errorf("%w: %w", ErrExtensionMissing, err)
	}
	return nil
}

// ExtensionVersion reports the installed pgvector version.
func (s *Store) ExtensionVersion(ctx context.Context) (string, error) {
	var v string
	err := s.conn.QueryRow(ctx, "SELECT extversion FROM pg_extension WHERE extname = 'vector';").Scan(&v)
	if err != nil {
		return "", err
	}
	return v, nil
}

// RegisterTypes enables binary encoding of vector values on this connection.
// It fails on pgvector releases that predate halfvec and sparsevec; callers
// can keep going, text encoding still works.
func (s *Store) RegisterTypes(ctx context.Context) error {
	return pgxvec.RegisterTypes(ctx, s.conn.Conn())
}

// Distance computes the L2 distance between two literal vectors.
func (s *Store) Distance(ctx context.Context) (float64, error) {
	var d float64
	err := s.conn.QueryRow(ctx, `
		SELECT '[1,2,3]'::vector <-> '[1,2,4]'::vector AS distance;
	`).Scan(&d)
	if err != nil {
		return 0, fmt.Errorf("distance: %w", err)
	}
	return d, nil
}

func (s *Store) CreateScratchTable(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS test_vectors (
			id SERIAL PRIMARY KEY,
			content TEXT,
			embedding VECTOR(3)
		);
	`)
	if err != nil {
		return fmt.Errorf("create %s: %w", ScratchTable, err)
	}
	return nil
}

// InsertRows writes rows in one transaction so a partial insert never lingers.
func (s *Store) InsertRows(ctx context.Context, rows []Row) error {
	err := db.WithTx(ctx, s.conn, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, r := range rows {
			b.Queue(`INSERT INTO test_vectors (content, embedding) VALUES ($1, $2)`, r.Content, r.Embedding)
		}
		return tx.SendBatch(ctx, b).Close()
	})
	if err != nil {
		return fmt.Errorf("insert into %s: %w", ScratchTable, err)
	}
	return nil
}

// Nearest ranks scratch rows by ascending L2 distance to ref.
func (s *Store) Nearest(ctx context.Context, ref pgvector.Vector, limit int) ([]Neighbor, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT content, embedding, embedding <-> $1 AS distance
		FROM test_vectors
		ORDER BY distance
		LIMIT $2;
	`, ref, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Neighbor])
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return out, nil
}

func (s *Store) DropScratchTable(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "DROP TABLE test_vectors;"); err != nil {
		return fmt.Errorf("drop %s: %w", ScratchTable, err)
	}
	return nil
}

// SQLState returns the PostgreSQL error code carried by err, or "".
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
