package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by *pgxpool.Pool, *pgxpool.Conn, *pgx.Conn and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func Check(ctx context.Context, q Querier) error {
	if ctx == nil {
		return errors.New("db: nil context")
	}
	if q == nil {
		return errors.New("db: nil querier")
	}

	var one int
	if err := q.QueryRow(ctx, "select 1").Scan(&one); err != nil {
		return err
	}
	return nil
}

// ServerVersion returns the full `SELECT version();` banner and the short
// version number (its second word, e.g. "16.4").
func ServerVersion(ctx context.Context, q Querier) (banner, short string, err error) {
	if q == nil {
		return "", "", errors.New("db: nil querier")
	}
	if err := q.QueryRow(ctx, "SELECT version();").Scan(&banner); err != nil {
		return "", "", err
	}
	return banner, ShortVersion(banner), nil
}

// ShortVersion extracts "16.4" from "PostgreSQL 16.4 on x86_64-pc-linux-gnu, ...".
// Banners with fewer than two words are returned unchanged.
func ShortVersion(banner string) string {
	f := strings.Fields(banner)
	if len(f) < 2 {
		return banner
	}
	return f[1]
}
