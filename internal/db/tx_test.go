package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestWithTx_NilGuards(t *testing.T) {
	ctx := context.Background()
	if err := WithTx(nil, nil, pgx.TxOptions{}, func(context.Context, pgx.Tx) error { return nil }); err == nil {
		t.Fatalf("expected error for nil ctx")
	}
	if err := WithTx(ctx, nil, pgx.TxOptions{}, func(context.Context, pgx.Tx) error { return nil }); err == nil {
		t.Fatalf("expected error for nil beginner")
	}
	if err := WithTx(ctx, nil, pgx.TxOptions{}, nil); err == nil {
		t.Fatalf("expected error for nil fn")
	}
}

type failingBeginner struct{ err error }

func (f failingBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nil, f.err
}

func TestWithTx_BeginErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	called := false
	err := WithTx(context.Background(), failingBeginner{err: boom}, pgx.TxOptions{}, func(context.Context, pgx.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if called {
		t.Fatalf("fn must not run when begin fails")
	}
}
