package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
)

func TestMarkSettledReturnsRowsTransitioned(t *testing.T) {
	var gotQuery string
	var gotArgs []any
	tx := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			gotQuery = query
			gotArgs = args
			return stubResult{rows: 1}, nil
		},
	}
	s := NewMarketStore(stubDB{})

	rows, err := s.MarkSettled(context.Background(), tx, "m1")
	if err != nil {
		t.Fatalf("mark settled failed: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one transitioned row, got %d", rows)
	}
	if !strings.Contains(gotQuery, "status = 'final'") {
		t.Fatal("update must be guarded on the final status")
	}
	if len(gotArgs) != 1 || gotArgs[0] != "m1" {
		t.Fatalf("unexpected args: %v", gotArgs)
	}
}

func TestMarkSettledZeroRowsWhenAlreadySettled(t *testing.T) {
	tx := stubExecer{
		execFn: func(context.Context, string, ...any) (sql.Result, error) {
			return stubResult{rows: 0}, nil
		},
	}
	s := NewMarketStore(stubDB{})

	rows, err := s.MarkSettled(context.Background(), tx, "m1")
	if err != nil {
		t.Fatalf("mark settled failed: %v", err)
	}
	if rows != 0 {
		t.Fatalf("settled market should transition zero rows, got %d", rows)
	}
}

func TestAdjustExposureArguments(t *testing.T) {
	var gotArgs []any
	tx := stubExecer{
		execFn: func(_ context.Context, _ string, args ...any) (sql.Result, error) {
			gotArgs = args
			return stubResult{rows: 1}, nil
		},
	}
	s := NewMarketStore(stubDB{})

	if err := s.AdjustExposure(context.Background(), tx, "m1", -2500, -1); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if len(gotArgs) != 3 || gotArgs[0] != int64(-2500) || gotArgs[1] != -1 || gotArgs[2] != "m1" {
		t.Fatalf("unexpected args: %v", gotArgs)
	}
}

func TestUpdateLinesOnlyTouchesOpenMarkets(t *testing.T) {
	var gotQuery string
	tx := stubExecer{
		execFn: func(_ context.Context, query string, _ ...any) (sql.Result, error) {
			gotQuery = query
			return stubResult{}, nil
		},
	}
	s := NewMarketStore(stubDB{})

	if err := s.UpdateLines(context.Background(), tx, "m1", nil, nil, nil, nil); err != nil {
		t.Fatalf("update lines failed: %v", err)
	}
	if !strings.Contains(gotQuery, "status = 'open'") {
		t.Fatal("line updates must be restricted to open markets")
	}
}

func TestMarkSettledPropagatesExecError(t *testing.T) {
	execErr := errors.New("deadlock")
	tx := stubExecer{
		execFn: func(context.Context, string, ...any) (sql.Result, error) {
			return nil, execErr
		},
	}
	s := NewMarketStore(stubDB{})

	if _, err := s.MarkSettled(context.Background(), tx, "m1"); err != execErr {
		t.Fatalf("expected exec error, got %v", err)
	}
}
