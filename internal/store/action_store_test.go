package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestCompletePersistsExecutedAmount(t *testing.T) {
	var gotQuery string
	var gotArgs []any
	exec := stubExecer{execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
		gotQuery = query
		gotArgs = args
		return stubResult{rows: 1}, nil
	}}

	s := NewActionStore(nil)
	entryID := "e1"
	if err := s.Complete(context.Background(), exec, "a1", 900, &entryID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if !strings.Contains(gotQuery, "amount = $1") {
		t.Fatal("complete must persist the executed amount")
	}
	if !strings.Contains(gotQuery, "status = 'pending'") {
		t.Fatal("complete must only touch pending actions")
	}
	if len(gotArgs) != 3 || gotArgs[0] != int64(900) || gotArgs[2] != "a1" {
		t.Fatalf("unexpected bind args: %v", gotArgs)
	}
}
