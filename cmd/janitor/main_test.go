package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

type fakeExec struct {
	calls []string
	args  [][]any
	fail  string
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, sql)
	f.args = append(f.args, args)
	if f.fail != "" && strings.Contains(sql, f.fail) {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.NewCommandTag("DELETE 2"), nil
}

func TestSweep(t *testing.T) {
	db := &fakeExec{fail: "guild_settings"}
	got := sweep(context.Background(), db, slog.New(slog.NewTextHandler(io.Discard, nil)), 3)

	if len(db.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(db.calls))
	}
	if len(db.args[0]) != 1 || db.args[0][0] != 3 {
		t.Errorf("text member args = %v", db.args[0])
	}
	want := "text_members=2 unpublished_displays=2 orphan_settings=err"
	if got != want {
		t.Errorf("sweep = %q, want %q", got, want)
	}
}

func TestTextMemberDays(t *testing.T) {
	t.Setenv("JANITOR_TEXT_MEMBER_DAYS", "")
	if got := textMemberDays(); got != defaultTextMemberDays {
		t.Errorf("default = %d", got)
	}
	t.Setenv("JANITOR_TEXT_MEMBER_DAYS", "14")
	if got := textMemberDays(); got != 14 {
		t.Errorf("got %d, want 14", got)
	}
	t.Setenv("JANITOR_TEXT_MEMBER_DAYS", "-1")
	if got := textMemberDays(); got != defaultTextMemberDays {
		t.Errorf("negative = %d", got)
	}
}
