package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jose-valero/queuebot/internal/domain"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var (
	queueCols  = []string{"channel_id", "guild_id", "kind", "target_id", "capacity", "grace_seconds", "auto_fill", "pull_num"}
	memberCols = []string{"queue_id", "user_id", "position_key", "is_priority", "note"}
)

// ---------------------------------------------------------------------------
// QueueRepo
// ---------------------------------------------------------------------------

func TestQueueRepoGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepo(db)

	mock.ExpectQuery("SELECT .+ FROM queues\\s+WHERE channel_id = \\$1").WithArgs("q1").
		WillReturnRows(sqlmock.NewRows(queueCols).AddRow("q1", "g1", "voice", "t1", 5, 30, "capacity", 2))

	q, err := repo.Get(context.Background(), "q1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := domain.Queue{
		ID: "q1", GuildID: "g1", Kind: domain.KindVoice, TargetID: "t1",
		Capacity: 5, GracePeriod: 30 * time.Second, AutoFill: domain.AutoFillCapacity, PullNum: 2,
	}
	if q != want {
		t.Errorf("Get = %+v, want %+v", q, want)
	}
}

func TestQueueRepoGetNullTarget(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepo(db)

	mock.ExpectQuery("SELECT .+ FROM queues").WithArgs("q1").
		WillReturnRows(sqlmock.NewRows(queueCols).AddRow("q1", "g1", "text", nil, 0, 0, "off", 1))

	q, err := repo.Get(context.Background(), "q1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.TargetID != "" || q.Relocatable() {
		t.Errorf("expected no target, got %+v", q)
	}
}

func TestQueueRepoGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepo(db)

	mock.ExpectQuery("SELECT .+ FROM queues").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestQueueRepoListByTarget(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepo(db)

	mock.ExpectQuery("WHERE guild_id = \\$1 AND target_id = \\$2").WithArgs("g1", "t1").
		WillReturnRows(sqlmock.NewRows(queueCols).
			AddRow("q1", "g1", "voice", "t1", 0, 0, "pull_num", 1).
			AddRow("q2", "g1", "voice", "t1", 0, 0, "off", 1))

	qs, err := repo.ListByTarget(context.Background(), "g1", "t1")
	if err != nil {
		t.Fatalf("ListByTarget: %v", err)
	}
	if len(qs) != 2 || qs[0].ID != "q1" || qs[1].AutoFill != domain.AutoFillOff {
		t.Errorf("unexpected queues: %+v", qs)
	}
}

func TestQueueRepoUpsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepo(db)

	mock.ExpectExec("INSERT INTO queues").
		WithArgs("q1", "g1", "voice", sqlmock.AnyArg(), 3, 60, "pull_num", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), domain.Queue{
		ID: "q1", GuildID: "g1", Kind: domain.KindVoice, Capacity: 3,
		GracePeriod: time.Minute, AutoFill: domain.AutoFillPullNum,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func TestQueueRepoSetTargetMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepo(db)

	mock.ExpectExec("UPDATE queues SET target_id").WithArgs("q1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetTarget(context.Background(), "q1", "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestQueueRepoClearTargetRefs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepo(db)

	mock.ExpectExec("UPDATE queues SET target_id = NULL").WithArgs("g1", "t1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ClearTargetRefs(context.Background(), "g1", "t1")
	if err != nil || n != 2 {
		t.Errorf("ClearTargetRefs = %d, %v; want 2, nil", n, err)
	}
}

func TestQueueRepoDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepo(db)

	mock.ExpectExec("DELETE FROM queues").WithArgs("q1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM queues").WithArgs("q1").WillReturnResult(sqlmock.NewResult(0, 0))

	if ok, err := repo.Delete(context.Background(), "q1"); err != nil || !ok {
		t.Errorf("first Delete = %v, %v", ok, err)
	}
	if ok, err := repo.Delete(context.Background(), "q1"); err != nil || ok {
		t.Errorf("second Delete = %v, %v", ok, err)
	}
}

func TestQueueRepoPatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepo(db)

	capacity := 4
	mode := domain.AutoFillCapacity
	mock.ExpectExec("UPDATE queues\\s+SET capacity = \\$1, auto_fill = \\$2, updated_at = now\\(\\)\\s+WHERE channel_id = \\$3").
		WithArgs(4, "capacity", "q1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM queues").WithArgs("q1").
		WillReturnRows(sqlmock.NewRows(queueCols).AddRow("q1", "g1", "voice", nil, 4, 0, "capacity", 1))

	q, err := repo.Patch(context.Background(), "q1", QueuePatch{Capacity: &capacity, AutoFill: &mode})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if q.Capacity != 4 || q.AutoFill != domain.AutoFillCapacity {
		t.Errorf("Patch = %+v", q)
	}
}

func TestQueueRepoPatchEmptyIsGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQueueRepo(db)

	mock.ExpectQuery("SELECT .+ FROM queues").WithArgs("q1").
		WillReturnRows(sqlmock.NewRows(queueCols).AddRow("q1", "g1", "voice", nil, 0, 0, "off", 1))

	if _, err := repo.Patch(context.Background(), "q1", QueuePatch{}); err != nil {
		t.Fatalf("Patch: %v", err)
	}
}

// ---------------------------------------------------------------------------
// MemberRepo
// ---------------------------------------------------------------------------

func TestMemberRepoGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepo(db)

	mock.ExpectQuery("FROM queue_members\\s+WHERE queue_id = \\$1 AND user_id = \\$2").WithArgs("q1", "u1").
		WillReturnRows(sqlmock.NewRows(memberCols).AddRow("q1", "u1", int64(100), true, nil))
	mock.ExpectQuery("FROM queue_members").WithArgs("q1", "u2").WillReturnError(sql.ErrNoRows)

	m, ok, err := repo.Get(context.Background(), "q1", "u1")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if m.Position != 100 || !m.Priority || m.Note != "" {
		t.Errorf("member = %+v", m)
	}
	if _, ok, err := repo.Get(context.Background(), "q1", "u2"); err != nil || ok {
		t.Errorf("missing member: ok=%v err=%v", ok, err)
	}
}

func TestMemberRepoListLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepo(db)

	mock.ExpectQuery("ORDER BY position_key ASC, user_id ASC LIMIT \\$2").WithArgs("q1", 2).
		WillReturnRows(sqlmock.NewRows(memberCols).
			AddRow("q1", "a", int64(1), false, nil).
			AddRow("q1", "b", int64(2), false, "hola"))

	ms, err := repo.List(context.Background(), "q1", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ms) != 2 || ms[0].UserID != "a" || ms[1].Note != "hola" {
		t.Errorf("List = %+v", ms)
	}
}

func TestMemberRepoListAll(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepo(db)

	mock.ExpectQuery("ORDER BY position_key ASC, user_id ASC$").WithArgs("q1").
		WillReturnRows(sqlmock.NewRows(memberCols))

	ms, err := repo.List(context.Background(), "q1", 0)
	if err != nil || len(ms) != 0 {
		t.Errorf("List = %v, %v", ms, err)
	}
}

func TestMemberRepoDeleteReturning(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepo(db)

	mock.ExpectQuery("DELETE FROM queue_members .+ RETURNING").WithArgs("q1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(memberCols).AddRow("q1", "a", int64(7), false, nil))

	removed, err := repo.Delete(context.Background(), "q1", []string{"a", "ghost"})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(removed) != 1 || removed[0].Position != 7 {
		t.Errorf("removed = %+v", removed)
	}
}

func TestMemberRepoDeleteEmptyNoQuery(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewMemberRepo(db)

	removed, err := repo.Delete(context.Background(), "q1", nil)
	if err != nil || removed != nil {
		t.Errorf("Delete(nil) = %v, %v", removed, err)
	}
}

func TestMemberRepoMaxPosition(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepo(db)

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(position_key\\), 0\\)").WithArgs("q1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(42)))

	hi, err := repo.MaxPosition(context.Background(), "q1")
	if err != nil || hi != 42 {
		t.Errorf("MaxPosition = %d, %v", hi, err)
	}
}

func TestMemberRepoSetPositionsCommits(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE queue_members AS m").WithArgs("q1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := repo.SetPositions(context.Background(), "q1", map[string]int64{"a": 2, "b": 1}); err != nil {
		t.Fatalf("SetPositions: %v", err)
	}
}

func TestMemberRepoSetPositionsRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMemberRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE queue_members AS m").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	if err := repo.SetPositions(context.Background(), "q1", map[string]int64{"a": 1}); err == nil {
		t.Fatal("expected error")
	}
}

// ---------------------------------------------------------------------------
// RuleRepo / GuildSettingsRepo / DisplayRepo
// ---------------------------------------------------------------------------

func TestRuleRepoAdmission(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRuleRepo(db)

	mock.ExpectQuery("bool_or").WithArgs("q1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"blocked", "priority"}).AddRow(true, true))

	a, err := repo.Admission(context.Background(), "q1", "u1")
	if err != nil {
		t.Fatalf("Admission: %v", err)
	}
	if !a.Blocked || !a.Priority {
		t.Errorf("Admission = %+v", a)
	}
}

func TestGuildSettingsDefaultsToEdit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGuildSettingsRepo(db)

	mock.ExpectQuery("SELECT display_mode FROM guild_settings").WithArgs("g1").WillReturnError(sql.ErrNoRows)

	mode, err := repo.DisplayMode(context.Background(), "g1")
	if err != nil || mode != DisplayEdit {
		t.Errorf("DisplayMode = %q, %v", mode, err)
	}
}

func TestDisplayRepoGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDisplayRepo(db)

	mock.ExpectQuery("FROM queue_displays").WithArgs("q1").WillReturnError(sql.ErrNoRows)

	if _, err := repo.Get(context.Background(), "q1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRunMigrationsRejectsUnknownCommand(t *testing.T) {
	db, _ := newMockDB(t)
	if err := RunMigrations(context.Background(), db, "drop-everything"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
