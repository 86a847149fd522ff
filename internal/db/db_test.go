package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/azula9713/yae-their-share/internal/models"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// newTestStore opens an isolated in-memory store on the cgo driver.
func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite3: %v", err)
	}
	s, err := New(conn)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	clock := &testClock{t: baseTime}
	s.SetClock(clock.now)
	return s, clock
}

func testSplit(id, owner string) models.Split {
	return models.Split{
		SplitID: id,
		Name:    "Trip " + id,
		Participants: []models.Participant{
			{ParticipantID: "p1", Name: "Alice"},
			{ParticipantID: "p2", Name: "Bob"},
		},
		Expenses: []models.Expense{
			{ExpenseID: "e1", Amount: 100, Description: "Hotel", PaidBy: "p1", SplitBetween: []string{"p1", "p2"}},
		},
		CreatedBy: owner,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

func putSplit(t *testing.T, s *Store, id, owner string) *models.Envelope {
	t.Helper()
	env := &models.Envelope{Split: testSplit(id, owner), SyncVersion: 1}
	if err := s.Put(context.Background(), env); err != nil {
		t.Fatalf("Put %s: %v", id, err)
	}
	return env
}

func TestOpenCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", DefaultFile)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if !s.Persistent() {
		t.Error("file store should be persistent")
	}
	v, err := s.GetSchemaVersion()
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if v != SchemaVersion {
		t.Errorf("schema version: got %d, want %d", v, SchemaVersion)
	}
}

func TestReopenKeepsSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	putSplit(t, s, "s1", "u1")
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if v, _ := s.GetSchemaVersion(); v != 1 {
		t.Errorf("schema version: got %d, want 1", v)
	}
	if ok, _ := s.tableExists("sync_history"); !ok {
		t.Error("sync_history table missing")
	}
	if _, err := s.Get(context.Background(), "s1"); err != nil {
		t.Errorf("data lost across reopen: %v", err)
	}

	n, err := s.RunMigrations()
	if err != nil || n != 0 {
		t.Errorf("RunMigrations on current schema: got %d, %v", n, err)
	}
}

func TestPutAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	env := putSplit(t, s, "s1", "u1")
	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.ContentEqual(env.Split) {
		t.Errorf("content mismatch: got %+v, want %+v", got.Split, env.Split)
	}
	if got.PendingSync || got.LocallyModified {
		t.Error("Put must not stamp pending flags")
	}
	if got.SyncVersion != 1 {
		t.Errorf("SyncVersion: got %d, want 1", got.SyncVersion)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: got %v, want ErrNotFound", err)
	}
}

func TestPutReplacesExisting(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	env := putSplit(t, s, "s1", "u1")
	env.Name = "Renamed"
	env.ConflictData = &models.Split{SplitID: "s1", Name: "Remote", CreatedBy: "u1"}
	if err := s.Put(ctx, env); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "Renamed" {
		t.Errorf("Name: got %q, want %q", got.Name, "Renamed")
	}
	if got.ConflictData == nil || got.ConflictData.Name != "Remote" {
		t.Errorf("ConflictData not stored: %+v", got.ConflictData)
	}
	list, _ := s.ListByOwner(ctx, "u1")
	if len(list) != 1 {
		t.Errorf("ListByOwner: got %d splits, want 1", len(list))
	}
}

func TestListByOwner(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	putSplit(t, s, "a", "u1")
	clock.advance(time.Second)
	b := &models.Envelope{Split: testSplit("b", "u1")}
	b.CreatedAt = clock.now()
	if err := s.Put(ctx, b); err != nil {
		t.Fatalf("Put b: %v", err)
	}
	putSplit(t, s, "c", "u2")

	list, err := s.ListByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByOwner failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d splits, want 2", len(list))
	}
	if list[0].SplitID != "b" {
		t.Errorf("newest first: got %s, want b", list[0].SplitID)
	}
}

func TestSoftDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	putSplit(t, s, "s1", "u1")

	env, err := s.SoftDelete(ctx, "s1")
	if err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if !env.IsDeleted || env.DeletedAt == nil || !env.DeletedAt.Equal(baseTime) {
		t.Errorf("unexpected delete state: %+v", env)
	}

	list, _ := s.ListByOwner(ctx, "u1")
	if len(list) != 0 {
		t.Errorf("ListByOwner should exclude deleted split, got %d", len(list))
	}
	if _, err := s.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get deleted: got %v, want ErrNotFound", err)
	}

	raw, err := s.GetIncludingDeleted(ctx, "s1")
	if err != nil {
		t.Fatalf("GetIncludingDeleted failed: %v", err)
	}
	if !raw.IsDeleted || raw.DeletedAt == nil {
		t.Errorf("raw split should be deleted with DeletedAt: %+v", raw)
	}
	if !raw.PendingSync || !raw.LocallyModified {
		t.Error("SoftDelete must stamp pending flags")
	}

	deleted, _ := s.ListDeleted(ctx, "u1")
	if len(deleted) != 1 {
		t.Errorf("ListDeleted: got %d, want 1", len(deleted))
	}

	if _, err := s.SoftDelete(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second SoftDelete: got %v, want ErrNotFound", err)
	}
}

func TestUpdateStampsFlags(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	putSplit(t, s, "s1", "u1")
	clock.advance(time.Minute)

	name := "Ski weekend"
	env, err := s.Update(ctx, "s1", models.SplitPatch{Name: &name, UpdatedBy: "u2"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := s.Get(ctx, "s1")
	for _, e := range []*models.Envelope{env, got} {
		if e.Name != name || e.UpdatedBy != "u2" {
			t.Errorf("patch not applied: %+v", e.Split)
		}
		if !e.PendingSync || !e.LocallyModified {
			t.Error("Update must stamp pending flags")
		}
		if e.LastSyncedAt == nil || !e.LastSyncedAt.Equal(clock.now()) {
			t.Errorf("LastSyncedAt: got %v, want %v", e.LastSyncedAt, clock.now())
		}
		if !e.UpdatedAt.Equal(clock.now()) {
			t.Errorf("UpdatedAt: got %v, want %v", e.UpdatedAt, clock.now())
		}
		if e.SyncVersion != 2 {
			t.Errorf("SyncVersion: got %d, want 2", e.SyncVersion)
		}
	}
	if len(got.Expenses) != 1 {
		t.Errorf("untouched fields must survive, got %d expenses", len(got.Expenses))
	}

	if _, err := s.Update(ctx, "nope", models.SplitPatch{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing: got %v, want ErrNotFound", err)
	}
}

func TestMutateRollsBack(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Mutate(ctx, func(tx *Tx) error {
		env := &models.Envelope{Split: testSplit("s1", "u1")}
		if err := tx.Put(env); err != nil {
			return err
		}
		if _, err := tx.Enqueue(models.CreateOp{Split: env.Split}, "u1"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Mutate: got %v, want boom", err)
	}

	if _, err := s.GetIncludingDeleted(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("split survived rollback: %v", err)
	}
	ops, _ := s.PendingOperations(ctx)
	if len(ops) != 0 {
		t.Errorf("operation survived rollback: %d", len(ops))
	}
}

func TestStorageErrorKind(t *testing.T) {
	s, _ := newTestStore(t)
	s.Close()

	_, err := s.ListByOwner(context.Background(), "u1")
	if !errors.Is(err, ErrStorage) {
		t.Errorf("closed store: got %v, want ErrStorage", err)
	}
}

func TestPendingOperationsOrder(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	split := testSplit("s1", "u1")
	ids := make([]int64, 0, 3)
	for _, op := range []models.Operation{
		models.CreateOp{Split: split},
		models.UpdateOp{Split: split},
		models.DeleteOp{SplitID: "s1"},
	} {
		id, err := s.Enqueue(ctx, op, "u1")
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		ids = append(ids, id)
		// Enqueue order wins even when the wall clock steps back.
		clock.advance(-time.Minute)
	}

	pending, err := s.PendingOperations(ctx)
	if err != nil {
		t.Fatalf("PendingOperations failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("got %d pending, want 3", len(pending))
	}
	wantKinds := []models.OpKind{models.OpCreate, models.OpUpdate, models.OpDelete}
	for i, e := range pending {
		if e.ID != ids[i] || e.Op.Kind() != wantKinds[i] {
			t.Errorf("entry %d: got %d/%s, want %d/%s", i, e.ID, e.Op.Kind(), ids[i], wantKinds[i])
		}
		if e.RetryCount != 0 || e.Completed || e.EntityID() != "s1" {
			t.Errorf("entry %d: unexpected state %+v", i, e)
		}
	}
	if up, ok := pending[1].Op.(models.UpdateOp); !ok || !up.Split.ContentEqual(split) {
		t.Errorf("update payload not preserved: %+v", pending[1].Op)
	}
}

func TestMarkCompletedIdempotent(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, models.DeleteOp{SplitID: "s1"}, "u1")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := s.MarkCompleted(ctx, id); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	first := clock.now()
	clock.advance(time.Hour)
	if err := s.MarkCompleted(ctx, id); err != nil {
		t.Fatalf("second MarkCompleted failed: %v", err)
	}

	var entry *models.OperationEntry
	s.view(ctx, func(tx *Tx) error {
		var err error
		entry, err = tx.Operation(id)
		return err
	})
	if entry == nil || !entry.Completed {
		t.Fatalf("entry not completed: %+v", entry)
	}
	if entry.CompletedAt == nil || !entry.CompletedAt.Equal(first) {
		t.Errorf("CompletedAt changed: got %v, want %v", entry.CompletedAt, first)
	}
	pending, _ := s.PendingOperations(ctx)
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0", len(pending))
	}
}

func TestRecordFailureParksAfterMaxRetries(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	const maxRetries = 2

	a, _ := s.Enqueue(ctx, models.DeleteOp{SplitID: "a"}, "u1")
	b, _ := s.Enqueue(ctx, models.DeleteOp{SplitID: "b"}, "u1")

	for i := 0; i < maxRetries+1; i++ {
		if err := s.RecordFailure(ctx, a, models.FailureTransport, "connection refused"); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}
	if err := s.RecordFailure(ctx, b, models.FailureAuthorization, "forbidden"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	batch, err := s.NextBatch(ctx, maxRetries, 10)
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if len(batch) != 0 {
		t.Errorf("parked entries must be skipped, got %d", len(batch))
	}

	stuck, err := s.Stuck(ctx, maxRetries)
	if err != nil {
		t.Fatalf("Stuck failed: %v", err)
	}
	if len(stuck) != 2 {
		t.Fatalf("got %d stuck, want 2", len(stuck))
	}
	if stuck[0].RetryCount != maxRetries+1 || stuck[0].LastError != "connection refused" {
		t.Errorf("failure not recorded: %+v", stuck[0])
	}
	if !stuck[1].Parked(maxRetries) || stuck[1].FailureKind != models.FailureAuthorization {
		t.Errorf("authorization failure should park: %+v", stuck[1])
	}

	pending, parked, err := s.CountPending(ctx, maxRetries)
	if err != nil || pending != 2 || parked != 2 {
		t.Errorf("CountPending: got %d/%d/%v, want 2/2/nil", pending, parked, err)
	}

	n, err := s.ResetRetries(ctx)
	if err != nil || n != 2 {
		t.Fatalf("ResetRetries: got %d, %v", n, err)
	}
	batch, _ = s.NextBatch(ctx, maxRetries, 10)
	if len(batch) != 2 {
		t.Errorf("reset entries should be eligible again, got %d", len(batch))
	}
}

func TestNextBatchLimit(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		s.Enqueue(ctx, models.DeleteOp{SplitID: id}, "u1")
		clock.advance(time.Millisecond)
	}
	batch, err := s.NextBatch(ctx, 3, 2)
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if len(batch) != 2 || batch[0].EntityID() != "a" || batch[1].EntityID() != "b" {
		t.Errorf("unexpected batch: %+v", batch)
	}
}

func TestNextBatchHoldsConflictedSplits(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	remote := testSplit("held", "u1")
	remote.Name = "Remote"
	if err := s.Put(ctx, &models.Envelope{Split: testSplit("held", "u1"), ConflictData: &remote}); err != nil {
		t.Fatal(err)
	}
	putSplit(t, s, "free", "u1")
	s.Enqueue(ctx, models.UpdateOp{Split: testSplit("held", "u1")}, "u1")
	s.Enqueue(ctx, models.UpdateOp{Split: testSplit("free", "u1")}, "u1")

	batch, err := s.NextBatch(ctx, 3, 10)
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if len(batch) != 1 || batch[0].EntityID() != "free" {
		t.Fatalf("batch: got %+v, want only free", batch)
	}
	if pending, _ := s.PendingOperations(ctx); len(pending) != 2 {
		t.Errorf("held entry should still be pending, got %d", len(pending))
	}
}

func TestCleanup(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	old, _ := s.Enqueue(ctx, models.DeleteOp{SplitID: "old"}, "u1")
	s.Enqueue(ctx, models.DeleteOp{SplitID: "old-pending"}, "u1")
	s.MarkCompleted(ctx, old)
	clock.advance(8 * 24 * time.Hour)
	recent, _ := s.Enqueue(ctx, models.DeleteOp{SplitID: "recent"}, "u1")
	s.MarkCompleted(ctx, recent)

	n, err := s.Cleanup(ctx, 7)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if n != 1 {
		t.Errorf("removed: got %d, want 1", n)
	}
	st, _ := s.Stats(ctx, 3)
	if st.Operations != 2 || st.Pending != 1 {
		t.Errorf("after cleanup: %+v", st)
	}
}

func TestClearPendingWaitsForQueuedWork(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	name := "x"

	var first, second int64
	err := s.Mutate(ctx, func(tx *Tx) error {
		env := &models.Envelope{Split: testSplit("s1", "u1"), PendingSync: true, LocallyModified: true}
		if err := tx.Put(env); err != nil {
			return err
		}
		var err error
		if first, err = tx.Enqueue(models.CreateOp{Split: env.Split}, "u1"); err != nil {
			return err
		}
		updated, err := tx.Update("s1", models.SplitPatch{Name: &name})
		if err != nil {
			return err
		}
		second, err = tx.Enqueue(models.UpdateOp{Split: updated.Split}, "u1")
		return err
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	complete := func(id int64) bool {
		var cleared bool
		s.Mutate(ctx, func(tx *Tx) error {
			if err := tx.MarkCompleted(id); err != nil {
				return err
			}
			var err error
			cleared, err = tx.ClearPending("s1")
			return err
		})
		return cleared
	}

	if complete(first) {
		t.Error("flags cleared while an update is still queued")
	}
	env, _ := s.Get(ctx, "s1")
	if !env.PendingSync {
		t.Error("PendingSync should remain set")
	}
	if !complete(second) {
		t.Error("flags should clear once the queue is empty")
	}
	env, _ = s.Get(ctx, "s1")
	if env.PendingSync || env.LocallyModified {
		t.Errorf("flags not cleared: %+v", env)
	}
}

func TestSupersedeBefore(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	split := testSplit("s1", "u1")

	up, _ := s.Enqueue(ctx, models.UpdateOp{Split: split}, "u1")
	clock.advance(time.Millisecond)
	other, _ := s.Enqueue(ctx, models.UpdateOp{Split: testSplit("s2", "u1")}, "u1")
	clock.advance(time.Millisecond)
	del, _ := s.Enqueue(ctx, models.DeleteOp{SplitID: "s1"}, "u1")

	var n int
	err := s.Mutate(ctx, func(tx *Tx) error {
		if err := tx.MarkCompleted(del); err != nil {
			return err
		}
		var err error
		n, err = tx.SupersedeBefore("s1", del)
		return err
	})
	if err != nil || n != 1 {
		t.Fatalf("SupersedeBefore: got %d, %v", n, err)
	}

	pending, _ := s.PendingOperations(ctx)
	if len(pending) != 1 || pending[0].ID != other {
		t.Errorf("only the unrelated entry should remain, got %+v", pending)
	}
	s.view(ctx, func(tx *Tx) error {
		e, err := tx.Operation(up)
		if err != nil {
			return err
		}
		if !e.Completed || e.LastError != "superseded" {
			t.Errorf("earlier update not superseded: %+v", e)
		}
		return nil
	})
}

func TestPurgeOwner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	putSplit(t, s, "a", "u1")
	putSplit(t, s, "b", "u1")
	putSplit(t, s, "c", "u2")
	s.SoftDelete(ctx, "b")
	s.Enqueue(ctx, models.CreateOp{Split: testSplit("a", "u1")}, "u1")
	s.Enqueue(ctx, models.DeleteOp{SplitID: "b"}, "u1")
	s.Enqueue(ctx, models.CreateOp{Split: testSplit("c", "u2")}, "u2")

	splits, ops, err := s.PurgeOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("PurgeOwner failed: %v", err)
	}
	if splits != 2 || ops != 2 {
		t.Errorf("purged: got %d splits %d ops, want 2 and 2", splits, ops)
	}
	for _, id := range []string{"a", "b"} {
		if _, err := s.GetIncludingDeleted(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("split %s still present: %v", id, err)
		}
	}
	pending, _ := s.PendingOperations(ctx)
	if len(pending) != 1 || pending[0].OwnerID != "u2" {
		t.Errorf("unexpected remaining operations: %+v", pending)
	}
	if _, err := s.Get(ctx, "c"); err != nil {
		t.Errorf("other owner's split purged: %v", err)
	}
}

func TestResolveAllWithRemote(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	env := putSplit(t, s, "s1", "u1")
	env.LocallyModified = true
	env.PendingSync = true
	remote := testSplit("s1", "u1")
	remote.Name = "Remote name"
	env.ConflictData = &remote
	s.Put(ctx, env)
	s.Enqueue(ctx, models.UpdateOp{Split: env.Split}, "u1")

	n, err := s.ResolveAllWithRemote(ctx, "u1")
	if err != nil || n != 1 {
		t.Fatalf("ResolveAllWithRemote: got %d, %v", n, err)
	}
	got, _ := s.Get(ctx, "s1")
	if got.Name != "Remote name" || got.ConflictData != nil || got.PendingSync || got.LocallyModified {
		t.Errorf("conflict not resolved: %+v", got)
	}
	pending, _ := s.PendingOperations(ctx)
	if len(pending) != 0 {
		t.Errorf("queued local update should be discarded, got %d", len(pending))
	}
}

func TestResetPendingFlags(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		env := putSplit(t, s, id, "u1")
		env.PendingSync = true
		s.Put(ctx, env)
	}
	s.Enqueue(ctx, models.DeleteOp{SplitID: "b"}, "u1")

	n, err := s.ResetPendingFlags(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ResetPendingFlags: got %d, %v", n, err)
	}
	b, _ := s.Get(ctx, "b")
	if !b.PendingSync {
		t.Error("split with queued work must keep its flag")
	}
}

func TestMetadata(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if last, err := s.LastSyncTime(ctx); err != nil || last != nil {
		t.Fatalf("LastSyncTime on empty store: got %v, %v", last, err)
	}
	if err := s.Mutate(ctx, func(tx *Tx) error { return tx.StampLastSyncTime() }); err != nil {
		t.Fatalf("StampLastSyncTime failed: %v", err)
	}
	last, err := s.LastSyncTime(ctx)
	if err != nil || last == nil || !last.Equal(baseTime) {
		t.Errorf("LastSyncTime: got %v, %v", last, err)
	}

	s.SetMetadata(ctx, KeyUserID, "u1")
	s.SetMetadata(ctx, KeyUserID, "u2")
	if v, _ := s.Metadata(ctx, KeyUserID); v != "u2" {
		t.Errorf("userId: got %q, want u2", v)
	}
}

func TestExportImport(t *testing.T) {
	src, _ := newTestStore(t)
	ctx := context.Background()

	putSplit(t, src, "a", "u1")
	putSplit(t, src, "b", "u1")
	src.SoftDelete(ctx, "b")
	done, _ := src.Enqueue(ctx, models.CreateOp{Split: testSplit("a", "u1")}, "u1")
	src.MarkCompleted(ctx, done)
	src.Enqueue(ctx, models.DeleteOp{SplitID: "b"}, "u1")

	dump, err := src.Export(ctx)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(dump.Splits) != 2 || len(dump.Operations) != 1 {
		t.Fatalf("dump: got %d splits %d ops", len(dump.Splits), len(dump.Operations))
	}

	dst, _ := newTestStore(t)
	splits, ops, err := dst.Import(ctx, dump)
	if err != nil || splits != 2 || ops != 1 {
		t.Fatalf("Import: got %d/%d/%v", splits, ops, err)
	}
	b, err := dst.GetIncludingDeleted(ctx, "b")
	if err != nil || !b.IsDeleted {
		t.Errorf("deleted split not restored: %+v, %v", b, err)
	}

	dump.Version = 99
	if _, _, err := dst.Import(ctx, dump); !errors.Is(err, ErrExportVersion) {
		t.Errorf("Import bad version: got %v", err)
	}
}

func TestSyncHistory(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := SyncHistoryEntry{StartedAt: baseTime.Add(time.Duration(i) * time.Second), Duration: 120 * time.Millisecond, Pushed: i}
		if err := s.RecordSyncHistory(ctx, e, 3); err != nil {
			t.Fatalf("RecordSyncHistory failed: %v", err)
		}
	}

	tail, err := s.SyncHistoryTail(ctx, 10)
	if err != nil {
		t.Fatalf("SyncHistoryTail failed: %v", err)
	}
	if len(tail) != 3 {
		t.Fatalf("got %d rows, want 3 after pruning", len(tail))
	}
	if tail[0].Pushed != 2 || tail[2].Pushed != 4 {
		t.Errorf("not chronological: %+v", tail)
	}
	if tail[0].Duration != 120*time.Millisecond {
		t.Errorf("Duration: got %v", tail[0].Duration)
	}
}

func TestStats(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	putSplit(t, s, "a", "u1")
	putSplit(t, s, "b", "u1")
	s.SoftDelete(ctx, "b")
	id, _ := s.Enqueue(ctx, models.DeleteOp{SplitID: "b"}, "u1")
	s.RecordFailure(ctx, id, models.FailureAuthorization, "forbidden")

	st, err := s.Stats(ctx, 3)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	want := Stats{Splits: 1, Deleted: 1, PendingSync: 1, LocallyModified: 1, Operations: 1, Pending: 1, Stuck: 1}
	if *st != want {
		t.Errorf("Stats: got %+v, want %+v", *st, want)
	}
}

func TestListDeletedAndConflicts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	putSplit(t, s, "s1", "u1")
	putSplit(t, s, "s2", "u2")

	remote := testSplit("s3", "u1")
	remote.Name = "Remote name"
	env := &models.Envelope{Split: testSplit("s3", "u1"), ConflictData: &remote}
	if err := s.Put(ctx, env); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SoftDelete(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SoftDelete(ctx, "s2"); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.ListDeleted(ctx, "u1")
	if err != nil {
		t.Fatalf("ListDeleted: %v", err)
	}
	if len(deleted) != 1 || deleted[0].SplitID != "s1" {
		t.Fatalf("deleted: got %+v, want only s1", deleted)
	}

	conflicts, err := s.ListConflicts(ctx, "u1")
	if err != nil {
		t.Fatalf("ListConflicts: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].ConflictData == nil || conflicts[0].ConflictData.Name != "Remote name" {
		t.Fatalf("conflicts: got %+v, want s3 with remote data", conflicts)
	}
}
