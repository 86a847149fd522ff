package syncengine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/azula9713/yae-their-share/internal/conflict"
	"github.com/azula9713/yae-their-share/internal/connectivity"
	"github.com/azula9713/yae-their-share/internal/db"
	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/syncclient"
)

// fakeRemote is an in-memory records service that counts calls.
type fakeRemote struct {
	mu      sync.Mutex
	records map[string]models.Split
	calls   map[string]int
	log     []string
	// fail maps "op:splitID" (or "owner") to an error returned on every call.
	fail map[string]error
	// onCall, when set, runs after each call is logged, outside the lock.
	onCall func(key string)

	// gate, when set, blocks RecordsByOwner until closed. entered receives
	// one value per blocked call.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		records: make(map[string]models.Split),
		calls:   make(map[string]int),
		fail:    make(map[string]error),
	}
}

func (f *fakeRemote) record(op, id string) error {
	key := op + ":" + id
	f.mu.Lock()
	f.calls[op]++
	f.log = append(f.log, key)
	err, hook := f.fail[key], f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return err
}

func (f *fakeRemote) CreateRecord(ctx context.Context, s models.Split) (*models.Split, error) {
	if err := f.record("create", s.SplitID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[s.SplitID]; ok {
		return nil, fmt.Errorf("%w: record exists", syncclient.ErrConflict)
	}
	f.records[s.SplitID] = s.Clone()
	out := s.Clone()
	return &out, nil
}

func (f *fakeRemote) UpdateRecord(ctx context.Context, s models.Split) error {
	if err := f.record("update", s.SplitID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[s.SplitID]; !ok {
		return fmt.Errorf("%w: no record", syncclient.ErrNotFound)
	}
	f.records[s.SplitID] = s.Clone()
	return nil
}

func (f *fakeRemote) DeleteRecord(ctx context.Context, splitID string) error {
	if err := f.record("delete", splitID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[splitID]
	if !ok {
		return fmt.Errorf("%w: no record", syncclient.ErrNotFound)
	}
	now := time.Now().UTC()
	r.IsDeleted = true
	r.DeletedAt = &now
	f.records[splitID] = r
	return nil
}

func (f *fakeRemote) RecordsByOwner(ctx context.Context, ownerID string) ([]models.Split, error) {
	if err := f.record("owner", ownerID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Split
	for _, r := range f.records {
		if r.CreatedBy == ownerID {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) get(id string) (models.Split, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	return r.Clone(), ok
}

func (f *fakeRemote) put(s models.Split) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[s.SplitID] = s.Clone()
}

func (f *fakeRemote) setFail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, key)
		return
	}
	f.fail[key] = err
}

// block makes RecordsByOwner wait until the returned func is called.
func (f *fakeRemote) block() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 16)
	gate := f.gate
	var once sync.Once
	return f.entered, func() {
		once.Do(func() {
			f.mu.Lock()
			f.gate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *fakeRemote) opLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

type harness struct {
	engine *Engine
	store  *db.Store
	remote *fakeRemote
	oracle *connectivity.Manual
}

func newHarness(t *testing.T, policy conflict.Policy, online bool) *harness {
	t.Helper()
	return newHarnessWithRemote(t, newFakeRemote(), Config{Policy: policy}, online)
}

func newHarnessWithRemote(t *testing.T, remote *fakeRemote, cfg Config, online bool) *harness {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite3: %v", err)
	}
	store, err := db.New(conn)
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	oracle := connectivity.NewManual(online)
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = time.Hour
	}
	e := New(store, remote, oracle, cfg)
	t.Cleanup(func() { e.Close() })
	if err := e.SetUserID(context.Background(), "u1"); err != nil {
		t.Fatalf("SetUserID: %v", err)
	}
	return &harness{engine: e, store: store, remote: remote, oracle: oracle}
}

func sampleSplit(id string) models.Split {
	return models.Split{
		SplitID: id,
		Name:    "Dinner " + id,
		Participants: []models.Participant{
			{ParticipantID: "p1", Name: "Alice"},
			{ParticipantID: "p2", Name: "Bob"},
		},
		Expenses: []models.Expense{
			{ExpenseID: "e1", Amount: 100, Description: "Pizza", PaidBy: "p1", SplitBetween: []string{"p1", "p2"}},
		},
	}
}

func (h *harness) create(t *testing.T, id string) *models.Envelope {
	t.Helper()
	env, err := h.engine.CreateSplit(context.Background(), sampleSplit(id))
	if err != nil {
		t.Fatalf("CreateSplit %s: %v", id, err)
	}
	return env
}

func (h *harness) sync(t *testing.T) *Result {
	t.Helper()
	res, err := h.engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	return res
}

func (h *harness) pending(t *testing.T) []models.OperationEntry {
	t.Helper()
	ops, err := h.store.PendingOperations(context.Background())
	if err != nil {
		t.Fatalf("PendingOperations: %v", err)
	}
	return ops
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func strPtr(s string) *string { return &s }
