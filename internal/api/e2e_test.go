package api_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/azula9713/yae-their-share/internal/api"
	"github.com/azula9713/yae-their-share/internal/connectivity"
	"github.com/azula9713/yae-their-share/internal/db"
	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/serverdb"
	"github.com/azula9713/yae-their-share/internal/syncclient"
	"github.com/azula9713/yae-their-share/internal/syncengine"
)

func startServer(t *testing.T) (*httptest.Server, *api.Server) {
	t.Helper()
	store, err := serverdb.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	srv, err := api.NewServer(api.Config{JWTSecret: "e2e", RateLimitRead: 1000, RateLimitWrite: 1000}, store)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, srv
}

func newDevice(t *testing.T, ts *httptest.Server, srv *api.Server, userID string) *syncengine.Engine {
	t.Helper()
	tok, err := srv.Tokens().Issue(userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	store, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	client := syncclient.New(ts.URL, tok, syncclient.Options{})
	e := syncengine.New(store, client, connectivity.NewManual(true), syncengine.Config{})
	t.Cleanup(func() { e.Close() })
	if err := e.SetUserID(context.Background(), userID); err != nil {
		t.Fatalf("SetUserID: %v", err)
	}
	return e
}

func syncOK(t *testing.T, e *syncengine.Engine) *syncengine.Result {
	t.Helper()
	res, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	return res
}

func TestTwoDevicesConverge(t *testing.T) {
	ts, srv := startServer(t)
	phone := newDevice(t, ts, srv, "u1")
	laptop := newDevice(t, ts, srv, "u1")
	ctx := context.Background()

	_, err := phone.CreateSplit(ctx, models.Split{
		SplitID: "trip",
		Name:    "Road trip",
		Participants: []models.Participant{
			{ParticipantID: "a", Name: "Ana"},
			{ParticipantID: "b", Name: "Ben"},
		},
		Expenses: []models.Expense{
			{ExpenseID: "fuel", Amount: 60, PaidBy: "a", SplitBetween: []string{"a", "b"}},
		},
	})
	if err != nil {
		t.Fatalf("CreateSplit: %v", err)
	}
	if res := syncOK(t, phone); res.Pushed != 1 {
		t.Fatalf("phone push: %+v", res)
	}

	if res := syncOK(t, laptop); res.Inserted != 1 {
		t.Fatalf("laptop pull: %+v", res)
	}
	got, err := laptop.Split(ctx, "trip")
	if err != nil || got.Name != "Road trip" || got.PendingSync {
		t.Fatalf("laptop copy: %+v, %v", got, err)
	}

	name := "Road trip 2025"
	if _, err := laptop.UpdateSplit(ctx, "trip", models.SplitPatch{Name: &name}); err != nil {
		t.Fatalf("UpdateSplit: %v", err)
	}
	syncOK(t, laptop)
	syncOK(t, phone)
	if got, _ := phone.Split(ctx, "trip"); got == nil || got.Name != name {
		t.Fatalf("phone did not receive update: %+v", got)
	}

	if _, err := phone.DeleteSplit(ctx, "trip"); err != nil {
		t.Fatalf("DeleteSplit: %v", err)
	}
	syncOK(t, phone)
	syncOK(t, laptop)
	deleted, err := laptop.DeletedSplits(ctx)
	if err != nil || len(deleted) != 1 {
		t.Fatalf("laptop deleted splits: %+v, %v", deleted, err)
	}
	for _, e := range []*syncengine.Engine{phone, laptop} {
		if st := e.Status(); st.PendingOperations != 0 || st.Error != "" {
			t.Errorf("status: %+v", st)
		}
	}
}

func TestExpiredTokenParksOperations(t *testing.T) {
	ts, _ := startServer(t)
	store, err := db.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	client := syncclient.New(ts.URL, "not-a-token", syncclient.Options{})
	e := syncengine.New(store, client, connectivity.NewManual(true), syncengine.Config{})
	defer e.Close()
	ctx := context.Background()
	e.SetUserID(ctx, "u1")

	if _, err := e.CreateSplit(ctx, models.Split{SplitID: "s1", Name: "Lunch"}); err != nil {
		t.Fatal(err)
	}
	// The pull is rejected too, so the cycle reports an error.
	if _, err := e.Sync(ctx); err == nil {
		t.Fatal("expected unauthorized pull to fail the cycle")
	}
	stuck, err := e.StuckOperations(ctx)
	if err != nil || len(stuck) != 1 || stuck[0].FailureKind != models.FailureAuthorization {
		t.Errorf("stuck: %+v, %v", stuck, err)
	}
}
