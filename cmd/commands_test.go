package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/azula9713/yae-their-share/internal/api"
	"github.com/azula9713/yae-their-share/internal/db"
	"github.com/azula9713/yae-their-share/internal/models"
	"github.com/azula9713/yae-their-share/internal/serverdb"
	"github.com/azula9713/yae-their-share/internal/syncengine"
)

// testEnv points the CLI at a private config file and database.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("SPLITSYNC_CONFIG", filepath.Join(dir, "config.yaml"))
	t.Setenv("SPLITSYNC_DB_PATH", filepath.Join(dir, "splitsync.db"))
	t.Setenv("SPLITSYNC_AUTO_SYNC", "false")
	return dir
}

// startServer runs a records server on a random local port.
func startServer(t *testing.T) (url string, tokens *api.TokenIssuer, store *serverdb.ServerDB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "server.db")
	store, err := serverdb.Open(dbPath)
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv, err := api.NewServer(api.Config{
		ListenAddr:     "127.0.0.1:0",
		DBPath:         dbPath,
		JWTSecret:      "cli-test-secret",
		RateLimitRead:  100000,
		RateLimitWrite: 100000,
		Version:        "v0.3.0",
	}, store)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return "http://" + srv.Addr().String(), srv.Tokens(), store
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes the CLI with args and returns what it printed to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		io.Copy(&buf, r)
		done <- buf.String()
	}()

	runErr := rootCmd.Execute()

	w.Close()
	os.Stdout = old
	return <-done, runErr
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("splitsync %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func decodeJSON[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	return v
}

func TestOfflineWorkflow(t *testing.T) {
	testEnv(t)

	if _, err := run(t, "--offline", "list"); err == nil {
		t.Fatal("list without a user should fail")
	}

	mustRun(t, "--offline", "login", "--user", "u1", "--token", "tok")
	mustRun(t, "--offline", "create", "Dinner", "--id", "s1",
		"-p", "Ana", "-p", "Ben", "-e", "30:Ana:Food", "-e", "10:Ben:Wine:Ben")

	splits := decodeJSON[[]models.Envelope](t, mustRun(t, "--offline", "list", "--json"))
	if len(splits) != 1 {
		t.Fatalf("splits: got %d, want 1", len(splits))
	}
	s := splits[0]
	if s.SplitID != "s1" || s.CreatedBy != "u1" || !s.PendingSync || s.Total() != 40 {
		t.Fatalf("created split: %+v", s)
	}

	mustRun(t, "--offline", "update", "s1", "--name", "Team dinner", "--add-expense", "5:Ben:Tip")
	env := decodeJSON[models.Envelope](t, mustRun(t, "--offline", "show", "s1", "--json"))
	if env.Name != "Team dinner" || len(env.Expenses) != 3 {
		t.Fatalf("updated split: %+v", env)
	}

	_, err := run(t, "--offline", "show", "s2")
	if err == nil || !strings.Contains(err.Error(), "did you mean s1") {
		t.Fatalf("show with a mistyped id: got %v", err)
	}

	st := decodeJSON[statusReport](t, mustRun(t, "--offline", "status", "--json"))
	if st.User != "u1" || st.Online || st.Status.PendingOperations != 2 {
		t.Fatalf("status: %+v", st)
	}

	if _, err := run(t, "--offline", "sync"); err == nil {
		t.Fatal("sync while offline should fail")
	}

	mustRun(t, "--offline", "delete", "s1")
	deleted := decodeJSON[[]models.Envelope](t, mustRun(t, "--offline", "deleted", "--json"))
	if len(deleted) != 1 || !deleted[0].IsDeleted {
		t.Fatalf("deleted: %+v", deleted)
	}

	mustRun(t, "--offline", "logout", "--yes")
	if _, err := run(t, "--offline", "list"); err == nil {
		t.Fatal("list after logout should fail")
	}
}

func TestSyncAgainstServer(t *testing.T) {
	testEnv(t)
	url, tokens, store := startServer(t)
	token, err := tokens.Issue("u1")
	if err != nil {
		t.Fatal(err)
	}

	mustRun(t, "login", "--user", "u1", "--token", token, "--remote", url)
	mustRun(t, "create", "Ski trip", "--id", "trip", "-p", "Ana", "-e", "120:Ana:Cabin")

	res := decodeJSON[syncengine.Result](t, mustRun(t, "sync", "--json"))
	if res.Pushed != 1 || res.Pulled != 1 {
		t.Fatalf("sync result: %+v", res)
	}

	rec, err := store.GetRecord("trip")
	if err != nil {
		t.Fatalf("server record: %v", err)
	}
	if rec.Name != "Ski trip" {
		t.Fatalf("server name: got %q", rec.Name)
	}

	env := decodeJSON[models.Envelope](t, mustRun(t, "show", "trip", "--json"))
	if env.PendingSync || env.LocallyModified {
		t.Fatalf("split should be clean after sync: %+v", env)
	}

	history := decodeJSON[[]db.SyncHistoryEntry](t, mustRun(t, "history", "--json"))
	if len(history) != 1 || history[0].Pushed != 1 {
		t.Fatalf("history: %+v", history)
	}

	out := mustRun(t, "version")
	if !strings.Contains(out, "server version: v0.3.0") {
		t.Fatalf("version output:\n%s", out)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	dir := testEnv(t)
	mustRun(t, "--offline", "login", "--user", "u1", "--token", "tok")
	mustRun(t, "--offline", "create", "Groceries", "--id", "g1", "-p", "Ana", "-e", "12:Ana")

	backup := filepath.Join(dir, "backup.json")
	mustRun(t, "--offline", "export", "-o", backup)

	mustRun(t, "--offline", "reset", "--all", "--yes")
	if out := mustRun(t, "--offline", "list", "--json"); strings.Contains(out, "g1") {
		t.Fatalf("reset --all should have emptied the store:\n%s", out)
	}

	mustRun(t, "--offline", "import", backup)
	splits := decodeJSON[[]models.Envelope](t, mustRun(t, "--offline", "list", "--json"))
	if len(splits) != 1 || splits[0].SplitID != "g1" {
		t.Fatalf("after import: %+v", splits)
	}
	stats := decodeJSON[db.Stats](t, mustRun(t, "--offline", "stats", "--json"))
	if stats.Pending != 1 {
		t.Fatalf("imported queue: got %d pending, want 1", stats.Pending)
	}
}

func TestConfigCommands(t *testing.T) {
	testEnv(t)

	mustRun(t, "config", "set", "max_retries", "7")
	if out := mustRun(t, "config", "get", "max_retries"); strings.TrimSpace(out) != "7" {
		t.Fatalf("config get: got %q", out)
	}
	if _, err := run(t, "config", "set", "conflict_policy", "coin-flip"); err == nil {
		t.Fatal("invalid policy should be rejected")
	}
	mustRun(t, "config", "unset", "max_retries")
	if out := mustRun(t, "config", "get", "max_retries"); strings.TrimSpace(out) != "3" {
		t.Fatalf("after unset: got %q", out)
	}

	mustRun(t, "config", "set", "token", "abcdefghijkl")
	out := mustRun(t, "config", "list")
	if strings.Contains(out, "abcdefghijkl") || !strings.Contains(out, "token = abcd…ijkl") {
		t.Fatalf("token should be masked:\n%s", out)
	}
}

func TestResolveRequiresConflict(t *testing.T) {
	testEnv(t)
	mustRun(t, "--offline", "login", "--user", "u1", "--token", "tok")
	mustRun(t, "--offline", "create", "Lunch", "--id", "l1", "-p", "Ana")

	if _, err := run(t, "--offline", "resolve", "l1", "--keep", "local"); err == nil {
		t.Fatal("resolving a split without a conflict should fail")
	}
	out := mustRun(t, "--offline", "conflicts")
	if !strings.Contains(out, "No conflicts") {
		t.Fatalf("conflicts output:\n%s", out)
	}
}

func TestParseKeep(t *testing.T) {
	for in, want := range map[string]syncengine.Choice{
		"local": syncengine.KeepLocal, "Mine": syncengine.KeepLocal,
		"remote": syncengine.KeepRemote, "server": syncengine.KeepRemote,
	} {
		got, err := parseKeep(in)
		if err != nil || got != want {
			t.Errorf("parseKeep(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseKeep("both"); err == nil {
		t.Error("expected error for unknown choice")
	}
}

func TestDisplayValueMasksToken(t *testing.T) {
	if got := displayValue("token", "short"); got != "********" {
		t.Errorf("short token: got %q", got)
	}
	if got := displayValue("remote_url", "http://x"); got != "http://x" {
		t.Errorf("other keys are shown as-is: got %q", got)
	}
}
