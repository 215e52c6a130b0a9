package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/aura/internal/clock"
	"github.com/hpungsan/aura/internal/config"
	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/ops"
	"github.com/hpungsan/aura/internal/store"
	"github.com/hpungsan/aura/internal/web"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// setupTestApp builds the CLI over a temporary SQLite store and a fake clock.
func setupTestApp(t *testing.T, mutate func(*config.Config)) (*cli.App, *do.RootScope, *clock.Fake) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.JWTSecret = "cli-secret"
	if mutate != nil {
		mutate(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	inj := newInjector(t.TempDir(), cfg, logger)
	fake := clock.NewFake(epoch)
	do.OverrideValue[clock.Clock](inj, fake)
	t.Cleanup(func() { inj.Shutdown() })

	return newCLIApp(inj), inj, fake
}

// runCLI runs args and returns captured stdout.
func runCLI(t *testing.T, app *cli.App, args ...string) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := app.Run(append([]string{"aura"}, args...))

	w.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout
	return buf.String(), err
}

func mustRun(t *testing.T, app *cli.App, out any, args ...string) {
	t.Helper()
	stdout, err := runCLI(t, app, args...)
	if err != nil {
		t.Fatalf("%v failed: %v", args, err)
	}
	if out == nil {
		return
	}
	if err := json.Unmarshal([]byte(stdout), out); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, stdout)
	}
}

// exitMessage returns the message of a cli.Exit error.
func exitMessage(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	exitErr, ok := err.(cli.ExitCoder)
	if !ok {
		t.Fatalf("expected cli.ExitCoder, got %T: %v", err, err)
	}
	if exitErr.ExitCode() != 1 {
		t.Errorf("exit code = %d, want 1", exitErr.ExitCode())
	}
	return exitErr.Error()
}

func TestParseTriggers(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", nil},
		{"single", "coffee", []string{"coffee"}},
		{"multiple", "coffee,sleep,stress", []string{"coffee", "sleep", "stress"}},
		{"spaces", " coffee , sleep ", []string{"coffee", "sleep"}},
		{"empty entries filtered", "coffee,,sleep,", []string{"coffee", "sleep"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseTriggers(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d triggers, got %d", len(tt.expected), len(result))
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("expected trigger[%d]=%q, got %q", i, tt.expected[i], result[i])
				}
			}
		})
	}
}

func TestCLICreateAndFetch(t *testing.T) {
	app, _, _ := setupTestApp(t, nil)

	var created episode.Episode
	mustRun(t, app, &created, "create", "--severity=6", "--triggers=Coffee,sleep", "--notes=started at work")

	if created.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if created.OwnerID != "local" {
		t.Errorf("owner_id = %q, want default owner", created.OwnerID)
	}
	if !created.Active() {
		t.Error("expected active episode")
	}
	if created.StartTime != epoch.UnixMilli() {
		t.Errorf("start_time = %d, want %d", created.StartTime, epoch.UnixMilli())
	}

	var fetched episode.Episode
	mustRun(t, app, &fetched, "fetch", created.ID)
	if fetched.ID != created.ID {
		t.Errorf("fetched ID = %s, want %s", fetched.ID, created.ID)
	}

	// another owner cannot see it
	_, err := runCLI(t, app, "fetch", "--owner=bob", created.ID)
	if msg := exitMessage(t, err); !strings.HasPrefix(msg, "[NOT_FOUND]") {
		t.Errorf("message = %q, want NOT_FOUND", msg)
	}
}

func TestCLICreate_SchedulesCheckIn(t *testing.T) {
	app, inj, _ := setupTestApp(t, nil)

	var created episode.Episode
	mustRun(t, app, &created, "create", "--severity=4")

	st := do.MustInvoke[store.Store](inj)
	jobs, err := st.ClaimDue(t.Context(), epoch.Add(time.Hour).UnixMilli(), time.Minute.Milliseconds(), 10)
	if err != nil {
		t.Fatalf("ClaimDue failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Arg != created.ID {
		t.Fatalf("jobs = %+v, want one check-in for %s", jobs, created.ID)
	}
}

func TestCLICreate_Conflict(t *testing.T) {
	app, _, _ := setupTestApp(t, nil)
	mustRun(t, app, nil, "create", "--severity=6")

	_, err := runCLI(t, app, "create", "--severity=3")
	if msg := exitMessage(t, err); !strings.HasPrefix(msg, "[CONFLICT_ACTIVE_EPISODE]") {
		t.Errorf("message = %q, want CONFLICT_ACTIVE_EPISODE", msg)
	}
}

func TestCLICreate_InvalidSeverity(t *testing.T) {
	app, _, _ := setupTestApp(t, nil)
	_, err := runCLI(t, app, "create", "--severity=11")
	if msg := exitMessage(t, err); !strings.HasPrefix(msg, "[INVALID_SEVERITY]") {
		t.Errorf("message = %q, want INVALID_SEVERITY", msg)
	}
}

func TestCLILifecycle(t *testing.T) {
	app, _, fake := setupTestApp(t, nil)

	var e episode.Episode
	mustRun(t, app, &e, "create", "--severity=4")

	fake.Advance(15 * time.Minute)
	mustRun(t, app, &e, "severity", "--severity=8", e.ID)
	if e.Severity != 8 || len(e.SeverityHistory) != 2 {
		t.Errorf("severity = %d with %d samples, want 8 with 2", e.Severity, len(e.SeverityHistory))
	}

	mustRun(t, app, &e, "update", "--notes=took ibuprofen", "--triggers=stress", e.ID)
	if e.Notes == nil || *e.Notes != "took ibuprofen" {
		t.Errorf("notes = %v", e.Notes)
	}

	var active map[string]*episode.Episode
	mustRun(t, app, &active, "active")
	if active["episode"] == nil || active["episode"].ID != e.ID {
		t.Errorf("active = %+v, want %s", active["episode"], e.ID)
	}

	fake.Advance(time.Hour)
	var done ops.MarkDoneOutput
	mustRun(t, app, &done, "done", e.ID)
	if done.AlreadyEnded || done.Episode.Active() {
		t.Errorf("done = %+v", done)
	}

	mustRun(t, app, &active, "active")
	if active["episode"] != nil {
		t.Errorf("expected no active episode, got %+v", active["episode"])
	}

	mustRun(t, app, &e, "update", "--reopen", e.ID)
	if !e.Active() {
		t.Error("expected episode to be re-opened")
	}

	var list ops.ListOutput
	mustRun(t, app, &list, "list", "--level=high")
	if len(list.Items) != 1 {
		t.Errorf("list len = %d, want 1", len(list.Items))
	}

	var del ops.DeleteOutput
	mustRun(t, app, &del, "delete", e.ID)
	if !del.Deleted {
		t.Error("expected deleted=true")
	}

	mustRun(t, app, &list, "list")
	if len(list.Items) != 0 {
		t.Errorf("list len = %d, want 0", len(list.Items))
	}
}

func TestCLIUpdate_EndAndReopenExclusive(t *testing.T) {
	app, _, _ := setupTestApp(t, nil)
	_, err := runCLI(t, app, "update", "--end=5", "--reopen", "01X")
	if msg := exitMessage(t, err); !strings.HasPrefix(msg, "[INVALID_REQUEST]") {
		t.Errorf("message = %q, want INVALID_REQUEST", msg)
	}
}

func TestCLIEndpoints(t *testing.T) {
	app, _, _ := setupTestApp(t, nil)

	var ep map[string]any
	mustRun(t, app, &ep, "endpoint", "add", "--address=https://phone.example/push", "--secret=s3cret")
	if ep["kind"] != "webhook" {
		t.Errorf("kind = %v, want webhook", ep["kind"])
	}
	if _, ok := ep["secret"]; ok {
		t.Error("secret must not be printed")
	}

	_, err := runCLI(t, app, "endpoint", "add", "--address=not a url")
	if msg := exitMessage(t, err); !strings.HasPrefix(msg, "[INVALID_REQUEST]") {
		t.Errorf("message = %q, want INVALID_REQUEST", msg)
	}

	var list struct {
		Items []map[string]any `json:"items"`
	}
	mustRun(t, app, &list, "endpoint", "list")
	if len(list.Items) != 1 {
		t.Fatalf("endpoints = %d, want 1", len(list.Items))
	}

	mustRun(t, app, nil, "endpoint", "remove", "https://phone.example/push")
	mustRun(t, app, &list, "endpoint", "list")
	if len(list.Items) != 0 {
		t.Errorf("endpoints = %d, want 0", len(list.Items))
	}

	_, err = runCLI(t, app, "endpoint", "remove", "https://phone.example/push")
	if msg := exitMessage(t, err); !strings.HasPrefix(msg, "[NOT_FOUND]") {
		t.Errorf("message = %q, want NOT_FOUND", msg)
	}
}

func TestCLIToken(t *testing.T) {
	app, _, _ := setupTestApp(t, nil)

	var out struct {
		Token   string `json:"token"`
		OwnerID string `json:"owner_id"`
	}
	mustRun(t, app, &out, "token", "--owner=alice", "--ttl=1h")
	if out.OwnerID != "alice" {
		t.Errorf("owner_id = %q, want alice", out.OwnerID)
	}

	owner, err := web.NewAuthenticator("cli-secret").Verify(out.Token)
	if err != nil {
		t.Fatalf("token did not verify: %v", err)
	}
	if owner != "alice" {
		t.Errorf("subject = %q, want alice", owner)
	}
}

func TestCLIToken_NoSecret(t *testing.T) {
	app, _, _ := setupTestApp(t, func(c *config.Config) { c.JWTSecret = "" })
	_, err := runCLI(t, app, "token")
	if msg := exitMessage(t, err); !strings.Contains(msg, "jwt_secret") {
		t.Errorf("message = %q, want jwt_secret hint", msg)
	}
}

func TestCLIVersion(t *testing.T) {
	app := newCLIApp(nil)
	stdout, err := runCLI(t, app, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(stdout, Version) {
		t.Errorf("output = %q, want version %q", stdout, Version)
	}
}

func TestCLIMemoryScheduler(t *testing.T) {
	app, inj, fake := setupTestApp(t, func(c *config.Config) { c.Scheduler = config.SchedulerMemory })
	mustRun(t, app, nil, "create", "--severity=5")

	if fake.Pending() != 1 {
		t.Errorf("pending timers = %d, want 1", fake.Pending())
	}
	if _, err := do.Invoke[*schedulerService](inj); err != nil {
		t.Fatalf("scheduler: %v", err)
	}
}
