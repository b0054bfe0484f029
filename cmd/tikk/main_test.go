package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	serveradapter "github.com/hylla/tikk/internal/adapters/server"
	servercommon "github.com/hylla/tikk/internal/adapters/server/common"
	"github.com/hylla/tikk/internal/app"
	"github.com/hylla/tikk/internal/config"
	"github.com/hylla/tikk/internal/domain"
	"github.com/hylla/tikk/internal/tui"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("TIKK_DEV_MODE", "false")
	os.Exit(m.Run())
}

// fakeProgram represents fake program data used by this package.
type fakeProgram struct {
	model  tea.Model
	runErr error
}

// Run runs the requested command flow.
func (f fakeProgram) Run() (tea.Model, error) {
	return f.model, f.runErr
}

// cliEnv isolates one test's config, data, and clock.
type cliEnv struct {
	t      *testing.T
	dir    string
	config string
	db     string
	now    time.Time
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("TIKK_CONFIG", "")
	t.Setenv("TIKK_DB_PATH", "")
	env := &cliEnv{
		t:      t,
		dir:    dir,
		config: filepath.Join(dir, "tikk.toml"),
		db:     filepath.Join(dir, "tikk.db"),
		now:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	prev := nowFunc
	nowFunc = func() time.Time { return env.now }
	t.Cleanup(func() { nowFunc = prev })
	return env
}

// run executes args against the env's config and database.
func (e *cliEnv) run(args ...string) (string, string, error) {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config", e.config, "--db", e.db}, args...)
	err := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

// mustJSON runs args with --json and decodes stdout into out.
func (e *cliEnv) mustJSON(out any, args ...string) {
	e.t.Helper()
	stdout, stderr, err := e.run(append([]string{"--json"}, args...)...)
	if err != nil {
		e.t.Fatalf("run(%v) error = %v (stderr=%s)", args, err, stderr)
	}
	if err := json.Unmarshal([]byte(stdout), out); err != nil {
		e.t.Fatalf("decode %v output %q: %v", args, stdout, err)
	}
}

func TestRunVersion(t *testing.T) {
	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("run(--version) error = %v", err)
	}
	if !strings.Contains(stdout.String(), version) {
		t.Fatalf("expected version output, got %q", stdout.String())
	}
}

func TestRunPathsCommand(t *testing.T) {
	env := newCLIEnv(t)
	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"--app", "demo", "--dev=false", "paths"}, &stdout, nil); err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	out := stdout.String()
	wantDB := filepath.Join(env.dir, "data", "demo", "demo.db")
	for _, want := range []string{"app: demo", "dev_mode: false", "db: " + wantDB, filepath.Join(env.dir, "config", "demo", "config.toml")} {
		if !strings.Contains(out, want) {
			t.Fatalf("paths output missing %q:\n%s", want, out)
		}
	}
}

func TestRunTimerFlow(t *testing.T) {
	env := newCLIEnv(t)

	var project servercommon.Project
	env.mustJSON(&project, "project", "create", "Client", "Work")
	if project.ID != 1 || project.Name != "Client Work" {
		t.Fatalf("unexpected project %#v", project)
	}
	var task servercommon.Task
	env.mustJSON(&task, "task", "create", "1", "Design")
	if task.ProjectID != project.ID {
		t.Fatalf("unexpected task %#v", task)
	}

	if _, stderr, err := env.run("timer", "start", "1"); err != nil {
		t.Fatalf("timer start error = %v (%s)", err, stderr)
	}
	env.now = env.now.Add(25 * time.Minute)

	var status servercommon.TimerStatus
	env.mustJSON(&status, "timer", "status")
	if !status.Running || status.Elapsed != "00:25:00" {
		t.Fatalf("unexpected status %#v", status)
	}

	stdout, _, err := env.run("timer", "stop")
	if err != nil {
		t.Fatalf("timer stop error = %v", err)
	}
	if !strings.Contains(stdout, "stopped task 1 after 00:25:00") {
		t.Fatalf("unexpected stop output %q", stdout)
	}
	stdout, _, err = env.run("timer", "stop", "1")
	if err != nil {
		t.Fatalf("second stop error = %v", err)
	}
	if !strings.Contains(stdout, "no timer running for task 1") {
		t.Fatalf("unexpected idempotent stop output %q", stdout)
	}

	var summary servercommon.TaskSummary
	env.mustJSON(&summary, "task", "summary", "1")
	if summary.TotalSeconds != 1500 || summary.EntryCount != 1 || summary.Running {
		t.Fatalf("unexpected summary %#v", summary)
	}

	var entries []servercommon.TimeEntry
	env.mustJSON(&entries, "entry", "list", "--task", "1")
	if len(entries) != 1 || entries[0].Duration != "00:25:00" {
		t.Fatalf("unexpected entries %#v", entries)
	}
	var events []servercommon.TimeEntryEvent
	env.mustJSON(&events, "entry", "audit", "1")
	if len(events) != 2 || events[0].Type != "start" || events[1].Type != "stop" {
		t.Fatalf("unexpected audit %#v", events)
	}

	stdout, _, err = env.run("entry", "list")
	if err != nil {
		t.Fatalf("entry list error = %v", err)
	}
	if !strings.Contains(stdout, "00:25:00") {
		t.Fatalf("expected table with duration, got:\n%s", stdout)
	}
}

func TestRunArchiveAndVersionedReads(t *testing.T) {
	env := newCLIEnv(t)
	if _, _, err := env.run("project", "create", "Client"); err != nil {
		t.Fatalf("project create error = %v", err)
	}
	if _, _, err := env.run("task", "create", "1", "Design"); err != nil {
		t.Fatalf("task create error = %v", err)
	}

	_, _, err := env.run("project", "archive", "1")
	if !errors.Is(err, domain.ErrProjectHasActiveTasks) {
		t.Fatalf("expected ErrProjectHasActiveTasks, got %v", err)
	}

	env.now = env.now.Add(time.Hour)
	if _, _, err := env.run("project", "rename", "1", "Client", "B"); err != nil {
		t.Fatalf("project rename error = %v", err)
	}
	env.now = env.now.Add(time.Hour)
	if _, _, err := env.run("project", "archive", "--force", "1"); err != nil {
		t.Fatalf("forced archive error = %v", err)
	}

	var asOf servercommon.Project
	env.mustJSON(&asOf, "project", "show", "1", "--at", "2026-03-02T09:30:00Z")
	if asOf.Name != "Client" || asOf.Status != "active" {
		t.Fatalf("unexpected as-of project %#v", asOf)
	}
	var history []servercommon.Project
	env.mustJSON(&history, "project", "history", "1")
	if len(history) != 3 || history[2].Status != "archived" {
		t.Fatalf("unexpected history %#v", history)
	}
	var task servercommon.Task
	env.mustJSON(&task, "task", "show", "1")
	if task.Status != "archived" {
		t.Fatalf("expected cascaded task archive, got %#v", task)
	}

	_, _, err = env.run("timer", "start", "1")
	if !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected state error starting archived task, got %v", err)
	}

	var listed []servercommon.Project
	env.mustJSON(&listed, "project", "list")
	if len(listed) != 0 {
		t.Fatalf("expected no active projects, got %#v", listed)
	}
	env.mustJSON(&listed, "project", "list", "--archived", "--prefix", "Client")
	if len(listed) != 1 {
		t.Fatalf("expected archived prefix match, got %#v", listed)
	}
}

func TestRunRejectsMalformedInput(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run("task", "show", "abc")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for bad id, got %v", err)
	}
	_, _, err = env.run("entry", "add", "1", "--start", "yesterday", "--end", "now")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for bad time, got %v", err)
	}
	if _, _, err := env.run("bogus"); err == nil {
		t.Fatal("expected unknown command error")
	}
	if _, _, err := env.run("task", "show", "1", "--nope"); err == nil {
		t.Fatal("expected unknown flag error")
	}
}

func TestRunManualEntryAndReports(t *testing.T) {
	env := newCLIEnv(t)
	env.run("project", "create", "Client")
	env.run("task", "create", "1", "Design")

	var entry servercommon.TimeEntry
	env.mustJSON(&entry, "entry", "add", "1", "--start", "2026-03-02 07:00", "--end", "2026-03-02T08:30:00Z", "--note", "kickoff")
	if entry.Duration != "01:30:00" || len(entry.Notes) != 1 || entry.Notes[0] != "kickoff" {
		t.Fatalf("unexpected manual entry %#v", entry)
	}
	_, _, err := env.run("entry", "add", "1", "--start", "2026-03-02T08:00:00Z", "--end", "2026-03-02T09:00:00Z")
	if !errors.Is(err, domain.ErrEntryOverlap) {
		t.Fatalf("expected overlap error, got %v", err)
	}

	stdout, _, err := env.run("report", "--from", "2026-03-02", "--to", "2026-03-03", "--format", "markdown")
	if err != nil {
		t.Fatalf("report markdown error = %v", err)
	}
	for _, want := range []string{"# Time report", "## Client", "| Design | 1 | 01:30:00 |"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("markdown report missing %q:\n%s", want, stdout)
		}
	}

	stdout, _, err = env.run("report")
	if err != nil {
		t.Fatalf("report table error = %v", err)
	}
	if !strings.Contains(stdout, "Design") || !strings.Contains(stdout, "01:30:00") {
		t.Fatalf("unexpected default table report:\n%s", stdout)
	}

	xlsxPath := filepath.Join(env.dir, "out", "week.xlsx")
	if _, _, err := env.run("report", "--from", "2026-03-01", "--format", "xlsx", "--out", xlsxPath); err != nil {
		t.Fatalf("report xlsx error = %v", err)
	}
	if info, err := os.Stat(xlsxPath); err != nil || info.Size() == 0 {
		t.Fatalf("expected xlsx file, stat err = %v", err)
	}

	_, _, err = env.run("report", "--from", "2026-03-03", "--to", "2026-03-02")
	if !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}
}

func TestRunExportWritesSnapshot(t *testing.T) {
	env := newCLIEnv(t)
	env.run("project", "create", "Client")
	env.run("task", "create", "1", "Design")
	env.run("timer", "start", "1")

	outPath := filepath.Join(env.dir, "export", "snap.json")
	if _, _, err := env.run("export", "--out", outPath); err != nil {
		t.Fatalf("export error = %v", err)
	}
	content, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var snap app.Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Version != app.SnapshotVersion || len(snap.Projects) != 1 || len(snap.Events) != 1 {
		t.Fatalf("unexpected snapshot %#v", snap)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].EndTime != nil {
		t.Fatalf("expected one running entry, got %#v", snap.Entries)
	}
}

func TestRunStartsTUIProgram(t *testing.T) {
	env := newCLIEnv(t)
	var got tea.Model
	prev := programFactory
	programFactory = func(m tea.Model) program {
		got = m
		return fakeProgram{model: m}
	}
	t.Cleanup(func() { programFactory = prev })

	if _, _, err := env.run(); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, ok := got.(tui.Model); !ok {
		t.Fatalf("expected tui.Model, got %T", got)
	}

	programFactory = func(m tea.Model) program {
		return fakeProgram{runErr: errors.New("tty gone")}
	}
	if _, _, err := env.run("tui"); err == nil || !strings.Contains(err.Error(), "tty gone") {
		t.Fatalf("expected program error, got %v", err)
	}
}

func TestRunServeUsesConfigAndFlags(t *testing.T) {
	env := newCLIEnv(t)
	content := `
[server]
http_bind = "127.0.0.1:9999"
api_endpoint = "/api/v2"
allowed_origins = ["http://localhost:3000"]
`
	if err := os.WriteFile(env.config, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var (
		gotCfg  serveradapter.Config
		gotDeps serveradapter.Dependencies
	)
	prev := serveCommandRunner
	serveCommandRunner = func(_ context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
		gotCfg, gotDeps = cfg, deps
		return nil
	}
	t.Cleanup(func() { serveCommandRunner = prev })

	if _, _, err := env.run("serve", "--mcp-endpoint", "/tools"); err != nil {
		t.Fatalf("serve error = %v", err)
	}
	if gotCfg.HTTPBind != "127.0.0.1:9999" || gotCfg.APIEndpoint != "/api/v2" || gotCfg.MCPEndpoint != "/tools" {
		t.Fatalf("unexpected server config %#v", gotCfg)
	}
	if len(gotCfg.AllowedOrigins) != 1 || gotCfg.ServerName != "tikk" || gotCfg.ServerVersion != version {
		t.Fatalf("unexpected server metadata %#v", gotCfg)
	}
	if gotDeps.Service == nil || gotDeps.Logger == nil {
		t.Fatalf("expected service and logger dependencies, got %#v", gotDeps)
	}
}

func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	env := newCLIEnv(t)
	if err := os.WriteFile(env.config, []byte("[logging]\nlevel = \"loud\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, _, err := env.run("timer", "status")
	if err == nil || !strings.Contains(err.Error(), "logging.level") {
		t.Fatalf("expected logging level error, got %v", err)
	}
}

func TestRunDevModeWritesLogFileOnlyForTUI(t *testing.T) {
	env := newCLIEnv(t)
	prev := programFactory
	programFactory = func(m tea.Model) program { return fakeProgram{model: m} }
	t.Cleanup(func() { programFactory = prev })

	_, stderr, err := env.run("--dev", "tui")
	if err != nil {
		t.Fatalf("run(--dev tui) error = %v", err)
	}
	logPath := filepath.Join(env.dir, "data", "tikk-dev", "logs", "tikk-20260302.log")
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("expected dev log file at %s: %v", logPath, err)
	}
	if !strings.Contains(string(content), "starting tui program loop") {
		t.Fatalf("dev log missing tui start line:\n%s", content)
	}
	if strings.Contains(stderr, "starting tui program loop") {
		t.Fatalf("console should stay quiet while the tui runs, got %q", stderr)
	}
}

func TestParseCLITime(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		raw  string
		want time.Time
	}{
		{"now", now},
		{"2026-03-01T10:00:00+01:00", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{"2026-03-01 10:15", time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)},
		{"2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := parseCLITime("at", tc.raw, now)
		if err != nil {
			t.Fatalf("parseCLITime(%q) error = %v", tc.raw, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("parseCLITime(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
	if _, err := parseCLITime("at", "soon", now); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got, err := cliTime("at", "", now); err != nil || got != "" {
		t.Fatalf("cliTime(empty) = %q, %v", got, err)
	}
}

func TestRuntimeLoggerCanMuteConsoleSink(t *testing.T) {
	var console bytes.Buffer
	logger, err := newRuntimeLogger(&console, "tikk", false, t.TempDir(), loggingConfig("info"), nil)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	logger.Info("visible")
	logger.SetConsoleEnabled(false)
	logger.Info("hidden")
	if !strings.Contains(console.String(), "visible") || strings.Contains(console.String(), "hidden") {
		t.Fatalf("unexpected console output %q", console.String())
	}
	if logger.DevLogPath() != "" {
		t.Fatalf("expected no dev log outside dev mode, got %q", logger.DevLogPath())
	}
}

func TestDevLogFilePathAndStem(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	got, err := devLogFilePath(dir, "my app/dev", day)
	if err != nil {
		t.Fatalf("devLogFilePath() error = %v", err)
	}
	if want := filepath.Join(dir, "my-app-dev-20260302.log"); got != want {
		t.Fatalf("devLogFilePath() = %q, want %q", got, want)
	}
	if _, err := devLogFilePath(" ", "tikk", day); err == nil {
		t.Fatal("expected error for empty dir")
	}
	if stem := sanitizeLogFileStem(" / "); stem != "tikk" {
		t.Fatalf("sanitizeLogFileStem() = %q", stem)
	}
}

func loggingConfig(level string) config.LoggingConfig {
	return config.LoggingConfig{Level: level}
}
