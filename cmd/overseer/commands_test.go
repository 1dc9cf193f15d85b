package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	overseerclient "overseer/internal/client"
	"overseer/internal/config"
	"overseer/internal/logging"
	"overseer/internal/memory"
	"overseer/internal/types"
)

func TestDaemonCommandBackgroundFlag(t *testing.T) {
	var calls []bool
	cmd := NewDaemonCommand(&bytes.Buffer{}, func(background bool) error {
		calls = append(calls, background)
		return nil
	})

	if err := cmd.Run([]string{"--background"}); err != nil {
		t.Fatalf("expected daemon run to succeed, got err=%v", err)
	}
	if err := cmd.Run(nil); err != nil {
		t.Fatalf("expected daemon run to succeed, got err=%v", err)
	}
	if len(calls) != 2 || !calls[0] || calls[1] {
		t.Fatalf("unexpected calls: %v", calls)
	}
	if err := cmd.Run([]string{"extra"}); err == nil {
		t.Fatalf("expected error for positional args")
	}
}

func TestConfigCommandDefaultFormats(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "home"))
	loadCalls := 0
	load := func() (config.CoreConfig, error) {
		loadCalls++
		return config.DefaultCoreConfig(), nil
	}

	stdout := &bytes.Buffer{}
	if err := NewConfigCommand(stdout, &bytes.Buffer{}, load).Run([]string{"--default"}); err != nil {
		t.Fatalf("config: %v", err)
	}
	if loadCalls != 0 {
		t.Fatalf("expected --default to skip loading")
	}
	var out configOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if out.Watchdog.TimeoutMS != 60000 || !out.Watchdog.Enabled || out.Watchdog.RefreshPolicy != config.RefreshPolicyArmed {
		t.Fatalf("unexpected watchdog config: %#v", out.Watchdog)
	}
	if out.Memory.DefaultCollection != "repo_memory" || out.Daemon.BaseURL != "http://127.0.0.1:7788" {
		t.Fatalf("unexpected config: %#v", out)
	}

	stdout.Reset()
	if err := NewConfigCommand(stdout, &bytes.Buffer{}, load).Run([]string{"--format", "yaml"}); err != nil {
		t.Fatalf("config yaml: %v", err)
	}
	var yamlOut map[string]any
	if err := yaml.Unmarshal(stdout.Bytes(), &yamlOut); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if _, ok := yamlOut["watchdog"]; !ok || loadCalls != 1 {
		t.Fatalf("unexpected yaml output: %v (loads=%d)", yamlOut, loadCalls)
	}

	stdout.Reset()
	if err := NewConfigCommand(stdout, &bytes.Buffer{}, load).Run([]string{"--format", "toml"}); err != nil {
		t.Fatalf("config toml: %v", err)
	}
	if !strings.Contains(stdout.String(), "[watchdog]") {
		t.Fatalf("expected toml table, got %q", stdout.String())
	}

	if err := NewConfigCommand(stdout, &bytes.Buffer{}, load).Run([]string{"--format", "xml"}); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestStatusCommandText(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	deadline := now.Add(42 * time.Second)
	activity := now.Add(-18 * time.Second)
	fake := &fakeCommandClient{snapshot: &types.WatchdogSnapshot{
		Enabled:          true,
		RefreshPolicy:    "armed",
		TimeoutMS:        60000,
		TrackedSessionID: "ses_1",
		Waiting:          true,
		Armed:            true,
		LastEventType:    "message.updated",
		LastActivity:     &activity,
		Deadline:         &deadline,
		Nudges:           2,
		LastNudgeError:   "connection refused",
	}}
	stdout := &bytes.Buffer{}
	cmd := NewStatusCommand(stdout, &bytes.Buffer{}, fixedFactory(fake))
	cmd.now = func() time.Time { return now }

	if err := cmd.Run(nil); err != nil {
		t.Fatalf("status: %v", err)
	}
	if fake.ensureDaemonCalls != 1 {
		t.Fatalf("expected ensure daemon once, got %d", fake.ensureDaemonCalls)
	}
	out := stdout.String()
	for _, want := range []string{"armed", "ses_1", "1m0s", "42s", "18s ago", "message.updated", "connection refused"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %q", want, out)
		}
	}
}

func TestStatusCommandJSON(t *testing.T) {
	fake := &fakeCommandClient{snapshot: &types.WatchdogSnapshot{Enabled: true, TrackedSessionID: "ses_9"}}
	stdout := &bytes.Buffer{}
	if err := NewStatusCommand(stdout, &bytes.Buffer{}, fixedFactory(fake)).Run([]string{"--format", "json"}); err != nil {
		t.Fatalf("status: %v", err)
	}
	var snapshot types.WatchdogSnapshot
	if err := json.Unmarshal(stdout.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if snapshot.TrackedSessionID != "ses_9" {
		t.Fatalf("unexpected snapshot: %#v", snapshot)
	}
}

func TestStatusCommandPropagatesEnsureError(t *testing.T) {
	fake := &fakeCommandClient{ensureDaemonErr: errors.New("no daemon")}
	err := NewStatusCommand(&bytes.Buffer{}, &bytes.Buffer{}, fixedFactory(fake)).Run(nil)
	if err == nil || err.Error() != "no daemon" {
		t.Fatalf("expected ensure error, got %v", err)
	}
}

func TestNudgesCommandPrintsTable(t *testing.T) {
	sent := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	fake := &fakeCommandClient{nudges: []*types.NudgeRecord{
		{ID: "nudge-00000002", SessionID: "ses_1", SentAt: sent, DurationMS: 12, Success: true},
		{ID: "nudge-00000001", SessionID: strings.Repeat("x", 40), SentAt: sent, DurationMS: 3, Error: "dial tcp:\nconnection refused"},
	}}
	stdout := &bytes.Buffer{}
	err := NewNudgesCommand(stdout, &bytes.Buffer{}, fixedFactory(fake)).Run([]string{"--session", "ses_1", "--limit", "7"})
	if err != nil {
		t.Fatalf("nudges: %v", err)
	}
	if fake.nudgesSession != "ses_1" || fake.nudgesLimit != 7 {
		t.Fatalf("unexpected query: %q %d", fake.nudgesSession, fake.nudgesLimit)
	}
	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", stdout.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "SESSION") {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "nudge-00000002") || !strings.HasSuffix(lines[1], "ok") {
		t.Fatalf("unexpected first row: %q", lines[1])
	}
	if strings.Contains(lines[2], strings.Repeat("x", 40)) || !strings.Contains(lines[2], "…") {
		t.Fatalf("expected truncated session: %q", lines[2])
	}
	if !strings.Contains(lines[2], "failed: dial tcp: connection refused") {
		t.Fatalf("expected flattened error: %q", lines[2])
	}
}

func TestNudgesCommandRejectsNegativeLimit(t *testing.T) {
	fake := &fakeCommandClient{}
	if err := NewNudgesCommand(&bytes.Buffer{}, &bytes.Buffer{}, fixedFactory(fake)).Run([]string{"--limit", "-1"}); err == nil {
		t.Fatalf("expected error")
	}
	if fake.ensureDaemonCalls != 0 {
		t.Fatalf("expected no daemon contact")
	}
}

func TestNudgesCommandEmptyJSON(t *testing.T) {
	stdout := &bytes.Buffer{}
	if err := NewNudgesCommand(stdout, &bytes.Buffer{}, fixedFactory(&fakeCommandClient{})).Run([]string{"--format", "json"}); err != nil {
		t.Fatalf("nudges: %v", err)
	}
	if strings.TrimSpace(stdout.String()) != "[]" {
		t.Fatalf("expected empty array, got %q", stdout.String())
	}
}

func TestWatchCommandRunsWatch(t *testing.T) {
	fake := &fakeCommandClient{}
	if err := NewWatchCommand(&bytes.Buffer{}, fixedFactory(fake)).Run(nil); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if fake.ensureDaemonCalls != 1 || fake.runWatchCalls != 1 {
		t.Fatalf("unexpected calls: ensure=%d watch=%d", fake.ensureDaemonCalls, fake.runWatchCalls)
	}
}

func TestMemoryCommandAddParsesLenientMetadata(t *testing.T) {
	fake := &fakeMemory{}
	stdout := &bytes.Buffer{}
	cmd := newTestMemoryCommand(stdout, fake)

	err := cmd.Run([]string{"add", "notes", "doc-1", "use make build", `{"kind": "tip", /* source */ "weight": 2,}`})
	if err != nil {
		t.Fatalf("memory add: %v", err)
	}
	if len(fake.calls) != 1 || fake.calls[0] != "add notes doc-1" {
		t.Fatalf("unexpected calls: %v", fake.calls)
	}
	if fake.lastMetadata["kind"] != "tip" || fake.lastMetadata["weight"] != json.Number("2") {
		t.Fatalf("unexpected metadata: %#v", fake.lastMetadata)
	}
	var result types.MemoryResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Success || result.ID != "doc-1" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestMemoryCommandDefaults(t *testing.T) {
	fake := &fakeMemory{}
	cmd := newTestMemoryCommand(&bytes.Buffer{}, fake)

	for _, args := range [][]string{
		{"search", "-", "build flags"},
		{"list"},
		{"list", "notes", "7"},
		{"stats"},
		{"collections"},
		{"delete", "notes", "doc-1"},
		{"delete-collection", "notes"},
		{"update", "-", "doc-1", "new text"},
	} {
		if err := cmd.Run(args); err != nil {
			t.Fatalf("memory %v: %v", args, err)
		}
	}
	want := []string{
		"search repo_memory build flags n=5",
		"list repo_memory limit=100",
		"list notes limit=7",
		"stats repo_memory",
		"collections",
		"delete notes doc-1",
		"delete-collection notes",
		"update repo_memory doc-1",
	}
	if strings.Join(fake.calls, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected calls:\n got %v\nwant %v", fake.calls, want)
	}
}

func TestMemoryCommandErrorsAsJSON(t *testing.T) {
	cases := []struct {
		name string
		args []string
		fake *fakeMemory
		want string
	}{
		{name: "no operation", args: nil, fake: &fakeMemory{}, want: "operation is required"},
		{name: "unknown", args: []string{"explode"}, fake: &fakeMemory{}, want: "unknown operation: explode"},
		{name: "bad n", args: []string{"search", "notes", "q", "zero"}, fake: &fakeMemory{}, want: "n_results must be a positive integer"},
		{name: "bad filter", args: []string{"search", "notes", "q", "3", "[1]"}, fake: &fakeMemory{}, want: "invalid filter_json"},
		{name: "arity", args: []string{"delete", "notes"}, fake: &fakeMemory{}, want: "delete takes 2 argument(s), got 1"},
		{name: "backend", args: []string{"stats", "ghost"}, fake: &fakeMemory{err: memory.ErrCollectionNotFound}, want: "collection not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stdout := &bytes.Buffer{}
			err := newTestMemoryCommand(stdout, tc.fake).Run(tc.args)
			var reported *reportedError
			if !errors.As(err, &reported) {
				t.Fatalf("expected reported error, got %v", err)
			}
			var payload map[string]string
			if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
				t.Fatalf("expected json error, got %q", stdout.String())
			}
			if !strings.Contains(payload["error"], tc.want) {
				t.Fatalf("expected %q in error, got %q", tc.want, payload["error"])
			}
		})
	}
}

func TestResolveFormat(t *testing.T) {
	if got, err := resolveFormat("", formatText, formatJSON); err != nil || got != formatText {
		t.Fatalf("expected default format, got %q %v", got, err)
	}
	if got, err := resolveFormat(" YAML ", formatJSON, formatYAML); err != nil || got != formatYAML {
		t.Fatalf("expected yaml, got %q %v", got, err)
	}
	if _, err := resolveFormat("toml", formatText, formatJSON); err == nil {
		t.Fatalf("expected error for disallowed format")
	}
}

func fixedFactory(client commandClient) clientFactory {
	return func() (commandClient, error) {
		return client, nil
	}
}

type fakeCommandClient struct {
	ensureDaemonErr   error
	ensureDaemonCalls int

	snapshot *types.WatchdogSnapshot
	nudges   []*types.NudgeRecord

	nudgesSession string
	nudgesLimit   int
	runWatchCalls int
}

func (f *fakeCommandClient) EnsureDaemon(context.Context) error {
	f.ensureDaemonCalls++
	return f.ensureDaemonErr
}

func (f *fakeCommandClient) Health(context.Context) (*overseerclient.HealthResponse, error) {
	return &overseerclient.HealthResponse{OK: true}, nil
}

func (f *fakeCommandClient) WatchdogStatus(context.Context) (*types.WatchdogSnapshot, error) {
	if f.snapshot == nil {
		return &types.WatchdogSnapshot{}, nil
	}
	return f.snapshot, nil
}

func (f *fakeCommandClient) Nudges(_ context.Context, sessionID string, limit int) ([]*types.NudgeRecord, error) {
	f.nudgesSession = sessionID
	f.nudgesLimit = limit
	return f.nudges, nil
}

func (f *fakeCommandClient) RunWatch(context.Context) error {
	f.runWatchCalls++
	return nil
}

func newTestMemoryCommand(stdout *bytes.Buffer, fake *fakeMemory) *MemoryCommand {
	return NewMemoryCommand(stdout, &bytes.Buffer{},
		func() (config.CoreConfig, error) { return config.DefaultCoreConfig(), nil },
		func(config.CoreConfig) (memoryClient, logging.Logger, func(), error) {
			return fake, logging.Nop(), func() {}, nil
		},
	)
}

type fakeMemory struct {
	calls        []string
	lastMetadata map[string]any
	err          error
}

func (f *fakeMemory) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeMemory) ListCollections(context.Context) ([]types.MemoryCollection, error) {
	return nil, f.record("collections")
}

func (f *fakeMemory) DeleteCollection(_ context.Context, name string) error {
	return f.record("delete-collection " + name)
}

func (f *fakeMemory) Add(_ context.Context, collection, id, _ string, metadata map[string]any) (types.MemoryResult, error) {
	f.lastMetadata = metadata
	return types.MemoryResult{Success: true, Collection: collection, ID: id}, f.record("add " + collection + " " + id)
}

func (f *fakeMemory) Update(_ context.Context, collection, id, _ string, metadata map[string]any) (types.MemoryResult, error) {
	f.lastMetadata = metadata
	return types.MemoryResult{Success: true, Collection: collection, ID: id}, f.record("update " + collection + " " + id)
}

func (f *fakeMemory) Delete(_ context.Context, collection, id string) (types.MemoryResult, error) {
	return types.MemoryResult{Success: true, Collection: collection, ID: id}, f.record("delete " + collection + " " + id)
}

func (f *fakeMemory) Search(_ context.Context, collection, query string, n int, _ map[string]any) ([]types.MemoryDocument, error) {
	return nil, f.record("search " + collection + " " + query + " n=" + strconv.Itoa(n))
}

func (f *fakeMemory) List(_ context.Context, collection string, limit int) ([]types.MemoryDocument, error) {
	return nil, f.record("list " + collection + " limit=" + strconv.Itoa(limit))
}

func (f *fakeMemory) Stats(_ context.Context, collection string) (types.MemoryStats, error) {
	return types.MemoryStats{Collection: collection}, f.record("stats " + collection)
}

func TestVersionCommandFormats(t *testing.T) {
	stdout := &bytes.Buffer{}
	if err := NewVersionCommand(stdout, &bytes.Buffer{}, "abc123").Run(nil); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "overseer abc123 (") {
		t.Fatalf("unexpected text output: %q", stdout.String())
	}

	stdout.Reset()
	if err := NewVersionCommand(stdout, &bytes.Buffer{}, "abc123").Run([]string{"--format", "json"}); err != nil {
		t.Fatalf("version json: %v", err)
	}
	var out versionOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Version != "abc123" || out.GoVersion == "" || !strings.Contains(out.Platform, "/") {
		t.Fatalf("unexpected version output: %#v", out)
	}

	if err := NewVersionCommand(stdout, &bytes.Buffer{}, "x").Run([]string{"--format", "toml"}); err == nil {
		t.Fatalf("expected toml to be rejected")
	}
}

func TestBuildCommandsRegistersEverything(t *testing.T) {
	commands := buildCommands(defaultCommandWiring(&bytes.Buffer{}, &bytes.Buffer{}))
	for _, name := range []string{"daemon", "config", "status", "nudges", "watch", "memory", "version"} {
		if _, ok := commands[name]; !ok {
			t.Fatalf("missing command %q", name)
		}
	}
}

func TestMemoryCommandJoinsUnquotedMetadata(t *testing.T) {
	fake := &fakeMemory{}
	cmd := newTestMemoryCommand(&bytes.Buffer{}, fake)

	err := cmd.Run([]string{"update", "notes", "doc-2", "text", `{"k":`, "1,", `"tag":`, `"a b"}`})
	if err != nil {
		t.Fatalf("memory update: %v", err)
	}
	if len(fake.calls) != 1 || fake.calls[0] != "update notes doc-2" {
		t.Fatalf("unexpected calls: %v", fake.calls)
	}
	if fake.lastMetadata["k"] != json.Number("1") || fake.lastMetadata["tag"] != "a b" {
		t.Fatalf("unexpected metadata: %#v", fake.lastMetadata)
	}
}

func TestMemoryCommandAddRequiresContent(t *testing.T) {
	fake := &fakeMemory{}
	stdout := &bytes.Buffer{}
	cmd := newTestMemoryCommand(stdout, fake)

	err := cmd.Run([]string{"add", "notes", "doc-3"})
	var reported *reportedError
	if !errors.As(err, &reported) {
		t.Fatalf("expected reported error, got %v", err)
	}
	if !strings.Contains(stdout.String(), "at least 3 arguments") || len(fake.calls) != 0 {
		t.Fatalf("unexpected output %q calls %v", stdout.String(), fake.calls)
	}
}
