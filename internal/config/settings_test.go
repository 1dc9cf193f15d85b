package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, home, content string) {
	t.Helper()
	dataDir := filepath.Join(home, ".overseer")
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "config.toml"), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func clearOverseerEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvWatchdogTimeoutMS,
		EnvWatchdogNudge,
		EnvWatchdogEnabled,
		EnvOpenCodeServerURL,
		EnvOpenCodePassword,
		EnvChromaURL,
		EnvOverseerLogLevel,
		EnvOverseerDaemonAddr,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadCoreConfigDefaults(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "home"))
	clearOverseerEnv(t)
	cfg, err := LoadCoreConfig()
	if err != nil {
		t.Fatalf("LoadCoreConfig: %v", err)
	}
	if cfg.DaemonAddress() != "127.0.0.1:7788" {
		t.Fatalf("unexpected daemon address: %q", cfg.DaemonAddress())
	}
	if cfg.DaemonBaseURL() != "http://127.0.0.1:7788" {
		t.Fatalf("unexpected daemon base url: %q", cfg.DaemonBaseURL())
	}
	if !cfg.WatchdogEnabled() {
		t.Fatalf("expected watchdog enabled by default")
	}
	timeout, err := cfg.WatchdogTimeout()
	if err != nil || timeout != 60*time.Second {
		t.Fatalf("unexpected default timeout: %v %v", timeout, err)
	}
	if cfg.NudgeMessage() != DefaultNudgeMessage {
		t.Fatalf("unexpected nudge message: %q", cfg.NudgeMessage())
	}
	if policy, err := cfg.RefreshPolicy(); err != nil || policy != RefreshPolicyArmed {
		t.Fatalf("unexpected refresh policy: %q %v", policy, err)
	}
	if cfg.OpenCodeBaseURL() != "http://127.0.0.1:4096" || cfg.OpenCodeUsername() != "opencode" {
		t.Fatalf("unexpected opencode defaults: %q %q", cfg.OpenCodeBaseURL(), cfg.OpenCodeUsername())
	}
	if cfg.MemoryBaseURL() != "http://localhost:8000" || cfg.MemoryDefaultCollection() != "repo_memory" {
		t.Fatalf("unexpected memory defaults: %q %q", cfg.MemoryBaseURL(), cfg.MemoryDefaultCollection())
	}
	if cfg.MemoryTenant() != "default_tenant" || cfg.MemoryDatabase() != "default_database" {
		t.Fatalf("unexpected memory scope: %q %q", cfg.MemoryTenant(), cfg.MemoryDatabase())
	}
	if !cfg.RemoteLogging() {
		t.Fatalf("expected remote logging on by default")
	}
	if len(cfg.Warnings()) != 0 {
		t.Fatalf("expected no warnings, got %v", cfg.Warnings())
	}
}

func TestLoadCoreConfigFromTOML(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("HOME", home)
	clearOverseerEnv(t)
	writeConfigFile(t, home, `
[daemon]
address = "http://127.0.0.1:9999/"

[logging]
level = "debug"
remote = false

[opencode]
base_url = "http://localhost:5000/"
password = "secret"
timeout_ms = 1500

[watchdog]
enabled = false
timeout_ms = 2500
nudge_message = "keep going"
refresh_policy = "implicit-start"
dispatch_timeout_ms = 700

[journal]
path = "nudges.db"
`)

	cfg, err := LoadCoreConfig()
	if err != nil {
		t.Fatalf("LoadCoreConfig: %v", err)
	}
	if cfg.DaemonAddress() != "127.0.0.1:9999" {
		t.Fatalf("unexpected daemon address: %q", cfg.DaemonAddress())
	}
	if cfg.LogLevel() != "debug" || cfg.RemoteLogging() {
		t.Fatalf("unexpected logging config: %q %v", cfg.LogLevel(), cfg.RemoteLogging())
	}
	if cfg.OpenCodeBaseURL() != "http://localhost:5000" || cfg.OpenCodePassword() != "secret" {
		t.Fatalf("unexpected opencode config: %q %q", cfg.OpenCodeBaseURL(), cfg.OpenCodePassword())
	}
	if cfg.OpenCodeTimeout() != 1500*time.Millisecond {
		t.Fatalf("unexpected opencode timeout: %v", cfg.OpenCodeTimeout())
	}
	if cfg.WatchdogEnabled() {
		t.Fatalf("expected watchdog disabled")
	}
	if timeout, err := cfg.WatchdogTimeout(); err != nil || timeout != 2500*time.Millisecond {
		t.Fatalf("unexpected timeout: %v %v", timeout, err)
	}
	if cfg.NudgeMessage() != "keep going" {
		t.Fatalf("unexpected nudge: %q", cfg.NudgeMessage())
	}
	if policy, _ := cfg.RefreshPolicy(); policy != RefreshPolicyImplicit {
		t.Fatalf("unexpected policy: %q", policy)
	}
	if cfg.DispatchTimeout() != 700*time.Millisecond {
		t.Fatalf("unexpected dispatch timeout: %v", cfg.DispatchTimeout())
	}
	path, err := cfg.JournalPath()
	if err != nil {
		t.Fatalf("JournalPath: %v", err)
	}
	if want := filepath.Join(home, ".overseer", "nudges.db"); path != want {
		t.Fatalf("unexpected journal path: got=%q want=%q", path, want)
	}
}

func TestLoadCoreConfigRejectsInvalidTOML(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("HOME", home)
	writeConfigFile(t, home, "[watchdog\n")
	if _, err := LoadCoreConfig(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestWatchdogTimeoutFallsBackOnMalformedValue(t *testing.T) {
	cases := []struct {
		name string
		raw  any
	}{
		{name: "text", raw: "soon"},
		{name: "zero", raw: int64(0)},
		{name: "negative", raw: "-5"},
		{name: "fraction", raw: 1.5},
		{name: "bool", raw: true},
		{name: "overflow int", raw: int64(9300000000000)},
		{name: "overflow string", raw: "20000000000000000"},
		{name: "overflow float", raw: 1e19},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultCoreConfig()
			cfg.Watchdog.TimeoutMS = tc.raw
			timeout, err := cfg.WatchdogTimeout()
			if timeout != 60*time.Second {
				t.Fatalf("expected default timeout, got %v", timeout)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Key != "watchdog.timeout_ms" {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if len(cfg.Warnings()) != 1 {
				t.Fatalf("expected one warning, got %v", cfg.Warnings())
			}
		})
	}
}

func TestRefreshPolicyUnknownFallsBack(t *testing.T) {
	cfg := DefaultCoreConfig()
	cfg.Watchdog.RefreshPolicy = "eager"
	policy, err := cfg.RefreshPolicy()
	if policy != RefreshPolicyArmed || err == nil {
		t.Fatalf("expected armed fallback with error, got %q %v", policy, err)
	}
}

func TestWithEnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvWatchdogTimeoutMS: "1200",
		EnvWatchdogNudge:     "wake up",
		EnvWatchdogEnabled:   "FALSE",
		EnvOpenCodeServerURL: "http://opencode:4096",
		EnvOpenCodePassword:  "pw",
		EnvChromaURL:         "http://chroma:8000/",
	}
	cfg := DefaultCoreConfig().WithEnv(func(key string) string { return env[key] })
	if timeout, err := cfg.WatchdogTimeout(); err != nil || timeout != 1200*time.Millisecond {
		t.Fatalf("unexpected timeout: %v %v", timeout, err)
	}
	if cfg.NudgeMessage() != "wake up" {
		t.Fatalf("unexpected nudge: %q", cfg.NudgeMessage())
	}
	if cfg.WatchdogEnabled() {
		t.Fatalf("expected FALSE to disable the watchdog")
	}
	if cfg.OpenCodeBaseURL() != "http://opencode:4096" || cfg.OpenCodePassword() != "pw" {
		t.Fatalf("unexpected opencode overrides: %q %q", cfg.OpenCodeBaseURL(), cfg.OpenCodePassword())
	}
	if cfg.MemoryBaseURL() != "http://chroma:8000" {
		t.Fatalf("unexpected memory url: %q", cfg.MemoryBaseURL())
	}
}

func TestWithEnvEnabledOnlyDisabledByFalse(t *testing.T) {
	for _, raw := range []string{"0", "no", "true", "off"} {
		cfg := DefaultCoreConfig().WithEnv(func(key string) string {
			if key == EnvWatchdogEnabled {
				return raw
			}
			return ""
		})
		if !cfg.WatchdogEnabled() {
			t.Fatalf("expected %q to keep the watchdog enabled", raw)
		}
	}
}

func TestWithEnvMalformedTimeoutWarns(t *testing.T) {
	cfg := DefaultCoreConfig().WithEnv(func(key string) string {
		if key == EnvWatchdogTimeoutMS {
			return "abc"
		}
		return ""
	})
	timeout, err := cfg.WatchdogTimeout()
	if timeout != 60*time.Second || err == nil {
		t.Fatalf("expected fallback with warning, got %v %v", timeout, err)
	}
}

func TestResolveConfigPath(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("HOME", home)
	cases := map[string]string{
		"~/logs/x.log":   filepath.Join(home, "logs", "x.log"),
		"/var/log/o.log": "/var/log/o.log",
		"rel.log":        filepath.Join(home, ".overseer", "rel.log"),
	}
	for raw, want := range cases {
		got, err := resolveConfigPath(raw)
		if err != nil {
			t.Fatalf("resolveConfigPath(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("resolveConfigPath(%q) = %q, want %q", raw, got, want)
		}
	}
	if _, err := resolveConfigPath(" "); err == nil {
		t.Fatalf("expected error for blank path")
	}
}

func TestWithEnvOverflowingTimeoutWarns(t *testing.T) {
	cfg := DefaultCoreConfig().WithEnv(func(key string) string {
		if key == EnvWatchdogTimeoutMS {
			return "9300000000000"
		}
		return ""
	})
	timeout, err := cfg.WatchdogTimeout()
	if timeout != 60*time.Second || err == nil {
		t.Fatalf("expected fallback with warning, got %v %v", timeout, err)
	}
	if len(cfg.Warnings()) != 1 {
		t.Fatalf("expected one warning, got %v", cfg.Warnings())
	}
}

func TestMillisOrDefaultRejectsOverflow(t *testing.T) {
	if int64(math.MaxInt) <= maxMillis {
		t.Skip("int cannot exceed the duration range on this platform")
	}
	cfg := DefaultCoreConfig()
	cfg.OpenCode.TimeoutMS = math.MaxInt
	if got := cfg.OpenCodeTimeout(); got != 30*time.Second {
		t.Fatalf("expected default opencode timeout, got %v", got)
	}
	cfg.Watchdog.DispatchTimeoutMS = math.MaxInt
	if got := cfg.DispatchTimeout(); got <= 0 {
		t.Fatalf("expected positive dispatch timeout, got %v", got)
	}
}
