package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultDaemonAddress     = "127.0.0.1:7788"
	defaultOpenCodeBaseURL   = "http://127.0.0.1:4096"
	defaultOpenCodeUsername  = "opencode"
	defaultOpenCodeTimeout   = 30 * time.Second
	defaultWatchdogTimeout   = 60 * time.Second
	defaultDispatchTimeout   = 30 * time.Second
	defaultMemoryBaseURL     = "http://localhost:8000"
	defaultMemoryTenant      = "default_tenant"
	defaultMemoryDatabase    = "default_database"
	defaultMemoryCollection  = "repo_memory"
	defaultMemoryTimeout     = 30 * time.Second
	defaultLogLevel          = "info"
	DefaultNudgeMessage      = "Please continue with your task. If you're done, say 'READY FOR REVIEW' or 'APPROVED'."
	RefreshPolicyArmed       = "armed"
	RefreshPolicyImplicit    = "implicit-start"
	defaultRefreshPolicyName = RefreshPolicyArmed
)

// Environment variables honoured on top of the TOML file.
const (
	EnvWatchdogTimeoutMS  = "WATCHDOG_TIMEOUT_MS"
	EnvWatchdogNudge      = "WATCHDOG_NUDGE_MESSAGE"
	EnvWatchdogEnabled    = "WATCHDOG_ENABLED"
	EnvOpenCodeServerURL  = "OPENCODE_SERVER_URL"
	EnvOpenCodePassword   = "OPENCODE_SERVER_PASSWORD"
	EnvChromaURL          = "CHROMA_URL"
	EnvOverseerLogLevel   = "OVERSEER_LOG_LEVEL"
	EnvOverseerDaemonAddr = "OVERSEER_DAEMON_ADDRESS"
)

type CoreConfig struct {
	Daemon   CoreDaemonConfig   `toml:"daemon"`
	Logging  CoreLoggingConfig  `toml:"logging"`
	OpenCode CoreOpenCodeConfig `toml:"opencode"`
	Watchdog CoreWatchdogConfig `toml:"watchdog"`
	Journal  CoreJournalConfig  `toml:"journal"`
	Memory   CoreMemoryConfig   `toml:"memory"`
}

type CoreDaemonConfig struct {
	Address string `toml:"address"`
}

type CoreLoggingConfig struct {
	Level  string `toml:"level"`
	File   string `toml:"file"`
	Remote *bool  `toml:"remote"`
}

type CoreOpenCodeConfig struct {
	BaseURL   string `toml:"base_url"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	TimeoutMS int    `toml:"timeout_ms"`
	Directory string `toml:"directory"`
}

// CoreWatchdogConfig keeps TimeoutMS loosely typed so a malformed value
// degrades to the default instead of failing the whole file.
type CoreWatchdogConfig struct {
	Enabled           *bool  `toml:"enabled"`
	TimeoutMS         any    `toml:"timeout_ms"`
	NudgeMessage      string `toml:"nudge_message"`
	RefreshPolicy     string `toml:"refresh_policy"`
	DispatchTimeoutMS int    `toml:"dispatch_timeout_ms"`
}

type CoreJournalConfig struct {
	Path string `toml:"path"`
}

type CoreMemoryConfig struct {
	BaseURL           string `toml:"base_url"`
	Tenant            string `toml:"tenant"`
	Database          string `toml:"database"`
	DefaultCollection string `toml:"default_collection"`
	TimeoutMS         int    `toml:"timeout_ms"`
}

// ConfigError reports a configuration value that could not be used. The
// accessor that returns it has already fallen back to the default.
type ConfigError struct {
	Key   string
	Value any
	Err   error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Key, fmt.Sprint(e.Value), e.Err)
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func DefaultCoreConfig() CoreConfig {
	return CoreConfig{
		Daemon: CoreDaemonConfig{
			Address: defaultDaemonAddress,
		},
		Logging: CoreLoggingConfig{
			Level: defaultLogLevel,
		},
		OpenCode: CoreOpenCodeConfig{
			BaseURL:  defaultOpenCodeBaseURL,
			Username: defaultOpenCodeUsername,
		},
		Watchdog: CoreWatchdogConfig{
			NudgeMessage:  DefaultNudgeMessage,
			RefreshPolicy: defaultRefreshPolicyName,
		},
		Memory: CoreMemoryConfig{
			BaseURL:           defaultMemoryBaseURL,
			Tenant:            defaultMemoryTenant,
			Database:          defaultMemoryDatabase,
			DefaultCollection: defaultMemoryCollection,
		},
	}
}

// LoadCoreConfig reads config.toml from the data directory (a missing file
// yields defaults) and then applies environment overrides.
func LoadCoreConfig() (CoreConfig, error) {
	path, err := CoreConfigPath()
	if err != nil {
		return CoreConfig{}, err
	}
	cfg, err := loadCoreConfigFromPath(path)
	if err != nil {
		return CoreConfig{}, err
	}
	return cfg.WithEnv(os.Getenv), nil
}

// WithEnv returns a copy of c with environment overrides applied.
func (c CoreConfig) WithEnv(getenv func(string) string) CoreConfig {
	if getenv == nil {
		return c
	}
	if raw := getenv(EnvWatchdogTimeoutMS); strings.TrimSpace(raw) != "" {
		c.Watchdog.TimeoutMS = raw
	}
	if raw := getenv(EnvWatchdogNudge); raw != "" {
		c.Watchdog.NudgeMessage = raw
	}
	if raw := getenv(EnvWatchdogEnabled); raw != "" {
		enabled := !strings.EqualFold(strings.TrimSpace(raw), "false")
		c.Watchdog.Enabled = &enabled
	}
	if raw := strings.TrimSpace(getenv(EnvOpenCodeServerURL)); raw != "" {
		c.OpenCode.BaseURL = raw
	}
	if raw := getenv(EnvOpenCodePassword); raw != "" {
		c.OpenCode.Password = raw
	}
	if raw := strings.TrimSpace(getenv(EnvChromaURL)); raw != "" {
		c.Memory.BaseURL = raw
	}
	if raw := strings.TrimSpace(getenv(EnvOverseerLogLevel)); raw != "" {
		c.Logging.Level = raw
	}
	if raw := strings.TrimSpace(getenv(EnvOverseerDaemonAddr)); raw != "" {
		c.Daemon.Address = raw
	}
	return c
}

func (c CoreConfig) DaemonAddress() string {
	addr := strings.TrimSpace(c.Daemon.Address)
	addr = strings.TrimPrefix(addr, "http://")
	addr = strings.TrimPrefix(addr, "https://")
	addr = strings.TrimRight(addr, "/")
	if addr == "" {
		return defaultDaemonAddress
	}
	return addr
}

func (c CoreConfig) DaemonBaseURL() string {
	return "http://" + c.DaemonAddress()
}

func (c CoreConfig) LogLevel() string {
	level := strings.TrimSpace(c.Logging.Level)
	if level == "" {
		return defaultLogLevel
	}
	return level
}

// LogFile returns the configured log file path, or "" for stderr.
func (c CoreConfig) LogFile() (string, error) {
	path := strings.TrimSpace(c.Logging.File)
	if path == "" {
		return "", nil
	}
	return resolveConfigPath(path)
}

// RemoteLogging reports whether log entries are also forwarded to the
// OpenCode server log. Defaults to true.
func (c CoreConfig) RemoteLogging() bool {
	if c.Logging.Remote == nil {
		return true
	}
	return *c.Logging.Remote
}

func (c CoreConfig) OpenCodeBaseURL() string {
	url := strings.TrimRight(strings.TrimSpace(c.OpenCode.BaseURL), "/")
	if url == "" {
		return defaultOpenCodeBaseURL
	}
	return url
}

func (c CoreConfig) OpenCodeUsername() string {
	username := strings.TrimSpace(c.OpenCode.Username)
	if username == "" {
		return defaultOpenCodeUsername
	}
	return username
}

func (c CoreConfig) OpenCodePassword() string {
	return strings.TrimSpace(c.OpenCode.Password)
}

func (c CoreConfig) OpenCodeTimeout() time.Duration {
	return millisOrDefault(c.OpenCode.TimeoutMS, defaultOpenCodeTimeout)
}

func (c CoreConfig) OpenCodeDirectory() string {
	return strings.TrimSpace(c.OpenCode.Directory)
}

func (c CoreConfig) WatchdogEnabled() bool {
	if c.Watchdog.Enabled == nil {
		return true
	}
	return *c.Watchdog.Enabled
}

// WatchdogTimeout returns the countdown duration. A malformed or
// non-positive value yields the default together with a *ConfigError.
func (c CoreConfig) WatchdogTimeout() (time.Duration, error) {
	raw := c.Watchdog.TimeoutMS
	if raw == nil {
		return defaultWatchdogTimeout, nil
	}
	ms, err := parseMillis(raw)
	if err != nil {
		return defaultWatchdogTimeout, &ConfigError{Key: "watchdog.timeout_ms", Value: raw, Err: err}
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (c CoreConfig) NudgeMessage() string {
	if strings.TrimSpace(c.Watchdog.NudgeMessage) == "" {
		return DefaultNudgeMessage
	}
	return c.Watchdog.NudgeMessage
}

// RefreshPolicy returns RefreshPolicyArmed or RefreshPolicyImplicit.
// Unknown values fall back to RefreshPolicyArmed with a *ConfigError.
func (c CoreConfig) RefreshPolicy() (string, error) {
	switch policy := strings.ToLower(strings.TrimSpace(c.Watchdog.RefreshPolicy)); policy {
	case "", RefreshPolicyArmed:
		return RefreshPolicyArmed, nil
	case RefreshPolicyImplicit, "implicit":
		return RefreshPolicyImplicit, nil
	default:
		return defaultRefreshPolicyName, &ConfigError{
			Key:   "watchdog.refresh_policy",
			Value: c.Watchdog.RefreshPolicy,
			Err:   errors.New("must be armed or implicit-start"),
		}
	}
}

func (c CoreConfig) DispatchTimeout() time.Duration {
	return millisOrDefault(c.Watchdog.DispatchTimeoutMS, defaultDispatchTimeout)
}

// JournalPath returns the configured journal path or the default one in
// the data directory.
func (c CoreConfig) JournalPath() (string, error) {
	path := strings.TrimSpace(c.Journal.Path)
	if path == "" {
		return JournalPath()
	}
	return resolveConfigPath(path)
}

func (c CoreConfig) MemoryBaseURL() string {
	url := strings.TrimRight(strings.TrimSpace(c.Memory.BaseURL), "/")
	if url == "" {
		return defaultMemoryBaseURL
	}
	return url
}

func (c CoreConfig) MemoryTenant() string {
	if tenant := strings.TrimSpace(c.Memory.Tenant); tenant != "" {
		return tenant
	}
	return defaultMemoryTenant
}

func (c CoreConfig) MemoryDatabase() string {
	if database := strings.TrimSpace(c.Memory.Database); database != "" {
		return database
	}
	return defaultMemoryDatabase
}

func (c CoreConfig) MemoryDefaultCollection() string {
	if name := strings.TrimSpace(c.Memory.DefaultCollection); name != "" {
		return name
	}
	return defaultMemoryCollection
}

func (c CoreConfig) MemoryTimeout() time.Duration {
	return millisOrDefault(c.Memory.TimeoutMS, defaultMemoryTimeout)
}

// Warnings collects every value an accessor had to replace with its
// default.
func (c CoreConfig) Warnings() []error {
	var out []error
	if _, err := c.WatchdogTimeout(); err != nil {
		out = append(out, err)
	}
	if _, err := c.RefreshPolicy(); err != nil {
		out = append(out, err)
	}
	return out
}

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

func parseMillis(raw any) (int64, error) {
	var ms int64
	switch v := raw.(type) {
	case int64:
		ms = v
	case int:
		ms = int64(v)
	case float64:
		if v <= 0 {
			return 0, errors.New("must be positive")
		}
		if v > float64(maxMillis) {
			return 0, errors.New("out of range")
		}
		if v != float64(int64(v)) {
			return 0, errors.New("must be a whole number of milliseconds")
		}
		ms = int64(v)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errors.New("must be an integer")
		}
		ms = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
	if ms <= 0 {
		return 0, errors.New("must be positive")
	}
	if ms > maxMillis {
		return 0, errors.New("out of range")
	}
	return ms, nil
}

func millisOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 || int64(ms) > maxMillis {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func loadCoreConfigFromPath(path string) (CoreConfig, error) {
	cfg := DefaultCoreConfig()
	if err := readTOML(path, &cfg); err != nil {
		return CoreConfig{}, err
	}
	return cfg, nil
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}

func resolveConfigPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("path is required")
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, path), nil
}
