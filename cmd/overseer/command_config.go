package main

import (
	"io"

	"github.com/spf13/pflag"

	"overseer/internal/config"
)

type ConfigCommand struct {
	stdout     io.Writer
	stderr     io.Writer
	loadConfig func() (config.CoreConfig, error)
}

type configOutput struct {
	CoreConfigPath string                  `json:"core_config_path" toml:"core_config_path" yaml:"core_config_path"`
	Daemon         effectiveDaemonConfig   `json:"daemon" toml:"daemon" yaml:"daemon"`
	Logging        effectiveLoggingConfig  `json:"logging" toml:"logging" yaml:"logging"`
	OpenCode       effectiveOpenCodeConfig `json:"opencode" toml:"opencode" yaml:"opencode"`
	Watchdog       effectiveWatchdogConfig `json:"watchdog" toml:"watchdog" yaml:"watchdog"`
	Journal        effectiveJournalConfig  `json:"journal" toml:"journal" yaml:"journal"`
	Memory         effectiveMemoryConfig   `json:"memory" toml:"memory" yaml:"memory"`
	Warnings       []string                `json:"warnings,omitempty" toml:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type effectiveDaemonConfig struct {
	Address string `json:"address" toml:"address" yaml:"address"`
	BaseURL string `json:"base_url" toml:"base_url" yaml:"base_url"`
}

type effectiveLoggingConfig struct {
	Level  string `json:"level" toml:"level" yaml:"level"`
	File   string `json:"file,omitempty" toml:"file,omitempty" yaml:"file,omitempty"`
	Remote bool   `json:"remote" toml:"remote" yaml:"remote"`
}

type effectiveOpenCodeConfig struct {
	BaseURL     string `json:"base_url" toml:"base_url" yaml:"base_url"`
	Username    string `json:"username" toml:"username" yaml:"username"`
	PasswordSet bool   `json:"password_set" toml:"password_set" yaml:"password_set"`
	TimeoutMS   int64  `json:"timeout_ms" toml:"timeout_ms" yaml:"timeout_ms"`
	Directory   string `json:"directory,omitempty" toml:"directory,omitempty" yaml:"directory,omitempty"`
}

type effectiveWatchdogConfig struct {
	Enabled           bool   `json:"enabled" toml:"enabled" yaml:"enabled"`
	TimeoutMS         int64  `json:"timeout_ms" toml:"timeout_ms" yaml:"timeout_ms"`
	NudgeMessage      string `json:"nudge_message" toml:"nudge_message" yaml:"nudge_message"`
	RefreshPolicy     string `json:"refresh_policy" toml:"refresh_policy" yaml:"refresh_policy"`
	DispatchTimeoutMS int64  `json:"dispatch_timeout_ms" toml:"dispatch_timeout_ms" yaml:"dispatch_timeout_ms"`
}

type effectiveJournalConfig struct {
	Path string `json:"path" toml:"path" yaml:"path"`
}

type effectiveMemoryConfig struct {
	BaseURL           string `json:"base_url" toml:"base_url" yaml:"base_url"`
	Tenant            string `json:"tenant" toml:"tenant" yaml:"tenant"`
	Database          string `json:"database" toml:"database" yaml:"database"`
	DefaultCollection string `json:"default_collection" toml:"default_collection" yaml:"default_collection"`
	TimeoutMS         int64  `json:"timeout_ms" toml:"timeout_ms" yaml:"timeout_ms"`
}

func NewConfigCommand(stdout, stderr io.Writer, loadConfig func() (config.CoreConfig, error)) *ConfigCommand {
	if loadConfig == nil {
		loadConfig = config.LoadCoreConfig
	}
	return &ConfigCommand{
		stdout:     stdout,
		stderr:     stderr,
		loadConfig: loadConfig,
	}
}

func (c *ConfigCommand) Run(args []string) error {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	defaults := fs.Bool("default", false, "print default config values")
	format := fs.String("format", formatJSON, "output format: json|toml|yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resolvedFormat, err := resolveFormat(*format, formatJSON, formatTOML, formatYAML)
	if err != nil {
		return err
	}
	cfg := config.DefaultCoreConfig()
	if !*defaults {
		cfg, err = c.loadConfig()
		if err != nil {
			return err
		}
	}
	payload, err := buildConfigOutput(cfg)
	if err != nil {
		return err
	}
	return writeStructured(c.stdout, resolvedFormat, payload)
}

func buildConfigOutput(cfg config.CoreConfig) (configOutput, error) {
	corePath, err := config.CoreConfigPath()
	if err != nil {
		return configOutput{}, err
	}
	logFile, err := cfg.LogFile()
	if err != nil {
		return configOutput{}, err
	}
	journalPath, err := cfg.JournalPath()
	if err != nil {
		return configOutput{}, err
	}
	timeout, _ := cfg.WatchdogTimeout()
	policy, _ := cfg.RefreshPolicy()

	out := configOutput{
		CoreConfigPath: corePath,
		Daemon: effectiveDaemonConfig{
			Address: cfg.DaemonAddress(),
			BaseURL: cfg.DaemonBaseURL(),
		},
		Logging: effectiveLoggingConfig{
			Level:  cfg.LogLevel(),
			File:   logFile,
			Remote: cfg.RemoteLogging(),
		},
		OpenCode: effectiveOpenCodeConfig{
			BaseURL:     cfg.OpenCodeBaseURL(),
			Username:    cfg.OpenCodeUsername(),
			PasswordSet: cfg.OpenCodePassword() != "",
			TimeoutMS:   cfg.OpenCodeTimeout().Milliseconds(),
			Directory:   cfg.OpenCodeDirectory(),
		},
		Watchdog: effectiveWatchdogConfig{
			Enabled:           cfg.WatchdogEnabled(),
			TimeoutMS:         timeout.Milliseconds(),
			NudgeMessage:      cfg.NudgeMessage(),
			RefreshPolicy:     policy,
			DispatchTimeoutMS: cfg.DispatchTimeout().Milliseconds(),
		},
		Journal: effectiveJournalConfig{
			Path: journalPath,
		},
		Memory: effectiveMemoryConfig{
			BaseURL:           cfg.MemoryBaseURL(),
			Tenant:            cfg.MemoryTenant(),
			Database:          cfg.MemoryDatabase(),
			DefaultCollection: cfg.MemoryDefaultCollection(),
			TimeoutMS:         cfg.MemoryTimeout().Milliseconds(),
		},
	}
	for _, warning := range cfg.Warnings() {
		out.Warnings = append(out.Warnings, warning.Error())
	}
	return out, nil
}
