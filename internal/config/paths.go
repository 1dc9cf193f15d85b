package config

import (
	"os"
	"path/filepath"
)

const appDirName = ".overseer"

// DataDir returns the base data directory for overseer.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, appDirName), nil
}

// CoreConfigPath returns the path to the TOML configuration file.
func CoreConfigPath() (string, error) {
	return dataPath("config.toml")
}

// TokenPath returns the path to the daemon API token file.
func TokenPath() (string, error) {
	return dataPath("token")
}

// JournalPath returns the default path of the nudge journal database.
func JournalPath() (string, error) {
	return dataPath("journal.db")
}

// LogsDir returns the directory log files are written to.
func LogsDir() (string, error) {
	return dataPath("logs")
}

// DaemonLogPath returns the log file used by `daemon --background`.
func DaemonLogPath() (string, error) {
	return dataPath(filepath.Join("logs", "daemon.log"))
}

// MemoryLogPath returns the log file the memory proxy appends to.
func MemoryLogPath() (string, error) {
	return dataPath(filepath.Join("logs", "memory.log"))
}

func dataPath(name string) (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, name), nil
}
