package main

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const version = "dev"

const (
	formatText = "text"
	formatJSON = "json"
	formatTOML = "toml"
	formatYAML = "yaml"
)

// reportedError marks a failure the command already wrote to its output.
// main exits non-zero without printing it again.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

func exitOnErr(label string, err error, stderr io.Writer) {
	if err == nil {
		return
	}
	var reported *reportedError
	if !errors.As(err, &reported) {
		fmt.Fprintf(stderr, "%s error: %v\n", label, err)
	}
	os.Exit(1)
}

func resolveFormat(raw string, allowed ...string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" && len(allowed) > 0 {
		return allowed[0], nil
	}
	for _, candidate := range allowed {
		if value == candidate {
			return value, nil
		}
	}
	return "", fmt.Errorf("invalid format: must be %s", strings.Join(allowed, ", "))
}

func writeStructured(out io.Writer, format string, payload any) error {
	switch format {
	case formatJSON:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(payload)
	case formatTOML:
		data, err := toml.Marshal(payload)
		if err != nil {
			return err
		}
		return writeWithNewline(out, data)
	case formatYAML:
		data, err := yaml.Marshal(payload)
		if err != nil {
			return err
		}
		return writeWithNewline(out, data)
	default:
		return errors.New("unsupported format")
	}
}

func writeWithNewline(out io.Writer, data []byte) error {
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	_, err := out.Write(data)
	return err
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		var revision string
		var modified string
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
			case "vcs.modified":
				modified = setting.Value
			}
		}
		if revision != "" {
			if modified == "true" {
				return revision + "-dirty"
			}
			return revision
		}
	}

	exe, err := os.Executable()
	if err == nil {
		file, err := os.Open(exe)
		if err == nil {
			defer file.Close()
			hasher := sha256.New()
			if _, err := io.Copy(hasher, file); err == nil {
				sum := hasher.Sum(nil)
				return fmt.Sprintf("bin-%x", sum[:6])
			}
		}
	}

	return version
}
