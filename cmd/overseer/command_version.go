package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/pflag"
)

type VersionCommand struct {
	stdout  io.Writer
	stderr  io.Writer
	version string
}

type versionOutput struct {
	Version   string `json:"version" yaml:"version"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

func NewVersionCommand(stdout, stderr io.Writer, version string) *VersionCommand {
	return &VersionCommand{stdout: stdout, stderr: stderr, version: version}
}

func (c *VersionCommand) Run(args []string) error {
	fs := pflag.NewFlagSet("version", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	format := fs.String("format", formatText, "output format: text|json|yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resolved, err := resolveFormat(*format, formatText, formatJSON, formatYAML)
	if err != nil {
		return err
	}
	out := versionOutput{
		Version:   c.version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if resolved == formatText {
		_, err := fmt.Fprintf(c.stdout, "overseer %s (%s, %s)\n", out.Version, out.GoVersion, out.Platform)
		return err
	}
	return writeStructured(c.stdout, resolved, out)
}
