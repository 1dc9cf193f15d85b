package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"overseer/internal/app"
	"overseer/internal/types"
)

var (
	statusLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	statusErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type StatusCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
	now       func() time.Time
}

func NewStatusCommand(stdout, stderr io.Writer, newClient clientFactory) *StatusCommand {
	return &StatusCommand{
		stdout:    stdout,
		stderr:    stderr,
		newClient: newClient,
		now:       time.Now,
	}
}

func (c *StatusCommand) Run(args []string) error {
	fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	format := fs.String("format", formatText, "output format: text|json|yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resolvedFormat, err := resolveFormat(*format, formatText, formatJSON, formatYAML)
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := c.newClient()
	if err != nil {
		return err
	}
	if err := client.EnsureDaemon(ctx); err != nil {
		return err
	}
	snapshot, err := client.WatchdogStatus(ctx)
	if err != nil {
		return err
	}
	if resolvedFormat != formatText {
		return writeStructured(c.stdout, resolvedFormat, snapshot)
	}
	printStatus(c.stdout, snapshot, c.now())
	return nil
}

func printStatus(out io.Writer, s *types.WatchdogSnapshot, now time.Time) {
	row := func(label, value string) {
		fmt.Fprintln(out, statusLabelStyle.Render(label)+value)
	}
	row("state", app.RenderState(app.StateLabel(s.Enabled, s.Waiting, s.Armed)))
	row("timeout", (time.Duration(s.TimeoutMS) * time.Millisecond).String())
	row("refresh policy", dashIfEmpty(s.RefreshPolicy))
	row("session", dashIfEmpty(s.TrackedSessionID))
	row("last event", dashIfEmpty(s.LastEventType))
	if s.LastActivity != nil {
		row("last activity", formatAgo(now, *s.LastActivity))
	}
	if s.Armed && s.Deadline != nil {
		remaining := s.Deadline.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		row("nudge in", remaining.Round(time.Second).String())
	}
	nudges := fmt.Sprintf("%d", s.Nudges)
	if s.LastNudgeAt != nil {
		nudges += ", last " + formatAgo(now, *s.LastNudgeAt)
	}
	row("nudges", nudges)
	if s.LastNudgeError != "" {
		row("last error", statusErrorStyle.Render(s.LastNudgeError))
	}
}

func formatAgo(now, at time.Time) string {
	ago := now.Sub(at).Round(time.Second)
	if ago < 0 {
		ago = 0
	}
	return ago.String() + " ago"
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
