package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/pflag"

	"overseer/internal/types"
)

const (
	nudgeSessionWidth = 28
	nudgeErrorWidth   = 48
)

type NudgesCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewNudgesCommand(stdout, stderr io.Writer, newClient clientFactory) *NudgesCommand {
	return &NudgesCommand{
		stdout:    stdout,
		stderr:    stderr,
		newClient: newClient,
	}
}

func (c *NudgesCommand) Run(args []string) error {
	fs := pflag.NewFlagSet("nudges", pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	session := fs.String("session", "", "only show nudges for this session")
	limit := fs.Int("limit", 0, "maximum number of nudges (default 50)")
	format := fs.String("format", formatText, "output format: text|json|yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit < 0 {
		return fmt.Errorf("limit must not be negative")
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
	records, err := client.Nudges(ctx, *session, *limit)
	if err != nil {
		return err
	}
	if resolvedFormat != formatText {
		if records == nil {
			records = []*types.NudgeRecord{}
		}
		return writeStructured(c.stdout, resolvedFormat, records)
	}
	printNudges(c.stdout, records)
	return nil
}

func printNudges(out io.Writer, records []*types.NudgeRecord) {
	header := []string{"ID", "SENT", "SESSION", "MS", "RESULT"}
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		result := "ok"
		if !record.Success {
			result = "failed"
			if record.Error != "" {
				result += ": " + runewidth.Truncate(oneLine(record.Error), nudgeErrorWidth, "…")
			}
		}
		rows = append(rows, []string{
			record.ID,
			record.SentAt.Local().Format(time.DateTime),
			runewidth.Truncate(record.SessionID, nudgeSessionWidth, "…"),
			fmt.Sprintf("%d", record.DurationMS),
			result,
		})
	}

	widths := make([]int, len(header))
	for i, cell := range header {
		widths[i] = runewidth.StringWidth(cell)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	writeRow := func(cells []string) {
		padded := make([]string, len(cells))
		for i, cell := range cells {
			if i == len(cells)-1 {
				padded[i] = cell
				continue
			}
			padded[i] = runewidth.FillRight(cell, widths[i])
		}
		fmt.Fprintln(out, strings.Join(padded, "  "))
	}
	writeRow(header)
	for _, row := range rows {
		writeRow(row)
	}
}

func oneLine(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
