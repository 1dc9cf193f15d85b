package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"overseer/internal/client"
	"overseer/internal/types"
)

const (
	watchTickInterval = 250 * time.Millisecond
	maxRecentNudges   = 8
	defaultBarWidth   = 40
)

// Stream is the live watchdog feed. *client.WatchdogStream implements it.
type Stream interface {
	Listen(ctx context.Context) tea.Cmd
	ReadLoop() tea.Cmd
}

type watchKeyMap struct {
	Quit key.Binding
}

func defaultWatchKeyMap() watchKeyMap {
	return watchKeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

type watchTickMsg time.Time

func watchTickCmd() tea.Cmd {
	return tea.Tick(watchTickInterval, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

// WatchModel renders the supervisor state and counts down to the next
// nudge while the countdown is armed.
type WatchModel struct {
	ctx    context.Context
	stream Stream
	keys   watchKeyMap
	loader spinner.Model
	bar    progress.Model
	now    func() time.Time

	connected bool
	lastErr   error
	snapshot  *types.WatchdogSnapshot
	nudges    []types.NudgeRecord
}

func NewWatchModel(ctx context.Context, stream Stream) *WatchModel {
	loader := spinner.New()
	loader.Spinner = spinner.Line
	return &WatchModel{
		ctx:    ctx,
		stream: stream,
		keys:   defaultWatchKeyMap(),
		loader: loader,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(defaultBarWidth), progress.WithoutPercentage()),
		now:    time.Now,
	}
}

func RunWatch(ctx context.Context, stream Stream) error {
	p := tea.NewProgram(NewWatchModel(ctx, stream), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.stream.Listen(m.ctx), m.loader.Tick, watchTickCmd())
}

func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-16, 10), 60)
		return m, nil
	case client.StreamConnectedMsg:
		m.connected = true
		m.lastErr = nil
		return m, m.stream.ReadLoop()
	case client.SnapshotMsg:
		snapshot := msg.Snapshot
		m.snapshot = &snapshot
		return m, m.stream.ReadLoop()
	case client.NudgeMsg:
		m.nudges = append([]types.NudgeRecord{msg.Nudge}, m.nudges...)
		if len(m.nudges) > maxRecentNudges {
			m.nudges = m.nudges[:maxRecentNudges]
		}
		return m, m.stream.ReadLoop()
	case client.StreamDisconnectedMsg:
		m.connected = false
		m.lastErr = msg.Err
		if m.ctx.Err() != nil {
			return m, tea.Quit
		}
		return m, m.stream.Listen(m.ctx)
	case watchTickMsg:
		return m, watchTickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.loader, cmd = m.loader.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Remaining reports the time left before the armed countdown fires and the
// fraction of the window that is left. ok is false when nothing is armed.
func (m *WatchModel) Remaining() (remaining time.Duration, fraction float64, ok bool) {
	if m.snapshot == nil || !m.snapshot.Armed || m.snapshot.Deadline == nil || m.snapshot.TimeoutMS <= 0 {
		return 0, 0, false
	}
	remaining = m.snapshot.Deadline.Sub(m.now())
	if remaining < 0 {
		remaining = 0
	}
	window := time.Duration(m.snapshot.TimeoutMS) * time.Millisecond
	fraction = float64(remaining) / float64(window)
	if fraction > 1 {
		fraction = 1
	}
	return remaining, fraction, true
}

func (m *WatchModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("overseer watch"))
	b.WriteString("\n")
	if !m.connected {
		b.WriteString(m.loader.View() + " connecting to daemon")
		if m.lastErr != nil {
			b.WriteString(" " + errorStyle.Render("("+m.lastErr.Error()+")"))
		}
		b.WriteString("\n")
	}
	if m.snapshot != nil {
		b.WriteString(frameStyle.Render(m.renderSnapshot()))
		b.WriteString("\n")
	}
	if len(m.nudges) > 0 {
		b.WriteString(dividerStyle.Render("recent nudges"))
		b.WriteString("\n")
		for _, nudge := range m.nudges {
			fmt.Fprintf(&b, "%s  %s  %s\n",
				nudge.SentAt.Local().Format("15:04:05"),
				valueStyle.Render(nudge.SessionID),
				renderOutcome(nudge.Success, nudge.Error),
			)
		}
	}
	b.WriteString(helpStyle.Render(m.keys.Quit.Help().Key + " " + m.keys.Quit.Help().Desc))
	return b.String()
}

func (m *WatchModel) renderSnapshot() string {
	s := m.snapshot
	lines := []string{
		labelStyle.Render("state") + RenderState(StateLabel(s.Enabled, s.Waiting, s.Armed)),
		labelStyle.Render("session") + valueStyle.Render(orDash(s.TrackedSessionID)),
		labelStyle.Render("event") + valueStyle.Render(orDash(s.LastEventType)),
	}
	if remaining, fraction, ok := m.Remaining(); ok {
		lines = append(lines, labelStyle.Render("nudge in")+m.bar.ViewAs(fraction)+" "+valueStyle.Render(remaining.Round(100*time.Millisecond).String()))
	}
	nudges := fmt.Sprintf("%d", s.Nudges)
	if s.LastNudgeAt != nil {
		nudges += " (last " + s.LastNudgeAt.Local().Format("15:04:05") + ")"
	}
	lines = append(lines, labelStyle.Render("nudges")+valueStyle.Render(nudges))
	if s.LastNudgeError != "" {
		lines = append(lines, labelStyle.Render("error")+errorStyle.Render(s.LastNudgeError))
	}
	return strings.Join(lines, "\n")
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
