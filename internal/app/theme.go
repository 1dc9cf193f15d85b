package app

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(10)
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dividerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	armedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	waitingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).Bold(true)
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("70"))
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("70"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	frameStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
)

// State names shown for a watchdog snapshot.
const (
	StateDisabled = "disabled"
	StateIdle     = "idle"
	StateWaiting  = "waiting"
	StateArmed    = "armed"
)

// StateLabel summarises a snapshot in one word.
func StateLabel(enabled, waiting, armed bool) string {
	switch {
	case !enabled:
		return StateDisabled
	case armed:
		return StateArmed
	case waiting:
		return StateWaiting
	default:
		return StateIdle
	}
}

// RenderState styles a state label.
func RenderState(state string) string {
	switch state {
	case StateArmed:
		return armedStyle.Render(state)
	case StateWaiting:
		return waitingStyle.Render(state)
	case StateIdle:
		return idleStyle.Render(state)
	default:
		return disabledStyle.Render(state)
	}
}

func renderOutcome(success bool, errText string) string {
	if success {
		return okStyle.Render("sent")
	}
	if errText == "" {
		return errorStyle.Render("failed")
	}
	return errorStyle.Render("failed: " + errText)
}
