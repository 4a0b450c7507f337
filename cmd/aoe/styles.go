package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/zpdzap/aoe/internal/sandbox"
	"github.com/zpdzap/aoe/internal/session"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFD700"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888"))

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5599FF"))

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555"))

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4444"))

	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusStopped = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	statusOther   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
)

func renderStatus(s sandbox.Status) string {
	switch s {
	case sandbox.StatusRunning:
		return statusRunning.Render(string(s))
	case sandbox.StatusStopped, sandbox.StatusAbsent:
		return statusStopped.Render(string(s))
	default:
		return statusOther.Render(string(s))
	}
}

// renderState shows the recorded sandbox state without asking the runtime.
func renderState(inst *session.Instance) string {
	state := inst.Sandbox.State()
	switch state {
	case session.SandboxAbsent, session.SandboxRemoved:
		return emptyStyle.Render("host")
	case session.SandboxActive:
		return statusRunning.Render("sandbox")
	default:
		return statusOther.Render("sandbox (" + state.String() + ")")
	}
}
