package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorDim     = lipgloss.Color("240")
	colorText    = lipgloss.Color("252")
	colorMuted   = lipgloss.Color("244")
	colorOK      = lipgloss.Color("46")
	colorFailed  = lipgloss.Color("196")
	colorWarn    = lipgloss.Color("214")
	colorActive  = lipgloss.Color("86")
	colorReplay  = lipgloss.Color("111")
	colorAccount = lipgloss.Color("220")
)

var (
	taskNameStyle = lipgloss.NewStyle().Foreground(colorText)
	taskDimStyle  = lipgloss.NewStyle().Foreground(colorDim)
	messageStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	unitStyle     = lipgloss.NewStyle().Foreground(colorActive)
	recordStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	replayStyle   = lipgloss.NewStyle().Foreground(colorReplay)
	warnStyle     = lipgloss.NewStyle().Foreground(colorWarn)
	errorStyle    = lipgloss.NewStyle().Foreground(colorFailed)
	spinnerStyle  = lipgloss.NewStyle().Foreground(colorActive)
	footerStyle   = lipgloss.NewStyle().Foreground(colorDim).MarginTop(1)
	userStyle     = lipgloss.NewStyle().Foreground(colorAccount).Bold(true)

	statusIcons = map[TaskStatus]string{
		StatusPending:  lipgloss.NewStyle().Foreground(colorDim).Render("○"),
		StatusComplete: lipgloss.NewStyle().Foreground(colorOK).Render("✓"),
		StatusError:    lipgloss.NewStyle().Foreground(colorFailed).Render("✗"),
		StatusSkipped:  lipgloss.NewStyle().Foreground(colorWarn).Render("△"),
	}
)

// StatusIcon returns the icon for a stage; running stages show the
// spinner frame.
func StatusIcon(status TaskStatus, spinnerFrame string) string {
	if status == StatusRunning {
		return spinnerStyle.Render(spinnerFrame)
	}
	if icon, ok := statusIcons[status]; ok {
		return icon
	}
	return statusIcons[StatusPending]
}
