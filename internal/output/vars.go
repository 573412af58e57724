package output

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/tanq16/rangedl/internal/task"
)

var (
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))            // dark green
	success2Style = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))             // green
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))             // red
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))            // yellow
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))            // blue
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))            // cyan
	debugStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))           // light grey
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))            // purple
	streamStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))           // grey
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")) // purple
)

var StyleSymbols = map[string]string{
	"pass":    "✓",
	"fail":    "✗",
	"warning": "!",
	"pending": "◉",
	"pause":   "‖",
	"info":    "ℹ",
	"arrow":   "→",
	"bullet":  "•",
	"hline":   "━",
	"track":   "─",
}

func PrintSuccess(text string) {
	fmt.Println(successStyle.Render(text))
}
func PrintError(text string) {
	fmt.Println(errorStyle.Render(text))
}
func PrintWarning(text string) {
	fmt.Println(warningStyle.Render(text))
}
func PrintInfo(text string) {
	fmt.Println(infoStyle.Render(text))
}
func PrintDetail(text string) {
	fmt.Println(detailStyle.Render(text))
}
func PrintHeader(text string) {
	fmt.Println(headerStyle.Render(text))
}
func FDebug(text string) string {
	return debugStyle.Render(text)
}
func FDetail(text string) string {
	return detailStyle.Render(text)
}

func statusIndicator(status task.Status) string {
	switch status {
	case task.Completed:
		return successStyle.Render(StyleSymbols["pass"])
	case task.Failed:
		return errorStyle.Render(StyleSymbols["fail"])
	case task.Cancelled:
		return warningStyle.Render(StyleSymbols["warning"])
	case task.Paused:
		return warningStyle.Render(StyleSymbols["pause"])
	case task.Pending, task.NotStarted:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func statusStyle(status task.Status) lipgloss.Style {
	switch status {
	case task.Completed:
		return successStyle
	case task.Failed:
		return errorStyle
	case task.Cancelled, task.Paused:
		return warningStyle
	default:
		return pendingStyle
	}
}
