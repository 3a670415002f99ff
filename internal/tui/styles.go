package tui

import "github.com/charmbracelet/lipgloss"

var (
	orange    = lipgloss.Color("#F97316")
	red       = lipgloss.Color("#F87171")
	gray      = lipgloss.Color("#9CA3AF")
	darkGray  = lipgloss.Color("#374151")
	white     = lipgloss.Color("#FFFFFF")
	bubbleBg  = lipgloss.Color("#1F2937")
	borderCol = lipgloss.Color("#7C2D12")
)

// Styles holds the lipgloss styles used by the views.
type Styles struct {
	Title       lipgloss.Style
	TabActive   lipgloss.Style
	TabInactive lipgloss.Style
	Label       lipgloss.Style
	Welcome     lipgloss.Style
	MessageMeta lipgloss.Style
	MessageBody lipgloss.Style
	Empty       lipgloss.Style
	MessagesBox lipgloss.Style
	Error       lipgloss.Style
	Help        lipgloss.Style
}

// DefaultStyles returns the orange-on-dark palette.
func DefaultStyles() Styles {
	return Styles{
		Title:       lipgloss.NewStyle().Bold(true).Foreground(orange).MarginBottom(1),
		TabActive:   lipgloss.NewStyle().Padding(0, 2).Background(orange).Foreground(white),
		TabInactive: lipgloss.NewStyle().Padding(0, 2).Background(darkGray).Foreground(gray),
		Label:       lipgloss.NewStyle().Foreground(gray).Width(10),
		Welcome:     lipgloss.NewStyle().Foreground(gray).MarginBottom(1),
		MessageMeta: lipgloss.NewStyle().Foreground(gray),
		MessageBody: lipgloss.NewStyle().Padding(0, 1).Background(bubbleBg).Foreground(white),
		Empty:       lipgloss.NewStyle().Foreground(gray),
		MessagesBox: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(borderCol).Padding(0, 1),
		Error:       lipgloss.NewStyle().Foreground(red),
		Help:        lipgloss.NewStyle().Foreground(gray).MarginTop(1),
	}
}
