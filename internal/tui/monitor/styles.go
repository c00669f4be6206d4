// ============================================================================
// HIVE - Flight Daemon
// ============================================================================
//
// Package:     monitor
// Description: Styles for the register monitor TUI
// Author:      Mike Stoffels
// Created:     2026-10-16
// License:     MIT
// ============================================================================

package monitor

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("#F59E0B") // Amber
	ColorSecondary = lipgloss.Color("#06B6D4") // Cyan
	ColorSuccess   = lipgloss.Color("#10B981") // Emerald
	ColorWarning   = lipgloss.Color("#F97316") // Orange
	ColorError     = lipgloss.Color("#EF4444") // Red
	ColorDimmed    = lipgloss.Color("#374151") // Dark Gray

	ColorBgPanel = lipgloss.Color("#1E293B") // Slate 800

	ColorText      = lipgloss.Color("#F8FAFC") // Slate 50
	ColorTextMuted = lipgloss.Color("#94A3B8") // Slate 400
	ColorTextDim   = lipgloss.Color("#64748B") // Slate 500
)

// Header styles
var (
	LogoStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	TitlePanelStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 2)
)

// Flight mode badges
var (
	ModePrepStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true)

	ModeArmedStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Background(ColorError).
			Bold(true).
			Padding(0, 1)

	ModeBypassStyle = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	ModeUnknownStyle = lipgloss.NewStyle().
				Foreground(ColorTextDim)
)

// Panel styles
var (
	GaugePanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDimmed).
			Padding(0, 1)

	RegisterPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorDimmed).
				Padding(0, 1)

	KeyStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	KindStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorText)
)

// Status bar styles
var (
	StatusBarStyle = lipgloss.NewStyle().
			Background(ColorBgPanel).
			Foreground(ColorText).
			Padding(0, 1)

	StatusOnlineStyle = lipgloss.NewStyle().
				Foreground(ColorSuccess).
				Bold(true)

	StatusOfflineStyle = lipgloss.NewStyle().
				Foreground(ColorError).
				Bold(true)

	StatusPausedStyle = lipgloss.NewStyle().
				Foreground(ColorWarning).
				Bold(true)
)

// Help styles
var (
	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	HelpDescStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)
)

// Logo
const Logo = "HIVE Monitor"

// RenderKeyHint renders a keyboard shortcut hint
func RenderKeyHint(key, description string) string {
	return HelpKeyStyle.Render(key) + " " + HelpDescStyle.Render(description)
}

// RenderMode renders the flight mode badge
func RenderMode(mode string) string {
	switch mode {
	case "PREP":
		return ModePrepStyle.Render(mode)
	case "ARMED":
		return ModeArmedStyle.Render(mode)
	case "BYPASS":
		return ModeBypassStyle.Render(mode)
	default:
		return ModeUnknownStyle.Render(mode)
	}
}
