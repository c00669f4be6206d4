// ============================================================================
// HIVE - Flight Daemon
// ============================================================================
//
// Package:     monitor
// Description: Bubbletea model for the live register monitor
// Author:      Mike Stoffels
// Created:     2026-10-16
// License:     MIT
// ============================================================================

// Package monitor is a terminal UI that polls the gateway and shows the
// flight mode, partition fill levels and every register.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/msto63/hive/internal/gateway/handler"
	"github.com/msto63/hive/pkg/core/ptam"
	"github.com/msto63/hive/pkg/core/version"
)

// Config holds monitor configuration
type Config struct {
	Address  string
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Address:  "localhost:8080",
		Interval: 2 * time.Second,
		Timeout:  2 * time.Second,
	}
}

// Model is the Bubbletea model for the monitor
type Model struct {
	// State
	width      int
	height     int
	ready      bool
	loading    bool
	paused     bool
	online     bool
	err        error
	lastUpdate time.Time

	// Components
	viewport viewport.Model
	spinner  spinner.Model

	// Data
	state     handler.StateResponse
	registers handler.RegistersResponse

	client   *Client
	interval time.Duration
}

// New creates a new monitor model
func New(cfg Config) Model {
	def := DefaultConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorPrimary)

	return Model{
		loading:  true,
		spinner:  sp,
		client:   NewClient(cfg.Address, cfg.Timeout),
		interval: cfg.Interval,
	}
}

// Init starts the first poll and the poll ticker
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.fetch,
		m.tick(),
	)
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Title panel plus one gauge line per partition, status bar plus help
		headerHeight := 3 + len(ptam.Kinds) + 2
		footerHeight := 2
		viewportHeight := msg.Height - headerHeight - footerHeight - 2
		if viewportHeight < 3 {
			viewportHeight = 3
		}

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, viewportHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = viewportHeight
		}
		m.updateViewportContent()

	case spinner.TickMsg:
		if m.loading {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case snapshotMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.online = false
		} else {
			m.err = nil
			m.online = true
			m.state = msg.state
			m.registers = msg.registers
			m.lastUpdate = msg.at
			m.updateViewportContent()
		}

	case tickMsg:
		if !m.paused {
			cmds = append(cmds, m.fetch)
		}
		cmds = append(cmds, m.tick())
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyRunes:
		switch string(msg.Runes) {
		case "q":
			return m, tea.Quit

		case "p":
			m.paused = !m.paused
			return m, nil

		case "r":
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, m.fetch)
		}

	case tea.KeyPgUp:
		m.viewport.ViewUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.ViewDown()
		return m, nil

	case tea.KeyUp:
		m.viewport.LineUp(1)
		return m, nil

	case tea.KeyDown:
		m.viewport.LineDown(1)
		return m, nil
	}

	return m, nil
}

// View renders the UI
func (m Model) View() string {
	if !m.ready {
		return "Connecting to " + m.client.BaseURL() + "..."
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderGauges())
	b.WriteString("\n")
	b.WriteString(RegisterPanelStyle.Width(m.width - 2).Render(m.viewport.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(m.renderHelpBar())

	return b.String()
}

func (m Model) renderHeader() string {
	mode := m.state.Mode
	if mode == "" {
		mode = "UNKNOWN"
	}

	parts := []string{
		LogoStyle.Render(Logo),
		strings.Repeat(" ", 3),
		RenderMode(mode),
	}
	if m.state.Description != "" && m.state.Description != mode {
		parts = append(parts, " ", HelpDescStyle.Render(m.state.Description))
	}
	if m.paused {
		parts = append(parts, "  ", StatusPausedStyle.Render("PAUSED"))
	}

	return TitlePanelStyle.Width(m.width - 4).Render(lipgloss.JoinHorizontal(lipgloss.Center, parts...))
}

func (m Model) renderGauges() string {
	barWidth := m.width - 40
	if barWidth < 10 {
		barWidth = 10
	}

	lines := make([]string, 0, len(m.registers.Stats))
	for _, s := range m.registers.Stats {
		lines = append(lines, fmt.Sprintf("%-7s %s %3d/%-3d",
			s.Kind, renderGauge(s.Usage(), barWidth), s.Len, s.Capacity))
	}
	if len(lines) == 0 {
		lines = append(lines, HelpDescStyle.Render("no data"))
	}
	return GaugePanelStyle.Width(m.width - 2).Render(strings.Join(lines, "\n"))
}

// renderGauge draws a fill bar for usage in percent
func renderGauge(usage float64, width int) string {
	filled := int(usage / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	color := ColorSuccess
	switch {
	case usage >= 90:
		color = ColorError
	case usage >= 70:
		color = ColorWarning
	}

	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))
	rest := lipgloss.NewStyle().Foreground(ColorDimmed).Render(strings.Repeat("░", width-filled))
	return bar + rest
}

func (m Model) renderStatusBar() string {
	left := HelpDescStyle.Render(fmt.Sprintf("Registers: %d", m.registers.Total))
	center := HelpDescStyle.Render("v" + version.Monitor)

	var right string
	switch {
	case m.loading:
		right = m.spinner.View() + " Loading..."
	case m.online:
		right = StatusOnlineStyle.Render(m.client.BaseURL()) + " " +
			HelpDescStyle.Render(m.lastUpdate.Format("15:04:05"))
	default:
		right = StatusOfflineStyle.Render("Offline")
		if m.err != nil {
			right += " " + HelpDescStyle.Render(m.err.Error())
		}
	}

	space := m.width - lipgloss.Width(left) - lipgloss.Width(center) - lipgloss.Width(right) - 4
	if space < 2 {
		space = 2
	}
	leftPad := space / 2

	content := left + strings.Repeat(" ", leftPad) + center + strings.Repeat(" ", space-leftPad) + right
	return StatusBarStyle.Width(m.width - 2).Render(content)
}

func (m Model) renderHelpBar() string {
	items := []string{
		RenderKeyHint("p", "Pause"),
		RenderKeyHint("r", "Refresh"),
		RenderKeyHint("↑/↓", "Scroll"),
		RenderKeyHint("q", "Quit"),
	}
	return HelpStyle.Render(strings.Join(items, "  "))
}

func (m *Model) updateViewportContent() {
	m.viewport.SetContent(renderRegisters(m.registers.Registers))
}

// registerRow is one line of the register table
type registerRow struct {
	key   string
	kind  ptam.Kind
	value string
}

// registerRows flattens a snapshot, sorted by key and then partition
func registerRows(snap ptam.Snapshot) []registerRow {
	rows := make([]registerRow, 0, snap.Len())
	for k, v := range snap.Doubles {
		rows = append(rows, registerRow{k, ptam.KindDouble, ptam.Value{Kind: ptam.KindDouble, Double: v}.Text()})
	}
	for k, v := range snap.Uint8s {
		rows = append(rows, registerRow{k, ptam.KindUint8, ptam.Value{Kind: ptam.KindUint8, Uint8: v}.Text()})
	}
	for k, v := range snap.Uint32s {
		rows = append(rows, registerRow{k, ptam.KindUint32, ptam.Value{Kind: ptam.KindUint32, Uint32: v}.Text()})
	}
	for k, v := range snap.Strings {
		rows = append(rows, registerRow{k, ptam.KindString, v})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].key != rows[j].key {
			return rows[i].key < rows[j].key
		}
		return rows[i].kind < rows[j].kind
	})
	return rows
}

func renderRegisters(snap ptam.Snapshot) string {
	var b strings.Builder
	for _, row := range registerRows(snap) {
		b.WriteString(KeyStyle.Render(fmt.Sprintf("%-18s", row.key)))
		b.WriteString(KindStyle.Render(fmt.Sprintf("%-7s ", row.kind)))
		b.WriteString(ValueStyle.Render(row.value))
		b.WriteString("\n")
	}
	return b.String()
}

// fetch polls state and registers from the gateway
func (m Model) fetch() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := m.client.State(ctx)
	if err != nil {
		return snapshotMsg{err: err}
	}
	regs, err := m.client.Registers(ctx)
	if err != nil {
		return snapshotMsg{err: err}
	}
	return snapshotMsg{state: state, registers: regs, at: time.Now()}
}

// Run starts the monitor TUI
func Run(cfg Config) error {
	p := tea.NewProgram(New(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
