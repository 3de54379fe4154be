// ABOUTME: Bubbletea model for the stream monitor TUI
// ABOUTME: Renders mode, stream info, and routing statistics
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Model represents the TUI state
type Model struct {
	// Input
	sourceName string
	inputSpec  string

	// Classification
	mode       string
	missStreak int
	detWindow  int

	// Last detected burst
	streamType   string
	payloadBytes int

	// Stats
	chunks     int64
	pcmChunks  int64
	compressed int64
	sessions   int64

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderStreamInfo()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders source and mode status
func (m Model) renderHeader() string {
	modeIcon := "?"
	switch m.mode {
	case "pcm":
		modeIcon = "≈"
	case "compressed":
		modeIcon = "⬢"
	}

	return fmt.Sprintf(`┌─ autodec ────────────────────────────────────────────┐
│ Source: %-45s │
│ Mode:   %s %-42s │
├──────────────────────────────────────────────────────┤
`, truncate(m.sourceName, 45), modeIcon, m.mode)
}

// renderStreamInfo renders input spec and the last detected burst
func (m Model) renderStreamInfo() string {
	s := fmt.Sprintf("│ Input:  %-45s │\n", m.inputSpec)

	if m.streamType != "" {
		burst := fmt.Sprintf("%s, %d payload bytes", m.streamType, m.payloadBytes)
		s += fmt.Sprintf("│ Burst:  %-45s │\n", truncate(burst, 45))
	} else {
		s += "│ Burst:  (none detected)                              │\n"
	}

	streak := fmt.Sprintf("%d / %d chunks without preamble", m.missStreak, m.detWindow)
	s += fmt.Sprintf("│ Streak: %-45s │\n", streak)

	return s
}

// renderStats renders routing statistics
func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Chunks: %d  PCM: %d  Decoded: %d  Sessions: %d%-6s │
│                                                      │
`, m.chunks, m.pcmChunks, m.compressed, m.sessions, "")
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ d:Debug  q:Quit                                      │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Window: %dx%d                                      │
`, m.width, m.height)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.SourceName != "" {
		m.sourceName = msg.SourceName
	}
	if msg.InputSpec != "" {
		m.inputSpec = msg.InputSpec
	}
	if msg.Mode != "" {
		m.mode = msg.Mode
	}
	if msg.DetWindow != 0 {
		m.detWindow = msg.DetWindow
	}
	m.missStreak = msg.MissStreak
	if msg.StreamType != "" {
		m.streamType = msg.StreamType
		m.payloadBytes = msg.PayloadBytes
	}
	if msg.Chunks != 0 {
		m.chunks = msg.Chunks
		m.pcmChunks = msg.PCMChunks
		m.compressed = msg.CompressedChunks
		m.sessions = msg.Sessions
	}
}

// StatusMsg updates TUI state
type StatusMsg struct {
	SourceName       string
	InputSpec        string
	Mode             string
	MissStreak       int
	DetWindow        int
	StreamType       string
	PayloadBytes     int
	Chunks           int64
	PCMChunks        int64
	CompressedChunks int64
	Sessions         int64
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
