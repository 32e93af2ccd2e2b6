package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nstogner/codechat/pkg/controller"
	"github.com/nstogner/codechat/pkg/events"
	"github.com/nstogner/codechat/pkg/export"
)

var exportDir string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Chat in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		setupLogging(f, cfg.SlogLevel())

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		exec, err := buildExecutor(ctx, cfg)
		if err != nil {
			return err
		}
		defer exec.Close()

		ctrl, err := buildController(cfg, exec)
		if err != nil {
			return err
		}
		defer ctrl.Close()

		stopRelay, err := startRelay(ctx, cfg, ctrl)
		if err != nil {
			return err
		}
		defer stopRelay()

		updates, unsubscribe := ctrl.Subscribe()
		defer unsubscribe()

		p := tea.NewProgram(newModel(ctx, ctrl, updates, exportDir), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("tui: %w", err)
		}
		return nil
	},
}

func init() {
	tuiCmd.Flags().StringVar(&exportDir, "export-dir", ".", "directory ctrl+e writes markdown exports to")
	rootCmd.AddCommand(tuiCmd)
}

type state int

const (
	stateChatting state = iota
	stateSelectingSession
	stateConfirmClear
)

type errMsg struct{ err error }
type eventMsg events.Event
type exportedMsg string

type model struct {
	ctx       context.Context
	ctrl      *controller.Controller
	updates   <-chan events.Event
	exportDir string

	// State
	state      state
	snap       controller.Snapshot
	cursor     int
	listOffset int
	width      int
	height     int
	err        error
	notice     string

	// UI Components
	viewport viewport.Model
	textarea textarea.Model
	renderer *glamour.TermRenderer
}

func newModel(ctx context.Context, ctrl *controller.Controller, updates <-chan events.Event, exportDir string) model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	// Enter submits; ctrl+j breaks the line.
	ta.KeyMap.InsertNewline.SetKeys("ctrl+j")

	vp := viewport.New(80, 20)

	m := model{
		ctx:       ctx,
		ctrl:      ctrl,
		updates:   updates,
		exportDir: exportDir,
		state:     stateChatting,
		viewport:  vp,
		textarea:  ta,
		renderer:  newRenderer(80),
	}
	m.refresh()
	return m
}

func newRenderer(width int) *glamour.TermRenderer {
	// Standard style avoids terminal queries that leak into the input.
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		slog.Warn("Failed to create markdown renderer", "error", err)
		return nil
	}
	return r
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForUpdate(m.updates))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	var tiCmd, vpCmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateChatting && !isCommandKey(msg) {
			m.textarea, tiCmd = m.textarea.Update(msg)
			cmds = append(cmds, tiCmd)
		}
	default:
		m.textarea, tiCmd = m.textarea.Update(msg)
		cmds = append(cmds, tiCmd)
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = max(msg.Height-m.textarea.Height()-4, 0)
		m.viewport.YPosition = 2
		m.renderer = newRenderer(max(m.width-4, 20))
		m.clampList()
		m.refresh()

	case tea.KeyMsg:
		switch m.state {
		case stateChatting:
			return m.updateChatting(msg, cmds)
		case stateSelectingSession:
			return m.updateSelecting(msg, cmds)
		case stateConfirmClear:
			return m.updateConfirmClear(msg, cmds)
		}

	case eventMsg:
		slog.Debug("TUI received event", "type", msg.Type, "sessionID", msg.SessionID)
		m.refresh()
		cmds = append(cmds, waitForUpdate(m.updates))

	case exportedMsg:
		m.err = nil
		m.notice = fmt.Sprintf("Exported to %s", string(msg))

	case errMsg:
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

func isCommandKey(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyEnter, tea.KeyCtrlC, tea.KeyEsc, tea.KeyCtrlT, tea.KeyCtrlN,
		tea.KeyCtrlO, tea.KeyCtrlX, tea.KeyCtrlE:
		return true
	}
	return false
}

func (m model) updateChatting(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyEnter:
		m.err = nil
		m.notice = ""
		return m.sendMessage(cmds)
	case tea.KeyCtrlT:
		m.ctrl.ToggleCodeMode()
		m.refresh()
	case tea.KeyCtrlN:
		m.ctrl.CreateSession()
		m.textarea.Reset()
		m.refresh()
	case tea.KeyCtrlO:
		m.snap = m.ctrl.Snapshot()
		m.state = stateSelectingSession
		m.cursor = 0
		m.listOffset = 0
		for i, s := range m.snap.Sessions {
			if s.ID == m.snap.ActiveSessionID {
				m.cursor = i
			}
		}
		m.clampList()
	case tea.KeyCtrlX:
		m.state = stateConfirmClear
	case tea.KeyCtrlE:
		cmds = append(cmds, m.exportCmd())
	}
	return m, tea.Batch(cmds...)
}

func (m model) updateSelecting(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.state = stateChatting
	case tea.KeyEnter:
		if m.cursor < len(m.snap.Sessions) {
			m.ctrl.SwitchSession(m.snap.Sessions[m.cursor].ID)
			m.textarea.Reset()
		}
		m.state = stateChatting
		m.refresh()
	case tea.KeyUp:
		if m.cursor > 0 {
			m.cursor--
		}
		m.clampList()
	case tea.KeyDown:
		if m.cursor < len(m.snap.Sessions)-1 {
			m.cursor++
		}
		m.clampList()
	}
	return m, tea.Batch(cmds...)
}

func (m model) updateConfirmClear(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	switch msg.String() {
	case "y", "Y":
		m.ctrl.ClearAllSessions()
		m.textarea.Reset()
		m.state = stateChatting
		m.refresh()
	case "n", "N", "esc":
		m.state = stateChatting
	}
	return m, tea.Batch(cmds...)
}

func (m model) maxViewable() int {
	return max(m.height-7, 1)
}

// clampList keeps the cursor inside the visible window of the session list.
func (m *model) clampList() {
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+m.maxViewable() {
		m.listOffset = m.cursor - m.maxViewable() + 1
	}
	if m.listOffset < 0 {
		m.listOffset = 0
	}
}

// Actions

func (m model) sendMessage(cmds []tea.Cmd) (model, tea.Cmd) {
	value := m.textarea.Value()
	var accepted bool
	if m.ctrl.CodeMode() {
		accepted = m.ctrl.Submit(m.ctx, "", value)
	} else {
		accepted = m.ctrl.Submit(m.ctx, value, "")
	}
	if accepted {
		m.textarea.Reset()
		m.refresh()
	}
	return m, tea.Batch(cmds...)
}

func (m model) exportCmd() tea.Cmd {
	id := m.ctrl.ActiveSessionID()
	dir := m.exportDir
	return func() tea.Msg {
		sess, err := m.ctrl.Session(id)
		if err != nil {
			return errMsg{err}
		}
		exporter, err := export.New("md")
		if err != nil {
			return errMsg{err}
		}
		path := filepath.Join(dir, id+"."+exporter.Extension())
		f, err := os.Create(path)
		if err != nil {
			return errMsg{err}
		}
		defer f.Close()
		if err := exporter.Export(&sess, f); err != nil {
			return errMsg{err}
		}
		slog.Info("Exported session", "sessionID", id, "path", path)
		return exportedMsg(path)
	}
}

// refresh re-reads controller state and re-renders the transcript.
func (m *model) refresh() {
	m.snap = m.ctrl.Snapshot()
	if m.snap.CodeMode {
		m.textarea.Placeholder = "Write JavaScript... (ctrl+j for newline)"
	} else {
		m.textarea.Placeholder = "Send a message..."
	}
	m.viewport.SetContent(renderTranscript(m.renderer, m.snap.ActiveMessages, m.snap.Loading))
	m.viewport.GotoBottom()
}

func waitForUpdate(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-sub
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}
