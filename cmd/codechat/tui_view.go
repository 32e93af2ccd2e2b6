package main

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/codechat/pkg/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	codeModeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	outputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	dimStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	cursorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectedItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1)
)

func (m model) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("Error: %v", m.err))
	} else if m.notice != "" {
		errorView = dimStyle.Render(m.notice)
	}

	switch m.state {
	case stateSelectingSession:
		return m.sessionListView(errorView)
	case stateConfirmClear:
		return lipgloss.JoinVertical(
			lipgloss.Left,
			titleStyle.Render("Clear All Sessions"),
			"",
			"Delete every session and start over? (y/n)",
			dimStyle.Render("Replies still in flight will be dropped."),
			errorView,
		)
	}

	header := titleStyle.Render("codechat") + " " + m.activeName()
	if m.snap.CodeMode {
		header += " " + codeModeStyle.Render("code")
	}
	help := dimStyle.Render("enter send • ctrl+t code mode • ctrl+n new • ctrl+o sessions • ctrl+x clear • ctrl+e export • esc quit")

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		"",
		m.viewport.View(),
		errorView,
		m.textarea.View(),
		help,
	)
}

func (m model) activeName() string {
	for _, s := range m.snap.Sessions {
		if s.ID == m.snap.ActiveSessionID {
			return s.Name
		}
	}
	return store.DefaultSessionName
}

func (m model) sessionListView(errorView string) string {
	header := titleStyle.Render("Select Session")

	start := m.listOffset
	end := min(start+m.maxViewable(), len(m.snap.Sessions))

	var optionsView []string
	for i := start; i < end; i++ {
		s := m.snap.Sessions[i]
		cursor := " "
		line := fmt.Sprintf("%s (%s, %d messages)", s.Name, s.CreatedLabel, s.MessageCount)
		if s.ID == m.snap.ActiveSessionID {
			line += " *"
		}
		if m.cursor == i {
			cursor = ">"
			line = selectedItemStyle.Render(line)
		}
		optionsView = append(optionsView, fmt.Sprintf("%s %s", cursorStyle.Render(cursor), line))
	}

	list := lipgloss.JoinVertical(lipgloss.Left, optionsView...)
	footer := "Press Enter to select, Esc to go back."

	return lipgloss.JoinVertical(lipgloss.Left, header, "", list, "", footer, errorView)
}

// renderTranscript renders messages oldest first. A nil renderer falls back
// to the raw text.
func renderTranscript(r *glamour.TermRenderer, msgs []store.Message, loading bool) string {
	if len(msgs) == 0 && !loading {
		return dimStyle.Render("No messages yet. Say something, or press ctrl+t to run code.")
	}

	var sb strings.Builder
	for _, msg := range msgs {
		if msg.Role == store.RoleUser {
			sb.WriteString(userStyle.Render("You: "))
		} else {
			sb.WriteString(senderStyle.Render("Assistant: "))
		}
		sb.WriteString("\n")
		sb.WriteString(renderMarkdown(r, msg.Content))

		if msg.IsCode && msg.Code != "" && msg.Role == store.RoleUser {
			sb.WriteString(highlight(msg.Code))
			sb.WriteString("\n")
		}
		if msg.Output != "" {
			sb.WriteString(dimStyle.Render("Output:"))
			sb.WriteString("\n")
			sb.WriteString(outputStyle.Render(msg.Output))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if loading {
		sb.WriteString(dimStyle.Render("Assistant is thinking..."))
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderMarkdown(r *glamour.TermRenderer, content string) string {
	if r == nil {
		return content + "\n"
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content + "\n"
	}
	return rendered
}

func highlight(code string) string {
	var sb strings.Builder
	if err := quick.Highlight(&sb, code, "javascript", "terminal256", "monokai"); err != nil {
		return code
	}
	return sb.String()
}
