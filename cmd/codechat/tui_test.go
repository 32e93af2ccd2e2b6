package main

import (
	"context"
	"os"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/codechat/pkg/controller"
	"github.com/nstogner/codechat/pkg/store"
)

type stubExecutor struct{}

func (stubExecutor) Run(_ context.Context, code string) string {
	return "<b>" + strings.TrimSpace(code) + "</b>"
}

func setupModel(t *testing.T) (model, *controller.Controller, *controller.ManualScheduler) {
	t.Helper()
	sched := &controller.ManualScheduler{}
	ctrl := controller.New(stubExecutor{},
		controller.WithScheduler(sched),
		controller.WithResponder(controller.EchoResponder{}),
	)
	t.Cleanup(func() {
		sched.FireAll()
		ctrl.Close()
	})
	return newModel(t.Context(), ctrl, nil, t.TempDir()), ctrl, sched
}

func press(t *testing.T, m model, msgs ...tea.Msg) model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(model)
		require.True(t, ok)
	}
	return m
}

func typed(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func TestTUI_SendMessage(t *testing.T) {
	m, ctrl, sched := setupModel(t)

	m = press(t, m, typed("hello there"), key(tea.KeyEnter))
	assert.Empty(t, m.textarea.Value())
	require.Len(t, ctrl.ActiveMessages(), 1)
	assert.Equal(t, "hello there", ctrl.ActiveMessages()[0].Content)
	assert.True(t, m.snap.Loading)
	assert.Contains(t, m.viewport.View(), "thinking")

	sched.FireAll()
	msgs := ctrl.ActiveMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
}

func TestTUI_BlankEnterIsIgnored(t *testing.T) {
	m, ctrl, _ := setupModel(t)

	m = press(t, m, typed("   "), key(tea.KeyEnter))
	assert.Empty(t, ctrl.ActiveMessages())
	assert.Equal(t, "   ", m.textarea.Value())
}

func TestTUI_CodeMode(t *testing.T) {
	m, ctrl, sched := setupModel(t)

	m = press(t, m, key(tea.KeyCtrlT))
	assert.True(t, ctrl.CodeMode())
	assert.True(t, m.snap.CodeMode)
	assert.Contains(t, m.textarea.Placeholder, "JavaScript")

	press(t, m, typed("1 + 1"), key(tea.KeyEnter))
	msgs := ctrl.ActiveMessages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsCode)
	assert.Equal(t, "1 + 1", msgs[0].Code)

	sched.FireAll()
	msgs = ctrl.ActiveMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "<b>1 + 1</b>", msgs[1].Output)
	assert.False(t, ctrl.CodeMode())
}

func TestTUI_NewSessionAndSwitch(t *testing.T) {
	m, ctrl, _ := setupModel(t)
	first := ctrl.ActiveSessionID()

	m = press(t, m, typed("draft"), key(tea.KeyCtrlN))
	second := ctrl.ActiveSessionID()
	assert.NotEqual(t, first, second)
	assert.Empty(t, m.textarea.Value())

	m = press(t, m, key(tea.KeyCtrlO))
	require.Equal(t, stateSelectingSession, m.state)
	require.Len(t, m.snap.Sessions, 2)
	assert.Equal(t, second, m.snap.Sessions[m.cursor].ID)

	target := 1 - m.cursor
	if target > m.cursor {
		m = press(t, m, key(tea.KeyDown))
	} else {
		m = press(t, m, key(tea.KeyUp))
	}
	assert.Contains(t, m.View(), "Select Session")

	m = press(t, m, key(tea.KeyEnter))
	assert.Equal(t, stateChatting, m.state)
	assert.Equal(t, first, ctrl.ActiveSessionID())
}

func TestTUI_ClearAll(t *testing.T) {
	m, ctrl, _ := setupModel(t)
	ctrl.CreateSession()

	m = press(t, m, key(tea.KeyCtrlX))
	require.Equal(t, stateConfirmClear, m.state)

	m = press(t, m, typed("n"))
	assert.Equal(t, stateChatting, m.state)
	assert.Len(t, ctrl.Sessions(), 2)

	m = press(t, m, key(tea.KeyCtrlX), typed("y"))
	assert.Equal(t, stateChatting, m.state)
	assert.Len(t, ctrl.Sessions(), 1)
	assert.Len(t, m.snap.Sessions, 1)
}

func TestTUI_Export(t *testing.T) {
	m, ctrl, sched := setupModel(t)
	ctrl.Submit(t.Context(), "save this", "")
	sched.FireAll()

	msg := m.exportCmd()()
	path, ok := msg.(exportedMsg)
	require.True(t, ok, "got %#v", msg)

	data, err := os.ReadFile(string(path))
	require.NoError(t, err)
	assert.Contains(t, string(data), "save this")

	m = press(t, m, msg)
	assert.Contains(t, m.View(), "Exported to")
}

func TestTUI_EventRefresh(t *testing.T) {
	m, ctrl, _ := setupModel(t)
	ctrl.Submit(t.Context(), "elsewhere", "")

	m = press(t, m, eventMsg{})
	require.Len(t, m.snap.ActiveMessages, 1)
	assert.Contains(t, m.viewport.View(), "elsewhere")
}

func TestRenderTranscript(t *testing.T) {
	assert.Contains(t, renderTranscript(nil, nil, false), "No messages yet")

	out := renderTranscript(nil, []store.Message{
		{Role: store.RoleUser, Content: controller.CodePrompt, IsCode: true, Code: "x()"},
		{Role: store.RoleAssistant, Content: controller.CodeReply, IsCode: true, Code: "x()", Output: "<p>ok</p>"},
	}, true)

	assert.Contains(t, out, "You:")
	assert.Contains(t, out, "Assistant:")
	assert.Contains(t, out, "<p>ok</p>")
	assert.Contains(t, out, "Assistant is thinking...")
}
