package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/codechat/pkg/controller"
	"github.com/nstogner/codechat/pkg/sandbox"
	"github.com/nstogner/codechat/pkg/sandbox/jsvm"
	"github.com/nstogner/codechat/pkg/server"
	"github.com/nstogner/codechat/pkg/store"
)

type fixture struct {
	ctrl  *controller.Controller
	sched *controller.ManualScheduler
	ts    *httptest.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	exec := sandbox.New(jsvm.New(), sandbox.WithTimeout(2*time.Second))
	sched := &controller.ManualScheduler{}
	ctrl := controller.New(exec,
		controller.WithScheduler(sched),
		controller.WithResponder(controller.EchoResponder{}),
	)
	ts := httptest.NewServer(server.New(ctrl, exec).Handler())
	t.Cleanup(func() {
		ts.Close()
		sched.FireAll()
		ctrl.Close()
	})
	return &fixture{ctrl: ctrl, sched: sched, ts: ts}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestState(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	snap := decode[controller.Snapshot](t, resp)
	assert.Equal(t, f.ctrl.ActiveSessionID(), snap.ActiveSessionID)
	assert.Len(t, snap.Sessions, 1)
	assert.False(t, snap.Loading)
}

func TestCreateAndListSessions(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[map[string]string](t, resp)
	assert.Equal(t, f.ctrl.ActiveSessionID(), created["id"])

	resp = f.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]store.Summary](t, resp), 2)
}

func TestClearSessions(t *testing.T) {
	f := setup(t)
	f.ctrl.CreateSession()

	resp := f.do(t, http.MethodDelete, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)

	assert.Equal(t, f.ctrl.ActiveSessionID(), body["id"])
	assert.Len(t, f.ctrl.Sessions(), 1)
}

func TestActivateSession(t *testing.T) {
	f := setup(t)
	first := f.ctrl.ActiveSessionID()
	f.ctrl.CreateSession()

	resp := f.do(t, http.MethodPost, "/api/sessions/"+first+"/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, first, decode[map[string]string](t, resp)["id"])
	assert.Equal(t, first, f.ctrl.ActiveSessionID())

	resp = f.do(t, http.MethodPost, "/api/sessions/unknown/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fallback := decode[map[string]string](t, resp)["id"]
	assert.NotEqual(t, "unknown", fallback)
	assert.Len(t, f.ctrl.Sessions(), 3)
}

func TestGetSession(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodGet, "/api/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "not found")

	f.ctrl.Submit(t.Context(), "hello", "")
	resp = f.do(t, http.MethodGet, "/api/sessions/"+f.ctrl.ActiveSessionID(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := decode[store.Session](t, resp)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, "hello", sess.Name)
}

func TestSubmit(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodPost, "/api/submit", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/submit", map[string]string{"text": "hi"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, f.ctrl.IsLoading())

	f.sched.FireAll()
	msgs := f.ctrl.ActiveMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, `You said: "hi"`, msgs[1].Content)
}

func TestSubmit_BadBody(t *testing.T) {
	f := setup(t)

	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/api/submit", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCodeModeSubmitRunsSandbox(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodPost, "/api/code-mode/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[map[string]bool](t, resp)["code_mode"])

	resp = f.do(t, http.MethodPost, "/api/submit", map[string]string{
		"code": `document.getElementById('output').innerHTML = '<p>Hi</p>';`,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	f.sched.FireAll()

	msgs := f.ctrl.ActiveMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "<p>Hi</p>", msgs[1].Output)
	assert.False(t, f.ctrl.CodeMode())
}

func TestSetInput(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodPut, "/api/input", map[string]string{"text": "draft"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "draft", f.ctrl.Input())
}

func TestSandboxRun(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodPost, "/api/sandbox/run", map[string]string{"code": "1 + 1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sandbox.NoOutput, decode[map[string]string](t, resp)["output"])
	assert.Empty(t, f.ctrl.ActiveMessages(), "preview runs are not part of the conversation")
}

func TestExportSession(t *testing.T) {
	f := setup(t)
	f.ctrl.Submit(t.Context(), "export me", "")
	f.sched.FireAll()
	id := f.ctrl.ActiveSessionID()

	resp := f.do(t, http.MethodGet, "/api/sessions/"+id+"/export?format=md", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), id+".md")

	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "# export me")

	resp = f.do(t, http.MethodGet, "/api/sessions/"+id+"/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/sessions/missing/export?format=json", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodOptions, "/api/submit", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestEventsWebSocket(t *testing.T) {
	f := setup(t)

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var initial server.StateMessage
	require.NoError(t, ws.ReadJSON(&initial))
	assert.Equal(t, "snapshot", initial.Type)
	assert.Equal(t, f.ctrl.ActiveSessionID(), initial.State.ActiveSessionID)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "submit", "text": "over the socket"}))

	for {
		var msg server.StateMessage
		require.NoError(t, ws.ReadJSON(&msg))
		assert.Equal(t, "update", msg.Type)
		if len(msg.State.ActiveMessages) == 1 {
			assert.Equal(t, "over the socket", msg.State.ActiveMessages[0].Content)
			break
		}
	}
}
