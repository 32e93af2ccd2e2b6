package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nstogner/codechat/pkg/controller"
	"github.com/nstogner/codechat/pkg/events"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool, any origin
	},
}

// StateMessage is pushed to websocket clients on connect and after every change.
type StateMessage struct {
	Type  string              `json:"type"`
	Event *events.Event       `json:"event,omitempty"`
	State controller.Snapshot `json:"state"`
}

// clientMessage is what a websocket client may send.
type clientMessage struct {
	Type string `json:"type"` // "submit", "input" or "toggle_code_mode"
	Text string `json:"text"`
	Code string `json:"code"`
}

func (s *Server) handleEventsWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	// Subscribe before the initial sync so nothing falls between the two.
	updates, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()

	if err := s.pushState(ws, nil); err != nil {
		slog.Error("Failed initial sync", "error", err)
		return
	}

	// Channel to signal connection close
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	// Writer Loop (Pusher)
	go func() {
		defer wg.Done()
		defer ws.Close()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case e, ok := <-updates:
				if !ok {
					return
				}
				if err := s.pushState(ws, &e); err != nil {
					slog.Debug("Failed (re)sync", "error", err)
					return
				}
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	// Reader Loop
	ctx := context.WithoutCancel(r.Context())
	for {
		var msg clientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket read error", "error", err)
			}
			break
		}

		switch msg.Type {
		case "", "submit":
			s.ctrl.Submit(ctx, msg.Text, msg.Code)
		case "input":
			s.ctrl.SetInput(msg.Text)
		case "toggle_code_mode":
			s.ctrl.ToggleCodeMode()
		default:
			slog.Debug("Ignoring websocket message", "type", msg.Type)
		}
	}

	close(done)
	wg.Wait()
}

func (s *Server) pushState(ws *websocket.Conn, e *events.Event) error {
	kind := "snapshot"
	if e != nil {
		kind = "update"
	}
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.WriteJSON(StateMessage{Type: kind, Event: e, State: s.ctrl.Snapshot()})
}
