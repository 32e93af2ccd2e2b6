package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nstogner/codechat/pkg/export"
	"github.com/nstogner/codechat/pkg/store"
)

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.ctrl.Snapshot())
}

// --- Sessions ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.ctrl.Sessions())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := s.ctrl.CreateSession()
	s.jsonResponse(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	id := s.ctrl.ClearAllSessions()
	s.jsonResponse(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ctrl.Session(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, statusFor(err), err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

func (s *Server) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	id := s.ctrl.SwitchSession(r.PathValue("id"))
	s.jsonResponse(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleExportSession(w http.ResponseWriter, r *http.Request) {
	exporter, err := export.New(r.URL.Query().Get("format"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.ctrl.Session(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, statusFor(err), err)
		return
	}

	var buf bytes.Buffer
	if err := exporter.Export(&sess, &buf); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sess.ID+"."+exporter.Extension()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// --- Conversation ---

type submitRequest struct {
	Text string `json:"text"`
	Code string `json:"code"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if !s.ctrl.Submit(r.Context(), req.Text, req.Code) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]string{"session_id": s.ctrl.ActiveSessionID()})
}

func (s *Server) handleSetInput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	s.ctrl.SetInput(req.Text)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleCodeMode(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]bool{"code_mode": s.ctrl.ToggleCodeMode()})
}

// --- Sandbox ---

func (s *Server) handleSandboxRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"output": s.runner.Run(r.Context(), req.Code)})
}

func statusFor(err error) int {
	if errors.Is(err, store.ErrSessionNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
