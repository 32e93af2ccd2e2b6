package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nstogner/codechat/pkg/events"
	"github.com/nstogner/codechat/pkg/store"
)

const (
	// DefaultLatency is the simulated thinking time before a reply lands.
	DefaultLatency = time.Second

	// CodePrompt is the user message content of a code submission without text.
	CodePrompt = "Run this code"
	// CodeReply is the assistant message content attached to executed code.
	CodeReply = "Here's the output of your code:"
)

// Executor runs a code snippet and reduces every outcome to display text.
type Executor interface {
	Run(ctx context.Context, code string) string
}

// Snapshot is one consistent read of everything a renderer needs.
type Snapshot struct {
	Sessions        []store.Summary `json:"sessions"`
	ActiveSessionID string          `json:"active_session_id"`
	ActiveMessages  []store.Message `json:"active_messages"`
	Loading         bool            `json:"loading"`
	CodeMode        bool            `json:"code_mode"`
	Input           string          `json:"input"`
}

// Controller owns the conversation state: the session store plus the
// transient draft, code-mode and loading flags. Every mutation is serialized;
// delayed replies land on the session that was active when they were
// submitted, whatever is active by then.
type Controller struct {
	mu        sync.Mutex
	store     *store.Store
	executor  Executor
	responder Responder
	scheduler Scheduler
	latency   time.Duration
	events    *events.Broadcaster

	codeMode bool
	input    string
	pending  map[uint64]string
	nextTurn uint64

	inflight sync.WaitGroup
}

type Option func(*Controller)

func WithStore(s *store.Store) Option {
	return func(c *Controller) {
		c.store = s
	}
}

func WithResponder(r Responder) Option {
	return func(c *Controller) {
		c.responder = r
	}
}

func WithScheduler(s Scheduler) Option {
	return func(c *Controller) {
		c.scheduler = s
	}
}

func WithLatency(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.latency = d
		}
	}
}

// New creates a Controller with one empty active session.
func New(executor Executor, opts ...Option) *Controller {
	c := &Controller{
		executor:  executor,
		latency:   DefaultLatency,
		scheduler: TimerScheduler{},
		pending:   make(map[uint64]string),
		events:    events.NewBroadcaster(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = store.New()
	}
	if c.responder == nil {
		c.responder = NewCannedResponder(nil)
	}
	return c
}

// CreateSession adds an empty session, makes it active and resets the draft,
// code mode and loading indicator.
func (c *Controller) CreateSession() string {
	c.mu.Lock()
	id := c.createLocked()
	c.mu.Unlock()

	c.publish(events.Event{Type: events.SessionCreated, SessionID: id})
	return id
}

func (c *Controller) createLocked() string {
	id := c.store.Create()
	c.resetLocked()
	slog.Debug("Session created", "sessionID", id)
	return id
}

func (c *Controller) resetLocked() {
	c.input = ""
	c.codeMode = false
	c.pending = make(map[uint64]string)
}

// SwitchSession activates id, or creates a new session when id is unknown.
// It returns the id that ended up active.
func (c *Controller) SwitchSession(id string) string {
	c.mu.Lock()
	if err := c.store.Activate(id); err != nil {
		if !errors.Is(err, store.ErrSessionNotFound) {
			slog.Error("Failed to switch session", "sessionID", id, "error", err)
		}
		newID := c.createLocked()
		c.mu.Unlock()
		slog.Info("Unknown session, started a new one", "requested", id, "sessionID", newID)
		c.publish(events.Event{Type: events.SessionCreated, SessionID: newID})
		return newID
	}
	c.mu.Unlock()

	c.publish(events.Event{Type: events.SessionActivated, SessionID: id})
	return id
}

// ClearAllSessions replaces every session with one fresh active session.
// Replies still in flight for the old sessions are dropped when they land.
func (c *Controller) ClearAllSessions() string {
	c.mu.Lock()
	id := c.store.Reset()
	c.resetLocked()
	c.mu.Unlock()

	slog.Info("All sessions cleared", "sessionID", id)
	c.publish(events.Event{Type: events.SessionsCleared, SessionID: id})
	return id
}

// ToggleCodeMode flips code mode and returns the new value.
func (c *Controller) ToggleCodeMode() bool {
	c.mu.Lock()
	c.codeMode = !c.codeMode
	on := c.codeMode
	c.mu.Unlock()

	c.publish(events.Event{Type: events.CodeModeChanged})
	return on
}

func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()

	c.publish(events.Event{Type: events.InputChanged})
}

// Submit appends a user message to the active session and schedules the
// reply. In code mode code is required and text is optional; otherwise text
// is required. It reports whether anything was submitted.
func (c *Controller) Submit(ctx context.Context, text, code string) bool {
	c.mu.Lock()
	codeMode := c.codeMode
	if codeMode && strings.TrimSpace(code) == "" || !codeMode && strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return false
	}

	msg := store.Message{Role: store.RoleUser, Content: text}
	if codeMode {
		msg.IsCode = true
		msg.Code = code
		if strings.TrimSpace(text) == "" {
			msg.Content = CodePrompt
		}
	} else {
		code = ""
	}

	sessionID := c.store.ActiveID()
	appended, err := c.store.Append(sessionID, msg)
	if err != nil {
		c.mu.Unlock()
		slog.Error("Failed to append user message", "sessionID", sessionID, "error", err)
		return false
	}

	c.input = ""
	c.nextTurn++
	turn := c.nextTurn
	c.pending[turn] = sessionID
	c.inflight.Add(1)
	c.mu.Unlock()

	c.publish(events.Event{Type: events.MessageAppended, SessionID: sessionID, MessageID: appended.ID})
	c.publish(events.Event{Type: events.LoadingChanged, SessionID: sessionID})

	// The reply outlives the caller's request.
	replyCtx := context.WithoutCancel(ctx)
	c.scheduler.AfterFunc(c.latency, func() {
		c.reply(replyCtx, turn, sessionID, text, codeMode, code)
	})
	return true
}

func (c *Controller) reply(ctx context.Context, turn uint64, sessionID, text string, codeMode bool, code string) {
	defer c.inflight.Done()

	msg := store.Message{Role: store.RoleAssistant}
	if codeMode {
		msg.Content = CodeReply
		msg.IsCode = true
		msg.Code = code
		msg.Output = c.executor.Run(ctx, code)
	}

	c.mu.Lock()
	if !codeMode {
		msg.Content = c.responder.Respond(text)
	}
	_, live := c.pending[turn]
	delete(c.pending, turn)
	if codeMode && live {
		c.codeMode = false
	}
	appended, err := c.store.Append(sessionID, msg)
	c.mu.Unlock()

	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			slog.Info("Dropping reply for cleared session", "sessionID", sessionID)
		} else {
			slog.Error("Failed to append reply", "sessionID", sessionID, "error", err)
		}
		c.publish(events.Event{Type: events.ReplyDropped, SessionID: sessionID})
		return
	}

	c.publish(events.Event{Type: events.MessageAppended, SessionID: sessionID, MessageID: appended.ID})
	if live {
		c.publish(events.Event{Type: events.LoadingChanged, SessionID: sessionID})
	}
	if codeMode && live {
		c.publish(events.Event{Type: events.CodeModeChanged})
	}
}

func (c *Controller) ActiveSessionID() string {
	return c.store.ActiveID()
}

// ActiveMessages returns the active session's messages in append order.
func (c *Controller) ActiveMessages() []store.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Messages(c.store.ActiveID())
}

// Sessions lists session summaries, most recently active first.
func (c *Controller) Sessions() []store.Summary {
	return c.store.Summaries()
}

func (c *Controller) Session(id string) (store.Session, error) {
	return c.store.Get(id)
}

// IsLoading reports whether any submitted turn is still waiting for its reply.
func (c *Controller) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0
}

func (c *Controller) CodeMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codeMode
}

func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := c.store.ActiveID()
	return Snapshot{
		Sessions:        c.store.Summaries(),
		ActiveSessionID: active,
		ActiveMessages:  c.store.Messages(active),
		Loading:         len(c.pending) > 0,
		CodeMode:        c.codeMode,
		Input:           c.input,
	}
}

// Subscribe returns state-change notifications and a function that detaches
// the subscriber.
func (c *Controller) Subscribe() (<-chan events.Event, func()) {
	return c.events.Subscribe()
}

// Wait blocks until every scheduled reply has landed or been dropped.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close waits for in-flight replies and stops event delivery.
func (c *Controller) Close() {
	c.Wait()
	c.events.Close()
}

func (c *Controller) publish(e events.Event) {
	c.events.Publish(e)
}
