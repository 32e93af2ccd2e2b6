package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when an operation names a session the store
// does not hold.
var ErrSessionNotFound = errors.New("session not found")

// Store keeps every session in memory together with the active session
// pointer. The mapping is never empty and the active id always names an
// existing session.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	activeID string

	seq   *Sequence
	now   func() time.Time
	newID func() string
}

type Option func(*Store)

// WithClock overrides the time source used for message ids and creation times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator overrides the session id generator.
func WithIDGenerator(f func() string) Option {
	return func(s *Store) {
		s.newID = f
	}
}

// New returns a store seeded with one empty, active session.
func New(opts ...Option) *Store {
	s := &Store{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.seq = NewSequence(s.now)

	sess := s.newSession()
	s.sessions = map[string]*Session{sess.ID: sess}
	s.activeID = sess.ID
	return s
}

func (s *Store) newSession() *Session {
	return &Session{
		ID:           s.newID(),
		Name:         DefaultSessionName,
		Messages:     []Message{},
		CreatedAt:    s.now(),
		CreatedLabel: CreatedLabelNew,
	}
}

// Create inserts a fresh empty session, makes it active and returns its id.
func (s *Store) Create() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.newSession()
	s.sessions[sess.ID] = sess
	s.activeID = sess.ID
	return sess.ID
}

// Activate points the active pointer at id.
func (s *Store) Activate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("activate %s: %w", id, ErrSessionNotFound)
	}
	s.activeID = id
	return nil
}

// Reset swaps the whole mapping for a single fresh session in one step and
// returns the new active id.
func (s *Store) Reset() string {
	sess := s.newSession()
	fresh := map[string]*Session{sess.ID: sess}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = fresh
	s.activeID = sess.ID
	return sess.ID
}

// Append adds msg to the end of the session, assigning the next message id.
// The first user message names a session that still carries the default name.
func (s *Store) Append(sessionID string, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return Message{}, fmt.Errorf("append to %s: %w", sessionID, ErrSessionNotFound)
	}

	msg.ID = s.seq.Next()
	sess.Messages = append(sess.Messages, msg)
	if msg.Role == RoleUser && sess.Name == DefaultSessionName {
		sess.Name = SessionName(msg.Content)
	}
	return msg, nil
}

func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("get %s: %w", id, ErrSessionNotFound)
	}
	return sess.clone(), nil
}

// Messages returns a copy of the session's messages in append order. An
// unknown id yields an empty slice.
func (s *Store) Messages(id string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return []Message{}
	}
	return sess.clone().Messages
}

// Summaries lists every session, most recently active first.
func (s *Store) Summaries() []Summary {
	s.mu.RLock()
	now := s.now()
	out := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, Summary{
			ID:           sess.ID,
			Name:         sess.Name,
			CreatedLabel: createdLabel(sess, now),
			CreatedAt:    sess.CreatedAt,
			MessageCount: len(sess.Messages),
			LastActivity: sess.LastActivity(),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity != out[j].LastActivity {
			return out[i].LastActivity > out[j].LastActivity
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func createdLabel(sess *Session, now time.Time) string {
	if now.Sub(sess.CreatedAt) < time.Minute {
		return sess.CreatedLabel
	}
	return humanize.RelTime(sess.CreatedAt, now, "ago", "from now")
}
