package events

import (
	"sync"
	"time"
)

// Type identifies what changed.
type Type string

const (
	SessionCreated   Type = "session_created"
	SessionActivated Type = "session_activated"
	SessionsCleared  Type = "sessions_cleared"
	MessageAppended  Type = "message_appended"
	ReplyDropped     Type = "reply_dropped"
	CodeModeChanged  Type = "code_mode_changed"
	LoadingChanged   Type = "loading_changed"
	InputChanged     Type = "input_changed"
)

// Event is a state-change notification. Observers re-read state on receipt;
// the event only says where to look.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	MessageID int64     `json:"message_id,omitempty"`
	Time      time.Time `json:"time"`
}

// Broadcaster fans events out to subscribers. Publishing never blocks and a
// slow subscriber misses events instead of stalling the publisher.
type Broadcaster struct {
	eventChan chan Event
	mu        sync.RWMutex
	subs      map[chan Event]struct{}
	closed    bool
	done      chan struct{}
}

func NewBroadcaster() *Broadcaster {
	b := &Broadcaster{
		eventChan: make(chan Event, 100),
		subs:      make(map[chan Event]struct{}),
		done:      make(chan struct{}),
	}
	go b.broadcastLoop()
	return b
}

func (b *Broadcaster) broadcastLoop() {
	defer close(b.done)
	for e := range b.eventChan {
		b.mu.RLock()
		for sub := range b.subs {
			// Non-blocking send
			select {
			case sub <- e:
			default:
			}
		}
		b.mu.RUnlock()
	}

	b.mu.Lock()
	for sub := range b.subs {
		close(sub)
		delete(b.subs, sub)
	}
	b.mu.Unlock()
}

// Subscribe returns a channel of events and a function that detaches it.
// The channel is closed on detach or when the broadcaster closes.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 10)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish stamps and enqueues e. Events published after Close are dropped.
func (b *Broadcaster) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.eventChan <- e:
	default:
	}
}

// Close stops the loop and closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.eventChan)
	b.mu.Unlock()
	<-b.done
}
