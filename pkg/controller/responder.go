package controller

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrUnknownResponder is returned by NewResponder for an unsupported kind.
var ErrUnknownResponder = errors.New("unknown responder")

const (
	ResponderCanned = "canned"
	ResponderEcho   = "echo"
)

// Responder produces the assistant reply to a plain-text message.
type Responder interface {
	Respond(input string) string
}

// CannedReplies is the pool CannedResponder draws from.
var CannedReplies = []string{
	"That's an interesting question! Let me think about it...",
	"I can help you with that. Here's what I found.",
	"Great question! Here's a quick explanation.",
	"Sure thing. Switch on code mode if you want to run a snippet.",
	"Let me break that down for you step by step.",
}

// CannedResponder picks a reply uniformly at random from a fixed pool.
type CannedResponder struct {
	mu   sync.Mutex
	rng  *rand.Rand
	pool []string
}

// NewCannedResponder draws from CannedReplies using rng, or a time-seeded
// source when rng is nil.
func NewCannedResponder(rng *rand.Rand) *CannedResponder {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &CannedResponder{rng: rng, pool: CannedReplies}
}

func (r *CannedResponder) Respond(string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool[r.rng.IntN(len(r.pool))]
}

// EchoResponder repeats the message back.
type EchoResponder struct{}

func (EchoResponder) Respond(input string) string {
	return `You said: "` + input + `"`
}

func NewResponder(kind string, rng *rand.Rand) (Responder, error) {
	switch kind {
	case "", ResponderCanned:
		return NewCannedResponder(rng), nil
	case ResponderEcho:
		return EchoResponder{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownResponder, kind)
}
