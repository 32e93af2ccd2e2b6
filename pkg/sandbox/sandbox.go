package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// OutputElementID is the id of the container user code writes into.
	OutputElementID = "output"
	// ErrorMarker prefixes every result that reports a failure to run at all.
	ErrorMarker = "Error: "
	// NoOutput is returned when the code ran but left the container empty.
	NoOutput = "Code executed successfully (no output)"

	DefaultTimeout = 5 * time.Second
)

// Result represents what a backend read back from an isolated context.
type Result struct {
	// Output is the serialized markup of the output container.
	Output string `json:"output"`
	// Console holds lines the code wrote through console.*.
	Console []string `json:"console,omitempty"`
}

// Backend evaluates a prepared script in an isolated context.
type Backend interface {
	// Execute builds a fresh context, evaluates script in it, reads the output
	// container back and destroys the context before returning, on every path.
	Execute(ctx context.Context, script string) (*Result, error)

	// Active reports how many contexts are currently alive.
	Active() int

	// Close releases any resources held by the backend (e.g. docker client).
	Close() error
}

// Executor runs untrusted snippets through a Backend and reduces every
// outcome to a display string. It never returns an error.
type Executor struct {
	backend Backend
	timeout time.Duration
}

type Option func(*Executor)

func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func New(backend Backend, opts ...Option) *Executor {
	e := &Executor{
		backend: backend,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes code and returns the output container contents, NoOutput when
// the container is empty, or ErrorMarker followed by a description when the
// context could not be built, run or read.
func (e *Executor) Run(ctx context.Context, code string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Sandbox backend panicked", "panic", r)
			out = ErrorMarker + fmt.Sprint(r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	res, err := e.backend.Execute(ctx, Wrap(code))
	if err != nil {
		slog.Warn("Sandbox execution failed", "error", err, "duration", time.Since(start))
		return ErrorMarker + err.Error()
	}
	if res == nil {
		return ErrorMarker + "sandbox returned no result"
	}

	for _, line := range res.Console {
		slog.Debug("Sandbox console", "line", line)
	}
	slog.Debug("Sandbox execution finished", "duration", time.Since(start), "bytes", len(res.Output))

	if strings.TrimSpace(res.Output) == "" {
		return NoOutput
	}
	return res.Output
}

// Active reports live contexts held by the backend.
func (e *Executor) Active() int {
	return e.backend.Active()
}

func (e *Executor) Close() error {
	return e.backend.Close()
}
