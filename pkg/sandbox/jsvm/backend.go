package jsvm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/nstogner/codechat/pkg/sandbox"
)

const maxCallStackSize = 1024

// Backend evaluates scripts in a fresh goja runtime per call. Runtimes share
// nothing, have no access to the host and are dropped after the read-back.
type Backend struct {
	active atomic.Int64
}

// Ensure Backend implements sandbox.Backend
var _ sandbox.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{}
}

func (b *Backend) Execute(ctx context.Context, script string) (*sandbox.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, interruption(err)
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	b.active.Add(1)
	defer func() {
		vm.ClearInterrupt()
		b.active.Add(-1)
	}()

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	if _, err := vm.RunString(script); err != nil {
		return nil, describe(err)
	}

	out, err := vm.RunString(sandbox.ReadbackExpr)
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", describe(err))
	}
	logs, err := vm.RunString(sandbox.ConsoleExpr)
	if err != nil {
		return nil, fmt.Errorf("failed to read console: %w", describe(err))
	}

	return &sandbox.Result{
		Output:  out.String(),
		Console: lines(logs.Export()),
	}, nil
}

func (b *Backend) Active() int {
	return int(b.active.Load())
}

func (b *Backend) Close() error {
	return nil
}

func describe(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return interruption(cause)
		}
		return fmt.Errorf("execution interrupted: %v", interrupted.Value())
	}
	var exc *goja.Exception
	if errors.As(err, &exc) && exc.Value() != nil {
		return errors.New(exc.Value().String())
	}
	return err
}

func interruption(cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("execution timed out: %w", cause)
	}
	return fmt.Errorf("execution cancelled: %w", cause)
}

func lines(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprint(item))
	}
	return out
}
