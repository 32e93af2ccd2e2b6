package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"

	"github.com/nstogner/codechat/pkg/sandbox"
)

const (
	// LabelManager is the label used to identify containers managed by this system.
	LabelManager = "manager"
	// LabelManagerValue is the value of the manager label.
	LabelManagerValue = "codechat-sandbox"

	DefaultImage  = "node:20-alpine"
	DefaultMemory = "128m"

	resultMarker    = "__CODECHAT_RESULT__"
	teardownTimeout = 10 * time.Second
	pidsLimit       = 64
)

// readback prints the output container and console as one JSON line after a
// marker so stray writes to stdout cannot be mistaken for the result.
const readback = "\nprocess.stdout.write(\"\\n" + resultMarker + "\" + JSON.stringify({output: " +
	sandbox.ReadbackExpr + ", console: " + sandbox.ConsoleExpr + "}) + \"\\n\");\n"

type Config struct {
	// Image must contain node and already exist locally.
	Image string
	// Memory is a human readable limit such as "128m".
	Memory string
}

// Backend runs every script in its own short-lived node container with
// networking disabled. The container is force-removed before Execute returns.
type Backend struct {
	client *client.Client
	image  string
	memory int64
	active atomic.Int64
}

// Ensure Backend implements sandbox.Backend
var _ sandbox.Backend = (*Backend)(nil)

func New(cfg Config) (*Backend, error) {
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.Memory == "" {
		cfg.Memory = DefaultMemory
	}
	memory, err := units.RAMInBytes(cfg.Memory)
	if err != nil {
		return nil, fmt.Errorf("invalid memory limit %q: %w", cfg.Memory, err)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Backend{
		client: cli,
		image:  cfg.Image,
		memory: memory,
	}, nil
}

func (b *Backend) Execute(ctx context.Context, script string) (*sandbox.Result, error) {
	// Ensure image exists (locally)
	if _, _, err := b.client.ImageInspectWithRaw(ctx, b.image); err != nil {
		return nil, fmt.Errorf("sandbox image '%s' not found, run 'docker pull %s': %w", b.image, b.image, err)
	}

	pids := int64(pidsLimit)
	cfg := &container.Config{
		Image:           b.image,
		Cmd:             []string{"node", "-e", script + readback},
		User:            "node",
		NetworkDisabled: true,
		Labels: map[string]string{
			LabelManager: LabelManagerValue,
		},
	}
	hostCfg := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		Resources: container.Resources{
			Memory:    b.memory,
			PidsLimit: &pids,
		},
	}

	resp, err := b.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", interrupted(ctx, err))
	}
	b.active.Add(1)
	defer b.teardown(resp.ID)

	if err := b.client.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", interrupted(ctx, err))
	}

	waitCh, errCh := b.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case <-ctx.Done():
		return nil, interrupted(ctx, ctx.Err())
	case err := <-errCh:
		return nil, fmt.Errorf("waiting for container: %w", interrupted(ctx, err))
	case status := <-waitCh:
		if status.Error != nil {
			return nil, fmt.Errorf("container failed: %s", status.Error.Message)
		}
		exitCode = status.StatusCode
	}

	logs, err := b.client.ContainerLogs(ctx, resp.ID, types.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, fmt.Errorf("reading container logs: %w", interrupted(ctx, err))
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return nil, fmt.Errorf("demultiplexing container logs: %w", err)
	}
	return parseResult(stdout.String(), stderr.String(), exitCode)
}

// teardown force-removes the container with a fresh context so cancellation of
// the caller never leaves it behind.
func (b *Backend) teardown(id string) {
	defer b.active.Add(-1)

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := b.client.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true}); err != nil {
		slog.Warn("Failed to remove sandbox container", "id", id, "error", err)
	}
}

// Prune removes managed containers left behind by a previous process.
func (b *Backend) Prune(ctx context.Context) (int, error) {
	f := filters.NewArgs(filters.Arg("label", LabelManager+"="+LabelManagerValue))
	containers, err := b.client.ContainerList(ctx, types.ContainerListOptions{All: true, Filters: f})
	if err != nil {
		return 0, fmt.Errorf("listing managed containers: %w", err)
	}
	removed := 0
	for _, c := range containers {
		if err := b.client.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
			slog.Warn("Failed to remove container", "id", c.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Pruned orphaned sandbox containers", "count", removed)
	}
	return removed, nil
}

func (b *Backend) Active() int {
	return int(b.active.Load())
}

func (b *Backend) Close() error {
	return b.client.Close()
}

func interrupted(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("execution timed out: %w", ctx.Err())
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("execution cancelled: %w", ctx.Err())
	}
	return err
}

func parseResult(stdout, stderr string, exitCode int64) (*sandbox.Result, error) {
	idx := strings.LastIndex(stdout, resultMarker)
	if idx < 0 {
		return nil, errors.New(failureMessage(stderr, exitCode))
	}

	var res sandbox.Result
	payload := strings.TrimSpace(stdout[idx+len(resultMarker):])
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("decoding sandbox result: %w", err)
	}
	return &res, nil
}

// failureMessage picks the most telling line of node's stderr, which for a
// syntax error is the "SyntaxError: ..." line rather than the source excerpt.
func failureMessage(stderr string, exitCode int64) string {
	var last string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "Error:") && !strings.HasPrefix(line, "at ") {
			return line
		}
		last = line
	}
	if last != "" {
		return last
	}
	return fmt.Sprintf("node exited with status %d and no result", exitCode)
}
