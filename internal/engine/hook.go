package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/containerd/errdefs"
)

// Hook command names.
const (
	HookCommandInspect = "inspect"
	HookCommandRemove  = "remove"
)

// Hook implements the Engine interface by delegating to a container hook
// script. The hook receives a JSON request on stdin and writes its JSON
// response to the file named in the request.
type Hook struct {
	// Interpreter runs the hook script (default: "node"). Empty Path is invalid.
	Interpreter string
	Path        string
}

// errNoResponse is returned when the hook exits cleanly without writing a response.
var errNoResponse = errors.New("hook wrote no response")

type hookRequest struct {
	Command      string   `json:"command"`
	ResponseFile string   `json:"responseFile"`
	Args         hookArgs `json:"args"`
}

type hookArgs struct {
	ContainerID string `json:"containerId"`
	Format      string `json:"format,omitempty"`
}

type hookResponse struct {
	Lines []string `json:"lines"`
	// NotFound is set by the remove command when the container is already gone.
	NotFound bool `json:"notFound,omitempty"`
}

// NewHook creates a new hook-based inspector.
func NewHook(interpreter, path string) *Hook {
	if interpreter == "" {
		interpreter = "node"
	}
	return &Hook{Interpreter: interpreter, Path: path}
}

// Inspect implements Inspector.Inspect by running the hook's inspect command.
func (h *Hook) Inspect(ctx context.Context, containerID string, query Query) ([]string, error) {
	resp, err := h.run(ctx, HookCommandInspect, hookArgs{
		ContainerID: containerID,
		Format:      string(query),
	})
	if err != nil {
		return nil, queryError(containerID, query, err)
	}
	return resp.Lines, nil
}

// Remove implements Remover.Remove by running the hook's remove command.
func (h *Hook) Remove(ctx context.Context, containerID string) error {
	resp, err := h.run(ctx, HookCommandRemove, hookArgs{ContainerID: containerID})
	if errors.Is(err, errNoResponse) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}
	if resp.NotFound {
		return fmt.Errorf("container %s: %w", containerID, errdefs.ErrNotFound)
	}
	return nil
}

// run sends one request to the hook and decodes the response file.
func (h *Hook) run(ctx context.Context, command string, args hookArgs) (*hookResponse, error) {
	if h.Path == "" {
		return nil, errors.New("hook path is required")
	}

	respFile, err := os.CreateTemp("", "jobworker-hook-*.json")
	if err != nil {
		return nil, fmt.Errorf("create response file: %w", err)
	}
	respFile.Close()
	defer os.Remove(respFile.Name())

	req, err := json.Marshal(hookRequest{
		Command:      command,
		ResponseFile: respFile.Name(),
		Args:         args,
	})
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, h.Interpreter, h.Path)
	cmd.Stdin = bytes.NewReader(req)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("hook failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("hook failed: %w", err)
	}

	raw, err := os.ReadFile(respFile.Name())
	if err != nil {
		return nil, fmt.Errorf("read hook response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errNoResponse
	}

	var resp hookResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("malformed hook response: %w", err)
	}
	return &resp, nil
}
