package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/containerd/errdefs"
)

// DockerCLI implements the Engine interface by shelling out to the docker CLI.
type DockerCLI struct {
	// Path to the docker binary (default: "docker" resolved from PATH)
	Path string
}

// NewDockerCLI creates a new CLI-based inspector.
func NewDockerCLI(path string) *DockerCLI {
	if path == "" {
		path = "docker"
	}
	return &DockerCLI{Path: path}
}

// Inspect implements Inspector.Inspect using `docker inspect --format`.
func (d *DockerCLI) Inspect(ctx context.Context, containerID string, query Query) ([]string, error) {
	cmd := exec.CommandContext(ctx, d.Path, "inspect", "--format="+string(query), containerID)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, queryError(containerID, query, ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, queryError(containerID, query, fmt.Errorf("%w: %s", err, msg))
		}
		return nil, queryError(containerID, query, err)
	}

	return splitLines(stdout.String()), nil
}

// Remove implements Remover.Remove using `docker rm --force`.
func (d *DockerCLI) Remove(ctx context.Context, containerID string) error {
	cmd := exec.CommandContext(ctx, d.Path, "rm", "--force", "--volumes", containerID)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "No such container") {
			return fmt.Errorf("container %s: %w", containerID, errdefs.ErrNotFound)
		}
		if msg != "" {
			return fmt.Errorf("remove container %s: %w: %s", containerID, err, msg)
		}
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}
	return nil
}
