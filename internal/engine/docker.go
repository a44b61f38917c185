package engine

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// dockerClient is the slice of the Docker SDK this package needs.
type dockerClient interface {
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerAPI implements the Engine interface using the Docker Engine API.
// Queries are rendered against the inspect document the same way the CLI
// renders its --format argument.
type DockerAPI struct {
	client dockerClient
}

// NewDockerAPI creates a new SDK-based inspector.
func NewDockerAPI() (*DockerAPI, error) {
	// Initializes client from standard environment variables (DOCKER_HOST, etc.)
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerAPI{client: cli}, nil
}

// NewDockerAPIWithClient wraps an existing Docker client.
func NewDockerAPIWithClient(cli *client.Client) *DockerAPI {
	return &DockerAPI{client: cli}
}

// Inspect implements Inspector.Inspect using ContainerInspect.
func (d *DockerAPI) Inspect(ctx context.Context, containerID string, query Query) ([]string, error) {
	tmpl, err := template.New(query.Name()).Parse(string(query))
	if err != nil {
		return nil, queryError(containerID, query, fmt.Errorf("parse query: %w", err))
	}

	info, err := d.client.ContainerInspect(ctx, containerID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, queryError(containerID, query, ctx.Err())
		}
		return nil, queryError(containerID, query, err)
	}

	var out bytes.Buffer
	if err := tmpl.Execute(&out, info); err != nil {
		return nil, queryError(containerID, query, fmt.Errorf("render query: %w", err))
	}

	return splitLines(out.String()), nil
}

// Remove stops the container (best effort) and force-removes it with its
// anonymous volumes.
func (d *DockerAPI) Remove(ctx context.Context, containerID string) error {
	timeout := 5
	if err := d.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil && errdefs.IsNotFound(err) {
		return fmt.Errorf("container %s: %w", containerID, errdefs.ErrNotFound)
	}

	err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("container %s: %w", containerID, errdefs.ErrNotFound)
		}
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}
	return nil
}
