// Package container holds the per-job container descriptors the worker orchestrates.
package container

import "fmt"

// Role distinguishes the job container from its auxiliary service containers.
type Role int

const (
	// RoleJob is the container the workflow steps run inside.
	RoleJob Role = iota
	// RoleService is an auxiliary container started alongside the job container.
	RoleService
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case RoleJob:
		return "job"
	case RoleService:
		return "service"
	default:
		return "unknown"
	}
}

// Info describes a single container owned by a job.
// ID is empty until the engine reports the container as started.
type Info struct {
	ID    string
	Image string
	Role  Role
}

// Started reports whether the engine has assigned the container an identity.
func (i Info) Started() bool {
	return i.ID != ""
}

// String returns a human readable reference used in diagnostics.
func (i Info) String() string {
	id := i.ID
	if len(id) > 12 {
		id = id[:12] // Short ID
	}
	if id == "" {
		id = "<not started>"
	}
	return fmt.Sprintf("%s container %s (%s)", i.Role, id, i.Image)
}
