package cmd

import (
	"fmt"
	"strings"

	"jobworker/internal/container"
)

// parseContainer parses an ID=IMAGE flag value. The image part is optional.
func parseContainer(value string, role container.Role) (container.Info, error) {
	id, image, _ := strings.Cut(value, "=")
	id = strings.TrimSpace(id)
	if id == "" {
		return container.Info{}, fmt.Errorf("invalid %s container %q: missing container id", role, value)
	}
	return container.Info{ID: id, Image: strings.TrimSpace(image), Role: role}, nil
}

// jobContainers assembles the evaluation order: the job container first,
// then services in the order given.
func jobContainers(job string, services []string) ([]container.Info, error) {
	var containers []container.Info

	if job != "" {
		c, err := parseContainer(job, container.RoleJob)
		if err != nil {
			return nil, err
		}
		containers = append(containers, c)
	}

	for _, s := range services {
		c, err := parseContainer(s, container.RoleService)
		if err != nil {
			return nil, err
		}
		containers = append(containers, c)
	}

	return containers, nil
}
