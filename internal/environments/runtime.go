package environments

import (
	"context"
	"fmt"
	"log"

	"github.com/ushadow/orchestrator/internal/dockerx"
	"github.com/ushadow/orchestrator/models"
)

// Start starts every stopped container the named environment owns.
// The environment's running flag and container list are accurate only
// after the next Discover; start is not assumed synchronous.
func (m *Manager) Start(ctx context.Context, name string) error {
	containers, err := m.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to list containers for %s: %w", name, err)
	}

	owned := 0
	started := 0
	for _, c := range containers {
		if !ownsContainer(name, dockerx.ContainerName(c)) {
			continue
		}
		owned++
		if c.State == "running" {
			continue
		}
		if err := m.scanner.StartContainer(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to start environment %s: %w", name, err)
		}
		started++
	}
	if owned == 0 {
		return fmt.Errorf("%w: no containers for %s", ErrUnknownEnvironment, name)
	}
	if started == 0 {
		// Everything is already up; a no-op, not a failure.
		log.Printf("Environment %s: no stopped containers", name)
		return nil
	}
	log.Printf("Environment %s: %d container(s) starting", name, started)
	return nil
}

// Stop stops every running container the named environment owns.
func (m *Manager) Stop(ctx context.Context, name string) error {
	containers, err := m.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to list containers for %s: %w", name, err)
	}

	owned := 0
	stopped := 0
	for _, c := range containers {
		if !ownsContainer(name, dockerx.ContainerName(c)) {
			continue
		}
		owned++
		if c.State != "running" {
			continue
		}
		if err := m.scanner.StopContainer(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to stop environment %s: %w", name, err)
		}
		stopped++
	}
	if owned == 0 {
		return fmt.Errorf("%w: no containers for %s", ErrUnknownEnvironment, name)
	}
	if stopped == 0 {
		log.Printf("Environment %s: no running containers", name)
		return nil
	}
	log.Printf("Environment %s: %d container(s) stopping", name, stopped)
	return nil
}

// ResolveURL picks the externally reachable URL for an environment:
// the mesh URL when the environment reports one, else a localhost URL
// derived from its recorded ports.
func ResolveURL(env models.Environment) (string, error) {
	switch {
	case env.MeshURL != "":
		return env.MeshURL, nil
	case env.WebUIPort > 0:
		return fmt.Sprintf("http://localhost:%d", env.WebUIPort), nil
	case env.BackendPort > 0:
		return fmt.Sprintf("http://localhost:%d", env.BackendPort), nil
	default:
		return "", fmt.Errorf("environment %s has no reachable URL", env.Name)
	}
}

// OpenInApp resolves the environment's URL and hands it to the system
// opener. No state is mutated.
func (m *Manager) OpenInApp(env models.Environment) error {
	url, err := ResolveURL(env)
	if err != nil {
		return err
	}
	return m.open(url)
}
