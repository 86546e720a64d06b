package dockerx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/go-connections/nat"

	"github.com/ushadow/orchestrator/models"
)

// ContainerAPI is the slice of the Docker client the probe needs.
// Declared here so tests can substitute a fake.
type ContainerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
}

// Prober reports container state for named services and scans the
// daemon for environment discovery.
type Prober struct {
	cli ContainerAPI
}

func NewProber(cli ContainerAPI) *Prober {
	return &Prober{cli: cli}
}

// ServiceStatus looks up the container backing serviceID and reports
// its state. A service whose container is absent reports not_found
// rather than an error; errors are reserved for daemon failures.
func (p *Prober) ServiceStatus(ctx context.Context, serviceID string) (models.ContainerStatus, error) {
	status := models.ContainerStatus{
		Status:     models.StateNotFound,
		ObservedAt: time.Now().UTC(),
	}

	args := filters.NewArgs()
	args.Add("name", serviceID)

	containers, err := p.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: args,
	})
	if err != nil {
		return status, fmt.Errorf("failed to list containers: %w", err)
	}

	for _, c := range containers {
		if !matchesService(c, serviceID) {
			continue
		}
		status.ContainerID = c.ID
		status.Status = mapState(c.State)
		status.Health = parseHealth(c.Status)
		break
	}
	return status, nil
}

// Scan returns every container known to the daemon, running or not.
// Discovery partitions the result by naming convention.
func (p *Prober) Scan(ctx context.Context) ([]container.Summary, error) {
	containers, err := p.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return containers, nil
}

// StartContainer starts a stopped container by ID.
func (p *Prober) StartContainer(ctx context.Context, containerID string) error {
	if err := p.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", containerID, err)
	}
	return nil
}

// StopContainer stops a running container by ID, allowing ten seconds
// for a clean shutdown before the daemon kills it.
func (p *Prober) StopContainer(ctx context.Context, containerID string) error {
	timeout := 10
	if err := p.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", containerID, err)
	}
	return nil
}

// PublicPortFor returns the host port mapped to the given private port,
// or 0 when the container does not publish it.
func PublicPortFor(c container.Summary, private nat.Port) int {
	for _, p := range c.Ports {
		if int(p.PrivatePort) == private.Int() && string(p.Type) == private.Proto() {
			if p.PublicPort != 0 {
				return int(p.PublicPort)
			}
		}
	}
	return 0
}

// ContainerName strips the leading slash Docker puts on the first name.
func ContainerName(c container.Summary) string {
	if len(c.Names) == 0 {
		return ""
	}
	return strings.TrimPrefix(c.Names[0], "/")
}

// matchesService accepts exact matches and the compose-style
// <project>-<service>-1 form the Docker name filter also returns.
func matchesService(c container.Summary, serviceID string) bool {
	name := ContainerName(c)
	if name == serviceID {
		return true
	}
	if strings.HasSuffix(name, "-"+serviceID) || strings.HasSuffix(name, "-"+serviceID+"-1") {
		return true
	}
	return false
}

func mapState(state string) models.ContainerState {
	switch state {
	case "running":
		return models.StateRunning
	case "exited", "dead":
		return models.StateExited
	case "created", "paused", "removing":
		return models.StateStopped
	default:
		return models.StateNotFound
	}
}

// parseHealth reads the health annotation Docker appends to the status
// line, e.g. "Up 3 minutes (healthy)".
func parseHealth(status string) models.HealthState {
	switch {
	case strings.Contains(status, "(healthy)"):
		return models.HealthHealthy
	case strings.Contains(status, "(unhealthy)"):
		return models.HealthUnhealthy
	case strings.Contains(status, "(health: starting)"):
		return models.HealthStarting
	default:
		return ""
	}
}
