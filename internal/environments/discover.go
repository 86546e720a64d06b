package environments

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"

	"github.com/ushadow/orchestrator/internal/dockerx"
	"github.com/ushadow/orchestrator/models"
)

// backendPrivatePort is the port every stack backend listens on inside
// its container.
const backendPrivatePort = nat.Port("8000/tcp")

// infraPatterns maps container name patterns to shared infrastructure
// services. These back every environment rather than belonging to one.
var infraPatterns = []struct {
	pattern string
	display string
}{
	{"mongo", "MongoDB"},
	{"redis", "Redis"},
	{"neo4j", "Neo4j"},
	{"qdrant", "Qdrant"},
}

// Discover scans the container runtime and partitions what it finds
// into shared infrastructure and per-environment groups. The scan is
// read-only; results are a snapshot and may be stale by up to one poll
// interval.
func (m *Manager) Discover(ctx context.Context) (models.Discovery, error) {
	containers, err := m.scanner.Scan(ctx)
	if err != nil {
		return models.Discovery{}, fmt.Errorf("discovery scan: %w", err)
	}

	discovery := models.Discovery{
		Infrastructure: []models.InfraService{},
		Environments:   []models.Environment{},
	}

	foundInfra := make(map[string]bool)
	envs := make(map[string]*models.Environment)

	for _, c := range containers {
		name := dockerx.ContainerName(c)
		running := c.State == "running"

		for _, infra := range infraPatterns {
			if !matchesInfra(name, infra.pattern) || foundInfra[infra.pattern] {
				continue
			}
			foundInfra[infra.pattern] = true
			discovery.Infrastructure = append(discovery.Infrastructure, models.InfraService{
				Name:        infra.pattern,
				DisplayName: infra.display,
				Running:     running,
				Ports:       formatPorts(c.Ports),
			})
		}

		envName, ok := backendEnvName(name)
		if !ok {
			continue
		}
		env := envs[envName]
		if env == nil {
			env = &models.Environment{Name: envName}
			envs[envName] = env
		}
		env.Running = env.Running || running
		if port := dockerx.PublicPortFor(c, backendPrivatePort); port != 0 {
			env.BackendPort = port
		}
	}

	// Attach the containers each environment owns.
	for _, c := range containers {
		name := dockerx.ContainerName(c)
		for envName, env := range envs {
			if ownsContainer(envName, name) {
				env.Containers = append(env.Containers, name)
			}
		}
	}

	for _, env := range envs {
		if env.BackendPort >= 8000 {
			env.WebUIPort = env.BackendPort - 5000
		}
		if env.Running && env.BackendPort > 0 {
			env.MeshURL = m.mesh(ctx, env.BackendPort)
		}
		if path := m.environmentPath(env.Name); path != "" {
			env.Path = path
		}
		sort.Strings(env.Containers)
		discovery.Environments = append(discovery.Environments, *env)
	}

	// On-disk environments with no containers at all still count.
	for _, name := range m.onDiskEnvironments() {
		if _, ok := envs[name]; ok {
			continue
		}
		discovery.Environments = append(discovery.Environments, models.Environment{
			Name: name,
			Path: filepath.Join(m.stacksDir, name),
		})
	}

	sort.Slice(discovery.Environments, func(i, j int) bool {
		return discovery.Environments[i].Name < discovery.Environments[j].Name
	})
	return discovery, nil
}

// backendEnvName extracts the environment name from a backend container
// name. The default environment runs bare "ushadow-backend"; named
// environments run "ushadow-<name>-backend". Chronicle containers carry
// "backend" in their name but are services, not environments.
func backendEnvName(name string) (string, bool) {
	if !strings.HasPrefix(name, "ushadow") || !strings.Contains(name, "backend") {
		return "", false
	}
	if strings.Contains(name, "chronicle") {
		return "", false
	}
	if name == "ushadow-backend" {
		return "default", true
	}
	if !strings.HasPrefix(name, "ushadow-") || !strings.HasSuffix(name, "-backend") {
		return "", false
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "ushadow-"), "-backend")
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}

// stackComponents are the container roles a default environment owns.
var stackComponents = []string{"backend", "webui", "frontend", "worker", "tailscale"}

// ownsContainer reports whether a container belongs to the named
// environment. Named environments own everything under their prefix;
// the default environment owns only the known component names, so it
// does not swallow named environments' containers.
func ownsContainer(envName, containerName string) bool {
	if envName != "default" {
		return strings.HasPrefix(containerName, "ushadow-"+envName+"-")
	}
	for _, comp := range stackComponents {
		if containerName == "ushadow-"+comp || strings.HasPrefix(containerName, "ushadow-"+comp+"-") {
			return true
		}
	}
	return false
}

func matchesInfra(name, pattern string) bool {
	return name == pattern ||
		strings.HasSuffix(name, "-"+pattern) ||
		strings.HasSuffix(name, "-"+pattern+"-1")
}

// formatPorts renders port mappings the way docker ps does.
func formatPorts(ports []container.Port) string {
	var parts []string
	for _, p := range ports {
		if p.PublicPort != 0 {
			parts = append(parts, fmt.Sprintf("%s:%d->%d/%s", p.IP, p.PublicPort, p.PrivatePort, p.Type))
		} else {
			parts = append(parts, fmt.Sprintf("%d/%s", p.PrivatePort, p.Type))
		}
	}
	return strings.Join(parts, ", ")
}

// environmentPath returns the on-disk checkout for an environment, or
// "" when it is not materialized locally.
func (m *Manager) environmentPath(name string) string {
	if m.stacksDir == "" {
		return ""
	}
	path := filepath.Join(m.stacksDir, name)
	if looksLikeCheckout(path) {
		return path
	}
	return ""
}

func (m *Manager) onDiskEnvironments() []string {
	if m.stacksDir == "" {
		return nil
	}
	entries, err := os.ReadDir(m.stacksDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if looksLikeCheckout(filepath.Join(m.stacksDir, entry.Name())) {
			names = append(names, entry.Name())
		}
	}
	return names
}
