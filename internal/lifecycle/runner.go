package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ushadow/orchestrator/models"
)

// ComposeRunner starts and stops local services through the docker
// compose CLI, using the compose file recorded in the catalog.
type ComposeRunner struct {
	// ProjectName is passed as -p so all managed services land in
	// one compose project regardless of directory layout.
	ProjectName string
}

func NewComposeRunner(projectName string) *ComposeRunner {
	return &ComposeRunner{ProjectName: projectName}
}

func (r *ComposeRunner) StartService(ctx context.Context, svc models.ServiceInstance, env map[string]string) error {
	if svc.ComposeFile == "" {
		return fmt.Errorf("service %s has no compose file", svc.ServiceID)
	}

	args := r.composeArgs(svc, "up", "-d", "--remove-orphans")
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Env = composeEnv(env)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker compose up for %s: %w (%s)", svc.ServiceID, err, lastLine(output))
	}
	return nil
}

func (r *ComposeRunner) StopService(ctx context.Context, svc models.ServiceInstance) error {
	if svc.ComposeFile == "" {
		return fmt.Errorf("service %s has no compose file", svc.ServiceID)
	}

	// stop, not down: containers keep their state and can restart fast.
	args := r.composeArgs(svc, "stop")
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Env = os.Environ()
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker compose stop for %s: %w (%s)", svc.ServiceID, err, lastLine(output))
	}
	return nil
}

func (r *ComposeRunner) composeArgs(svc models.ServiceInstance, verb string, extra ...string) []string {
	args := []string{"compose"}
	if r.ProjectName != "" {
		args = append(args, "-p", r.ProjectName)
	}
	args = append(args, "-f", svc.ComposeFile, verb)
	return append(args, extra...)
}

func composeEnv(env map[string]string) []string {
	out := os.Environ()
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// lastLine returns the final non-empty line of compose output, which is
// where compose puts the actual error.
func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return "no output"
}
