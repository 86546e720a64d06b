// Package ports implements the pre-start port check and the override
// path used to clear conflicts. Start is never attempted blindly: the
// lifecycle manager calls Preflight before every start and only issues
// the start when no conflicts remain.
package ports

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/ushadow/orchestrator/models"
)

// ErrPortOutOfRange is returned for overrides outside [1, 65535]. The
// check runs before any call or store write is made.
var ErrPortOutOfRange = errors.New("port must be between 1 and 65535")

// ErrUnresolvableConflict is returned when a conflict on a hard-coded
// port is submitted for resolution.
var ErrUnresolvableConflict = errors.New("port is hard-coded and cannot be overridden")

const dialTimeout = 250 * time.Millisecond

// suggestionWindow bounds the scan for a free alternate port.
const suggestionWindow = 100

// PortSource supplies a service's required ports with overrides applied
// and persists new overrides.
type PortSource interface {
	RequiredPorts(serviceID string) ([]models.ServicePort, error)
	SetPortOverride(serviceID, envVar string, port int) error
}

// Probe reports whether a TCP port on the local host is in use.
type Probe func(port int) bool

// Resolver performs preflight checks and persists port overrides.
type Resolver struct {
	source PortSource
	inUse  Probe
}

// NewResolver creates a resolver over the given port source. A nil
// probe uses a TCP dial against localhost.
func NewResolver(source PortSource, probe Probe) *Resolver {
	if probe == nil {
		probe = dialProbe
	}
	return &Resolver{source: source, inUse: probe}
}

// Preflight checks every required port for a service. CanStart is false
// exactly when conflicts were found. Conflicts are transient: they are
// returned to the caller and never persisted.
func (r *Resolver) Preflight(ctx context.Context, serviceID string) (models.PreflightResult, error) {
	required, err := r.source.RequiredPorts(serviceID)
	if err != nil {
		return models.PreflightResult{}, err
	}

	var conflicts []models.PortConflict
	for _, p := range required {
		if err := ctx.Err(); err != nil {
			return models.PreflightResult{}, err
		}
		if !r.inUse(p.Port) {
			continue
		}
		conflicts = append(conflicts, models.PortConflict{
			Port:          p.Port,
			EnvVar:        p.EnvVar,
			UsedBy:        describeListener(ctx, p.Port),
			SuggestedPort: r.suggestPort(p.Port),
		})
	}

	return models.PreflightResult{
		CanStart:  len(conflicts) == 0,
		Conflicts: conflicts,
	}, nil
}

// Resolve persists a port override for an env-var binding. The range
// check runs client-side before anything is issued; the control plane
// is expected to validate again.
func (r *Resolver) Resolve(serviceID, envVar string, newPort int) error {
	if newPort < 1 || newPort > 65535 {
		return fmt.Errorf("%w: got %d", ErrPortOutOfRange, newPort)
	}
	if envVar == "" {
		return ErrUnresolvableConflict
	}
	return r.source.SetPortOverride(serviceID, envVar, newPort)
}

// suggestPort scans upward from the conflicted port for a free one.
// Returns 0 when the whole window is occupied, which leaves remediation
// to the caller.
func (r *Resolver) suggestPort(conflicted int) int {
	for candidate := conflicted + 1; candidate <= conflicted+suggestionWindow && candidate <= 65535; candidate++ {
		if !r.inUse(candidate) {
			return candidate
		}
	}
	return 0
}

// dialProbe treats a successful TCP connect as "in use".
func dialProbe(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// describeListener names the process listening on a port, best effort.
func describeListener(ctx context.Context, port int) string {
	out, err := exec.CommandContext(ctx, "lsof", "-i", fmt.Sprintf("tcp:%d", port), "-sTCP:LISTEN", "-Fc").Output()
	if err != nil {
		return "another process"
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "c") && len(line) > 1 {
			return line[1:]
		}
	}
	return "another process"
}
