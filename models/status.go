package models

import "time"

// ContainerState is the coarse run state reported by the status probe.
type ContainerState string

const (
	StateRunning  ContainerState = "running"
	StateExited   ContainerState = "exited"
	StateStopped  ContainerState = "stopped"
	StateNotFound ContainerState = "not_found"
)

// HealthState is the optional container health as reported by the runtime.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthStarting  HealthState = "starting"
)

// ContainerStatus is a timestamped snapshot of one service's backing
// container. It may be stale by up to one poll interval; callers must
// re-probe after a mutating operation before trusting it.
type ContainerStatus struct {
	Status      ContainerState `json:"status"`
	ContainerID string         `json:"container_id,omitempty"`
	Health      HealthState    `json:"health,omitempty"`
	ObservedAt  time.Time      `json:"observed_at"`
}

// Running reports whether the snapshot shows a running container.
func (s ContainerStatus) Running() bool {
	return s.Status == StateRunning
}

// PortConflict describes one occupied port found during preflight.
// EnvVar is empty when the port is hard-coded and cannot be overridden;
// such conflicts can only be cleared out-of-band. SuggestedPort is zero
// when no free alternate was found nearby.
type PortConflict struct {
	Port          int    `json:"port"`
	EnvVar        string `json:"env_var,omitempty"`
	UsedBy        string `json:"used_by"`
	SuggestedPort int    `json:"suggested_port,omitempty"`
}

// Resolvable reports whether the conflict can be fixed with a port override.
func (c PortConflict) Resolvable() bool {
	return c.EnvVar != ""
}

// PreflightResult is the outcome of a pre-start port check. CanStart is
// false exactly when Conflicts is non-empty.
type PreflightResult struct {
	CanStart  bool           `json:"can_start"`
	Conflicts []PortConflict `json:"conflicts"`
}
