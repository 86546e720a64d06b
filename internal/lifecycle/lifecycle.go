// Package lifecycle drives per-service start/stop state machines. Each
// service id has exactly one logical owner; operations against
// different services run concurrently without coordination.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ushadow/orchestrator/models"
)

var (
	ErrUnknownService    = errors.New("unknown service")
	ErrOperationInFlight = errors.New("operation already in flight")
	ErrStopNotConfirmed  = errors.New("stop requires confirmation")
)

// State is the lifecycle position of one service.
//
//	idle → preflighting → conflicted | starting | failed
//	idle(running) → confirming → stopping → idle
type State string

const (
	StateIdle         State = "idle"
	StatePreflighting State = "preflighting"
	StateConflicted   State = "conflicted"
	StateStarting     State = "starting"
	StateFailed       State = "failed"
	StateConfirming   State = "confirming"
	StateStopping     State = "stopping"
)

// Catalog is the registry surface the manager consumes.
type Catalog interface {
	Get(serviceID string) (models.ServiceInstance, bool)
	Effective() models.EffectiveConfig
	RequiredPorts(serviceID string) ([]models.ServicePort, error)
	SetEnabled(serviceID string, enabled bool) error
	SaveConfig(serviceID string, values map[string]string) (map[string]string, error)
}

// Preflighter checks and overrides port bindings ahead of a start.
type Preflighter interface {
	Preflight(ctx context.Context, serviceID string) (models.PreflightResult, error)
	Resolve(serviceID, envVar string, newPort int) error
}

// Runner issues the external start/stop calls for local services.
type Runner interface {
	StartService(ctx context.Context, svc models.ServiceInstance, env map[string]string) error
	StopService(ctx context.Context, svc models.ServiceInstance) error
}

// StatusProber observes the container backing a service.
type StatusProber interface {
	ServiceStatus(ctx context.Context, serviceID string) (models.ContainerStatus, error)
}

// ServiceView is the externally visible snapshot for one service.
type ServiceView struct {
	ServiceID string                 `json:"service_id"`
	Enabled   bool                   `json:"enabled"`
	State     State                  `json:"state"`
	Status    models.ContainerStatus `json:"status"`
	Conflicts []models.PortConflict  `json:"conflicts,omitempty"`
	LastError string                 `json:"last_error,omitempty"`
}

// Notifier receives a view after every visible state change. Used to
// feed the websocket hub; may be nil.
type Notifier func(view ServiceView)

type serviceState struct {
	mu        sync.Mutex
	state     State
	opID      string
	conflicts []models.PortConflict
	lastError string
	status    models.ContainerStatus

	// Optimistic enabled override, tagged so a stale persist
	// completion cannot clobber a newer toggle.
	enabled       *bool
	enabledIntent string
}

// Manager owns the lifecycle state for every catalog service.
type Manager struct {
	catalog Catalog
	ports   Preflighter
	runner  Runner
	probe   StatusProber
	notify  Notifier

	mu     sync.RWMutex
	states map[string]*serviceState
}

func NewManager(catalog Catalog, ports Preflighter, runner Runner, probe StatusProber, notify Notifier) *Manager {
	return &Manager{
		catalog: catalog,
		ports:   ports,
		runner:  runner,
		probe:   probe,
		notify:  notify,
		states:  make(map[string]*serviceState),
	}
}

func (m *Manager) state(serviceID string) *serviceState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[serviceID]
	if !ok {
		st = &serviceState{state: StateIdle}
		m.states[serviceID] = st
	}
	return st
}

// Start runs the full preflight→start protocol for one service. A
// conflicted preflight is an expected outcome, not an error: the result
// carries the conflict list and the service parks in the conflicted
// state awaiting resolution. Start never double-issues while another
// operation for the same id is in flight.
func (m *Manager) Start(ctx context.Context, serviceID string) (models.PreflightResult, error) {
	svc, ok := m.catalog.Get(serviceID)
	if !ok {
		return models.PreflightResult{}, fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}

	st := m.state(serviceID)
	st.mu.Lock()
	switch st.state {
	case StatePreflighting, StateStarting, StateStopping:
		st.mu.Unlock()
		return models.PreflightResult{}, fmt.Errorf("%w: %s", ErrOperationInFlight, serviceID)
	}
	opID := uuid.NewString()
	st.state = StatePreflighting
	st.opID = opID
	st.conflicts = nil
	st.lastError = ""
	st.mu.Unlock()
	m.emit(serviceID)

	result, err := m.ports.Preflight(ctx, serviceID)

	st.mu.Lock()
	if st.opID != opID {
		// Superseded while we were preflighting; discard.
		st.mu.Unlock()
		return models.PreflightResult{}, nil
	}
	if err != nil {
		st.state = StateFailed
		st.lastError = err.Error()
		st.opID = ""
		st.mu.Unlock()
		m.emit(serviceID)
		return models.PreflightResult{}, fmt.Errorf("preflight for %s: %w", serviceID, err)
	}
	if !result.CanStart {
		st.state = StateConflicted
		st.conflicts = result.Conflicts
		st.opID = ""
		st.mu.Unlock()
		m.emit(serviceID)
		log.Printf("Service %s blocked by %d port conflict(s)", serviceID, len(result.Conflicts))
		return result, nil
	}
	st.state = StateStarting
	st.mu.Unlock()
	m.emit(serviceID)

	err = m.runner.StartService(ctx, svc, m.startEnv(svc))

	st.mu.Lock()
	if st.opID != opID {
		st.mu.Unlock()
		return result, nil
	}
	st.opID = ""
	if err != nil {
		// Roll back the transient starting mark; enabled is untouched.
		st.state = StateFailed
		st.lastError = err.Error()
		st.mu.Unlock()
		m.emit(serviceID)
		return result, fmt.Errorf("failed to start %s: %w", serviceID, err)
	}
	// Stays "starting" until the next probe confirms the container.
	st.mu.Unlock()
	m.emit(serviceID)
	log.Printf("Service %s start issued", serviceID)
	return result, nil
}

// Preflight runs the port check without starting anything and without
// touching lifecycle state.
func (m *Manager) Preflight(ctx context.Context, serviceID string) (models.PreflightResult, error) {
	if _, ok := m.catalog.Get(serviceID); !ok {
		return models.PreflightResult{}, fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}
	return m.ports.Preflight(ctx, serviceID)
}

// ConfirmStop arms the stop for a service. Stopping can be destructive
// to in-flight work in dependent services, so Stop refuses to run
// without this step.
func (m *Manager) ConfirmStop(serviceID string) error {
	if _, ok := m.catalog.Get(serviceID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}

	st := m.state(serviceID)
	st.mu.Lock()
	defer st.mu.Unlock()
	switch st.state {
	case StatePreflighting, StateStarting, StateStopping:
		return fmt.Errorf("%w: %s", ErrOperationInFlight, serviceID)
	}
	st.state = StateConfirming
	return nil
}

// CancelStop disarms a pending stop confirmation.
func (m *Manager) CancelStop(serviceID string) {
	st := m.state(serviceID)
	st.mu.Lock()
	if st.state == StateConfirming {
		st.state = StateIdle
	}
	st.mu.Unlock()
}

// Stop issues the external stop call. It requires a prior ConfirmStop.
func (m *Manager) Stop(ctx context.Context, serviceID string) error {
	svc, ok := m.catalog.Get(serviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}

	st := m.state(serviceID)
	st.mu.Lock()
	if st.state != StateConfirming {
		st.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStopNotConfirmed, serviceID)
	}
	opID := uuid.NewString()
	st.state = StateStopping
	st.opID = opID
	st.lastError = ""
	st.mu.Unlock()
	m.emit(serviceID)

	err := m.runner.StopService(ctx, svc)

	st.mu.Lock()
	if st.opID != opID {
		st.mu.Unlock()
		return nil
	}
	st.opID = ""
	if err != nil {
		st.state = StateIdle
		st.lastError = err.Error()
		st.mu.Unlock()
		m.emit(serviceID)
		return fmt.Errorf("failed to stop %s: %w", serviceID, err)
	}
	// Stays "stopping" until the next probe confirms.
	st.mu.Unlock()
	m.emit(serviceID)
	log.Printf("Service %s stop issued", serviceID)
	return nil
}

// ResolvePortConflict persists a port override and immediately re-runs
// the full preflight→start protocol. Re-running guards against a second
// conflict appearing after the first was fixed. Out-of-range ports are
// rejected before any call is issued.
func (m *Manager) ResolvePortConflict(ctx context.Context, serviceID, envVar string, newPort int) (models.PreflightResult, error) {
	if err := m.ports.Resolve(serviceID, envVar, newPort); err != nil {
		return models.PreflightResult{}, err
	}

	st := m.state(serviceID)
	st.mu.Lock()
	if st.state == StateConflicted {
		st.state = StateIdle
		st.conflicts = nil
	}
	st.mu.Unlock()

	return m.Start(ctx, serviceID)
}

// ToggleEnabled flips the enabled flag optimistically and persists it.
// Enabled is independent of running state: disabling does not stop the
// service. A stale persist completion never overrides a newer toggle,
// so the visible state always matches the last user intent.
func (m *Manager) ToggleEnabled(serviceID string, enabled bool) error {
	if _, ok := m.catalog.Get(serviceID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}

	st := m.state(serviceID)
	st.mu.Lock()
	intent := uuid.NewString()
	st.enabledIntent = intent
	v := enabled
	st.enabled = &v
	st.mu.Unlock()
	m.emit(serviceID)

	err := m.catalog.SetEnabled(serviceID, enabled)

	st.mu.Lock()
	if st.enabledIntent != intent {
		// A newer toggle owns the visible state; discard this
		// completion entirely.
		st.mu.Unlock()
		return nil
	}
	st.enabledIntent = ""
	st.enabled = nil
	if err != nil {
		st.lastError = err.Error()
		st.mu.Unlock()
		m.emit(serviceID)
		return fmt.Errorf("failed to set enabled for %s: %w", serviceID, err)
	}
	st.mu.Unlock()
	m.emit(serviceID)
	return nil
}

// SaveConfig validates and persists config values via the registry.
// Field-keyed validation errors come back without any persist call.
func (m *Manager) SaveConfig(serviceID string, values map[string]string) (map[string]string, error) {
	fieldErrors, err := m.catalog.SaveConfig(serviceID, values)
	if err == nil && len(fieldErrors) == 0 {
		m.emit(serviceID)
	}
	return fieldErrors, err
}

// RefreshStatus re-probes one service and replaces its status snapshot
// wholesale. Transient starting/stopping marks clear once the probe
// confirms the transition. Cloud-mode services have no container; for
// them a non-empty effective config stands in for running.
func (m *Manager) RefreshStatus(ctx context.Context, serviceID string) (models.ContainerStatus, error) {
	svc, ok := m.catalog.Get(serviceID)
	if !ok {
		return models.ContainerStatus{}, fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}

	var status models.ContainerStatus
	if svc.Mode == models.ModeCloud {
		status = models.ContainerStatus{Status: models.StateNotFound, ObservedAt: time.Now().UTC()}
		if m.catalog.Effective().Configured(serviceID) {
			status.Status = models.StateRunning
		}
	} else {
		var err error
		status, err = m.probe.ServiceStatus(ctx, serviceID)
		if err != nil {
			return status, fmt.Errorf("status probe for %s: %w", serviceID, err)
		}
	}

	st := m.state(serviceID)
	st.mu.Lock()
	st.status = status
	switch {
	case st.state == StateStarting && status.Running():
		st.state = StateIdle
	case st.state == StateStopping && !status.Running():
		st.state = StateIdle
	}
	st.mu.Unlock()
	m.emit(serviceID)
	return status, nil
}

// RefreshAll re-probes every catalog service concurrently.
func (m *Manager) RefreshAll(ctx context.Context, serviceIDs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range serviceIDs {
		id := id
		g.Go(func() error {
			_, err := m.RefreshStatus(ctx, id)
			return err
		})
	}
	return g.Wait()
}

// View returns the current snapshot for one service.
func (m *Manager) View(serviceID string) (ServiceView, error) {
	svc, ok := m.catalog.Get(serviceID)
	if !ok {
		return ServiceView{}, fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}
	return m.view(svc), nil
}

func (m *Manager) view(svc models.ServiceInstance) ServiceView {
	st := m.state(svc.ServiceID)
	st.mu.Lock()
	defer st.mu.Unlock()

	view := ServiceView{
		ServiceID: svc.ServiceID,
		Enabled:   svc.Enabled,
		State:     st.state,
		Status:    st.status,
		LastError: st.lastError,
	}
	if st.enabled != nil {
		view.Enabled = *st.enabled
	}
	if len(st.conflicts) > 0 {
		view.Conflicts = append([]models.PortConflict(nil), st.conflicts...)
	}
	return view
}

func (m *Manager) emit(serviceID string) {
	if m.notify == nil {
		return
	}
	svc, ok := m.catalog.Get(serviceID)
	if !ok {
		return
	}
	m.notify(m.view(svc))
}

// startEnv assembles the environment for the external start call:
// env-var bound config values plus port bindings with overrides applied.
func (m *Manager) startEnv(svc models.ServiceInstance) map[string]string {
	env := make(map[string]string)
	values := m.catalog.Effective()[svc.ServiceID]
	for _, field := range svc.ConfigSchema {
		if field.EnvVar == "" {
			continue
		}
		if v, ok := values[field.Key]; ok {
			env[field.EnvVar] = v
		}
	}
	ports, err := m.catalog.RequiredPorts(svc.ServiceID)
	if err != nil {
		return env
	}
	for _, p := range ports {
		if p.EnvVar != "" {
			env[p.EnvVar] = strconv.Itoa(p.Port)
		}
	}
	return env
}
