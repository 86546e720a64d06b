// Package registry holds the catalog of installable service instances
// and derives each service's effective configuration by merging its
// declared schema with the persisted settings stores.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ushadow/orchestrator/internal/settings"
	"github.com/ushadow/orchestrator/models"
)

// ErrNotLoaded is returned when the catalog is consulted before Load.
var ErrNotLoaded = fmt.Errorf("service catalog not loaded")

// ErrUnknownService is returned for service ids absent from the catalog.
var ErrUnknownService = fmt.Errorf("unknown service")

// Registry is the service catalog plus the effective-config view over
// the persisted stores. The catalog is immutable after Load; effective
// config entries are replaced wholesale per service, never patched.
type Registry struct {
	composeDir string
	secrets    *settings.Secrets
	prefs      *settings.Prefs

	mu        sync.RWMutex
	services  []models.ServiceInstance
	byID      map[string]int
	effective models.EffectiveConfig
}

// New creates a registry over the catalog dir and settings stores.
func New(composeDir string, secrets *settings.Secrets, prefs *settings.Prefs) *Registry {
	return &Registry{
		composeDir: composeDir,
		secrets:    secrets,
		prefs:      prefs,
	}
}

// Load reads the catalog and the persisted configuration in parallel,
// then computes the effective config for every service. Any failure
// aborts the whole load; the registry never exposes a partial catalog.
func (r *Registry) Load(ctx context.Context) ([]models.ServiceInstance, models.EffectiveConfig, error) {
	var (
		services []models.ServiceInstance
		apiKeys  map[string]string
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		services, err = loadCatalog(r.composeDir)
		return err
	})
	g.Go(func() error {
		apiKeys = r.secrets.Snapshot()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("catalog load failed: %w", err)
	}

	effective := make(models.EffectiveConfig, len(services))
	byID := make(map[string]int, len(services))

	for i := range services {
		svc := &services[i]
		svc.Enabled = r.prefs.Enabled(svc.ServiceID)
		byID[svc.ServiceID] = i
		effective[svc.ServiceID] = r.mergeService(svc, apiKeys)
	}

	r.mu.Lock()
	r.services = services
	r.byID = byID
	r.effective = effective
	r.mu.Unlock()

	return r.Services(), r.Effective(), nil
}

// mergeService builds one service's effective value map. Fields bound to
// an environment variable read from the API-key store by lower-cased
// variable name; all others read from the preference store. Missing
// values are omitted so non-emptiness means configured.
func (r *Registry) mergeService(svc *models.ServiceInstance, apiKeys map[string]string) map[string]string {
	values := make(map[string]string)
	for _, field := range svc.ConfigSchema {
		var v string
		if field.EnvVar != "" {
			v = apiKeys[strings.ToLower(field.EnvVar)]
		} else {
			v = r.prefs.Value(svc.ServiceID, field.Key)
		}
		if v != "" {
			values[field.Key] = v
		}
	}
	return values
}

// Services returns a copy of the loaded catalog.
func (r *Registry) Services() []models.ServiceInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ServiceInstance, len(r.services))
	copy(out, r.services)
	return out
}

// Get returns one service instance by id.
func (r *Registry) Get(serviceID string) (models.ServiceInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byID[serviceID]
	if !ok {
		return models.ServiceInstance{}, false
	}
	return r.services[i], true
}

// Effective returns a copy of the current effective config map.
func (r *Registry) Effective() models.EffectiveConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(models.EffectiveConfig, len(r.effective))
	for id, values := range r.effective {
		copied := make(map[string]string, len(values))
		for k, v := range values {
			copied[k] = v
		}
		out[id] = copied
	}
	return out
}

// Configured reports whether a service has any effective configuration.
func (r *Registry) Configured(serviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.effective[serviceID]) > 0
}

// APIKeysConfigured reports the onboarding API-key requirement.
func (r *Registry) APIKeysConfigured() bool {
	return r.secrets.APIKeysConfigured()
}

// SaveConfig validates and persists field values for a service. Every
// required schema field must end up non-empty; on validation failure the
// field-keyed messages are returned and nothing is persisted.
func (r *Registry) SaveConfig(serviceID string, values map[string]string) (map[string]string, error) {
	svc, ok := r.Get(serviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}

	fieldErrors := make(map[string]string)
	current := r.Effective()[serviceID]
	for _, field := range svc.ConfigSchema {
		if !field.Required {
			continue
		}
		v, provided := values[field.Key]
		if !provided {
			v = current[field.Key]
		}
		if strings.TrimSpace(v) == "" {
			fieldErrors[field.Key] = fmt.Sprintf("%s is required", field.Label)
		}
	}
	if len(fieldErrors) > 0 {
		return fieldErrors, nil
	}

	// Split updates by backing store.
	secretUpdates := make(map[string]string)
	prefUpdates := make(map[string]string)
	for _, field := range svc.ConfigSchema {
		v, provided := values[field.Key]
		if !provided {
			continue
		}
		if field.EnvVar != "" {
			secretUpdates[field.EnvVar] = v
		} else {
			prefUpdates[field.Key] = v
		}
	}

	if len(secretUpdates) > 0 {
		if err := r.secrets.SetAll(secretUpdates); err != nil {
			return nil, fmt.Errorf("failed to persist config for %s: %w", serviceID, err)
		}
	}
	if len(prefUpdates) > 0 {
		if err := r.prefs.SetValues(serviceID, prefUpdates); err != nil {
			return nil, fmt.Errorf("failed to persist config for %s: %w", serviceID, err)
		}
	}

	r.refreshService(serviceID)
	return nil, nil
}

// SetEnabled persists the enabled flag and updates the catalog view.
// Enabled is independent of running state.
func (r *Registry) SetEnabled(serviceID string, enabled bool) error {
	r.mu.RLock()
	_, ok := r.byID[serviceID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}

	if err := r.prefs.SetEnabled(serviceID, enabled); err != nil {
		return fmt.Errorf("failed to persist enabled flag for %s: %w", serviceID, err)
	}

	r.mu.Lock()
	if i, ok := r.byID[serviceID]; ok {
		r.services[i].Enabled = enabled
	}
	r.mu.Unlock()
	return nil
}

// RequiredPorts returns the ports a service will bind on start, with
// persisted overrides applied.
func (r *Registry) RequiredPorts(serviceID string) ([]models.ServicePort, error) {
	svc, ok := r.Get(serviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}

	ports := make([]models.ServicePort, len(svc.Ports))
	copy(ports, svc.Ports)
	for i := range ports {
		if ports[i].EnvVar == "" {
			continue
		}
		if override := r.prefs.PortOverride(serviceID, ports[i].EnvVar); override != 0 {
			ports[i].Port = override
		}
	}
	return ports, nil
}

// SetPortOverride persists a port override for an env-var binding.
func (r *Registry) SetPortOverride(serviceID, envVar string, port int) error {
	if _, ok := r.Get(serviceID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}
	if err := r.prefs.SetPortOverride(serviceID, envVar, port); err != nil {
		return fmt.Errorf("failed to persist port override for %s: %w", serviceID, err)
	}
	return nil
}

// refreshService recomputes one service's effective entry and swaps it
// in atomically.
func (r *Registry) refreshService(serviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byID[serviceID]
	if !ok {
		return
	}
	r.effective[serviceID] = r.mergeService(&r.services[i], r.secrets.Snapshot())
}
