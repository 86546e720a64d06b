package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Prefs is the per-service preference store. It holds schema field
// values without an environment-variable binding, the enabled flag, and
// port overrides applied by the conflict resolver.
type Prefs struct {
	mu       sync.RWMutex
	path     string
	services map[string]*servicePrefs
}

type servicePrefs struct {
	// Enabled is a pointer so "never set" and "disabled" stay distinct;
	// services default to enabled.
	Enabled       *bool             `yaml:"enabled,omitempty"`
	Values        map[string]string `yaml:"values,omitempty"`
	PortOverrides map[string]int    `yaml:"port_overrides,omitempty"`
}

type prefsFile struct {
	InstalledServices map[string]*servicePrefs `yaml:"installed_services"`
}

// OpenPrefs loads (or initializes) the preference store under dir.
func OpenPrefs(dir string) (*Prefs, error) {
	p := &Prefs{
		path:     filepath.Join(dir, "settings.yaml"),
		services: make(map[string]*servicePrefs),
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("failed to read preference store: %w", err)
	}

	var file prefsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse preference store: %w", err)
	}
	if file.InstalledServices != nil {
		p.services = file.InstalledServices
	}

	return p, nil
}

// Value returns the stored value for a service's field key, or "".
func (p *Prefs) Value(serviceID, key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if sp := p.services[serviceID]; sp != nil {
		return sp.Values[key]
	}
	return ""
}

// SetValues replaces field values for a service in one write. Empty
// values remove the entry.
func (p *Prefs) SetValues(serviceID string, values map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sp := p.ensureLocked(serviceID)
	if sp.Values == nil {
		sp.Values = make(map[string]string)
	}
	for k, v := range values {
		if v == "" {
			delete(sp.Values, k)
		} else {
			sp.Values[k] = v
		}
	}

	return p.flushLocked()
}

// Enabled reports a service's enabled flag. Services are enabled by
// default until explicitly disabled.
func (p *Prefs) Enabled(serviceID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if sp := p.services[serviceID]; sp != nil && sp.Enabled != nil {
		return *sp.Enabled
	}
	return true
}

// SetEnabled persists a service's enabled flag.
func (p *Prefs) SetEnabled(serviceID string, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sp := p.ensureLocked(serviceID)
	sp.Enabled = &enabled

	return p.flushLocked()
}

// PortOverride returns the stored override for an env-var binding, or 0.
func (p *Prefs) PortOverride(serviceID, envVar string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if sp := p.services[serviceID]; sp != nil {
		return sp.PortOverrides[envVar]
	}
	return 0
}

// SetPortOverride persists a port override for an env-var binding.
func (p *Prefs) SetPortOverride(serviceID, envVar string, port int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sp := p.ensureLocked(serviceID)
	if sp.PortOverrides == nil {
		sp.PortOverrides = make(map[string]int)
	}
	sp.PortOverrides[envVar] = port

	return p.flushLocked()
}

func (p *Prefs) ensureLocked(serviceID string) *servicePrefs {
	sp := p.services[serviceID]
	if sp == nil {
		sp = &servicePrefs{}
		p.services[serviceID] = sp
	}
	return sp
}

func (p *Prefs) flushLocked() error {
	data, err := yaml.Marshal(prefsFile{InstalledServices: p.services})
	if err != nil {
		return fmt.Errorf("failed to encode preference store: %w", err)
	}
	return atomicWrite(p.path, data)
}
