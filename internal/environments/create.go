package environments

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ushadow/orchestrator/models"
)

// Strategy selects how a new environment's directory is populated.
type Strategy string

const (
	StrategyClone    Strategy = "clone"
	StrategyLink     Strategy = "link"
	StrategyWorktree Strategy = "worktree"
)

// CreateRequest is the tagged union at the provisioning boundary. The
// strategy tag decides which of the optional fields apply; all three
// strategies converge on the same Environment record.
type CreateRequest struct {
	Strategy Strategy `json:"strategy" validate:"required,oneof=clone link worktree"`

	// Clone: hot-reload dev server vs. production build.
	ServerMode string `json:"server_mode,omitempty" validate:"omitempty,oneof=dev prod"`

	// Link: existing on-disk checkout to register.
	Path string `json:"path,omitempty"`

	// Worktree: branch to check out; defaults to the environment name.
	Branch string `json:"branch,omitempty"`
}

// envMarker is written into every provisioned directory so discovery
// can tell stack checkouts from unrelated directories.
type envMarker struct {
	Name       string    `yaml:"name"`
	Strategy   string    `yaml:"strategy"`
	ServerMode string    `yaml:"server_mode,omitempty"`
	SourcePath string    `yaml:"source_path,omitempty"`
	CreatedAt  time.Time `yaml:"created_at"`
}

const markerFile = ".ushadow-env.yaml"

// Create provisions a new environment. A failed creation registers no
// partial environment: the tracker entry is marked errored and stays
// visible until dismissed. Partial disk state is not rolled back.
func (m *Manager) Create(ctx context.Context, name string, req CreateRequest) (models.Environment, error) {
	if !namePattern.MatchString(name) {
		return models.Environment{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := m.validate.Struct(req); err != nil {
		return models.Environment{}, fmt.Errorf("invalid create request: %w", err)
	}

	m.mu.Lock()
	if entry, ok := m.creations[name]; ok && entry.Creating {
		m.mu.Unlock()
		return models.Environment{}, fmt.Errorf("%w: creation for %q already in flight", ErrAlreadyExists, name)
	}
	m.creations[name] = &models.CreationStatus{Name: name, Strategy: string(req.Strategy), Creating: true}
	m.mu.Unlock()

	env, err := m.provision(ctx, name, req)

	m.mu.Lock()
	if err != nil {
		m.creations[name] = &models.CreationStatus{
			Name:     name,
			Strategy: string(req.Strategy),
			Error:    err.Error(),
		}
		m.mu.Unlock()
		return models.Environment{}, err
	}
	delete(m.creations, name)
	m.mu.Unlock()

	log.Printf("Environment %s created via %s at %s", name, req.Strategy, env.Path)
	return env, nil
}

func (m *Manager) provision(ctx context.Context, name string, req CreateRequest) (models.Environment, error) {
	switch req.Strategy {
	case StrategyClone:
		return m.provisionClone(ctx, name, req.ServerMode)
	case StrategyLink:
		return m.provisionLink(name, req.Path)
	case StrategyWorktree:
		return m.provisionWorktree(ctx, name, req.Branch)
	default:
		return models.Environment{}, fmt.Errorf("unknown strategy %q", req.Strategy)
	}
}

func (m *Manager) provisionClone(ctx context.Context, name, serverMode string) (models.Environment, error) {
	dest := filepath.Join(m.stacksDir, name)
	if _, err := os.Stat(dest); err == nil {
		return models.Environment{}, fmt.Errorf("%w: %s", ErrAlreadyExists, dest)
	}
	if serverMode == "" {
		serverMode = "dev"
	}

	if err := m.git.Clone(ctx, m.stackRemote, dest); err != nil {
		return models.Environment{}, err
	}
	if err := m.writeMarker(dest, envMarker{Name: name, Strategy: string(StrategyClone), ServerMode: serverMode}); err != nil {
		return models.Environment{}, err
	}
	return models.Environment{Name: name, Path: dest}, nil
}

// provisionLink registers an existing checkout without fetching
// anything. The path must already look like a stack checkout.
func (m *Manager) provisionLink(name, path string) (models.Environment, error) {
	if path == "" {
		return models.Environment{}, fmt.Errorf("%w: link requires a path", ErrNotACheckout)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return models.Environment{}, fmt.Errorf("%w: %s", ErrNotACheckout, path)
	}
	if !hasStackLayout(path) {
		return models.Environment{}, fmt.Errorf("%w: %s", ErrNotACheckout, path)
	}

	if err := m.writeMarker(path, envMarker{Name: name, Strategy: string(StrategyLink), SourcePath: path}); err != nil {
		return models.Environment{}, err
	}
	return models.Environment{Name: name, Path: path}, nil
}

func (m *Manager) provisionWorktree(ctx context.Context, name, branch string) (models.Environment, error) {
	dest := filepath.Join(m.stacksDir, name)
	if _, err := os.Stat(dest); err == nil {
		return models.Environment{}, fmt.Errorf("%w: %s", ErrAlreadyExists, dest)
	}
	if branch == "" {
		// The branch defaults to the environment name exactly.
		branch = name
	}

	if err := m.git.WorktreeAdd(ctx, m.primaryCheckout, dest, branch); err != nil {
		return models.Environment{}, err
	}
	if err := m.writeMarker(dest, envMarker{Name: name, Strategy: string(StrategyWorktree)}); err != nil {
		return models.Environment{}, err
	}
	return models.Environment{Name: name, Path: dest}, nil
}

// Creations returns the tracked in-flight and errored creations.
func (m *Manager) Creations() []models.CreationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.CreationStatus, 0, len(m.creations))
	for _, entry := range m.creations {
		out = append(out, *entry)
	}
	return out
}

// Dismiss removes an errored creation from the tracked list. It does
// not roll back partial filesystem or container state; cleanup is an
// operator responsibility.
func (m *Manager) Dismiss(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.creations[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEnvironment, name)
	}
	if entry.Creating {
		return fmt.Errorf("creation for %q still in flight", name)
	}
	delete(m.creations, name)
	return nil
}

func (m *Manager) writeMarker(dir string, marker envMarker) error {
	marker.CreatedAt = time.Now().UTC()
	data, err := yaml.Marshal(marker)
	if err != nil {
		return fmt.Errorf("failed to encode environment marker: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, markerFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write environment marker: %w", err)
	}
	return nil
}

// looksLikeCheckout accepts directories carrying an environment marker
// or the stack's own layout.
func looksLikeCheckout(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, markerFile)); err == nil {
		return true
	}
	return hasStackLayout(dir)
}

// hasStackLayout checks for the files every stack checkout carries.
func hasStackLayout(dir string) bool {
	for _, candidate := range []string{"docker-compose.yml", "docker-compose.yaml", "start-dev.sh"} {
		if _, err := os.Stat(filepath.Join(dir, candidate)); err == nil {
			return true
		}
	}
	if info, err := os.Stat(filepath.Join(dir, "compose")); err == nil && info.IsDir() {
		return true
	}
	return false
}
