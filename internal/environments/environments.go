// Package environments discovers and manages named copies of the full
// service stack. Discovery is a read-only scan of the container
// runtime; provisioning happens through three strategies (clone, link,
// worktree) that all converge on the same Environment record.
package environments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/go-playground/validator/v10"

	"github.com/ushadow/orchestrator/internal/gitx"
	"github.com/ushadow/orchestrator/models"
)

var (
	ErrUnknownEnvironment = errors.New("unknown environment")
	ErrInvalidName        = errors.New("invalid environment name")
	ErrNotACheckout       = errors.New("path is not a stack checkout")
	ErrAlreadyExists      = errors.New("environment already exists")
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ContainerScanner is the Docker surface discovery and runtime control
// need.
type ContainerScanner interface {
	Scan(ctx context.Context) ([]container.Summary, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string) error
}

// GitClient covers the two provisioning strategies that touch git.
type GitClient interface {
	Clone(ctx context.Context, url, dest string) error
	WorktreeAdd(ctx context.Context, repo, dest, branch string) error
}

// MeshResolver probes a running backend for its mesh URL. Returns ""
// when the environment is not reachable over the mesh.
type MeshResolver func(ctx context.Context, backendPort int) string

// Manager owns environment discovery, provisioning and runtime control.
type Manager struct {
	scanner         ContainerScanner
	git             GitClient
	stacksDir       string
	primaryCheckout string
	stackRemote     string
	mesh            MeshResolver
	open            func(url string) error
	validate        *validator.Validate

	mu        sync.Mutex
	creations map[string]*models.CreationStatus
}

type Option func(*Manager)

func WithMeshResolver(r MeshResolver) Option {
	return func(m *Manager) { m.mesh = r }
}

func WithOpener(open func(url string) error) Option {
	return func(m *Manager) { m.open = open }
}

func WithGitClient(g GitClient) Option {
	return func(m *Manager) { m.git = g }
}

func NewManager(scanner ContainerScanner, stacksDir, primaryCheckout, stackRemote string, opts ...Option) *Manager {
	m := &Manager{
		scanner:         scanner,
		git:             execGit{},
		stacksDir:       stacksDir,
		primaryCheckout: primaryCheckout,
		stackRemote:     stackRemote,
		mesh:            httpMeshResolver,
		open:            openBrowser,
		validate:        validator.New(),
		creations:       make(map[string]*models.CreationStatus),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type execGit struct{}

func (execGit) Clone(ctx context.Context, url, dest string) error {
	return gitx.Clone(ctx, url, dest)
}

func (execGit) WorktreeAdd(ctx context.Context, repo, dest, branch string) error {
	return gitx.WorktreeAdd(ctx, repo, dest, branch)
}

// leaderInfo is the payload the backend serves on its leader-info
// endpoint when it participates in the mesh.
type leaderInfo struct {
	APIURL string `json:"ushadow_api_url"`
}

// httpMeshResolver asks the backend for its mesh URL with a short
// timeout; an unreachable or mesh-less backend simply yields "".
func httpMeshResolver(ctx context.Context, backendPort int) string {
	client := &http.Client{Timeout: 2 * time.Second}
	url := fmt.Sprintf("http://localhost:%d/api/unodes/leader/info", backendPort)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	resp, err := client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var info leaderInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ""
	}
	return info.APIURL
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
