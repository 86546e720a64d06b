package environments

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ushadow/orchestrator/models"
)

type fakeScanner struct {
	containers []container.Summary
	scanErr    error
	started    []string
	stopped    []string
}

func (f *fakeScanner) Scan(ctx context.Context) ([]container.Summary, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.containers, nil
}

func (f *fakeScanner) StartContainer(ctx context.Context, id string) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeScanner) StopContainer(ctx context.Context, id string) error {
	f.stopped = append(f.stopped, id)
	return nil
}

type fakeGit struct {
	cloneURL     string
	cloneDest    string
	worktreeRepo string
	worktreeDest string
	branch       string
	err          error
}

func (f *fakeGit) Clone(ctx context.Context, url, dest string) error {
	if f.err != nil {
		return f.err
	}
	f.cloneURL = url
	f.cloneDest = dest
	return os.MkdirAll(dest, 0o755)
}

func (f *fakeGit) WorktreeAdd(ctx context.Context, repo, dest, branch string) error {
	if f.err != nil {
		return f.err
	}
	f.worktreeRepo = repo
	f.worktreeDest = dest
	f.branch = branch
	return os.MkdirAll(dest, 0o755)
}

func summary(id, name, state string, ports ...container.Port) container.Summary {
	return container.Summary{ID: id, Names: []string{"/" + name}, State: state, Ports: ports}
}

func noMesh(ctx context.Context, port int) string { return "" }

func newTestManager(t *testing.T, scanner *fakeScanner, git *fakeGit, mesh MeshResolver) *Manager {
	t.Helper()
	if mesh == nil {
		mesh = noMesh
	}
	return NewManager(scanner, t.TempDir(), "/primary/checkout", "https://example.com/stack.git",
		WithGitClient(git), WithMeshResolver(mesh))
}

func TestDiscoverPartitionsContainers(t *testing.T) {
	scanner := &fakeScanner{containers: []container.Summary{
		summary("c1", "ushadow-backend", "running",
			container.Port{IP: "0.0.0.0", PrivatePort: 8000, PublicPort: 8000, Type: "tcp"}),
		summary("c2", "ushadow-webui", "running"),
		summary("c3", "ushadow-dev2-backend", "running",
			container.Port{IP: "0.0.0.0", PrivatePort: 8000, PublicPort: 8050, Type: "tcp"}),
		summary("c4", "ushadow-dev2-webui", "running"),
		summary("c5", "ushadow-chronicle-backend", "running"),
		summary("c6", "stack-redis-1", "running",
			container.Port{IP: "0.0.0.0", PrivatePort: 6379, PublicPort: 6379, Type: "tcp"}),
		summary("c7", "mongo", "exited"),
	}}
	mesh := func(ctx context.Context, port int) string {
		if port == 8000 {
			return "https://orchestrator.tail.example"
		}
		return ""
	}
	m := newTestManager(t, scanner, &fakeGit{}, mesh)

	d, err := m.Discover(context.Background())
	require.NoError(t, err)

	require.Len(t, d.Infrastructure, 2)
	byName := map[string]models.InfraService{}
	for _, infra := range d.Infrastructure {
		byName[infra.Name] = infra
	}
	assert.True(t, byName["redis"].Running)
	assert.Equal(t, "MongoDB", byName["mongo"].DisplayName)
	assert.False(t, byName["mongo"].Running)
	assert.Equal(t, "0.0.0.0:6379->6379/tcp", byName["redis"].Ports)

	require.Len(t, d.Environments, 2, "chronicle is a service, not an environment")
	def, dev2 := d.Environments[0], d.Environments[1]

	assert.Equal(t, "default", def.Name)
	assert.True(t, def.Running)
	assert.Equal(t, 8000, def.BackendPort)
	assert.Equal(t, 3000, def.WebUIPort)
	assert.Equal(t, "https://orchestrator.tail.example", def.MeshURL)
	assert.Equal(t, []string{"ushadow-backend", "ushadow-webui"}, def.Containers)

	assert.Equal(t, "dev2", dev2.Name)
	assert.Equal(t, 8050, dev2.BackendPort)
	assert.Equal(t, 3050, dev2.WebUIPort)
	assert.Empty(t, dev2.MeshURL)
	assert.Equal(t, []string{"ushadow-dev2-backend", "ushadow-dev2-webui"}, dev2.Containers)
}

func TestDiscoverStoppedEnvironment(t *testing.T) {
	scanner := &fakeScanner{containers: []container.Summary{
		summary("c1", "ushadow-staging-backend", "exited"),
	}}
	m := newTestManager(t, scanner, &fakeGit{}, nil)

	d, err := m.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, d.Environments, 1)
	assert.Equal(t, "staging", d.Environments[0].Name)
	assert.False(t, d.Environments[0].Running, "detected but stopped")
}

func TestDiscoverIncludesOnDiskEnvironments(t *testing.T) {
	m := newTestManager(t, &fakeScanner{}, &fakeGit{}, nil)
	dir := filepath.Join(m.stacksDir, "feature-x")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644))

	d, err := m.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, d.Environments, 1)
	assert.Equal(t, "feature-x", d.Environments[0].Name)
	assert.Equal(t, dir, d.Environments[0].Path)
	assert.False(t, d.Environments[0].Running)
}

func TestCreateWorktreeDefaultsBranchToName(t *testing.T) {
	git := &fakeGit{}
	m := newTestManager(t, &fakeScanner{}, git, nil)

	env, err := m.Create(context.Background(), "feature-x", CreateRequest{Strategy: StrategyWorktree})
	require.NoError(t, err)
	assert.Equal(t, "feature-x", git.branch, "branch defaults to the environment name exactly")
	assert.Equal(t, "/primary/checkout", git.worktreeRepo)
	assert.Equal(t, filepath.Join(m.stacksDir, "feature-x"), env.Path)
	assert.Empty(t, m.Creations())
}

func TestCreateWorktreeExplicitBranch(t *testing.T) {
	git := &fakeGit{}
	m := newTestManager(t, &fakeScanner{}, git, nil)

	_, err := m.Create(context.Background(), "exp", CreateRequest{Strategy: StrategyWorktree, Branch: "wip/parser"})
	require.NoError(t, err)
	assert.Equal(t, "wip/parser", git.branch)
}

func TestCreateClone(t *testing.T) {
	git := &fakeGit{}
	m := newTestManager(t, &fakeScanner{}, git, nil)

	env, err := m.Create(context.Background(), "dev2", CreateRequest{Strategy: StrategyClone, ServerMode: "prod"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/stack.git", git.cloneURL)
	assert.Equal(t, env.Path, git.cloneDest)
	assert.FileExists(t, filepath.Join(env.Path, markerFile))
}

func TestCreateFailureTrackedUntilDismissed(t *testing.T) {
	git := &fakeGit{err: errors.New("remote unreachable")}
	m := newTestManager(t, &fakeScanner{}, git, nil)

	_, err := m.Create(context.Background(), "dev2", CreateRequest{Strategy: StrategyClone})
	require.Error(t, err)

	creations := m.Creations()
	require.Len(t, creations, 1)
	assert.Equal(t, "dev2", creations[0].Name)
	assert.False(t, creations[0].Creating)
	assert.Contains(t, creations[0].Error, "remote unreachable")

	require.NoError(t, m.Dismiss("dev2"))
	assert.Empty(t, m.Creations())
	assert.ErrorIs(t, m.Dismiss("dev2"), ErrUnknownEnvironment)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	m := newTestManager(t, &fakeScanner{}, &fakeGit{}, nil)

	_, err := m.Create(context.Background(), "Bad Name!", CreateRequest{Strategy: StrategyClone})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = m.Create(context.Background(), "ok", CreateRequest{Strategy: "svn"})
	assert.ErrorContains(t, err, "invalid create request")

	_, err = m.Create(context.Background(), "ok", CreateRequest{Strategy: StrategyClone, ServerMode: "turbo"})
	assert.ErrorContains(t, err, "invalid create request")
}

func TestCreateLink(t *testing.T) {
	m := newTestManager(t, &fakeScanner{}, &fakeGit{}, nil)

	_, err := m.Create(context.Background(), "ext", CreateRequest{Strategy: StrategyLink, Path: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, ErrNotACheckout)

	plain := t.TempDir()
	_, err = m.Create(context.Background(), "ext2", CreateRequest{Strategy: StrategyLink, Path: plain})
	assert.ErrorIs(t, err, ErrNotACheckout, "directory without stack layout rejected")
	require.NoError(t, m.Dismiss("ext"))
	require.NoError(t, m.Dismiss("ext2"))

	checkout := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(checkout, "start-dev.sh"), []byte("#!/bin/sh\n"), 0o755))
	env, err := m.Create(context.Background(), "linked", CreateRequest{Strategy: StrategyLink, Path: checkout})
	require.NoError(t, err)
	assert.Equal(t, checkout, env.Path)
}

func TestStartStopEnvironment(t *testing.T) {
	scanner := &fakeScanner{containers: []container.Summary{
		summary("b1", "ushadow-dev2-backend", "exited"),
		summary("w1", "ushadow-dev2-webui", "running"),
		summary("o1", "ushadow-other-backend", "exited"),
	}}
	m := newTestManager(t, scanner, &fakeGit{}, nil)

	require.NoError(t, m.Start(context.Background(), "dev2"))
	assert.Equal(t, []string{"b1"}, scanner.started, "only the environment's stopped containers start")

	require.NoError(t, m.Stop(context.Background(), "dev2"))
	assert.Equal(t, []string{"w1"}, scanner.stopped, "only the environment's running containers stop")

	err := m.Start(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownEnvironment)
}

func TestStartStopAlreadySettled(t *testing.T) {
	scanner := &fakeScanner{containers: []container.Summary{
		summary("b1", "ushadow-dev2-backend", "running"),
		summary("w1", "ushadow-dev2-webui", "running"),
		summary("s1", "ushadow-staging-backend", "exited"),
	}}
	m := newTestManager(t, scanner, &fakeGit{}, nil)

	require.NoError(t, m.Start(context.Background(), "dev2"), "starting an already-running environment is a no-op")
	assert.Empty(t, scanner.started)

	require.NoError(t, m.Stop(context.Background(), "staging"), "stopping an already-stopped environment is a no-op")
	assert.Empty(t, scanner.stopped)
}

func TestResolveURLPreference(t *testing.T) {
	url, err := ResolveURL(models.Environment{Name: "a", MeshURL: "https://a.tail.example", WebUIPort: 3000})
	require.NoError(t, err)
	assert.Equal(t, "https://a.tail.example", url)

	url, err = ResolveURL(models.Environment{Name: "b", WebUIPort: 3050, BackendPort: 8050})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3050", url)

	url, err = ResolveURL(models.Environment{Name: "c", BackendPort: 7500})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:7500", url)

	_, err = ResolveURL(models.Environment{Name: "d"})
	assert.Error(t, err)
}
