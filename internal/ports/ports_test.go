package ports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ushadow/orchestrator/models"
)

type fakeSource struct {
	ports     map[string][]models.ServicePort
	overrides map[string]int
	calls     int
}

func (f *fakeSource) RequiredPorts(serviceID string) ([]models.ServicePort, error) {
	return f.ports[serviceID], nil
}

func (f *fakeSource) SetPortOverride(serviceID, envVar string, port int) error {
	if f.overrides == nil {
		f.overrides = make(map[string]int)
	}
	f.overrides[serviceID+"/"+envVar] = port
	f.calls++
	return nil
}

func busyPorts(busy ...int) Probe {
	set := make(map[int]bool, len(busy))
	for _, p := range busy {
		set[p] = true
	}
	return func(port int) bool { return set[port] }
}

func TestPreflightClear(t *testing.T) {
	source := &fakeSource{ports: map[string][]models.ServicePort{
		"chronicle": {{Port: 8000, EnvVar: "CHRONICLE_PORT"}},
	}}
	r := NewResolver(source, busyPorts())

	result, err := r.Preflight(context.Background(), "chronicle")
	require.NoError(t, err)
	assert.True(t, result.CanStart)
	assert.Empty(t, result.Conflicts)
}

func TestPreflightConflict(t *testing.T) {
	source := &fakeSource{ports: map[string][]models.ServicePort{
		"chronicle": {{Port: 8000, EnvVar: "CHRONICLE_PORT"}},
	}}
	r := NewResolver(source, busyPorts(8000))

	result, err := r.Preflight(context.Background(), "chronicle")
	require.NoError(t, err)

	// can_start is false exactly when conflicts are non-empty.
	assert.False(t, result.CanStart)
	require.Len(t, result.Conflicts, 1)
	conflict := result.Conflicts[0]
	assert.Equal(t, 8000, conflict.Port)
	assert.Equal(t, "CHRONICLE_PORT", conflict.EnvVar)
	assert.Equal(t, 8001, conflict.SuggestedPort)
	assert.True(t, conflict.Resolvable())
}

func TestPreflightHardCodedPort(t *testing.T) {
	source := &fakeSource{ports: map[string][]models.ServicePort{
		"mem0": {{Port: 8888}},
	}}
	r := NewResolver(source, busyPorts(8888))

	result, err := r.Preflight(context.Background(), "mem0")
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.False(t, result.Conflicts[0].Resolvable())
}

func TestSuggestSkipsBusyPorts(t *testing.T) {
	source := &fakeSource{ports: map[string][]models.ServicePort{
		"chronicle": {{Port: 8000, EnvVar: "CHRONICLE_PORT"}},
	}}
	r := NewResolver(source, busyPorts(8000, 8001, 8002))

	result, err := r.Preflight(context.Background(), "chronicle")
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, 8003, result.Conflicts[0].SuggestedPort)
}

func TestSuggestOmittedWhenWindowBusy(t *testing.T) {
	busy := make([]int, 0, suggestionWindow+1)
	for p := 8000; p <= 8000+suggestionWindow; p++ {
		busy = append(busy, p)
	}
	source := &fakeSource{ports: map[string][]models.ServicePort{
		"chronicle": {{Port: 8000, EnvVar: "CHRONICLE_PORT"}},
	}}
	r := NewResolver(source, busyPorts(busy...))

	result, err := r.Preflight(context.Background(), "chronicle")
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Zero(t, result.Conflicts[0].SuggestedPort, "never suggest a port known to be in use")
}

func TestResolveRejectsOutOfRange(t *testing.T) {
	source := &fakeSource{}
	r := NewResolver(source, busyPorts())

	for _, port := range []int{0, -1, 65536, 100000} {
		err := r.Resolve("chronicle", "CHRONICLE_PORT", port)
		assert.ErrorIs(t, err, ErrPortOutOfRange)
	}

	// Rejected client-side: no persist call was issued.
	assert.Zero(t, source.calls)
}

func TestResolveRejectsHardCoded(t *testing.T) {
	source := &fakeSource{}
	r := NewResolver(source, busyPorts())

	err := r.Resolve("mem0", "", 8001)
	assert.ErrorIs(t, err, ErrUnresolvableConflict)
	assert.Zero(t, source.calls)
}

func TestResolvePersistsOverride(t *testing.T) {
	source := &fakeSource{}
	r := NewResolver(source, busyPorts())

	require.NoError(t, r.Resolve("chronicle", "CHRONICLE_PORT", 8001))
	assert.Equal(t, 8001, source.overrides["chronicle/CHRONICLE_PORT"])
	assert.Equal(t, 1, source.calls)
}
