package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretsRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenSecrets(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set("OPENAI_API_KEY", "sk-test-1234"))

	// Lookup is by lower-cased env var name regardless of input casing.
	assert.Equal(t, "sk-test-1234", s.Get("OPENAI_API_KEY"))
	assert.Equal(t, "sk-test-1234", s.Get("openai_api_key"))

	// Reopen and verify persistence.
	reopened, err := OpenSecrets(dir)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234", reopened.Get("OPENAI_API_KEY"))
}

func TestSecretsEmptyValueRemoves(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenSecrets(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set("DEEPGRAM_API_KEY", "dg-abc"))
	require.NoError(t, s.Set("DEEPGRAM_API_KEY", ""))
	assert.Empty(t, s.Get("DEEPGRAM_API_KEY"))
}

func TestAPIKeysConfigured(t *testing.T) {
	tests := []struct {
		name     string
		keys     map[string]string
		expected bool
	}{
		{
			name:     "no keys",
			keys:     nil,
			expected: false,
		},
		{
			name:     "llm only",
			keys:     map[string]string{"OPENAI_API_KEY": "sk-1"},
			expected: false,
		},
		{
			name:     "transcription only",
			keys:     map[string]string{"DEEPGRAM_API_KEY": "dg-1"},
			expected: false,
		},
		{
			name: "llm and transcription",
			keys: map[string]string{
				"ANTHROPIC_API_KEY": "ak-1",
				"MISTRAL_API_KEY":   "mk-1",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := OpenSecrets(t.TempDir())
			require.NoError(t, err)
			if tt.keys != nil {
				require.NoError(t, s.SetAll(tt.keys))
			}
			assert.Equal(t, tt.expected, s.APIKeysConfigured())
		})
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", MaskKey(""))
	assert.Equal(t, "***", MaskKey("abcd"))
	assert.Equal(t, "***6789", MaskKey("sk-123456789"))
}

func TestPrefsEnabledDefaultTrue(t *testing.T) {
	p, err := OpenPrefs(t.TempDir())
	require.NoError(t, err)

	assert.True(t, p.Enabled("mem0"))

	require.NoError(t, p.SetEnabled("mem0", false))
	assert.False(t, p.Enabled("mem0"))

	require.NoError(t, p.SetEnabled("mem0", true))
	assert.True(t, p.Enabled("mem0"))
}

func TestPrefsValuesAndOverrides(t *testing.T) {
	dir := t.TempDir()

	p, err := OpenPrefs(dir)
	require.NoError(t, err)

	require.NoError(t, p.SetValues("chronicle", map[string]string{
		"model":   "base",
		"workers": "2",
	}))
	require.NoError(t, p.SetPortOverride("chronicle", "CHRONICLE_PORT", 8001))

	// Reopen and verify everything survived the round trip.
	reopened, err := OpenPrefs(dir)
	require.NoError(t, err)
	assert.Equal(t, "base", reopened.Value("chronicle", "model"))
	assert.Equal(t, "2", reopened.Value("chronicle", "workers"))
	assert.Equal(t, 8001, reopened.PortOverride("chronicle", "CHRONICLE_PORT"))
	assert.Zero(t, reopened.PortOverride("chronicle", "OTHER_PORT"))
}

func TestPrefsEmptyValueRemoves(t *testing.T) {
	p, err := OpenPrefs(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, p.SetValues("mem0", map[string]string{"key": "v"}))
	require.NoError(t, p.SetValues("mem0", map[string]string{"key": ""}))
	assert.Empty(t, p.Value("mem0", "key"))
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenSecrets(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("OPENAI_API_KEY", "sk-1"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".settings-")
	}

	_, err = os.Stat(filepath.Join(dir, "secrets.yaml"))
	assert.NoError(t, err)
}
