// Package settings implements the two persistence stores behind the
// service registry: a shared API-key store for schema fields bound to an
// environment variable, and a per-service preference store for everything
// else. Both are YAML-file backed and replace their file atomically on
// every write, so readers never observe a partially written store.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// API-key names that satisfy the onboarding wizard. Keys are the
// lower-cased environment variable names used by the secrets store.
var (
	llmKeys           = []string{"openai_api_key", "anthropic_api_key"}
	transcriptionKeys = []string{"deepgram_api_key", "mistral_api_key"}
)

// Secrets is the shared API-key store. Values are keyed by the
// lower-cased environment variable name of the schema field they back.
type Secrets struct {
	mu   sync.RWMutex
	path string
	keys map[string]string
}

type secretsFile struct {
	APIKeys map[string]string `yaml:"api_keys"`
}

// OpenSecrets loads (or initializes) the secrets store under dir.
func OpenSecrets(dir string) (*Secrets, error) {
	s := &Secrets{
		path: filepath.Join(dir, "secrets.yaml"),
		keys: make(map[string]string),
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read secrets store: %w", err)
	}

	var file secretsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse secrets store: %w", err)
	}
	if file.APIKeys != nil {
		s.keys = file.APIKeys
	}

	return s, nil
}

// Get returns the stored value for an environment variable binding.
// Lookup is by lower-cased variable name; the empty string means unset.
func (s *Secrets) Get(envVar string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[strings.ToLower(envVar)]
}

// Set stores a value for an environment variable binding and persists
// the whole store. An empty value removes the entry.
func (s *Secrets) Set(envVar, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(envVar)
	if value == "" {
		delete(s.keys, key)
	} else {
		s.keys[key] = value
	}

	return s.flushLocked()
}

// SetAll applies several updates in one write.
func (s *Secrets) SetAll(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for envVar, value := range values {
		key := strings.ToLower(envVar)
		if value == "" {
			delete(s.keys, key)
		} else {
			s.keys[key] = value
		}
	}

	return s.flushLocked()
}

// Snapshot returns a copy of all stored keys.
func (s *Secrets) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.keys))
	for k, v := range s.keys {
		out[k] = v
	}
	return out
}

// APIKeysConfigured reports whether onboarding's API-key requirement is
// met: at least one LLM key and at least one transcription key.
func (s *Secrets) APIKeysConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hasLLM := false
	for _, k := range llmKeys {
		if s.keys[k] != "" {
			hasLLM = true
			break
		}
	}
	hasTranscription := false
	for _, k := range transcriptionKeys {
		if s.keys[k] != "" {
			hasTranscription = true
			break
		}
	}
	return hasLLM && hasTranscription
}

// MaskKey masks a secret for display, keeping only the last 4 characters.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) > 4 {
		return "***" + key[len(key)-4:]
	}
	return "***"
}

// flushLocked writes the store to disk via a temp file and rename.
func (s *Secrets) flushLocked() error {
	data, err := yaml.Marshal(secretsFile{APIKeys: s.keys})
	if err != nil {
		return fmt.Errorf("failed to encode secrets store: %w", err)
	}
	return atomicWrite(s.path, data)
}

func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close settings file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
