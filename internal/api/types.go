package api

import (
	"github.com/go-playground/validator/v10"

	"github.com/ushadow/orchestrator/models"
)

// SuccessResponse is the envelope every mutating endpoint returns.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StartResponse reports the outcome of a start request. A port
// conflict is an expected outcome, not an error: Success is false and
// the conflict list tells the caller which remediation to offer.
type StartResponse struct {
	Success   bool                  `json:"success"`
	Message   string                `json:"message"`
	CanStart  bool                  `json:"can_start"`
	Conflicts []models.PortConflict `json:"conflicts,omitempty"`
}

// EnabledRequest toggles a service's enabled flag.
type EnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// PortOverrideRequest resolves a port conflict by rebinding an env var.
type PortOverrideRequest struct {
	EnvVar string `json:"env_var" validate:"required"`
	Port   int    `json:"port" validate:"required"`
}

// ConfigRequest carries field values for a service's config schema.
type ConfigRequest struct {
	Values map[string]string `json:"values" validate:"required"`
}

// CreateEnvironmentRequest names a new environment and its strategy.
type CreateEnvironmentRequest struct {
	Name       string `json:"name" validate:"required"`
	Strategy   string `json:"strategy" validate:"required,oneof=clone link worktree"`
	ServerMode string `json:"server_mode,omitempty" validate:"omitempty,oneof=dev prod"`
	Path       string `json:"path,omitempty"`
	Branch     string `json:"branch,omitempty"`
}

// TokenRequest asks for a new cluster join token.
type TokenRequest struct {
	Role           string `json:"role" validate:"required,oneof=leader worker standby"`
	MaxUses        int    `json:"max_uses" validate:"gte=0"`
	ExpiresInHours int    `json:"expires_in_hours" validate:"gte=0"`
}

// TokenValidateRequest presents a join token for validation.
type TokenValidateRequest struct {
	Token string `json:"token" validate:"required"`
}

// APIKeysRequest sets wizard API keys, keyed by env-var name.
type APIKeysRequest struct {
	Keys map[string]string `json:"keys" validate:"required"`
}

// SetupStatus is the onboarding snapshot: the derived level plus the
// explicitly tracked phases.
type SetupStatus struct {
	Level             int             `json:"level"`
	MaxLevel          int             `json:"max_level"`
	APIKeysConfigured bool            `json:"api_keys_configured"`
	CompletedPhases   []string        `json:"completed_phases"`
	NextAction        string          `json:"next_action,omitempty"`
	Running           map[string]bool `json:"running"`
	Configured        map[string]bool `json:"configured"`
}

// Validator adapts go-playground/validator to echo's Validator.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return BadRequestError("Validation failed", err.Error())
	}
	return nil
}
