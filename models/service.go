package models

// ServiceMode describes where a service's workload runs.
type ServiceMode string

const (
	ModeCloud ServiceMode = "cloud"
	ModeLocal ServiceMode = "local"
)

// FieldType enumerates the value types a config schema field can declare.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldBoolean FieldType = "boolean"
	FieldNumber  FieldType = "number"
	FieldSecret  FieldType = "secret"
)

// ConfigField is one entry in a service's declared configuration schema.
// Fields bound to an environment variable are persisted in the shared
// API-key store; all others live in the per-service preference store.
type ConfigField struct {
	Key      string    `json:"key" yaml:"key"`
	Label    string    `json:"label" yaml:"label"`
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required" yaml:"required"`
	EnvVar   string    `json:"env_var,omitempty" yaml:"env_var,omitempty"`
}

// ServicePort declares one TCP port a service binds on start. EnvVar
// names the variable that can override the port; empty means the port is
// hard-coded and conflicts on it cannot be resolved with an override.
type ServicePort struct {
	Port   int    `json:"port" yaml:"port"`
	EnvVar string `json:"env_var,omitempty" yaml:"env_var,omitempty"`
}

// ServiceInstance identifies one installable capability discovered from
// the service catalog. The schema is immutable after load; Enabled is the
// only field mutated at runtime.
type ServiceInstance struct {
	ServiceID    string        `json:"service_id" yaml:"service_id"`
	Name         string        `json:"name" yaml:"name"`
	Mode         ServiceMode   `json:"mode" yaml:"mode"`
	Enabled      bool          `json:"enabled" yaml:"-"`
	Image        string        `json:"image,omitempty" yaml:"image,omitempty"`
	ComposeFile  string        `json:"compose_file,omitempty" yaml:"-"`
	Ports        []ServicePort `json:"ports,omitempty" yaml:"ports,omitempty"`
	ConfigSchema []ConfigField `json:"config_schema" yaml:"config_schema"`
}

// EffectiveConfig maps service id to the merged field values for that
// service. Entries are always replaced wholesale per service, never
// patched field by field.
type EffectiveConfig map[string]map[string]string

// Configured reports whether a service has any effective configuration.
// Missing values are omitted during the merge, so non-emptiness is the
// configured test.
func (ec EffectiveConfig) Configured(serviceID string) bool {
	return len(ec[serviceID]) > 0
}
