package models

// Environment is one named, independently runnable copy of the full
// service stack. Path is empty when the environment was detected from
// running containers but is not materialized on local disk.
type Environment struct {
	Name        string   `json:"name"`
	Running     bool     `json:"running"`
	Containers  []string `json:"containers,omitempty"`
	Path        string   `json:"path,omitempty"`
	BackendPort int      `json:"backend_port,omitempty"`
	WebUIPort   int      `json:"webui_port,omitempty"`
	MeshURL     string   `json:"mesh_url,omitempty"`
}

// InfraService is a shared infrastructure container (database, cache,
// vector store) that backs every environment rather than belonging to one.
type InfraService struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Running     bool   `json:"running"`
	Ports       string `json:"ports,omitempty"`
}

// Discovery is a read-only scan of the local container runtime,
// partitioned into shared infrastructure and per-environment groups.
type Discovery struct {
	Infrastructure []InfraService `json:"infrastructure"`
	Environments   []Environment  `json:"environments"`
}

// CreationStatus tracks an in-flight or failed environment creation.
// Errored entries stay visible until explicitly dismissed; they are
// never retried automatically.
type CreationStatus struct {
	Name     string `json:"name"`
	Strategy string `json:"strategy"`
	Creating bool   `json:"creating"`
	Error    string `json:"error,omitempty"`
}
