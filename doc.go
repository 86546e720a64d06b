// Package orchestrator is the service and environment orchestration
// engine for the ushadow platform.
//
// # Overview
//
// The orchestrator is a local daemon that manages the platform's
// services and development environments:
//   - Service registry: installable services discovered from compose
//     catalog files, each with a declared config schema and port set
//   - Lifecycle engine: preflight port checks, conflict resolution,
//     and confirmed stop flow for every service start/stop
//   - Environment manager: discovery, provisioning (clone, link,
//     worktree), and runtime control of full stack copies
//   - Cluster: bounded-use join tokens and a relayed node roster for
//     multi-machine fleets
//
// # Architecture
//
//	┌─────────────────┐
//	│  Desktop / UI   │
//	│  (REST + WS)    │
//	└────────┬────────┘
//	         │
//	┌────────▼────────┐       ┌─────────────────┐
//	│  API Server     │◄──────┤  Status Poller  │
//	│  (Echo REST)    │       │  (Docker probe) │
//	└────────┬────────┘       └─────────────────┘
//	         │
//	┌────────▼────────┐
//	│  Docker Engine  │
//	│  (SDK + compose)│
//	└─────────────────┘
//
// # Usage
//
// Start the daemon:
//
//	ushadowd server --config config.yaml
//
// Generate a cluster join token:
//
//	ushadowd token join --role worker --max-uses 2
//
// # Configuration
//
// Configuration can be provided via:
//   - YAML file (./config.yaml)
//   - Environment variables (US_ prefix)
//
// Example configuration:
//
//	server:
//	  host: 127.0.0.1
//	  port: 8010
//	docker:
//	  socket: /var/run/docker.sock
//	paths:
//	  compose_dir: ./compose
//	  stacks_dir: ~/ushadow-stacks
//	cluster:
//	  token_secret: change-me
//
// # API Endpoints
//
// Services:
//   - GET  /api/v1/services                    - List services with state
//   - POST /api/v1/services/:id/start          - Preflight and start
//   - POST /api/v1/services/:id/stop/confirm   - Arm stop confirmation
//   - POST /api/v1/services/:id/stop           - Issue stop
//   - POST /api/v1/services/:id/port-override  - Resolve a port conflict
//   - GET  /api/v1/services/:id/config         - Config schema and values
//   - PUT  /api/v1/services/:id/config         - Save config values
//
// Environments:
//   - GET    /api/v1/environments              - Discover environments
//   - POST   /api/v1/environments              - Provision an environment
//   - POST   /api/v1/environments/:name/start  - Start stack containers
//   - POST   /api/v1/environments/:name/stop   - Stop stack containers
//   - POST   /api/v1/environments/:name/open   - Open in browser
//
// Cluster:
//   - GET    /api/v1/cluster/nodes             - Node roster snapshot
//   - POST   /api/v1/cluster/token             - Issue a join token
//   - POST   /api/v1/cluster/token/validate    - Validate and consume
//   - DELETE /api/v1/cluster/nodes/:hostname   - Remove a node
//
// Setup:
//   - GET /api/v1/setup/status                 - Derived setup level
//   - GET /api/v1/wizard/api-keys              - Masked API keys
//
// WebSocket:
//   - GET /ws - Real-time service, environment, and cluster events
//
// # Development
//
// Run tests:
//
//	go test ./...
//
// Build the binary:
//
//	go build -o ushadowd ./cmd/ushadowd
//
// # Technology Stack
//
//   - Go 1.25+
//   - Echo v4 (Web framework)
//   - Docker SDK (Container runtime)
//   - Cobra + Viper (CLI and configuration)
//   - golang-jwt (Join tokens)
package orchestrator
