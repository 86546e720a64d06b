package models

import "time"

// NodeRole is a node's role in the fleet.
type NodeRole string

const (
	RoleLeader  NodeRole = "leader"
	RoleWorker  NodeRole = "worker"
	RoleStandby NodeRole = "standby"
)

// ValidRole reports whether r is one of the defined roles.
func ValidRole(r NodeRole) bool {
	switch r {
	case RoleLeader, RoleWorker, RoleStandby:
		return true
	}
	return false
}

// NodeStatus is the observed connection state of a fleet node. It is
// relayed from the roster, never derived locally.
type NodeStatus string

const (
	NodeOnline     NodeStatus = "online"
	NodeOffline    NodeStatus = "offline"
	NodeConnecting NodeStatus = "connecting"
	NodeError      NodeStatus = "error"
)

// Node is one registered machine in the fleet.
type Node struct {
	Hostname     string     `json:"hostname"`
	DisplayName  string     `json:"display_name,omitempty"`
	Role         NodeRole   `json:"role"`
	Status       NodeStatus `json:"status"`
	MeshIP       string     `json:"mesh_ip,omitempty"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	Services     []string   `json:"services,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// JoinToken is a bounded-use, time-limited credential that lets a new
// node register into the fleet. A token stays valid until it expires or
// Uses reaches MaxUses, whichever comes first.
type JoinToken struct {
	Token     string    `json:"token"`
	Role      NodeRole  `json:"role"`
	MaxUses   int       `json:"max_uses"`
	Uses      int       `json:"uses"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Exhausted reports whether the token has no uses left.
func (t JoinToken) Exhausted() bool {
	return t.Uses >= t.MaxUses
}
