package types

import (
	"time"
)

// ClusterIdentity identifies a provisioned Burrow cluster. It is written to the
// coordination store once, at cluster provisioning, and never mutated afterwards.
type ClusterIdentity struct {
	ClusterName   string `json:"cluster_name" yaml:"cluster_name"`
	ApplicationID string `json:"application_id" yaml:"application_id"`
}

// NodeRole defines the role of a node in the cluster
type NodeRole string

const (
	RoleController  NodeRole = "controller"
	RoleParticipant NodeRole = "participant"
)

// NodeIdentity identifies a single connected session. A participant's NodeID maps
// 1:1 to its registration subtree in the coordination store.
type NodeIdentity struct {
	NodeID string   `json:"node_id" yaml:"node_id"`
	Role   NodeRole `json:"role" yaml:"role"`
}

// SessionState represents the connection lifecycle state of a node.
// Legal transitions: Disconnected → Connecting → Connected → Stopped,
// and Connecting → Disconnected on failure. Stopped is terminal for a session.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MessageType identifies the kind of control message
type MessageType string

const (
	MessageShutdown MessageType = "shutdown"
)

// TargetScope defines which nodes a control message is addressed to
type TargetScope string

const (
	ScopeSingleNode      TargetScope = "single"
	ScopeAllParticipants TargetScope = "all-participants"
)

// ControlMessage is the typed envelope exchanged between cluster nodes through
// the coordination store. Delivery is at-least-once; receivers deduplicate by ID.
type ControlMessage struct {
	ID         string            `json:"id"`
	Type       MessageType       `json:"type"`
	Scope      TargetScope       `json:"scope"`
	Target     string            `json:"target,omitempty"` // node ID, required for ScopeSingleNode
	Sender     string            `json:"sender"`
	SenderRole NodeRole          `json:"sender_role"`
	Payload    map[string]string `json:"payload,omitempty"`
	SentAt     time.Time         `json:"sent_at"`
}

// RegistrationRecord describes a node's registration subtree in the
// coordination store after a successful EnsureRegistered.
type RegistrationRecord struct {
	Cluster   ClusterIdentity `json:"cluster"`
	NodeID    string          `json:"node_id"`
	Children  []string        `json:"children"`
	CreatedAt time.Time       `json:"created_at"`
}
