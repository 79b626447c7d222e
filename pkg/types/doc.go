/*
Package types defines the core data structures used throughout Burrow.

This package contains the fundamental types of Burrow's domain model: cluster
and node identities, the session lifecycle state machine, the control-message
envelope, and the registration record written to the coordination store. All
other packages depend on these types; this package depends on nothing but the
standard library.

# Core Types

ClusterIdentity:
  - Names a provisioned cluster (cluster name + application ID)
  - Written once at provisioning, immutable afterwards

NodeIdentity:
  - NodeID plus role (controller or participant)
  - A participant's NodeID maps 1:1 to its registration subtree

SessionState:
  - Disconnected → Connecting → Connected → Stopped
  - Connecting → Disconnected on failure
  - Stopped is terminal for a session; a new connect starts fresh

ControlMessage:
  - Typed envelope (shutdown, ...) addressed to a single node or to all
    participants
  - Delivered at-least-once through the coordination store; receivers
    deduplicate by message ID

# See Also

  - pkg/registry for how RegistrationRecord is produced
  - pkg/messaging for ControlMessage transport
  - pkg/cluster for the SessionState owner
*/
package types
