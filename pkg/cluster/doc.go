/*
Package cluster implements the per-node connection lifecycle and the
shutdown coordination protocol.

A Manager owns one node's membership in the cluster: it dials an exclusive
coordination session, ensures the node's registration subtree, claims the
ephemeral liveness marker, and subscribes to the node's control-message
queue. Controller and participant share the same Manager; the role decides
which side of the shutdown protocol the node plays.

	┌─────────── CONNECTION LIFECYCLE ───────────┐
	│                                              │
	│  Disconnected ──► Connecting ──► Connected  │
	│        ▲               │             │       │
	│        └───── failure ─┘             ▼       │
	│        ▲                          Stopped    │
	│        └──────── Disconnect()    (terminal)  │
	└──────────────────────────────────────────────┘

# Connect and Retry-With-Repair

Connect performs a single attempt and surfaces every failure typed:
corrupted registration (a crashed prior session left a partial subtree),
conflict (a live peer owns the node ID), or transport. It never repairs on
its own.

ConnectWithRetry is the recovery mechanism: corrupted → explicit
RepairAndReregister on a short-lived session, then retry; transport → wait
per the caller's backoff policy, then retry; conflict → fatal, returned
immediately. Attempts are bounded; exhaustion leaves the node Disconnected
with the last error inspectable via LastError.

# Shutdown Protocol

The controller publishes a shutdown control message (SendShutdownRequest)
and returns once the store accepts it. Each targeted participant's handler
fires asynchronously and drives its Manager to Stopped. The transition is
idempotent — at-least-once delivery means duplicates happen — and only
eventually observable: callers poll IsStopped with a bounded
wait-with-backoff rather than expecting it immediately after send.

# Concurrency

Session state lives in an atomic; IsConnected and IsStopped never block,
regardless of which goroutine asks. Transitions and resource release are
serialized by a mutex, and teardown is safe from any state, including
mid-retry and from inside the shutdown handler itself.

# See Also

  - pkg/registry for registration and repair semantics
  - pkg/messaging for delivery guarantees
  - pkg/coordination for the session contract
*/
package cluster
