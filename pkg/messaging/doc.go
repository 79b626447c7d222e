/*
Package messaging implements asynchronous control-message delivery between
cluster nodes through the coordination store.

A control message is a JSON envelope written under the target node's MESSAGES
path. The sender returns as soon as the store accepts the write; it never
waits for the receiver. A subscribed node watches its own MESSAGES prefix,
drains anything queued while it was away, and consumes each entry after
handling it.

# Delivery Semantics

  - At-least-once: a crash between handling and consuming redelivers
  - No ordering guarantees between messages
  - Duplicates are suppressed twice over: a session-scoped set plus the
    optional persistent journal (pkg/storage), which survives restarts
  - Handler isolation: every message runs its handler on a dedicated
    goroutine behind a panic barrier; a failing handler is logged and
    counted, never allowed to stall delivery or crash the node

# Usage

Sending (controller side):

	ch := messaging.NewChannel(store, cluster, nil)
	err := ch.Send(ctx, &types.ControlMessage{
		Type:   types.MessageShutdown,
		Scope:  types.ScopeAllParticipants,
		Sender: nodeID,
	})

Receiving (participant side):

	sub, err := ch.Subscribe(ctx, nodeID, messaging.HandlerFunc(
		func(ctx context.Context, msg *types.ControlMessage) error {
			// must be idempotent
			return nil
		}))
	defer sub.Close()

# See Also

  - pkg/cluster for the shutdown coordinator built on this package
  - pkg/storage for the persistent dedupe journal
*/
package messaging
