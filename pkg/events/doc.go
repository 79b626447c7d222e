/*
Package events provides an in-memory event broker for Burrow's lifecycle
notifications.

The broker broadcasts connection lifecycle and control-plane events (node
connected, node stopped, registration repaired, shutdown requested) to any
number of subscribers without blocking the publisher. Delivery is best
effort: a subscriber whose buffer is full misses events, which keeps slow
consumers from backing up the connection machinery.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("[%s] %s\n", event.Type, event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventNodeConnected,
		Message: "participant-1 connected",
	})

# Integration Points

  - pkg/cluster: publishes lifecycle events per state transition
  - cmd/burrow: subscribes to log events while running a node

Do not rely on event delivery for correctness; the authoritative state lives
in the ConnectionManager and the coordination store.
*/
package events
