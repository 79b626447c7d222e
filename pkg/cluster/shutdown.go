package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/burrowlabs/burrow/pkg/events"
	"github.com/burrowlabs/burrow/pkg/types"
)

// ErrNotController is returned when a participant attempts a
// controller-only operation.
var ErrNotController = errors.New("operation requires the controller role")

// SendShutdownRequest publishes a shutdown control message to the target
// scope. Controller-only. It returns once the coordination store has
// accepted the message; the participants' transition to Stopped is
// asynchronous and eventually observable via their IsStopped.
func (m *Manager) SendShutdownRequest(ctx context.Context, scope types.TargetScope, target string) error {
	if m.cfg.Role != types.RoleController {
		return fmt.Errorf("send shutdown request: %w", ErrNotController)
	}

	m.mu.Lock()
	channel := m.channel
	m.mu.Unlock()
	if channel == nil {
		return errors.New("send shutdown request: not connected")
	}

	msg := &types.ControlMessage{
		Type:       types.MessageShutdown,
		Scope:      scope,
		Target:     target,
		Sender:     m.cfg.NodeID,
		SenderRole: m.cfg.Role,
	}
	if err := channel.Send(ctx, msg); err != nil {
		return fmt.Errorf("send shutdown request: %w", err)
	}

	m.publish(events.EventShutdownRequested, fmt.Sprintf("shutdown requested, scope %s", scope))
	return nil
}

// handleControlMessage is the node's inbound message handler, invoked by the
// messaging subscription on its own goroutine. Shutdown drives the manager
// to Stopped; the transition is idempotent, so redeliveries after the node
// has stopped are no-ops.
func (m *Manager) handleControlMessage(ctx context.Context, msg *types.ControlMessage) error {
	switch msg.Type {
	case types.MessageShutdown:
		m.logger.Info().
			Str("sender", msg.Sender).
			Str("message_id", msg.ID).
			Msg("shutdown request received")
		return m.Stop()
	default:
		m.logger.Warn().
			Str("type", string(msg.Type)).
			Str("message_id", msg.ID).
			Msg("ignoring unknown control message type")
		return nil
	}
}
