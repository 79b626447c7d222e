package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/burrowlabs/burrow/pkg/coordination"
	"github.com/burrowlabs/burrow/pkg/log"
	"github.com/burrowlabs/burrow/pkg/metrics"
	"github.com/burrowlabs/burrow/pkg/registry"
	"github.com/burrowlabs/burrow/pkg/storage"
	"github.com/burrowlabs/burrow/pkg/types"
)

// Handler consumes inbound control messages. Implementations must be
// idempotent: delivery is at-least-once and duplicates that slip past the
// journal reach the handler.
type Handler interface {
	HandleMessage(ctx context.Context, msg *types.ControlMessage) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, msg *types.ControlMessage) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *types.ControlMessage) error {
	return f(ctx, msg)
}

// Channel sends typed control messages to cluster nodes and subscribes nodes
// to their inbound queues. Messages travel as JSON envelopes under the
// target's MESSAGES path in the coordination store.
type Channel struct {
	store   coordination.Store
	cluster types.ClusterIdentity
	journal *storage.Journal // optional persistent dedupe
	logger  zerolog.Logger
}

// NewChannel creates a channel over an open coordination session. The
// journal may be nil; dedupe then covers the current session only.
func NewChannel(store coordination.Store, cluster types.ClusterIdentity, journal *storage.Journal) *Channel {
	return &Channel{
		store:   store,
		cluster: cluster,
		journal: journal,
		logger:  log.WithComponent("messaging").With().Str("cluster", cluster.ClusterName).Logger(),
	}
}

// Send publishes a control message to its target scope. It returns once the
// coordination store has accepted the message for delivery; it never waits
// for receivers. Message ID and send time are filled in when absent.
func (c *Channel) Send(ctx context.Context, msg *types.ControlMessage) error {
	if msg.Type == "" {
		return errors.New("message type must not be empty")
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	var targets []string
	switch msg.Scope {
	case types.ScopeSingleNode:
		if msg.Target == "" {
			return errors.New("single-node message requires a target")
		}
		targets = []string{msg.Target}
	case types.ScopeAllParticipants:
		instances, err := c.store.Children(ctx, registry.InstancesPath(c.cluster))
		if err != nil {
			return fmt.Errorf("failed to list instances: %w", err)
		}
		for _, id := range instances {
			if id != msg.Sender {
				targets = append(targets, id)
			}
		}
	default:
		return fmt.Errorf("unknown target scope %q", msg.Scope)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	for _, target := range targets {
		path := coordination.Join(registry.MessagesPath(c.cluster, target), msg.ID)
		err := c.store.Create(ctx, path, payload)
		if err != nil && !errors.Is(err, coordination.ErrExists) {
			return fmt.Errorf("failed to queue message %s for node %s: %w", msg.ID, target, err)
		}
	}

	metrics.MessagesSentTotal.WithLabelValues(string(msg.Type), string(msg.Scope)).Inc()
	c.logger.Info().
		Str("message_id", msg.ID).
		Str("type", string(msg.Type)).
		Str("scope", string(msg.Scope)).
		Int("targets", len(targets)).
		Msg("control message sent")
	return nil
}
