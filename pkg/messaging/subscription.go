package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/burrowlabs/burrow/pkg/coordination"
	"github.com/burrowlabs/burrow/pkg/metrics"
	"github.com/burrowlabs/burrow/pkg/registry"
	"github.com/burrowlabs/burrow/pkg/types"
)

// Subscription is a node's live attachment to its inbound message queue.
// The delivery loop watches the queue and runs the handler on a goroutine of
// its own per message, so a failing or slow handler never stalls delivery.
type Subscription struct {
	channel *Channel
	nodeID  string
	handler Handler
	logger  zerolog.Logger

	cancel    context.CancelFunc
	loopWG    sync.WaitGroup // delivery loop, waited on Close
	closeOnce sync.Once

	mu   sync.Mutex
	seen map[string]struct{} // session-scoped dedupe, backs up the journal
}

// Subscribe attaches a handler to a node's inbound queue. Messages already
// queued before the subscription are drained first; the watch then delivers
// new ones until Close or ctx cancellation.
func (c *Channel) Subscribe(ctx context.Context, nodeID string, handler Handler) (*Subscription, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("node id must not be empty")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		channel: c,
		nodeID:  nodeID,
		handler: handler,
		logger:  c.logger.With().Str("node_id", nodeID).Logger(),
		cancel:  cancel,
		seen:    make(map[string]struct{}),
	}

	queuePath := registry.MessagesPath(c.cluster, nodeID)

	// Start the watch before draining so nothing falls in the gap; the
	// overlap is deduplicated like any redelivery
	events, err := c.store.Watch(subCtx, queuePath)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch message queue for node %s: %w", nodeID, err)
	}

	if err := sub.drain(subCtx, queuePath); err != nil {
		cancel()
		return nil, err
	}

	sub.loopWG.Add(1)
	go sub.deliveryLoop(subCtx, events)

	sub.logger.Debug().Msg("subscribed to control messages")
	return sub, nil
}

// Close stops delivery and waits for the delivery loop to exit. In-flight
// handlers are not waited on: a handler may itself tear down the node's
// connection, and waiting for it here would deadlock. Idempotent.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.loopWG.Wait()
		s.logger.Debug().Msg("unsubscribed from control messages")
	})
}

// drain dispatches messages that were queued before the subscription existed
func (s *Subscription) drain(ctx context.Context, queuePath string) error {
	pending, err := s.channel.store.Children(ctx, queuePath)
	if err != nil {
		return fmt.Errorf("failed to list pending messages for node %s: %w", s.nodeID, err)
	}
	for _, id := range pending {
		path := coordination.Join(queuePath, id)
		payload, err := s.channel.store.Get(ctx, path)
		if err != nil {
			continue // consumed concurrently
		}
		s.dispatch(ctx, path, payload)
	}
	return nil
}

func (s *Subscription) deliveryLoop(ctx context.Context, events <-chan coordination.WatchEvent) {
	defer s.loopWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != coordination.EventPut {
				continue
			}
			s.dispatch(ctx, ev.Path, ev.Value)
		}
	}
}

// dispatch decodes one queued message and hands it to the handler on its own
// goroutine. The queue entry is consumed after handling; a crash in between
// leaves it for redelivery, which the dedupe layers then suppress.
func (s *Subscription) dispatch(ctx context.Context, path string, payload []byte) {
	var msg types.ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("dropping undecodable control message")
		_ = s.channel.store.Delete(ctx, path)
		return
	}

	if !s.firstDelivery(msg.ID) {
		metrics.MessagesDuplicateTotal.Inc()
		s.logger.Debug().Str("message_id", msg.ID).Msg("duplicate control message suppressed")
		_ = s.channel.store.Delete(ctx, path)
		return
	}

	go func() {
		s.handle(ctx, &msg)
		// Consume after handling; a crash in between redelivers and the
		// dedupe layers suppress it
		_ = s.channel.store.Delete(ctx, path)
	}()
}

// handle runs the handler behind a panic barrier. Handler failures are
// logged and counted, never propagated into the delivery machinery.
func (s *Subscription) handle(ctx context.Context, msg *types.ControlMessage) {
	defer func() {
		if r := recover(); r != nil {
			metrics.MessagesHandledTotal.WithLabelValues(string(msg.Type), "panic").Inc()
			s.logger.Error().
				Interface("panic", r).
				Str("message_id", msg.ID).
				Msg("control message handler panicked")
		}
	}()

	if err := s.handler.HandleMessage(ctx, msg); err != nil {
		metrics.MessagesHandledTotal.WithLabelValues(string(msg.Type), "error").Inc()
		s.logger.Error().Err(err).
			Str("message_id", msg.ID).
			Str("type", string(msg.Type)).
			Msg("control message handler failed")
		return
	}
	metrics.MessagesHandledTotal.WithLabelValues(string(msg.Type), "success").Inc()
}

// firstDelivery consults the session dedupe set and, when configured, the
// persistent journal
func (s *Subscription) firstDelivery(messageID string) bool {
	if messageID == "" {
		return true
	}

	s.mu.Lock()
	_, dup := s.seen[messageID]
	if !dup {
		s.seen[messageID] = struct{}{}
	}
	s.mu.Unlock()
	if dup {
		return false
	}

	if s.channel.journal != nil {
		first, err := s.channel.journal.MarkHandled(messageID)
		if err != nil {
			s.logger.Warn().Err(err).Str("message_id", messageID).Msg("journal write failed")
			return true // fail open, handlers are idempotent
		}
		return first
	}
	return true
}
