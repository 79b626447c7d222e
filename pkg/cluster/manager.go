package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/burrowlabs/burrow/pkg/coordination"
	"github.com/burrowlabs/burrow/pkg/events"
	"github.com/burrowlabs/burrow/pkg/log"
	"github.com/burrowlabs/burrow/pkg/messaging"
	"github.com/burrowlabs/burrow/pkg/metrics"
	"github.com/burrowlabs/burrow/pkg/registry"
	"github.com/burrowlabs/burrow/pkg/storage"
	"github.com/burrowlabs/burrow/pkg/types"
)

const teardownTimeout = 5 * time.Second

// Config holds connection manager configuration
type Config struct {
	Cluster types.ClusterIdentity
	NodeID  string         // generated when empty
	Role    types.NodeRole // controller or participant
	Dial    coordination.DialFunc

	Journal *storage.Journal // optional persistent message dedupe
	Broker  *events.Broker   // optional lifecycle event broker
}

// Manager orchestrates one node's connection lifecycle against the
// coordination store: dial a session, ensure registration, claim liveness,
// subscribe to control messages. It exclusively owns the session it dials;
// sessions are never shared between managers.
//
// State transitions: Disconnected → Connecting → Connected → Stopped, with
// Connecting → Disconnected on failure. Stopped is terminal for a session; a
// later Connect starts a fresh one.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	state atomic.Int32

	mu        sync.Mutex // guards the resources below across transitions
	store     coordination.Store
	registrar *registry.Registrar
	channel   *messaging.Channel
	sub       *messaging.Subscription

	errMu   sync.Mutex
	lastErr error
}

// NewManager creates a disconnected manager. The node ID is generated from
// the role when not provided.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg.Cluster.ClusterName == "" {
		return nil, errors.New("cluster name must not be empty")
	}
	if cfg.Dial == nil {
		return nil, errors.New("dial function must not be nil")
	}
	if cfg.Role != types.RoleController && cfg.Role != types.RoleParticipant {
		return nil, fmt.Errorf("unknown role %q", cfg.Role)
	}
	if cfg.NodeID == "" {
		cfg.NodeID = fmt.Sprintf("%s-%s", cfg.Role, uuid.New().String()[:8])
	}

	m := &Manager{
		cfg:    *cfg,
		logger: log.WithNode(cfg.NodeID, string(cfg.Role)),
	}
	m.setState(types.StateDisconnected)
	return m, nil
}

// NodeID returns the node's identity within the cluster
func (m *Manager) NodeID() string {
	return m.cfg.NodeID
}

// Role returns the node's role
func (m *Manager) Role() types.NodeRole {
	return m.cfg.Role
}

// State returns the current session state without blocking
func (m *Manager) State() types.SessionState {
	return types.SessionState(m.state.Load())
}

// IsConnected reports whether the node currently holds a live session
func (m *Manager) IsConnected() bool {
	return m.State() == types.StateConnected
}

// IsStopped reports whether the node has been stopped
func (m *Manager) IsStopped() bool {
	return m.State() == types.StateStopped
}

// LastError returns the error from the most recent failed connect attempt
func (m *Manager) LastError() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.lastErr
}

// Connect establishes the node's membership: dial a session, ensure the
// registration subtree, claim the liveness marker, subscribe to control
// messages. A corrupted registration fails the connect as-is; repair is the
// explicit business of ConnectWithRetry. Any failure releases whatever part
// of the session was acquired and leaves the manager Disconnected.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == types.StateConnected {
		return nil
	}
	m.setState(types.StateConnecting)
	m.publish(events.EventNodeConnecting, "connecting to cluster")

	err := m.connectLocked(ctx)
	if err != nil {
		m.setState(types.StateDisconnected)
		m.setLastError(err)
		metrics.ConnectAttemptsTotal.WithLabelValues("failure").Inc()
		m.logger.Warn().Err(err).Msg("connect failed")
		return err
	}

	m.setState(types.StateConnected)
	m.setLastError(nil)
	metrics.ConnectAttemptsTotal.WithLabelValues("success").Inc()
	m.publish(events.EventNodeConnected, "connected to cluster")
	m.logger.Info().Str("cluster", m.cfg.Cluster.ClusterName).Msg("connected")
	return nil
}

func (m *Manager) connectLocked(ctx context.Context) error {
	store, err := m.cfg.Dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to open coordination session: %w", err)
	}

	registrar := registry.NewRegistrar(store)
	if _, err := registrar.EnsureRegistered(ctx, m.cfg.Cluster, m.cfg.NodeID); err != nil {
		store.Close()
		if errors.Is(err, registry.ErrCorrupted) {
			m.publish(events.EventRegistrationCorrupted, err.Error())
		}
		return err
	}

	if err := registrar.AcquireLiveness(ctx, m.cfg.Cluster, m.cfg.NodeID); err != nil {
		store.Close()
		return err
	}

	channel := messaging.NewChannel(store, m.cfg.Cluster, m.cfg.Journal)
	// The subscription must outlive the connect call, so it is bound to the
	// manager lifetime, not to ctx
	sub, err := channel.Subscribe(context.Background(), m.cfg.NodeID, messaging.HandlerFunc(m.handleControlMessage))
	if err != nil {
		_ = registrar.ReleaseLiveness(ctx, m.cfg.Cluster, m.cfg.NodeID)
		store.Close()
		return fmt.Errorf("failed to subscribe to control messages: %w", err)
	}

	m.store = store
	m.registrar = registrar
	m.channel = channel
	m.sub = sub
	return nil
}

// ConnectWithRetry attempts Connect up to maxAttempts times. A corrupted
// registration triggers an explicit RepairAndReregister before the next
// attempt; a conflict with a live peer is fatal and returned immediately;
// transport failures wait per the backoff policy. The manager ends
// Disconnected when every attempt fails, with the last error returned and
// kept for LastError.
func (m *Manager) ConnectWithRetry(ctx context.Context, maxAttempts int, policy backoff.BackOff) error {
	if maxAttempts < 1 {
		return errors.New("maxAttempts must be at least 1")
	}
	if policy == nil {
		policy = backoff.NewExponentialBackOff()
	}
	policy.Reset()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := m.Connect(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		switch {
		case errors.Is(err, registry.ErrConflict), errors.Is(err, registry.ErrClusterNotProvisioned):
			// Not recoverable by waiting or repairing
			return err

		case errors.Is(err, registry.ErrCorrupted):
			m.logger.Info().Int("attempt", attempt).Msg("repairing corrupted registration")
			repairErr := m.repair(ctx)
			if repairErr == nil {
				// Repaired, retry immediately
				continue
			}
			// Repair itself hit the store; treat as transient
			lastErr = repairErr
		}

		if attempt == maxAttempts {
			break
		}
		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		m.logger.Debug().Dur("backoff", wait).Int("attempt", attempt).Msg("retrying connect")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("connect failed after %d attempts: %w", maxAttempts, lastErr)
}

// repair runs RepairAndReregister on a short-lived session of its own
func (m *Manager) repair(ctx context.Context) error {
	store, err := m.cfg.Dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to open session for repair: %w", err)
	}
	defer store.Close()

	registrar := registry.NewRegistrar(store)
	if _, err := registrar.RepairAndReregister(ctx, m.cfg.Cluster, m.cfg.NodeID); err != nil {
		return err
	}
	m.publish(events.EventRegistrationRepaired, "registration repaired")
	return nil
}

// Disconnect unsubscribes, releases the liveness marker, closes the session
// and transitions to Disconnected. Calling it on a node that holds no
// session is a no-op; resources are never double-released.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		if m.State() != types.StateStopped {
			m.setState(types.StateDisconnected)
		}
		return nil
	}

	m.teardownLocked()
	m.setState(types.StateDisconnected)
	m.publish(events.EventNodeDisconnected, "disconnected from cluster")
	m.logger.Info().Msg("disconnected")
	return nil
}

// Stop drives the node to the terminal Stopped state: cease accepting work,
// release the coordination session. Idempotent; stopping a stopped node is a
// no-op. Invoked by the shutdown handler and usable directly.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == types.StateStopped {
		return nil
	}

	m.teardownLocked()
	m.setState(types.StateStopped)
	m.publish(events.EventNodeStopped, "node stopped")
	m.logger.Info().Msg("stopped")
	return nil
}

// teardownLocked releases the session resources exactly once, tolerating a
// partially connected state
func (m *Manager) teardownLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if m.sub != nil {
		m.sub.Close()
		m.sub = nil
	}
	if m.registrar != nil {
		if err := m.registrar.ReleaseLiveness(ctx, m.cfg.Cluster, m.cfg.NodeID); err != nil {
			m.logger.Debug().Err(err).Msg("liveness release failed, lease expiry will reclaim it")
		}
		m.registrar = nil
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("session close failed")
		}
		m.store = nil
	}
	m.channel = nil
}

func (m *Manager) setState(s types.SessionState) {
	m.state.Store(int32(s))
	metrics.SetSessionState(m.cfg.NodeID, s.String())
}

func (m *Manager) setLastError(err error) {
	m.errMu.Lock()
	m.lastErr = err
	m.errMu.Unlock()
}

func (m *Manager) publish(t events.EventType, msg string) {
	if m.cfg.Broker == nil {
		return
	}
	m.cfg.Broker.Publish(&events.Event{
		ID:      uuid.New().String(),
		Type:    t,
		Message: msg,
		Metadata: map[string]string{
			"node_id": m.cfg.NodeID,
			"role":    string(m.cfg.Role),
			"cluster": m.cfg.Cluster.ClusterName,
		},
	})
}
