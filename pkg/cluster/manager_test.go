package cluster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burrowlabs/burrow/pkg/coordination"
	"github.com/burrowlabs/burrow/pkg/registry"
	"github.com/burrowlabs/burrow/pkg/types"
)

var testCluster = types.ClusterIdentity{ClusterName: "jobs", ApplicationID: "batch"}

func newTestBackend(t *testing.T) *coordination.Memory {
	t.Helper()
	backend := coordination.NewMemory()
	session := backend.NewSession()
	t.Cleanup(func() { session.Close() })
	require.NoError(t, registry.ProvisionCluster(context.Background(), session, testCluster))
	return backend
}

func newTestManager(t *testing.T, backend *coordination.Memory, nodeID string, role types.NodeRole) *Manager {
	t.Helper()
	mgr, err := NewManager(&Config{
		Cluster: testCluster,
		NodeID:  nodeID,
		Role:    role,
		Dial:    backend.Dial(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Disconnect() })
	return mgr
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool, description string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	interval := 5 * time.Millisecond
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
		if interval < 200*time.Millisecond {
			interval *= 2
		}
	}
	t.Fatalf("timeout waiting for: %s", description)
}

func corruptRegistration(t *testing.T, backend *coordination.Memory, nodeID string, children ...string) {
	t.Helper()
	session := backend.NewSession()
	defer session.Close()
	for _, child := range children {
		require.NoError(t, session.DeleteSubtree(context.Background(),
			coordination.Join(registry.InstancePath(testCluster, nodeID), child)))
	}
}

func TestNewManagerValidation(t *testing.T) {
	backend := newTestBackend(t)

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing cluster", cfg: Config{Role: types.RoleController, Dial: backend.Dial()}},
		{name: "missing dial", cfg: Config{Cluster: testCluster, Role: types.RoleController}},
		{name: "bad role", cfg: Config{Cluster: testCluster, Role: "observer", Dial: backend.Dial()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(&tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewManagerGeneratesNodeID(t *testing.T) {
	backend := newTestBackend(t)
	mgr, err := NewManager(&Config{Cluster: testCluster, Role: types.RoleParticipant, Dial: backend.Dial()})
	require.NoError(t, err)
	assert.Contains(t, mgr.NodeID(), "participant-")
}

func TestConnectDisconnectLifecycle(t *testing.T) {
	backend := newTestBackend(t)
	mgr := newTestManager(t, backend, "participant-1", types.RoleParticipant)
	ctx := context.Background()

	assert.Equal(t, types.StateDisconnected, mgr.State())
	assert.False(t, mgr.IsConnected())

	require.NoError(t, mgr.Connect(ctx))
	assert.True(t, mgr.IsConnected())
	assert.False(t, mgr.IsStopped())
	assert.NoError(t, mgr.LastError())

	// Connecting an already-connected manager is a no-op
	assert.NoError(t, mgr.Connect(ctx))

	require.NoError(t, mgr.Disconnect())
	assert.Equal(t, types.StateDisconnected, mgr.State())
	assert.False(t, mgr.IsConnected())
}

// Disconnecting an already-disconnected node is a no-op, not an error
func TestDisconnectIdempotent(t *testing.T) {
	backend := newTestBackend(t)
	mgr := newTestManager(t, backend, "participant-1", types.RoleParticipant)

	assert.NoError(t, mgr.Disconnect())

	require.NoError(t, mgr.Connect(context.Background()))
	require.NoError(t, mgr.Disconnect())
	assert.NoError(t, mgr.Disconnect())
	assert.Equal(t, types.StateDisconnected, mgr.State())
}

func TestConnectUnprovisionedClusterIsFatal(t *testing.T) {
	backend := coordination.NewMemory() // no ProvisionCluster
	mgr, err := NewManager(&Config{
		Cluster: testCluster,
		NodeID:  "participant-1",
		Role:    types.RoleParticipant,
		Dial:    backend.Dial(),
	})
	require.NoError(t, err)

	err = mgr.ConnectWithRetry(context.Background(), 3, backoff.NewConstantBackOff(time.Millisecond))
	assert.ErrorIs(t, err, registry.ErrClusterNotProvisioned)
	assert.Equal(t, types.StateDisconnected, mgr.State())
}

// Plain connect against a partial registration fails with the corrupted
// error; it never repairs on its own
func TestConnectFailsOnCorruptedRegistration(t *testing.T) {
	backend := newTestBackend(t)
	mgr := newTestManager(t, backend, "participant-1", types.RoleParticipant)
	ctx := context.Background()

	require.NoError(t, mgr.Connect(ctx))
	require.NoError(t, mgr.Disconnect())

	// Simulate a crashed prior session
	corruptRegistration(t, backend, "participant-1",
		registry.ChildErrors, registry.ChildHistory, registry.ChildStatusUpdates)

	err := mgr.Connect(ctx)
	require.ErrorIs(t, err, registry.ErrCorrupted)
	assert.Equal(t, types.StateDisconnected, mgr.State())
	assert.False(t, mgr.IsConnected())
	assert.ErrorIs(t, mgr.LastError(), registry.ErrCorrupted)
}

// ConnectWithRetry repairs the corrupted registration and succeeds, leaving
// the registration complete
func TestConnectWithRetryRepairsCorruptedRegistration(t *testing.T) {
	backend := newTestBackend(t)
	mgr := newTestManager(t, backend, "participant-1", types.RoleParticipant)
	ctx := context.Background()

	require.NoError(t, mgr.Connect(ctx))
	require.NoError(t, mgr.Disconnect())
	corruptRegistration(t, backend, "participant-1",
		registry.ChildErrors, registry.ChildHistory, registry.ChildStatusUpdates)

	err := mgr.ConnectWithRetry(ctx, 3, backoff.NewConstantBackOff(time.Millisecond))
	require.NoError(t, err)
	assert.True(t, mgr.IsConnected())

	// Registration is complete again
	session := backend.NewSession()
	defer session.Close()
	reg := registry.NewRegistrar(session)
	_, err = reg.EnsureRegistered(ctx, testCluster, "participant-1")
	assert.NoError(t, err)
}

// flakyDial fails a fixed number of times before delegating
type flakyDial struct {
	mu       sync.Mutex
	failures int
	dial     coordination.DialFunc
	attempts int
}

func (f *flakyDial) Dial(ctx context.Context) (coordination.Store, error) {
	f.mu.Lock()
	f.attempts++
	failing := f.attempts <= f.failures
	f.mu.Unlock()
	if failing {
		return nil, errors.New("connection refused")
	}
	return f.dial(ctx)
}

func TestConnectWithRetryTransientFailures(t *testing.T) {
	backend := newTestBackend(t)
	flaky := &flakyDial{failures: 2, dial: backend.Dial()}

	mgr, err := NewManager(&Config{
		Cluster: testCluster,
		NodeID:  "participant-1",
		Role:    types.RoleParticipant,
		Dial:    flaky.Dial,
	})
	require.NoError(t, err)
	defer mgr.Disconnect()

	err = mgr.ConnectWithRetry(context.Background(), 5, backoff.NewConstantBackOff(time.Millisecond))
	require.NoError(t, err)
	assert.True(t, mgr.IsConnected())
	assert.Equal(t, 3, flaky.attempts)
}

func TestConnectWithRetryExhaustsAttempts(t *testing.T) {
	backend := newTestBackend(t)
	flaky := &flakyDial{failures: 100, dial: backend.Dial()}

	mgr, err := NewManager(&Config{
		Cluster: testCluster,
		NodeID:  "participant-1",
		Role:    types.RoleParticipant,
		Dial:    flaky.Dial,
	})
	require.NoError(t, err)

	err = mgr.ConnectWithRetry(context.Background(), 3, backoff.NewConstantBackOff(time.Millisecond))
	require.Error(t, err)
	assert.Equal(t, 3, flaky.attempts)

	// The node must not silently appear connected
	assert.Equal(t, types.StateDisconnected, mgr.State())
	assert.Error(t, mgr.LastError())
}

// Two nodes cannot hold a live session under the same node ID
func TestConnectConflictIsFatal(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	first := newTestManager(t, backend, "participant-1", types.RoleParticipant)
	require.NoError(t, first.Connect(ctx))

	second := newTestManager(t, backend, "participant-1", types.RoleParticipant)
	err := second.Connect(ctx)
	require.ErrorIs(t, err, registry.ErrConflict)
	assert.False(t, second.IsConnected())

	// The retry loop must not spin against a legitimately active peer
	err = second.ConnectWithRetry(ctx, 5, backoff.NewConstantBackOff(time.Millisecond))
	assert.ErrorIs(t, err, registry.ErrConflict)

	// Once the first node disconnects, the node ID is free
	require.NoError(t, first.Disconnect())
	assert.NoError(t, second.Connect(ctx))
}

func TestSendShutdownRequestRequiresController(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	participant := newTestManager(t, backend, "participant-1", types.RoleParticipant)
	require.NoError(t, participant.Connect(ctx))
	err := participant.SendShutdownRequest(ctx, types.ScopeSingleNode, "participant-2")
	assert.ErrorIs(t, err, ErrNotController)

	// A disconnected controller cannot send either
	controller := newTestManager(t, backend, "controller-1", types.RoleController)
	err = controller.SendShutdownRequest(ctx, types.ScopeSingleNode, "participant-1")
	assert.Error(t, err)
}

// Controller and participant connect against a fresh cluster, the controller
// sends shutdown, and the participant observes Stopped within a bounded wait
func TestShutdownScenario(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	controller := newTestManager(t, backend, "controller-1", types.RoleController)
	participant := newTestManager(t, backend, "participant-1", types.RoleParticipant)
	require.NoError(t, controller.Connect(ctx))
	require.NoError(t, participant.Connect(ctx))

	require.NoError(t, controller.SendShutdownRequest(ctx, types.ScopeSingleNode, "participant-1"))

	// The transition is asynchronous: poll with backoff, bounded at 20s
	waitFor(t, 20*time.Second, participant.IsStopped, "participant stopped")
	assert.False(t, participant.IsConnected())
	assert.True(t, controller.IsConnected(), "controller unaffected")

	// The participant's session is released: its node ID is claimable again
	waitFor(t, 5*time.Second, func() bool {
		session := backend.NewSession()
		defer session.Close()
		err := registry.NewRegistrar(session).AcquireLiveness(ctx, testCluster, "participant-1")
		if err == nil {
			_ = registry.NewRegistrar(session).ReleaseLiveness(ctx, testCluster, "participant-1")
			return true
		}
		return false
	}, "participant session released")
}

// Redelivered shutdown messages to an already-stopped node are no-ops
func TestShutdownIdempotent(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	controller := newTestManager(t, backend, "controller-1", types.RoleController)
	participant := newTestManager(t, backend, "participant-1", types.RoleParticipant)
	require.NoError(t, controller.Connect(ctx))
	require.NoError(t, participant.Connect(ctx))

	require.NoError(t, controller.SendShutdownRequest(ctx, types.ScopeSingleNode, "participant-1"))
	waitFor(t, 20*time.Second, participant.IsStopped, "participant stopped")

	// Second shutdown after the node already stopped
	require.NoError(t, controller.SendShutdownRequest(ctx, types.ScopeSingleNode, "participant-1"))
	time.Sleep(50 * time.Millisecond)
	assert.True(t, participant.IsStopped())
	assert.Equal(t, types.StateStopped, participant.State())

	// Direct Stop is equally idempotent
	assert.NoError(t, participant.Stop())
}

func TestShutdownAllParticipants(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	controller := newTestManager(t, backend, "controller-1", types.RoleController)
	p1 := newTestManager(t, backend, "participant-1", types.RoleParticipant)
	p2 := newTestManager(t, backend, "participant-2", types.RoleParticipant)
	require.NoError(t, controller.Connect(ctx))
	require.NoError(t, p1.Connect(ctx))
	require.NoError(t, p2.Connect(ctx))

	require.NoError(t, controller.SendShutdownRequest(ctx, types.ScopeAllParticipants, ""))

	waitFor(t, 20*time.Second, p1.IsStopped, "participant-1 stopped")
	waitFor(t, 20*time.Second, p2.IsStopped, "participant-2 stopped")
	assert.True(t, controller.IsConnected(), "sender excluded from broadcast")
}

// A stopped session is terminal, but a new connect starts a fresh one
func TestConnectAfterStop(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	mgr := newTestManager(t, backend, "participant-1", types.RoleParticipant)
	require.NoError(t, mgr.Connect(ctx))
	require.NoError(t, mgr.Stop())
	assert.True(t, mgr.IsStopped())

	require.NoError(t, mgr.Connect(ctx))
	assert.True(t, mgr.IsConnected())
	assert.False(t, mgr.IsStopped())
}
