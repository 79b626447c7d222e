package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin(t *testing.T) {
	tests := []struct {
		name     string
		parts    []string
		expected string
	}{
		{name: "simple", parts: []string{"jobs", "instances", "node-1"}, expected: "/jobs/instances/node-1"},
		{name: "leading slashes", parts: []string{"/jobs/", "/instances"}, expected: "/jobs/instances"},
		{name: "empty segments dropped", parts: []string{"jobs", "", "node-1"}, expected: "/jobs/node-1"},
		{name: "no parts", parts: nil, expected: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Join(tt.parts...))
		})
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemory().NewSession()

	require.NoError(t, s.Create(ctx, "/jobs/cluster", []byte("v1")))

	value, err := s.Get(ctx, "/jobs/cluster")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	// Create of a present path fails with ErrExists
	err = s.Create(ctx, "/jobs/cluster", []byte("v2"))
	assert.ErrorIs(t, err, ErrExists)

	_, err = s.Get(ctx, "/jobs/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryExists(t *testing.T) {
	ctx := context.Background()
	s := NewMemory().NewSession()

	require.NoError(t, s.Create(ctx, "/jobs/instances/node-1/HISTORY", nil))

	// Leaf
	ok, err := s.Exists(ctx, "/jobs/instances/node-1/HISTORY")
	require.NoError(t, err)
	assert.True(t, ok)

	// Interior path, visible through its descendant
	ok, err = s.Exists(ctx, "/jobs/instances/node-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "/jobs/instances/node-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryChildren(t *testing.T) {
	ctx := context.Background()
	s := NewMemory().NewSession()

	require.NoError(t, s.Create(ctx, "/jobs/instances/node-1/ERRORS", nil))
	require.NoError(t, s.Create(ctx, "/jobs/instances/node-1/HISTORY", nil))
	require.NoError(t, s.Create(ctx, "/jobs/instances/node-1/MESSAGES/m1", nil))

	children, err := s.Children(ctx, "/jobs/instances/node-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ERRORS", "HISTORY", "MESSAGES"}, children)

	children, err = s.Children(ctx, "/jobs/instances/absent")
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestMemoryDeleteSubtree(t *testing.T) {
	ctx := context.Background()
	s := NewMemory().NewSession()

	require.NoError(t, s.Create(ctx, "/jobs/instances/node-1/MESSAGES/m1", nil))
	require.NoError(t, s.Create(ctx, "/jobs/instances/node-1/MESSAGES/m2", nil))
	require.NoError(t, s.Create(ctx, "/jobs/instances/node-1/HISTORY", nil))

	require.NoError(t, s.DeleteSubtree(ctx, "/jobs/instances/node-1/MESSAGES"))

	ok, err := s.Exists(ctx, "/jobs/instances/node-1/MESSAGES")
	require.NoError(t, err)
	assert.False(t, ok)

	// Sibling untouched
	ok, err = s.Exists(ctx, "/jobs/instances/node-1/HISTORY")
	require.NoError(t, err)
	assert.True(t, ok)

	// Deleting an absent subtree is not an error
	assert.NoError(t, s.DeleteSubtree(ctx, "/jobs/instances/node-1/MESSAGES"))
}

func TestMemoryEphemeralRemovedOnClose(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()
	owner := backend.NewSession()
	observer := backend.NewSession()

	require.NoError(t, owner.CreateEphemeral(ctx, "/jobs/instances/node-1/alive", nil))

	// Another session cannot claim the same path while the owner lives
	err := observer.CreateEphemeral(ctx, "/jobs/instances/node-1/alive", nil)
	assert.ErrorIs(t, err, ErrExists)

	require.NoError(t, owner.Close())

	ok, err := observer.Exists(ctx, "/jobs/instances/node-1/alive")
	require.NoError(t, err)
	assert.False(t, ok, "ephemeral path should vanish with its session")

	// Now the path is free
	assert.NoError(t, observer.CreateEphemeral(ctx, "/jobs/instances/node-1/alive", nil))
}

func TestMemorySessionClosedOperationsFail(t *testing.T) {
	ctx := context.Background()
	s := NewMemory().NewSession()
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Create(ctx, "/x", nil), ErrClosed)
	_, err := s.Get(ctx, "/x")
	assert.ErrorIs(t, err, ErrClosed)

	// Close is idempotent
	assert.NoError(t, s.Close())
}

func TestMemoryWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := NewMemory()
	watcherSess := backend.NewSession()
	writerSess := backend.NewSession()

	events, err := watcherSess.Watch(ctx, "/jobs/instances/node-1/MESSAGES")
	require.NoError(t, err)

	require.NoError(t, writerSess.Create(ctx, "/jobs/instances/node-1/MESSAGES/m1", []byte("hello")))
	require.NoError(t, writerSess.Delete(ctx, "/jobs/instances/node-1/MESSAGES/m1"))

	// Writes outside the watched prefix are not delivered
	require.NoError(t, writerSess.Create(ctx, "/jobs/instances/node-2/MESSAGES/m2", nil))

	ev := receiveEvent(t, events)
	assert.Equal(t, EventPut, ev.Type)
	assert.Equal(t, "/jobs/instances/node-1/MESSAGES/m1", ev.Path)
	assert.Equal(t, []byte("hello"), ev.Value)

	ev = receiveEvent(t, events)
	assert.Equal(t, EventDelete, ev.Type)

	cancel()
	waitClosed(t, events)
}

func receiveEvent(t *testing.T, events <-chan WatchEvent) WatchEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch event")
		return WatchEvent{}
	}
}

func waitClosed(t *testing.T, events <-chan WatchEvent) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("watch channel not closed after cancel")
		}
	}
}
