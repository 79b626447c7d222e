package coordination

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrExists is returned by Create/CreateEphemeral when the path is already present.
	ErrExists = errors.New("path already exists")

	// ErrNotFound is returned by Get when the path is absent.
	ErrNotFound = errors.New("path not found")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("coordination session closed")
)

// EventType distinguishes watch notifications
type EventType int

const (
	EventPut EventType = iota
	EventDelete
)

// WatchEvent is a single change notification for a watched prefix
type WatchEvent struct {
	Type  EventType
	Path  string
	Value []byte
}

// Store is the contract Burrow requires from the coordination service: a
// strongly consistent hierarchical key-value store with ephemeral keys and
// watches. Creates and deletes issued through a Store are linearizably
// visible to subsequent reads through the same Store.
//
// A Store value represents one exclusive session; ephemeral paths created
// through it are removed when the session closes or its lease expires.
type Store interface {
	// Create writes a persistent path. Fails with ErrExists if present.
	Create(ctx context.Context, path string, value []byte) error

	// CreateEphemeral writes a path bound to this session's lease.
	// Fails with ErrExists if present, including when a different live
	// session owns it.
	CreateEphemeral(ctx context.Context, path string, value []byte) error

	// Delete removes a path. Deleting an absent path is not an error.
	Delete(ctx context.Context, path string) error

	// DeleteSubtree removes a path and everything below it.
	// Deleting an absent subtree is not an error.
	DeleteSubtree(ctx context.Context, path string) error

	// Exists reports whether a path (or any descendant of it) is present.
	Exists(ctx context.Context, path string) (bool, error)

	// Get reads the value at a path. Fails with ErrNotFound if absent.
	Get(ctx context.Context, path string) ([]byte, error)

	// Children lists the immediate child names under a path, without the
	// path prefix. An absent path yields an empty list.
	Children(ctx context.Context, path string) ([]string, error)

	// Watch streams change events for the subtree rooted at path until ctx
	// is cancelled or the session closes. The returned channel is closed
	// when the watch ends.
	Watch(ctx context.Context, path string) (<-chan WatchEvent, error)

	// Close releases the session. Ephemeral paths created through this
	// Store are removed. Close is idempotent.
	Close() error
}

// DialFunc opens a new coordination session. Each ConnectionManager dials its
// own session; sessions are never shared between managers.
type DialFunc func(ctx context.Context) (Store, error)

// Join builds a store path from segments, normalizing separators.
func Join(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return "/" + strings.Join(cleaned, "/")
}
