/*
Package coordination wraps the external coordination service behind a typed
store contract.

Burrow keeps all cluster membership and control-plane state in a strongly
consistent hierarchical key-value store. This package defines the Store
contract the rest of the system programs against, and ships two
implementations:

  - EtcdStore: the production backend, an etcd v3 client plus a concurrency
    session whose lease provides ephemeral-path semantics (paths vanish when
    the owning session closes or its lease expires).
  - Memory / MemorySession: an in-process backend with identical semantics,
    used for hermetic tests and single-process development mode.

# Sessions

A Store value is one exclusive session. Each ConnectionManager dials its own
session via a DialFunc and never shares it; closing the session removes every
ephemeral path it created. Create-if-absent is the primitive conflict
detector: creating a path a live peer already owns fails with ErrExists
rather than silently overwriting.

# Paths

Paths are slash-separated, built with Join:

	/<cluster>/cluster                         identity record
	/<cluster>/instances/<node>/<CHILD>        registration children
	/<cluster>/instances/<node>/MESSAGES/<id>  queued control messages

# Usage

	store, err := coordination.DialEtcd(ctx, coordination.EtcdConfig{
		Endpoints:  []string{"localhost:2379"},
		SessionTTL: 15,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Create(ctx, coordination.Join("jobs", "cluster"), payload); err != nil {
		if errors.Is(err, coordination.ErrExists) {
			// already provisioned
		}
	}

# See Also

  - pkg/registry for the registration subtree built on this contract
  - pkg/messaging for control-message delivery over watches
*/
package coordination
