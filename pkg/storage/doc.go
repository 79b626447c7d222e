/*
Package storage provides the local BoltDB-backed message journal.

Control messages are delivered at-least-once by the coordination store. The
journal persists the IDs of messages a node has already consumed, so a
redelivery — within a session or after a process restart — is recognized and
suppressed instead of re-handled. The journal is optional: nodes running
without a data directory fall back to in-memory deduplication that covers the
current session only.

# Usage

	journal, err := storage.NewJournal(dataDir)
	if err != nil {
		return err
	}
	defer journal.Close()

	first, err := journal.MarkHandled(msg.ID)
	if err != nil {
		return err
	}
	if !first {
		// redelivery, skip
	}

Entries only need to outlive the store's redelivery window; Compact trims
old ones.

# See Also

  - pkg/messaging, the journal's only consumer
*/
package storage
