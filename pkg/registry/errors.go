package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCorrupted marks a partial registration subtree. Matched by
	// errors.Is against a *CorruptedError.
	ErrCorrupted = errors.New("registration corrupted")

	// ErrConflict is returned when a live session already owns the nodeID's
	// registration. Fatal for the attempt; retrying blindly would spin
	// against a legitimately active peer.
	ErrConflict = errors.New("node id owned by a live session")

	// ErrClusterNotProvisioned is returned when the cluster identity record
	// is absent from the coordination store.
	ErrClusterNotProvisioned = errors.New("cluster not provisioned")
)

// CorruptedError reports a registration subtree with some, but not all,
// required children present — the signature of a crashed prior registration.
// Plain connect must not repair it; see Registrar.RepairAndReregister.
type CorruptedError struct {
	Cluster string
	NodeID  string
	Missing []string
	Present []string
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("registration corrupted for node %s in cluster %s: missing children [%s]",
		e.NodeID, e.Cluster, strings.Join(e.Missing, ", "))
}

// Is lets errors.Is(err, ErrCorrupted) match a *CorruptedError
func (e *CorruptedError) Is(target error) bool {
	return target == ErrCorrupted
}
