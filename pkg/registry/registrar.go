package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/burrowlabs/burrow/pkg/coordination"
	"github.com/burrowlabs/burrow/pkg/log"
	"github.com/burrowlabs/burrow/pkg/metrics"
	"github.com/burrowlabs/burrow/pkg/types"
)

// Required children of a node's registration subtree. A registration is
// complete only when every one of them is present.
const (
	ChildErrors        = "ERRORS"
	ChildHistory       = "HISTORY"
	ChildStatusUpdates = "STATUSUPDATES"
	ChildMessages      = "MESSAGES"
)

// RequiredChildren lists every child a complete registration carries
var RequiredChildren = []string{ChildErrors, ChildHistory, ChildStatusUpdates, ChildMessages}

const (
	clusterRecordName = "cluster"
	instancesName     = "instances"
	livenessName      = "alive"
)

// Registrar ensures a node's registration subtree exists in the coordination
// store and repairs corrupted partial registrations. It operates only on
// paths scoped to one node; it does not own the store session.
type Registrar struct {
	store  coordination.Store
	logger zerolog.Logger
}

// NewRegistrar creates a registrar operating through the given session
func NewRegistrar(store coordination.Store) *Registrar {
	return &Registrar{
		store:  store,
		logger: log.WithComponent("registry"),
	}
}

// ClusterPath returns the root path of a cluster
func ClusterPath(cluster types.ClusterIdentity) string {
	return coordination.Join(cluster.ClusterName)
}

// InstancePath returns the registration subtree root for a node
func InstancePath(cluster types.ClusterIdentity, nodeID string) string {
	return coordination.Join(cluster.ClusterName, instancesName, nodeID)
}

// InstancesPath returns the parent path of all registered instances
func InstancesPath(cluster types.ClusterIdentity) string {
	return coordination.Join(cluster.ClusterName, instancesName)
}

// MessagesPath returns the control-message queue path for a node
func MessagesPath(cluster types.ClusterIdentity, nodeID string) string {
	return coordination.Join(cluster.ClusterName, instancesName, nodeID, ChildMessages)
}

// LivenessPath returns the ephemeral liveness marker path for a node
func LivenessPath(cluster types.ClusterIdentity, nodeID string) string {
	return coordination.Join(cluster.ClusterName, instancesName, nodeID, livenessName)
}

func clusterRecordPath(cluster types.ClusterIdentity) string {
	return coordination.Join(cluster.ClusterName, clusterRecordName)
}

// ProvisionCluster writes the cluster identity record. Provisioning an
// already-provisioned cluster with the same identity is a no-op; with a
// different identity it is an error.
func ProvisionCluster(ctx context.Context, store coordination.Store, cluster types.ClusterIdentity) error {
	if cluster.ClusterName == "" {
		return errors.New("cluster name must not be empty")
	}

	payload, err := json.Marshal(cluster)
	if err != nil {
		return fmt.Errorf("failed to encode cluster identity: %w", err)
	}

	err = store.Create(ctx, clusterRecordPath(cluster), payload)
	if err == nil {
		logger := log.WithComponent("registry")
		logger.Info().
			Str("cluster", cluster.ClusterName).
			Str("application_id", cluster.ApplicationID).
			Msg("cluster provisioned")
		return nil
	}
	if !errors.Is(err, coordination.ErrExists) {
		return fmt.Errorf("failed to provision cluster %s: %w", cluster.ClusterName, err)
	}

	// Already provisioned; the identity record is immutable, so it must match
	existing, err := store.Get(ctx, clusterRecordPath(cluster))
	if err != nil {
		return fmt.Errorf("failed to read cluster record for %s: %w", cluster.ClusterName, err)
	}
	if !bytes.Equal(existing, payload) {
		return fmt.Errorf("cluster %s already provisioned with a different identity", cluster.ClusterName)
	}
	return nil
}

// EnsureRegistered verifies or creates the node's registration subtree.
//
// A subtree with every required child present succeeds without writes. An
// absent subtree is created in full. A subtree with some children missing is
// a corrupted leftover of a crashed prior registration and fails with
// *CorruptedError; repair is a separate, explicit decision.
func (r *Registrar) EnsureRegistered(ctx context.Context, cluster types.ClusterIdentity, nodeID string) (*types.RegistrationRecord, error) {
	if nodeID == "" {
		return nil, errors.New("node id must not be empty")
	}

	provisioned, err := r.store.Exists(ctx, clusterRecordPath(cluster))
	if err != nil {
		return nil, fmt.Errorf("failed to check cluster %s: %w", cluster.ClusterName, err)
	}
	if !provisioned {
		return nil, fmt.Errorf("cluster %s: %w", cluster.ClusterName, ErrClusterNotProvisioned)
	}

	present, missing, err := r.inspect(ctx, cluster, nodeID)
	if err != nil {
		return nil, err
	}

	switch {
	case len(missing) == 0:
		// Complete registration, the common path
		return r.record(cluster, nodeID), nil

	case len(present) == 0:
		return r.register(ctx, cluster, nodeID)

	default:
		metrics.CorruptedRegistrationsTotal.Inc()
		r.logger.Warn().
			Str("cluster", cluster.ClusterName).
			Str("node_id", nodeID).
			Strs("missing", missing).
			Msg("partial registration detected")
		return nil, &CorruptedError{
			Cluster: cluster.ClusterName,
			NodeID:  nodeID,
			Missing: missing,
			Present: present,
		}
	}
}

// RepairAndReregister deletes the known required children explicitly, never
// the whole instance subtree, then re-runs EnsureRegistered. Deleting absent
// children succeeds, so repairing twice is safe.
func (r *Registrar) RepairAndReregister(ctx context.Context, cluster types.ClusterIdentity, nodeID string) (*types.RegistrationRecord, error) {
	if nodeID == "" {
		return nil, errors.New("node id must not be empty")
	}

	root := InstancePath(cluster, nodeID)
	for _, child := range RequiredChildren {
		if err := r.store.DeleteSubtree(ctx, coordination.Join(root, child)); err != nil {
			return nil, fmt.Errorf("failed to delete %s for node %s: %w", child, nodeID, err)
		}
	}

	r.logger.Info().
		Str("cluster", cluster.ClusterName).
		Str("node_id", nodeID).
		Msg("partial registration cleared, re-registering")
	metrics.RegistrationRepairsTotal.Inc()

	return r.EnsureRegistered(ctx, cluster, nodeID)
}

// AcquireLiveness claims the node's ephemeral liveness marker. The marker is
// bound to this session's lease; a create conflict means a live peer owns the
// node ID and maps to ErrConflict.
func (r *Registrar) AcquireLiveness(ctx context.Context, cluster types.ClusterIdentity, nodeID string) error {
	payload, _ := json.Marshal(map[string]string{
		"node_id":      nodeID,
		"acquired_at":  time.Now().UTC().Format(time.RFC3339),
		"cluster_name": cluster.ClusterName,
	})
	err := r.store.CreateEphemeral(ctx, LivenessPath(cluster, nodeID), payload)
	if errors.Is(err, coordination.ErrExists) {
		return fmt.Errorf("node %s in cluster %s: %w", nodeID, cluster.ClusterName, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to acquire liveness for node %s: %w", nodeID, err)
	}
	return nil
}

// ReleaseLiveness removes the liveness marker. Releasing an absent marker is
// a no-op; session close releases it implicitly anyway.
func (r *Registrar) ReleaseLiveness(ctx context.Context, cluster types.ClusterIdentity, nodeID string) error {
	return r.store.Delete(ctx, LivenessPath(cluster, nodeID))
}

// ListInstances returns the node IDs with a registration subtree in the cluster
func (r *Registrar) ListInstances(ctx context.Context, cluster types.ClusterIdentity) ([]string, error) {
	return r.store.Children(ctx, InstancesPath(cluster))
}

// inspect partitions the required children into present and missing
func (r *Registrar) inspect(ctx context.Context, cluster types.ClusterIdentity, nodeID string) (present, missing []string, err error) {
	children, err := r.store.Children(ctx, InstancePath(cluster, nodeID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list registration for node %s: %w", nodeID, err)
	}

	have := make(map[string]struct{}, len(children))
	for _, c := range children {
		have[c] = struct{}{}
	}
	for _, required := range RequiredChildren {
		if _, ok := have[required]; ok {
			present = append(present, required)
		} else {
			missing = append(missing, required)
		}
	}
	return present, missing, nil
}

// register creates every required child. A crash mid-creation leaves a
// partial subtree; a later EnsureRegistered reports it as corrupted and
// RepairAndReregister recovers.
func (r *Registrar) register(ctx context.Context, cluster types.ClusterIdentity, nodeID string) (*types.RegistrationRecord, error) {
	root := InstancePath(cluster, nodeID)
	marker, _ := json.Marshal(map[string]string{
		"node_id":    nodeID,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})

	for _, child := range RequiredChildren {
		err := r.store.Create(ctx, coordination.Join(root, child), marker)
		if err != nil && !errors.Is(err, coordination.ErrExists) {
			return nil, fmt.Errorf("failed to create %s for node %s: %w", child, nodeID, err)
		}
	}

	metrics.RegistrationsTotal.Inc()
	r.logger.Info().
		Str("cluster", cluster.ClusterName).
		Str("node_id", nodeID).
		Msg("node registered")

	return r.record(cluster, nodeID), nil
}

func (r *Registrar) record(cluster types.ClusterIdentity, nodeID string) *types.RegistrationRecord {
	return &types.RegistrationRecord{
		Cluster:   cluster,
		NodeID:    nodeID,
		Children:  append([]string(nil), RequiredChildren...),
		CreatedAt: time.Now().UTC(),
	}
}
