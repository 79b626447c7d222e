/*
Package registry implements cluster membership registration in the
coordination store, including detection and repair of corrupted partial
registrations.

Every node owns a registration subtree under its cluster's instances path:

	/<cluster>/instances/<node>/ERRORS
	/<cluster>/instances/<node>/HISTORY
	/<cluster>/instances/<node>/STATUSUPDATES
	/<cluster>/instances/<node>/MESSAGES
	/<cluster>/instances/<node>/alive        (ephemeral, liveness)

A registration is complete when every required child is present. A subtree
with some children missing is the signature of a session that crashed
mid-registration; EnsureRegistered reports it as a *CorruptedError and never
repairs it on its own, because deletion is destructive and must be an opt-in
decision. RepairAndReregister is that explicit decision: it deletes the known
required children one by one (never the whole subtree, so unrelated sibling
data survives) and re-registers. Both operations are idempotent.

Liveness is a separate ephemeral marker bound to the session lease. Claiming
a node ID a live peer already holds fails with ErrConflict; the conflict is
fatal for that attempt, never retried blindly.

# Error Taxonomy

  - *CorruptedError (errors.Is ErrCorrupted): partial subtree, repairable
  - ErrConflict: node ID held by a live session, fatal
  - ErrClusterNotProvisioned: identity record absent
  - anything else: transport failure talking to the store

# See Also

  - pkg/cluster for the connect / connect-with-retry flows driving this package
  - pkg/coordination for the store contract
*/
package registry
