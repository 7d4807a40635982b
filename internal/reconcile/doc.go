// Package reconcile matches polled device tables against the inventory and
// mutates the inventory to agree with them.
//
// Every reconciliation of one device runs in a session that owns a read-only
// Snapshot of the device subtree and the IPv4 IPAM tree, built once before
// any mutation. Objects created during the session are added to the
// snapshot so later rows see them. Each mutation is committed immediately
// and paired with an activity log entry by the "sync" actor; there is no
// staged transaction. Decisions are reported as domain.SyncResult entries
// and, apart from the BGP local AS precondition, never stop the session.
package reconcile
