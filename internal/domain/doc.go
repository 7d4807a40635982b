// Package domain defines the core types of the toposync reconciliation engine.
//
// This package contains the data model shared by providers, reconcilers, the
// orchestrator and the repository layer.
//
// # Configuration
//
// DataSourceConfiguration holds the string parameters needed to reach one
// device (address, port, SNMP version and credentials). Configurations are
// grouped into a SynchronizationGroup, which may be persisted or built ad hoc
// for a one-off run.
//
// # Poll Data
//
// TableData is a column-addressed table whose columns are row aligned: row i
// of every column describes the same record. PollResult maps each polled
// configuration to the tables collected for it and to the errors raised while
// polling it. A PollResult is assembled with a PollBuilder and is read-only
// afterwards.
//
// # Results
//
// SyncResult is one entry of the append-only log produced by an automated
// reconciliation. SyncFinding is its supervised counterpart: it carries a
// proposed action that is only applied once an operator approves it through a
// SyncAction.
//
// # Inventory References
//
// ObjectLight, Object and Pool are lightweight handles to objects owned by the
// inventory repository. The engine never owns their lifecycle.
//
// # Errors
//
// Sentinel errors classify every failure the engine reports. Callers wrap
// them with context and test for them with errors.Is.
package domain
