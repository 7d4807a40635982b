// Package repository defines the persistence interfaces used by toposync.
//
// # Inventory
//
// The Inventory interface exposes the graph primitives the reconcilers need:
// containment (children, special children, parents), object attributes,
// named relationships between objects, and IPAM pools. Every call is
// committed on its own; the engine performs no transaction management.
//
// Relationships are looked up by name from either endpoint, so relating a
// port to an address with ipamHasIpAddress makes the port visible from the
// address and the address visible from the port.
//
// # Supporting Stores
//
// AuditLog receives one entry per mutation. ConfigStore serves named
// configuration variables such as the expected local AS number. SyncStore
// persists synchronization groups and their data source configurations.
//
// # SQLite Implementation
//
// The sqlite subpackage implements every interface on an embedded database.
// It seeds the built-in class hierarchy on first open and seals sensitive
// data source parameters before writing them.
package repository
