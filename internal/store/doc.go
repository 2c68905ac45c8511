// Package store provides the SQLite-backed row store for polystore.
//
// The store owns every SQL statement executed against the backing tables:
//   - entities: base attributes shared by every record
//   - objects, users, groups, sites: one extension table per base type, keyed 1:1 by id
//   - entity_subtypes: (type, subtype) registrations with optional class bindings
//   - datalists: small named configuration values
//
// # Access control
//
// Nothing in this package applies visibility rules. GetRow, Exists and the
// recursive Enable/Disable walk see every row, enabled or not. Access-aware
// reads are composed by the query compiler and executed through QueryRows.
//
// # Atomicity
//
// Insert and Update write the base row and the extension row in a single
// transaction: both succeed or neither does. No other transaction spans more
// than one entity write.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Extension rows must reference an existing entity
package store
