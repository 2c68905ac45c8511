// Package entities is the entry point for storing and querying entities.
//
// A Service wires the row store, subtype registry, hydrator, entity cache,
// registered-type directory, access provider and event registry together.
// All process-wide state lives on the Service; nothing is global.
//
// READS:
//
// Get is access-aware: the access provider's fragment is ANDed into the
// lookup, and rows it excludes are reported exactly like absent rows.
// GetRow and Exists bypass access control.
//
// QUERIES:
//
// GetEntities accepts a query.Options and returns a count, a materialized
// list or a lazy Cursor. Page runs the count first and skips the fetch when
// the count is zero. Database failures while querying degrade to an empty
// result and are logged; usage and configuration errors abort the call.
//
// CACHE:
//
// Hydrated entities are cached by id. Every write path invalidates the ids
// it changed before returning. The cache is per Service and never shared
// between processes.
package entities
