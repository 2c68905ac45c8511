// Package query defines the typed option set accepted by the entity query
// executor.
//
// Options replaces a free-form option bag: every recognised option is a
// field, so an unknown option is a compile error. Options is a value type
// and is treated as immutable per call; Normalize returns a copy.
//
// NORMALIZATION:
//
// Singular fields (Type, Subtype, ID, OwnerID, ContainerID) are merged into
// their plural forms before any clause is built. An attribute predicate
// whose value is a sequence, or that sets Values, always uses the IN
// operator regardless of the operator supplied.
//
// SENTINELS:
//
//   - Subtypes == nil (AnySubtype) places no constraint on the subtype.
//   - NoSubtype ("") inside Subtypes matches entities without a subtype.
//   - An IDSet built with IDs() and no ids matches nothing, unlike an unset
//     IDSet which does not filter at all.
//
// Validate reports invalid combinations as entity usage errors.
package query
