// Package keypath addresses values inside nested map[string]any trees with
// dotted paths such as "user.address.city".
//
// A dot that is part of a key name is escaped with a backslash:
//
//	keypath.Split(`files.report\.pdf.size`) // ["files", "report.pdf", "size"]
//
// The accessors Get, Has, Set and Remove operate on decoded JSON-like data
// (maps, slices and scalars). Only map[string]any counts as a container;
// slices are leaf values and cannot be indexed by a path.
//
// Write operations create missing intermediate mappings in place. Set fails
// with a *TargetError (matching ErrInvalidTarget) when a segment has to be
// created on a scalar, after intermediate mappings may already have been
// added. Callers that need all-or-nothing semantics must work on a copy,
// see Clone.
package keypath
