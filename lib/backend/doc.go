// Package backend provides the storage backends the storage package persists
// its records with. Every backend is a flat key-value store addressed by
// plain string keys; structure and expiration live one layer above.
//
// Key Components:
//
//   - IAdapter Interface: What the storage layer talks to. Set, Get and
//     Remove work on decoded values, Keys enumerates native keys for sweeps.
//     A missing key is reported with loaded=false by every adapter, so
//     callers cannot tell backends apart by their null handling.
//
//   - IStringStore Interface: A store of strings, the equivalent of the
//     storage objects a platform provides. Implementations live in the
//     subpackages sqlite (file backed, survives restarts) and session
//     (in-process, optional snapshot file and quota).
//
//   - Persistent Adapter: NewPersistentAdapter turns any IStringStore into an
//     IAdapter by encoding values as JSON. Stored strings that fail to decode
//     are returned raw rather than failing the read.
//
//   - Variable Adapter: Variable returns an adapter over one process-wide
//     mapping (see Shared). Values are kept by reference. The mapping lives
//     as long as the process; entries are only dropped through Remove.
//
//   - Probe: A round-trip self test. A backend that exists but fails on use
//     must be treated as unsupported, the storage layer then falls back to
//     the variable adapter.
//
// Usage Example:
//
//	store, err := sqlite.NewStore("data/local.db")
//	if err != nil {
//	    // Handle error
//	}
//	adapter := backend.NewPersistentAdapter(store)
//	if !backend.Probe(adapter) {
//	    adapter = backend.Variable()
//	}
//
// The testing subpackage holds a conformance suite every IStringStore
// implementation is run against.
package backend
