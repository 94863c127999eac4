// Package cmd implements the command-line interface of sKV. It provides a
// hierarchical command structure to work with single storage instances and to
// sweep over all persisted instances.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for one storage instance (set, get, has, rm, destroy, etc.)
//   - sweep: Commands for all instances (list, clean, support)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set with an environment variable prefixed with SKV_
// (e.g. SKV_LOCAL_PATH), optionally from a .env or .env.local file.
//
// See skv -help for a list of all commands.
package cmd
