package backend

import (
	"errors"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IAdapter is the uniform interface the storage layer uses to persist values
// under flat string keys. Implementations decide how values are encoded.
type IAdapter interface {
	// Set stores value under key, overwriting any previous value.
	Set(key string, value any) (err error)
	// Get returns the value for key. loaded is false if nothing is stored
	// under key. Implementations must not fail on undecodable data.
	Get(key string) (value any, loaded bool, err error)
	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) (err error)
	// Keys returns all native keys currently stored, in no particular order.
	Keys() (keys []string, err error)
}

// StringStoreFactory is a function type that creates a new string store.
// This is used to abstract the creation of the store from the adapter.
type StringStoreFactory func() (IStringStore, error)

// IStringStore is a flat string-to-string store, the equivalent of the
// storage objects a platform provides. All methods must be safe for
// concurrent use.
type IStringStore interface {
	// SetItem stores value under key.
	SetItem(key, value string) (err error)
	// GetItem returns the value for key. The boolean return value indicates whether a value for the key was found.
	GetItem(key string) (value string, loaded bool, err error)
	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(key string) (err error)
	// Keys returns all stored keys.
	Keys() (keys []string, err error)
	// Close releases all resources. The store must not be used afterward.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrQuotaExceeded is returned by stores that enforce a size limit when a
	// write would grow the store beyond it.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrClosed is returned by stores that have been closed.
	ErrClosed = errors.New("store is closed")
)
