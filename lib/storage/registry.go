package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/lib/backend"
	"github.com/ValentinKolb/sKV/lib/backend/session"
)

// Version of the sKV storage format and library
const Version = "1.0.0"

// Options configures a Registry during initialization
type Options struct {
	// Variable is the adapter for TypeVariable (nil = backend.Variable()).
	Variable backend.IAdapter
	// Session creates the store behind TypeSession (nil = unsupported).
	Session backend.StringStoreFactory
	// Local creates the store behind TypeLocal (nil = unsupported).
	Local backend.StringStoreFactory
	// Now is the clock used for validity checks (nil = time.Now).
	Now func() time.Time
}

// DefaultOptions returns the default registry options: the process-wide
// variable mapping and an in-process session store, no local store.
func DefaultOptions() *Options {
	return &Options{
		Session: session.Factory(session.DefaultOptions()),
	}
}

// Registry knows the adapter of every supported type. It creates storage
// instances and sweeps over all instances persisted in its backends.
type Registry struct {
	adapters map[Type]backend.IAdapter
	stores   []backend.IStringStore
	now      func() time.Time
}

// NewRegistry creates a registry with the specified options (optional).
// Every configured store is probed first; stores that cannot be created or
// fail the probe are unsupported and their instances use TypeVariable.
func NewRegistry(opts *Options) *Registry {
	if opts == nil {
		opts = DefaultOptions()
	}

	r := &Registry{
		adapters: make(map[Type]backend.IAdapter),
		now:      opts.Now,
	}
	if r.now == nil {
		r.now = time.Now
	}

	if opts.Variable != nil {
		r.adapters[TypeVariable] = opts.Variable
	} else {
		r.adapters[TypeVariable] = backend.Variable()
	}

	r.addStore(TypeSession, opts.Session)
	r.addStore(TypeLocal, opts.Local)

	return r
}

// addStore opens the store of t and registers it if it passes the probe
func (r *Registry) addStore(t Type, factory backend.StringStoreFactory) {
	if factory == nil {
		return
	}

	store, err := factory()
	if err != nil {
		log.Warningf("%s unsupported, falling back to %s: %v", t, TypeVariable, err)
		return
	}

	adapter := backend.NewPersistentAdapter(store)
	if !backend.Probe(adapter) {
		log.Warningf("%s failed the capability probe, falling back to %s", t, TypeVariable)
		if err := store.Close(); err != nil {
			log.Warningf("closing %s store failed: %v", t, err)
		}
		return
	}

	r.adapters[t] = adapter
	r.stores = append(r.stores, store)
}

// Support reports whether t has a working backend. TypeVariable always has.
func (r *Registry) Support(t Type) bool {
	_, ok := r.adapters[t]
	return ok
}

// New creates a storage instance. If the requested type is unsupported the
// instance uses TypeVariable, see Storage.Type.
func (r *Registry) New(cfg Config) (*Storage, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	typ := cfg.Type
	adapter, ok := r.adapters[typ]
	if !ok {
		typ = TypeVariable
		adapter = r.adapters[TypeVariable]
	}
	return newStorage(cfg, typ, adapter, r.now), nil
}

// Close releases all stores of the registry. Instances created by the
// registry must not be used afterward.
func (r *Registry) Close() error {
	var errs []error
	for _, store := range r.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Sweep
// --------------------------------------------------------------------------

// ListEntry describes one persisted instance
type ListEntry struct {
	Type  Type
	Key   string
	Value any
}

// Each calls fn with an instance for every check record found in the
// supported backends, in type and key order. The instances carry no tag or
// validity settings. Each stops at the first error returned by fn.
func (r *Registry) Each(fn func(*Storage) error) error {
	for _, t := range Types {
		adapter, ok := r.adapters[t]
		if !ok {
			continue
		}

		keys, err := adapter.Keys()
		if err != nil {
			return wrapError(RetCBackendError, fmt.Sprintf("list %s keys", t), err)
		}
		sort.Strings(keys)

		for _, native := range keys {
			key, ok := strings.CutPrefix(native, checkPrefix)
			if !ok || key == "" {
				continue
			}
			if err := fn(newStorage(Config{Key: key, Type: t}, t, adapter, r.now)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clean destroys every outdated instance and returns how many were
// destroyed. Check records are only read, valid instances are untouched.
func (r *Registry) Clean() (int, error) {
	destroyed := 0
	err := r.Each(func(s *Storage) error {
		outdated, err := s.IsOutdated()
		if err != nil || !outdated {
			return err
		}
		if err := s.Destroy(); err != nil {
			return err
		}
		destroyed++
		log.Debugf("cleaned outdated %s %q", s.Type(), s.Key())
		return nil
	})
	sweepDestroyed.Add(destroyed)
	return destroyed, err
}

// List logs type, key and value of every instance and returns them.
func (r *Registry) List() ([]ListEntry, error) {
	var entries []ListEntry
	err := r.Each(func(s *Storage) error {
		value, err := s.Peek()
		if err != nil {
			return err
		}
		log.Infof("%-14s | %s | %v", s.Type(), s.Key(), value)
		entries = append(entries, ListEntry{Type: s.Type(), Key: s.Key(), Value: value})
		return nil
	})
	return entries, err
}

// --------------------------------------------------------------------------
// Default registry
// --------------------------------------------------------------------------

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it with
// DefaultOptions on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry(DefaultOptions())
	}
	return defaultRegistry
}

// SetDefault replaces the process-wide registry and returns the previous one
// (nil if none was created yet).
func SetDefault(r *Registry) *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultRegistry
	defaultRegistry = r
	return prev
}

// New creates a storage instance with the default registry.
func New(cfg Config) (*Storage, error) {
	return Default().New(cfg)
}

// Each sweeps the default registry, see Registry.Each.
func Each(fn func(*Storage) error) error {
	return Default().Each(fn)
}

// Clean sweeps the default registry, see Registry.Clean.
func Clean() (int, error) {
	return Default().Clean()
}

// List sweeps the default registry, see Registry.List.
func List() ([]ListEntry, error) {
	return Default().List()
}

// SupportStorage reports for every type whether the default registry has a
// working backend for it.
func SupportStorage() map[Type]bool {
	r := Default()
	support := make(map[Type]bool, len(Types))
	for _, t := range Types {
		support[t] = r.Support(t)
	}
	return support
}
