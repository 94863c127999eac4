package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/lib/backend"
	"github.com/ValentinKolb/sKV/lib/keypath"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	log = logger.GetLogger("storage")
)

// HasResult is returned by Storage.Has. Value is only set if Has is true.
type HasResult struct {
	Has   bool
	Value any
}

// Storage binds a logical key to a backend adapter. It holds the data blob
// of the key in memory and writes it back after every mutation.
//
// Construction does no I/O. The first operation loads the check record,
// decides whether the persisted data is still valid and either loads it or
// starts over with an empty mapping. Every initialization rewrites the check
// record, so using an instance renews its duration.
//
// All methods are safe for concurrent use.
type Storage struct {
	mu sync.Mutex

	cfg      Config
	typ      Type // effective type after fallback
	adapter  backend.IAdapter
	checkKey string
	dataKey  string
	created  time.Time
	now      func() time.Time

	// state, valid while initialized is true
	initialized bool
	check       CheckRecord
	data        map[string]any
	placeholder bool
}

// newStorage creates an uninitialized instance. cfg must be validated.
func newStorage(cfg Config, typ Type, adapter backend.IAdapter, now func() time.Time) *Storage {
	return &Storage{
		cfg:      cfg,
		typ:      typ,
		adapter:  adapter,
		checkKey: checkPrefix + cfg.Key,
		dataKey:  dataPrefix + cfg.Key,
		created:  now(),
		now:      now,
	}
}

// Key returns the logical key.
func (s *Storage) Key() string { return s.cfg.Key }

// Type returns the type the instance actually persists to.
func (s *Storage) Type() Type { return s.typ }

// Config returns the config the instance was created with.
func (s *Storage) Config() Config { return s.cfg }

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// ensureInit runs the lazy initialization if needed. Caller must hold s.mu.
func (s *Storage) ensureInit() error {
	if s.initialized {
		return nil
	}

	raw, found, err := s.adapter.Get(s.checkKey)
	if err != nil {
		return wrapError(RetCBackendError, "read check record", err)
	}
	rec, valid := CheckRecord{}, false
	if found {
		rec, valid = decodeCheckRecord(raw)
	}

	var data map[string]any
	placeholder := false

	if !valid || rec.IsOutdated(s.cfg.Tag, s.now()) {
		data = map[string]any{}
		if err := s.adapter.Set(s.dataKey, data); err != nil {
			return wrapError(RetCBackendError, "reset data", err)
		}
		lazyInitReset.Inc()
		log.Debugf("%s: no valid data, starting empty (record found: %t)", s.cfg.Key, valid)
	} else {
		stored, found, err := s.adapter.Get(s.dataKey)
		if err != nil {
			return wrapError(RetCBackendError, "read data", err)
		}
		switch v := stored.(type) {
		case map[string]any:
			data = v
			_, wrapped := v[placeholderKey]
			placeholder = rec.Placeholder && wrapped
		default:
			if found && v != nil {
				data = map[string]any{placeholderKey: v}
				placeholder = true
			}
		}
		if data == nil {
			data = map[string]any{}
			if err := s.adapter.Set(s.dataKey, data); err != nil {
				return wrapError(RetCBackendError, "reset data", err)
			}
		}
		lazyInitReuse.Inc()
	}

	check := newCheckRecord(s.cfg, s.created)
	check.Placeholder = placeholder
	if err := s.adapter.Set(s.checkKey, check.toMap()); err != nil {
		return wrapError(RetCBackendError, "write check record", err)
	}

	s.check = check
	s.data = data
	s.placeholder = placeholder
	s.initialized = true
	return nil
}

// IsOutdated reports whether the check record of the instance is outdated.
// Before initialization the persisted record is inspected without being
// renewed. Without any record the instance is not outdated.
func (s *Storage) IsOutdated() (bool, error) {
	countOp("isOutdated")
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return s.check.IsOutdated(s.cfg.Tag, s.now()), nil
	}

	raw, found, err := s.adapter.Get(s.checkKey)
	if err != nil {
		return false, wrapError(RetCBackendError, "read check record", err)
	}
	if !found {
		return false, nil
	}
	rec, valid := decodeCheckRecord(raw)
	if !valid {
		return false, nil
	}
	return rec.IsOutdated(s.cfg.Tag, s.now()), nil
}

// Destroy removes the check record and the data of the instance. The next
// operation on the instance initializes it again from scratch.
func (s *Storage) Destroy() error {
	countOp("destroy")
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = false
	s.data = nil
	s.placeholder = false
	s.check = CheckRecord{}

	if err := s.adapter.Remove(s.checkKey); err != nil {
		return wrapError(RetCBackendError, "remove check record", err)
	}
	if err := s.adapter.Remove(s.dataKey); err != nil {
		return wrapError(RetCBackendError, "remove data", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// Replace sets the whole value. A mapping becomes the new data, any other
// value is stored as a single wrapped value that Value returns as is.
// Mappings are kept by reference.
func (s *Storage) Replace(value any) error {
	countOp("replace")
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInit(); err != nil {
		return err
	}
	return s.mutate(func() error {
		s.setWhole(value)
		return nil
	})
}

// Set writes value at path, creating intermediate mappings as needed. If
// the instance holds a single wrapped value, it is discarded first.
func (s *Storage) Set(path string, value any) error {
	countOp("set")
	if path == "" {
		return NewError(RetCMissingPath, "set requires a path, use Replace for the whole value")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInit(); err != nil {
		return err
	}
	return s.mutate(func() error {
		if s.placeholder {
			s.data = map[string]any{}
			s.placeholder = false
		}
		return keypath.Set(path, value, s.data)
	})
}

// Remove deletes the value at path.
func (s *Storage) Remove(path string) error {
	countOp("remove")
	if path == "" {
		return NewError(RetCMissingPath, "remove requires a path, use Clear for the whole value")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInit(); err != nil {
		return err
	}
	if s.placeholder {
		// a wrapped value has no named properties
		return nil
	}
	return s.mutate(func() error {
		return keypath.Remove(path, s.data)
	})
}

// Clear resets the data to an empty mapping.
func (s *Storage) Clear() error {
	countOp("clear")
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInit(); err != nil {
		return err
	}
	return s.mutate(func() error {
		s.setWhole(map[string]any{})
		return nil
	})
}

// setWhole replaces the in-memory data. Caller must hold s.mu.
func (s *Storage) setWhole(value any) {
	if m, ok := value.(map[string]any); ok {
		if m == nil {
			m = map[string]any{}
		}
		s.data = m
		s.placeholder = false
		return
	}
	s.data = map[string]any{placeholderKey: value}
	s.placeholder = true
}

// mutate applies fn to the in-memory data and persists the result. If fn or
// the write fails, the data from before the call is restored in memory and
// in the backend. Caller must hold s.mu.
func (s *Storage) mutate(fn func() error) error {
	backup := keypath.CloneMap(s.data)
	backupPlaceholder := s.placeholder

	if err := fn(); err != nil {
		s.rollback(backup, backupPlaceholder)
		if errors.Is(err, keypath.ErrInvalidTarget) {
			return wrapError(RetCInvalidTarget, "invalid path target", err)
		}
		return wrapError(RetCInternalError, "mutation failed", err)
	}

	if err := s.adapter.Set(s.dataKey, s.data); err != nil {
		s.rollback(backup, backupPlaceholder)
		return wrapError(RetCBackendError, "persist data", err)
	}
	if s.placeholder != backupPlaceholder {
		if err := s.writeCheck(s.placeholder); err != nil {
			s.rollback(backup, backupPlaceholder)
			return wrapError(RetCBackendError, "write check record", err)
		}
	}
	return nil
}

// writeCheck persists the check record with the given placeholder mode.
// Caller must hold s.mu.
func (s *Storage) writeCheck(placeholder bool) error {
	check := s.check
	check.Placeholder = placeholder
	if err := s.adapter.Set(s.checkKey, check.toMap()); err != nil {
		return err
	}
	s.check = check
	return nil
}

// rollback restores backup as the current data. Caller must hold s.mu.
func (s *Storage) rollback(backup map[string]any, placeholder bool) {
	rollbacks.Inc()
	s.data = backup
	s.placeholder = placeholder
	if err := s.adapter.Set(s.dataKey, backup); err != nil {
		log.Warningf("%s: persisting rolled back data failed: %v", s.cfg.Key, err)
	}
	if s.check.Placeholder != placeholder {
		if err := s.writeCheck(placeholder); err != nil {
			log.Warningf("%s: persisting rolled back check record failed: %v", s.cfg.Key, err)
		}
	}
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// Value returns a copy of the whole value: the data mapping, or the single
// wrapped value if one was stored with Replace.
func (s *Storage) Value() (any, error) {
	countOp("value")
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInit(); err != nil {
		return nil, err
	}
	return keypath.Clone(s.wholeValue()), nil
}

// Get returns a copy of the value at path, or nil if nothing is stored
// there. An empty path returns the whole value.
func (s *Storage) Get(path string) (any, error) {
	countOp("get")
	value, _, err := s.lookup(path)
	return value, err
}

// GetOr is Get returning fallback if nothing is stored at path.
func (s *Storage) GetOr(path string, fallback any) (any, error) {
	countOp("getOr")
	value, found, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	if !found {
		return fallback, nil
	}
	return value, nil
}

// Sure is Get failing with RetCNotFound if nothing is stored at path.
func (s *Storage) Sure(path string) (any, error) {
	countOp("sure")
	value, found, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, NewError(RetCNotFound, fmt.Sprintf("nothing stored at %q in %q", path, s.cfg.Key))
	}
	return value, nil
}

// Has reports whether path exists and, if so, its value. Only mappings are
// walked, a path through a list is never found. A wrapped single value has
// no named properties, so Has is always false for it, unlike libraries that
// report the wrapped value for every path.
func (s *Storage) Has(path string) (HasResult, error) {
	countOp("has")
	if path == "" {
		return HasResult{}, NewError(RetCMissingPath, "has requires a path")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInit(); err != nil {
		return HasResult{}, err
	}
	if s.placeholder || !keypath.Has(path, s.data) {
		return HasResult{}, nil
	}
	value, _ := keypath.Get(path, s.data)
	return HasResult{Has: true, Value: keypath.Clone(value)}, nil
}

// lookup resolves path against the data
func (s *Storage) lookup(path string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInit(); err != nil {
		return nil, false, err
	}
	if path == "" {
		return keypath.Clone(s.wholeValue()), true, nil
	}
	if s.placeholder {
		return nil, false, nil
	}
	value, found := keypath.Get(path, s.data)
	if !found {
		return nil, false, nil
	}
	return keypath.Clone(value), true, nil
}

// wholeValue returns the data or the wrapped value. Caller must hold s.mu.
func (s *Storage) wholeValue() any {
	if s.placeholder {
		return s.data[placeholderKey]
	}
	return s.data
}

// Peek returns the persisted whole value without initializing the instance,
// so the check record is neither evaluated nor renewed. It returns nil if
// nothing is stored.
func (s *Storage) Peek() (any, error) {
	countOp("peek")
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return keypath.Clone(s.wholeValue()), nil
	}

	stored, found, err := s.adapter.Get(s.dataKey)
	if err != nil {
		return nil, wrapError(RetCBackendError, "read data", err)
	}
	if !found {
		return nil, nil
	}
	if m, ok := stored.(map[string]any); ok {
		if v, wrapped := m[placeholderKey]; wrapped && s.peekPlaceholder() {
			return keypath.Clone(v), nil
		}
	}
	return keypath.Clone(stored), nil
}

// peekPlaceholder reports whether the persisted check record marks the data
// as a wrapped single value. Caller must hold s.mu.
func (s *Storage) peekPlaceholder() bool {
	raw, found, err := s.adapter.Get(s.checkKey)
	if err != nil || !found {
		return false
	}
	rec, valid := decodeCheckRecord(raw)
	return valid && rec.Placeholder
}

// Dump logs the data as indented JSON.
func (s *Storage) Dump() error {
	countOp("dump")
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureInit(); err != nil {
		return err
	}
	out, err := json.MarshalIndent(s.data, "", "    ")
	if err != nil {
		return wrapError(RetCInternalError, "encode data", err)
	}
	log.Infof("%s (%s):\n%s", s.cfg.Key, s.typ, out)
	return nil
}
