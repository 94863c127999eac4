package backend

import (
	"encoding/json"
	"fmt"

	"github.com/lni/dragonboat/v4/logger"
)

var (
	log = logger.GetLogger("backend")
)

type persistentImpl struct {
	store IStringStore
}

// NewPersistentAdapter creates an adapter that encodes every value as JSON
// before handing it to the given string store.
//
// Decoding is tolerant: a stored string that is not valid JSON is returned
// as is instead of failing the read.
func NewPersistentAdapter(store IStringStore) IAdapter {
	return &persistentImpl{
		store: store,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backend/interface.go)
// --------------------------------------------------------------------------

func (p *persistentImpl) Set(key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %q: %w", key, err)
	}
	return p.store.SetItem(key, string(encoded))
}

func (p *persistentImpl) Get(key string) (any, bool, error) {
	raw, ok, err := p.store.GetItem(key)
	if err != nil {
		return nil, false, err
	}
	// an empty string counts as missing
	if !ok || raw == "" {
		return nil, false, nil
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		log.Debugf("value for %q is not valid json, returning raw string: %v", key, err)
		return raw, true, nil
	}
	return value, true, nil
}

func (p *persistentImpl) Remove(key string) error {
	return p.store.RemoveItem(key)
}

func (p *persistentImpl) Keys() ([]string, error) {
	return p.store.Keys()
}
