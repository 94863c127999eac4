package backend

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// shared is the process-wide mapping behind every variable adapter. It is
// created once at load time and never reset; entries only go away through
// Remove.
var shared = xsync.NewMapOf[string, any]()

// Shared returns the process-wide mapping used by the variable adapter.
func Shared() *xsync.MapOf[string, any] {
	return shared
}

type variableImpl struct {
	data *xsync.MapOf[string, any]
}

// Variable returns an adapter over the process-wide mapping. Values are
// stored by reference, nothing is encoded.
func Variable() IAdapter {
	return NewVariable(shared)
}

// NewVariable returns a variable adapter over the given mapping instead of
// the process-wide one.
func NewVariable(data *xsync.MapOf[string, any]) IAdapter {
	return &variableImpl{
		data: data,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backend/interface.go)
// --------------------------------------------------------------------------

func (v *variableImpl) Set(key string, value any) error {
	v.data.Store(key, value)
	return nil
}

func (v *variableImpl) Get(key string) (any, bool, error) {
	value, ok := v.data.Load(key)
	return value, ok, nil
}

func (v *variableImpl) Remove(key string) error {
	v.data.Delete(key)
	return nil
}

func (v *variableImpl) Keys() ([]string, error) {
	keys := make([]string, 0, v.data.Size())
	v.data.Range(func(key string, _ any) bool {
		keys = append(keys, key)
		return true
	})
	return keys, nil
}
