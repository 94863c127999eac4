package backend

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
)

const probeKeyPrefix = "sKV-probe-"

// Probe checks whether an adapter can actually be used by writing a small
// value, reading it back and removing it again. Any error, panic or
// mismatch counts as unsupported.
func Probe(adapter IAdapter) (ok bool) {
	if adapter == nil {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			log.Warningf("probe panicked: %v", r)
			ok = false
		}
	}()

	key := probeKeyPrefix + uuid.NewString()
	data := map[string]any{"x": "x"}

	if err := adapter.Set(key, data); err != nil {
		log.Warningf("probe write failed: %v", err)
		return false
	}
	defer func() {
		if err := adapter.Remove(key); err != nil {
			log.Warningf("probe cleanup failed: %v", err)
			ok = false
		}
	}()

	value, loaded, err := adapter.Get(key)
	if err != nil || !loaded {
		log.Warningf("probe read failed (loaded=%t): %v", loaded, err)
		return false
	}

	want, _ := json.Marshal(data)
	got, err := json.Marshal(value)
	if err != nil {
		return false
	}
	return bytes.Equal(want, got)
}
