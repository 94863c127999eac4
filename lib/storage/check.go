package storage

import (
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// native key prefixes, the sweep finds instances by checkPrefix
const (
	checkPrefix = "sKVCheck:"
	dataPrefix  = "sKVData:"
)

// placeholderKey wraps a whole value that is not a mapping
const placeholderKey = "_placeholder"

// CheckRecord is the metadata persisted next to the data of every instance.
// Times are epoch milliseconds, Duration is in milliseconds. Placeholder marks
// data holding a single wrapped value under placeholderKey.
type CheckRecord struct {
	Tag         string `mapstructure:"tag"`
	LastUpdate  int64  `mapstructure:"lastUpdate"`
	Duration    int64  `mapstructure:"duration"`
	Until       int64  `mapstructure:"until"`
	Placeholder bool   `mapstructure:"placeholder"`
}

// newCheckRecord builds the record written on initialization.
func newCheckRecord(cfg Config, created time.Time) CheckRecord {
	rec := CheckRecord{
		Tag:        cfg.Tag,
		LastUpdate: created.UnixMilli(),
		Duration:   durationMillis(cfg.Duration),
	}
	if !cfg.Until.IsZero() {
		rec.Until = cfg.Until.UnixMilli()
	}
	return rec
}

// durationMillis converts d to milliseconds, rounding up so that a positive
// duration never turns into 0, which means no expiry.
func durationMillis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if d%time.Millisecond != 0 {
		ms++
	}
	return ms
}

// IsOutdated reports whether the record is no longer valid for an instance
// configured with tag at time now. The persisted duration applies, not the
// one of the current config.
func (r CheckRecord) IsOutdated(tag string, now time.Time) bool {
	if tag != "" && tag != r.Tag {
		return true
	}

	ms := now.UnixMilli()
	if r.Duration != 0 && ms-r.LastUpdate > r.Duration {
		return true
	}
	if r.Until != 0 && ms > r.Until {
		return true
	}
	return false
}

// toMap returns the persisted form of the record
func (r CheckRecord) toMap() map[string]any {
	return map[string]any{
		"tag":         r.Tag,
		"lastUpdate":  r.LastUpdate,
		"duration":    r.Duration,
		"until":       r.Until,
		"placeholder": r.Placeholder,
	}
}

// decodeCheckRecord converts a value read from an adapter into a record.
// Anything that is not a mapping, or does not decode, is reported as absent.
func decodeCheckRecord(raw any) (CheckRecord, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return CheckRecord{}, false
	}

	var rec CheckRecord
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &rec,
	})
	if err != nil {
		return CheckRecord{}, false
	}
	if err := decoder.Decode(m); err != nil {
		log.Debugf("ignoring undecodable check record: %v", err)
		return CheckRecord{}, false
	}
	return rec, true
}
