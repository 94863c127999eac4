package storage

import (
	"fmt"
	"strings"
	"time"
)

// Type selects the backend a storage instance persists to.
type Type string

const (
	TypeVariable Type = "variable"       // process-wide shared mapping
	TypeSession  Type = "sessionStorage" // in-process session store
	TypeLocal    Type = "localStorage"   // SQLite file
)

// DefaultType is used when Config.Type is empty.
const DefaultType = TypeLocal

// Types lists all types in sweep order.
var Types = []Type{TypeVariable, TypeSession, TypeLocal}

// ParseType converts s to a Type. An empty string yields DefaultType.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case "":
		return DefaultType, nil
	case TypeVariable, TypeSession, TypeLocal:
		return t, nil
	default:
		return "", fmt.Errorf("invalid storage type %q (must be one of variable, sessionStorage, localStorage)", s)
	}
}

// Config configures a storage instance. It is copied on construction and
// never changes afterward.
type Config struct {
	// Key is the logical key naming the instance. Required.
	Key string
	// Type selects the backend. Unsupported types fall back to TypeVariable.
	Type Type
	// Tag is an opaque version. A non-empty tag that differs from the
	// persisted one invalidates the persisted data.
	Tag string
	// Duration is how long persisted data stays valid after the last
	// initialization (0 = forever).
	Duration time.Duration
	// Until is an absolute deadline after which persisted data is
	// invalid (zero = none).
	Until time.Time
}

// validate checks the config and fills in defaults
func (c *Config) validate() error {
	if c.Key == "" {
		return NewError(RetCInvalidConfig, "key is required")
	}
	t, err := ParseType(string(c.Type))
	if err != nil {
		return wrapError(RetCInvalidConfig, "invalid type", err)
	}
	c.Type = t
	if c.Duration < 0 {
		return NewError(RetCInvalidConfig, fmt.Sprintf("duration must not be negative, got %s", c.Duration))
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-10s: %s\n", name, value))
	}

	addSection("Storage")
	addField("Key", c.Key)
	addField("Type", string(c.Type))

	addSection("Validity")
	addField("Tag", orNone(c.Tag))
	if c.Duration > 0 {
		addField("Duration", c.Duration.String())
	} else {
		addField("Duration", "none")
	}
	if !c.Until.IsZero() {
		addField("Until", c.Until.Format(time.RFC3339))
	} else {
		addField("Until", "none")
	}

	return sb.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
