package keypath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// ErrInvalidTarget is returned (wrapped in a *TargetError) when a path write
// has to create a property on a value that is not a mapping.
var ErrInvalidTarget = errors.New("invalid target")

// TargetError names the segment that could not be created and the full path.
type TargetError struct {
	Key  string
	Path string
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("cannot create property `%s` on non-object value, path: `%s`", e.Key, e.Path)
}

// Is makes errors.Is(err, ErrInvalidTarget) work for every *TargetError.
func (e *TargetError) Is(target error) bool {
	return target == ErrInvalidTarget
}

// --------------------------------------------------------------------------
// Path parsing
// --------------------------------------------------------------------------

const (
	separator = "."
	escaped   = `\.`
)

// Split parses a dotted path into its segments. A dot preceded by a backslash
// is a literal dot inside one segment. Empty segments are kept.
//
//	Split("a.b")      -> ["a", "b"]
//	Split(`a.b\.c.d`) -> ["a", "b.c", "d"]
func Split(path string) []string {
	// fast path: nothing escaped
	if !strings.Contains(path, escaped) {
		return strings.Split(path, separator)
	}

	// Reversed, an escaped dot reads `.\`, so every dot not directly followed
	// by a backslash is a separator.
	reversed := reverse(path)
	var (
		segments []string
		start    int
	)
	for i := 0; i < len(reversed); i++ {
		if reversed[i] != '.' {
			continue
		}
		if i+1 < len(reversed) && reversed[i+1] == '\\' {
			continue
		}
		segments = append(segments, reversed[start:i])
		start = i + 1
	}
	segments = append(segments, reversed[start:])

	// restore the original orientation
	out := make([]string, len(segments))
	for i, s := range segments {
		out[len(segments)-1-i] = strings.ReplaceAll(reverse(s), escaped, separator)
	}
	return out
}

// Join is the inverse of Split: dots inside segments are escaped.
func Join(segments ...string) string {
	escapedSegments := make([]string, len(segments))
	for i, s := range segments {
		escapedSegments[i] = strings.ReplaceAll(s, separator, escaped)
	}
	return strings.Join(escapedSegments, separator)
}

// reverse reverses a string byte-wise. Both markers are ASCII and a reversed
// multibyte rune is reversed back before the segment is returned.
func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Get resolves path in data. A segment descends into a mapping by key or
// into a list by index. found is false as soon as a segment is missing or an
// intermediate value is neither a mapping nor a list.
func Get(path string, data map[string]any) (value any, found bool) {
	var current any = data
	for _, key := range Split(path) {
		switch node := current.(type) {
		case map[string]any:
			if current, found = node[key]; !found {
				return nil, false
			}
		case []any:
			i, ok := index(key, len(node))
			if !ok {
				return nil, false
			}
			current = node[i]
		default:
			return nil, false
		}
	}
	return current, true
}

// index parses key as a position in a list of length n. Only the canonical
// decimal form counts, so "01" and "+1" are not indices.
func index(key string, n int) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= n || strconv.Itoa(i) != key {
		return 0, false
	}
	return i, true
}

// Has reports whether every segment of path exists as a key of a mapping.
// Lists are not descended into. The leaf may hold nil.
func Has(path string, data map[string]any) bool {
	current := data
	keys := Split(path)
	for i, key := range keys {
		next, ok := current[key]
		if !ok {
			return false
		}
		if i == len(keys)-1 {
			return true
		}
		if current, ok = next.(map[string]any); !ok {
			return false
		}
	}
	return true
}

// Set writes value at path. Missing or falsy intermediate nodes are replaced
// with empty mappings in place. If a write fails, data may already contain
// those new intermediate nodes; callers must discard it.
func Set(path string, value any, data map[string]any) error {
	parent, leaf, err := walkToParent(path, data)
	if err != nil {
		return err
	}
	parent[leaf] = value
	return nil
}

// Remove deletes the leaf of path. Intermediate nodes are created like Set
// does. Removing a missing key, or a path below a value that is not a
// mapping, is a no-op.
func Remove(path string, data map[string]any) error {
	parent, leaf, err := walkToParent(path, data)
	if errors.Is(err, ErrInvalidTarget) {
		return nil
	}
	if err != nil {
		return err
	}
	delete(parent, leaf)
	return nil
}

// walkToParent returns the mapping holding the last segment of path.
func walkToParent(path string, data map[string]any) (map[string]any, string, error) {
	if data == nil {
		return nil, "", &TargetError{Key: path, Path: path}
	}
	keys := Split(path)
	current := data
	for i, key := range keys[:len(keys)-1] {
		next := current[key]
		if isFalsy(next) {
			next = map[string]any{}
			current[key] = next
		}
		m, ok := next.(map[string]any)
		if !ok {
			// the following segment would have to be created on a non-mapping
			return nil, "", &TargetError{Key: keys[i+1], Path: path}
		}
		current = m
	}
	return current, keys[len(keys)-1], nil
}

// isFalsy reports values that count as "not set" for intermediate nodes.
func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case float64:
		return t == 0
	case float32:
		return t == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	case int32:
		return t == 0
	case uint:
		return t == 0
	case uint64:
		return t == 0
	case uint32:
		return t == 0
	default:
		return false
	}
}

// --------------------------------------------------------------------------
// Copying
// --------------------------------------------------------------------------

// Clone returns a deep copy of v. Mappings and slices are copied
// recursively, every other value is copied as is.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Clone(item)
		}
		return out
	default:
		return v
	}
}

// CloneMap is Clone for a mapping. A nil map stays nil.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}
