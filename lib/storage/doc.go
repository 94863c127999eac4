/*
Package storage provides structured, expiring key-value storage on top of flat
string-keyed backends.

A Storage instance binds a logical key to one backend and keeps a JSON-like
data tree (map[string]any) for it. Values inside the tree are addressed with
dotted paths; a backslash escapes a literal dot (see package keypath).

	s, err := storage.New(storage.Config{
		Key:      "city",
		Type:     storage.TypeSession,
		Tag:      "1.0",
		Duration: time.Hour,
	})
	if err != nil {
		// handle error
	}
	_ = s.Set("beijing.code", 10)
	code, _ := s.GetOr("beijing.code", 0)

Every instance persists two native keys, "sKVCheck:<key>" holding the check
record and "sKVData:<key>" holding the data. The check record decides on
initialization whether the persisted data is still valid:

  - a non-empty configured tag differs from the persisted tag,
  - the persisted duration has elapsed since the last initialization,
  - the persisted deadline has passed.

If any of them holds, the instance starts with an empty mapping. A failed
write (invalid path target or backend error) restores the data from before
the call, both in memory and in the backend.

Backends are managed by a Registry. TypeVariable is a process-wide map,
TypeSession an in-process store with optional snapshot file and TypeLocal a
SQLite file. Types without a working backend fall back to TypeVariable. The
registry can sweep all persisted instances (Each, Clean, List).

Every operation has an Async variant returning a Future.
*/
package storage
