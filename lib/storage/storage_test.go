package storage

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/backend"
	"github.com/ValentinKolb/sKV/lib/backend/session"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestRegistry returns a registry with a private variable map and a
// fresh session store
func newTestRegistry(t *testing.T, clock *testClock) *Registry {
	t.Helper()
	return newTestRegistryWithSession(t, clock, &session.Options{NumShards: 4})
}

func newTestRegistryWithSession(t *testing.T, clock *testClock, opts *session.Options) *Registry {
	t.Helper()
	r := NewRegistry(&Options{
		Variable: backend.NewVariable(xsync.NewMapOf[string, any]()),
		Session:  session.Factory(opts),
		Now:      clock.Now,
	})
	t.Cleanup(func() { _ = r.Close() })
	if !r.Support(TypeSession) {
		t.Fatalf("expected session storage to be supported")
	}
	return r
}

func mustNew(t *testing.T, r *Registry, cfg Config) *Storage {
	t.Helper()
	s, err := r.New(cfg)
	if err != nil {
		t.Fatalf("New(%+v) failed: %v", cfg, err)
	}
	return s
}

func mustValue(t *testing.T, s *Storage) any {
	t.Helper()
	v, err := s.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	return v
}

func mustSet(t *testing.T, s *Storage, path string, value any) {
	t.Helper()
	if err := s.Set(path, value); err != nil {
		t.Fatalf("Set(%q) failed: %v", path, err)
	}
}

func expectEqual(t *testing.T, what string, got, want any) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("%s: got %#v, want %#v", what, got, want)
	}
}

// each storage test runs against the variable and the session backend
var testTypes = []Type{TypeVariable, TypeSession}

// --------------------------------------------------------------------------
// Paths
// --------------------------------------------------------------------------

func TestStorage_SetGet(t *testing.T) {
	for _, typ := range testTypes {
		t.Run(string(typ), func(t *testing.T) {
			r := newTestRegistry(t, newTestClock())
			s := mustNew(t, r, Config{Key: "roundtrip", Type: typ})

			values := map[string]any{
				"str":           "value",
				"num":           float64(42),
				"bool":          true,
				"null":          nil,
				"list":          []any{"a", float64(1), false},
				"obj":           map[string]any{"a": map[string]any{"b": "c"}},
				"deep.a.b.c.d":  "deep",
				"unicode.ключ":  "значение",
				"empty.segment": "",
			}
			for path, v := range values {
				mustSet(t, s, path, v)
			}

			// same instance and a fresh one reading from the backend
			for _, inst := range []*Storage{s, mustNew(t, r, Config{Key: "roundtrip", Type: typ})} {
				for path, want := range values {
					got, err := inst.Get(path)
					if err != nil {
						t.Fatalf("Get(%q) failed: %v", path, err)
					}
					expectEqual(t, "Get("+path+")", got, want)
				}
			}
		})
	}
}

func TestStorage_MergeSiblings(t *testing.T) {
	s := mustNew(t, newTestRegistry(t, newTestClock()), Config{Key: "merge", Type: TypeVariable})

	mustSet(t, s, "x.y", "y")
	mustSet(t, s, "x.z", "z")

	got, _ := s.Get("x")
	expectEqual(t, "Get(x)", got, map[string]any{"y": "y", "z": "z"})
}

func TestStorage_OverrideSubtree(t *testing.T) {
	s := mustNew(t, newTestRegistry(t, newTestClock()), Config{Key: "override", Type: TypeVariable})

	mustSet(t, s, "x.y", map[string]any{"z": "z"})
	mustSet(t, s, "x.y", "y")

	got, _ := s.Get("x.y")
	expectEqual(t, "Get(x.y)", got, "y")
	if res, _ := s.Has("x.y.z"); res.Has {
		t.Errorf("expected x.y.z to be gone")
	}
}

func TestStorage_EscapedDot(t *testing.T) {
	s := mustNew(t, newTestRegistry(t, newTestClock()), Config{Key: "escaped", Type: TypeSession})

	mustSet(t, s, `x.y\.y.z`, "v")

	got, _ := s.Get(`x.y\.y.z`)
	expectEqual(t, `Get(x.y\.y.z)`, got, "v")

	got, _ = s.Get(`x.y\.y`)
	expectEqual(t, `Get(x.y\.y)`, got, map[string]any{"z": "v"})

	got, _ = s.Get("x")
	expectEqual(t, "Get(x)", got, map[string]any{"y.y": map[string]any{"z": "v"}})
}

func TestStorage_SetMissingPath(t *testing.T) {
	s := mustNew(t, newTestRegistry(t, newTestClock()), Config{Key: "nopath", Type: TypeVariable})

	if err := s.Set("", "x"); !IsCode(err, RetCMissingPath) {
		t.Errorf("expected RetCMissingPath, got %v", err)
	}
}

// --------------------------------------------------------------------------
// Rollback
// --------------------------------------------------------------------------

func TestStorage_InvalidTargetRollback(t *testing.T) {
	for _, typ := range testTypes {
		t.Run(string(typ), func(t *testing.T) {
			r := newTestRegistry(t, newTestClock())
			s := mustNew(t, r, Config{Key: "rollback", Type: typ})

			mustSet(t, s, "foo", "x")

			err := s.Set("foo.boo", "y")
			if !IsCode(err, RetCInvalidTarget) {
				t.Fatalf("expected RetCInvalidTarget, got %v", err)
			}
			if !strings.Contains(err.Error(), "boo") {
				t.Errorf("expected the error to name the offending key, got %v", err)
			}

			want := map[string]any{"foo": "x"}
			expectEqual(t, "value after failed set", mustValue(t, s), want)
			expectEqual(t, "persisted value after failed set",
				mustValue(t, mustNew(t, r, Config{Key: "rollback", Type: typ})), want)
		})
	}
}

func TestStorage_InvalidTargetDeep(t *testing.T) {
	s := mustNew(t, newTestRegistry(t, newTestClock()), Config{Key: "rollback-deep", Type: TypeVariable})

	mustSet(t, s, "a.b", "leaf")

	// would create "a.b.c" on a string, "x" must not be left behind
	if err := s.Set("x.y.z", "ok"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set("a.b.c.d", "y"); !IsCode(err, RetCInvalidTarget) {
		t.Fatalf("expected RetCInvalidTarget, got %v", err)
	}
	expectEqual(t, "value", mustValue(t, s), map[string]any{
		"a": map[string]any{"b": "leaf"},
		"x": map[string]any{"y": map[string]any{"z": "ok"}},
	})
}

func TestStorage_BackendErrorRollback(t *testing.T) {
	r := newTestRegistryWithSession(t, newTestClock(), &session.Options{NumShards: 2, Quota: 200})
	s := mustNew(t, r, Config{Key: "q", Type: TypeSession})

	mustSet(t, s, "small", "s")

	err := s.Set("big", strings.Repeat("a", 200))
	if !IsCode(err, RetCBackendError) {
		t.Fatalf("expected RetCBackendError, got %v", err)
	}
	if !errors.Is(err, backend.ErrQuotaExceeded) {
		t.Errorf("expected the error to wrap ErrQuotaExceeded, got %v", err)
	}

	want := map[string]any{"small": "s"}
	expectEqual(t, "value after failed write", mustValue(t, s), want)
	expectEqual(t, "persisted value after failed write",
		mustValue(t, mustNew(t, r, Config{Key: "q", Type: TypeSession})), want)

	// the instance stays usable
	mustSet(t, s, "other", "o")
	got, _ := s.Get("other")
	expectEqual(t, "Get(other)", got, "o")
}

// --------------------------------------------------------------------------
// Whole values
// --------------------------------------------------------------------------

func TestStorage_Replace(t *testing.T) {
	for _, typ := range testTypes {
		t.Run(string(typ), func(t *testing.T) {
			r := newTestRegistry(t, newTestClock())
			s := mustNew(t, r, Config{Key: "whole", Type: typ})

			// scalar
			if err := s.Replace("scalar"); err != nil {
				t.Fatalf("Replace failed: %v", err)
			}
			expectEqual(t, "Value", mustValue(t, s), "scalar")
			got, _ := s.Get("")
			expectEqual(t, "Get(\"\")", got, "scalar")
			if res, _ := s.Has(placeholderKey); res.Has {
				t.Errorf("a wrapped value must not expose named properties")
			}
			if got, _ := s.GetOr(placeholderKey, "fallback"); got != "fallback" {
				t.Errorf("expected fallback for a path on a wrapped value, got %v", got)
			}

			// list, re-detected by a fresh instance
			if err := s.Replace([]any{"a", "b"}); err != nil {
				t.Fatalf("Replace failed: %v", err)
			}
			expectEqual(t, "fresh Value", mustValue(t, mustNew(t, r, Config{Key: "whole", Type: typ})), []any{"a", "b"})

			// path write discards the wrapped value
			mustSet(t, s, "a", "b")
			expectEqual(t, "Value after Set", mustValue(t, s), map[string]any{"a": "b"})

			// mapping
			if err := s.Replace(map[string]any{"m": "n"}); err != nil {
				t.Fatalf("Replace failed: %v", err)
			}
			expectEqual(t, "Value after Replace", mustValue(t, s), map[string]any{"m": "n"})

			// a typed nil mapping is an empty one
			if err := s.Replace(map[string]any(nil)); err != nil {
				t.Fatalf("Replace failed: %v", err)
			}
			expectEqual(t, "Value after nil Replace", mustValue(t, s), map[string]any{})
		})
	}
}

func TestStorage_PlaceholderKeyAsPath(t *testing.T) {
	for _, typ := range testTypes {
		t.Run(string(typ), func(t *testing.T) {
			r := newTestRegistry(t, newTestClock())
			s := mustNew(t, r, Config{Key: "phkey", Type: typ})

			mustSet(t, s, placeholderKey, float64(5))
			want := map[string]any{placeholderKey: float64(5)}
			expectEqual(t, "Value", mustValue(t, s), want)

			fresh := mustNew(t, r, Config{Key: "phkey", Type: typ})
			expectEqual(t, "fresh Value", mustValue(t, fresh), want)
			got, _ := fresh.Get(placeholderKey)
			expectEqual(t, "fresh Get", got, float64(5))

			peek, _ := mustNew(t, r, Config{Key: "phkey", Type: typ}).Peek()
			expectEqual(t, "Peek", peek, want)

			// a wrapped value still reads back after a reload, and leaving
			// the wrapped mode is persisted as well
			if err := s.Replace(float64(5)); err != nil {
				t.Fatalf("Replace failed: %v", err)
			}
			expectEqual(t, "fresh Value after Replace", mustValue(t, mustNew(t, r, Config{Key: "phkey", Type: typ})), float64(5))
			if err := s.Clear(); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			mustSet(t, s, placeholderKey, "x")
			expectEqual(t, "fresh Value after Clear", mustValue(t, mustNew(t, r, Config{Key: "phkey", Type: typ})), map[string]any{placeholderKey: "x"})
		})
	}
}

func TestStorage_ValueIsCopy(t *testing.T) {
	s := mustNew(t, newTestRegistry(t, newTestClock()), Config{Key: "copy", Type: TypeVariable})
	mustSet(t, s, "a.b", "c")

	v := mustValue(t, s).(map[string]any)
	v["a"].(map[string]any)["b"] = "changed"

	got, _ := s.Get("a.b")
	expectEqual(t, "Get(a.b)", got, "c")
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

func TestStorage_Has(t *testing.T) {
	s := mustNew(t, newTestRegistry(t, newTestClock()), Config{Key: "has", Type: TypeSession})
	mustSet(t, s, "foo", map[string]any{"y": "y"})
	mustSet(t, s, "nil", nil)

	res, err := s.Has("foo")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	expectEqual(t, "Has(foo)", res, HasResult{Has: true, Value: map[string]any{"y": "y"}})

	res, _ = s.Has("foo.y.z")
	expectEqual(t, "Has(foo.y.z)", res, HasResult{})

	res, _ = s.Has("nil")
	expectEqual(t, "Has(nil)", res, HasResult{Has: true, Value: nil})

	if _, err := s.Has(""); !IsCode(err, RetCMissingPath) {
		t.Errorf("expected RetCMissingPath for an empty path, got %v", err)
	}
}

func TestStorage_GetThroughList(t *testing.T) {
	for _, typ := range testTypes {
		t.Run(string(typ), func(t *testing.T) {
			r := newTestRegistry(t, newTestClock())
			s := mustNew(t, r, Config{Key: "list", Type: typ})
			mustSet(t, s, "a", []any{"first", "second"})

			got, err := s.Get("a.1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			expectEqual(t, "Get(a.1)", got, "second")
			if got, _ := s.GetOr("a.5", "fb"); got != "fb" {
				t.Errorf("GetOr(a.5) = %v, want fb", got)
			}

			res, _ := s.Has("a.1")
			expectEqual(t, "Has(a.1)", res, HasResult{})

			fresh := mustNew(t, r, Config{Key: "list", Type: typ})
			got, _ = fresh.Get("a.0")
			expectEqual(t, "fresh Get(a.0)", got, "first")
		})
	}
}

func TestStorage_GetOrSure(t *testing.T) {
	s := mustNew(t, newTestRegistry(t, newTestClock()), Config{Key: "getor", Type: TypeVariable})
	mustSet(t, s, "a.b", "c")
	mustSet(t, s, "n", nil)

	if got, _ := s.GetOr("a.b", "fb"); got != "c" {
		t.Errorf("GetOr(a.b) = %v, want c", got)
	}
	if got, _ := s.GetOr("a.x", "fb"); got != "fb" {
		t.Errorf("GetOr(a.x) = %v, want fb", got)
	}
	if got, _ := s.GetOr("n", "fb"); got != nil {
		t.Errorf("GetOr(n) = %v, a stored nil must not be replaced by the fallback", got)
	}
	if got, err := s.Get("a.x"); got != nil || err != nil {
		t.Errorf("Get(a.x) = (%v, %v), want (nil, nil)", got, err)
	}

	if got, err := s.Sure("a.b"); err != nil || got != "c" {
		t.Errorf("Sure(a.b) = (%v, %v), want (c, nil)", got, err)
	}
	if _, err := s.Sure("a.x"); !IsCode(err, RetCNotFound) {
		t.Errorf("expected RetCNotFound, got %v", err)
	}
}

// --------------------------------------------------------------------------
// Deletes
// --------------------------------------------------------------------------

func TestStorage_RemoveClear(t *testing.T) {
	r := newTestRegistry(t, newTestClock())
	s := mustNew(t, r, Config{Key: "remove", Type: TypeSession})

	mustSet(t, s, "x.y", "y")
	mustSet(t, s, "x.z", "z")

	if err := s.Remove("x.y"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	expectEqual(t, "after Remove", mustValue(t, s), map[string]any{"x": map[string]any{"z": "z"}})

	if err := s.Remove("x.not.there"); err != nil {
		t.Errorf("removing a missing path must not fail: %v", err)
	}
	if err := s.Remove(""); !IsCode(err, RetCMissingPath) {
		t.Errorf("expected RetCMissingPath, got %v", err)
	}

	// below a scalar there is nothing to remove
	mustSet(t, s, "foo", "x")
	if err := s.Remove("foo.bar"); err != nil {
		t.Errorf("removing below a scalar must not fail: %v", err)
	}
	if got, _ := s.Get("foo"); got != "x" {
		t.Errorf("Get(foo) = %v, want x", got)
	}
	if err := s.Remove("foo"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	expectEqual(t, "after Clear", mustValue(t, s), map[string]any{})
	expectEqual(t, "persisted after Clear", mustValue(t, mustNew(t, r, Config{Key: "remove", Type: TypeSession})), map[string]any{})

	// clear leaves the wrapped mode
	_ = s.Replace("scalar")
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	expectEqual(t, "after Clear of wrapped value", mustValue(t, s), map[string]any{})
}

func TestStorage_DestroyReinitializes(t *testing.T) {
	r := newTestRegistry(t, newTestClock())
	s := mustNew(t, r, Config{Key: "destroy", Type: TypeVariable})
	adapter := r.adapters[TypeVariable]

	mustSet(t, s, "a", "b")
	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	for _, native := range []string{checkPrefix + "destroy", dataPrefix + "destroy"} {
		if _, found, _ := adapter.Get(native); found {
			t.Errorf("expected %s to be removed", native)
		}
	}

	// the next operation starts over
	expectEqual(t, "value after Destroy", mustValue(t, s), map[string]any{})
	if _, found, _ := adapter.Get(checkPrefix + "destroy"); !found {
		t.Errorf("expected the check record to be written again")
	}
	mustSet(t, s, "c", "d")
	expectEqual(t, "value after write", mustValue(t, mustNew(t, r, Config{Key: "destroy", Type: TypeVariable})), map[string]any{"c": "d"})
}

// --------------------------------------------------------------------------
// Validity
// --------------------------------------------------------------------------

func TestStorage_TagMismatch(t *testing.T) {
	r := newTestRegistry(t, newTestClock())

	a := mustNew(t, r, Config{Key: "tag", Type: TypeSession, Tag: "1.0"})
	mustSet(t, a, "x", "x")

	same := mustNew(t, r, Config{Key: "tag", Type: TypeSession, Tag: "1.0"})
	expectEqual(t, "same tag", mustValue(t, same), map[string]any{"x": "x"})

	untagged := mustNew(t, r, Config{Key: "tag", Type: TypeSession})
	expectEqual(t, "no tag", mustValue(t, untagged), map[string]any{"x": "x"})

	b := mustNew(t, r, Config{Key: "tag", Type: TypeSession, Tag: "2.0"})
	expectEqual(t, "other tag", mustValue(t, b), map[string]any{})
}

func TestStorage_DurationExpiry(t *testing.T) {
	clock := newTestClock()
	r := newTestRegistry(t, clock)
	cfg := Config{Key: "duration", Type: TypeVariable, Duration: 200 * time.Millisecond}

	a := mustNew(t, r, cfg)
	mustSet(t, a, "x", "x")

	clock.Advance(100 * time.Millisecond)
	expectEqual(t, "before expiry", mustValue(t, mustNew(t, r, cfg)), map[string]any{"x": "x"})

	clock.Advance(201 * time.Millisecond)
	expectEqual(t, "after expiry", mustValue(t, mustNew(t, r, cfg)), map[string]any{})
}

func TestStorage_DurationRenewal(t *testing.T) {
	clock := newTestClock()
	r := newTestRegistry(t, clock)
	cfg := Config{Key: "renewal", Type: TypeSession, Duration: 200 * time.Millisecond}

	mustSet(t, mustNew(t, r, cfg), "x", "x")

	// every initialization renews the window
	for i := 0; i < 3; i++ {
		clock.Advance(150 * time.Millisecond)
		expectEqual(t, "renewed", mustValue(t, mustNew(t, r, cfg)), map[string]any{"x": "x"})
	}

	clock.Advance(250 * time.Millisecond)
	expectEqual(t, "expired", mustValue(t, mustNew(t, r, cfg)), map[string]any{})
}

func TestStorage_UntilExpiry(t *testing.T) {
	clock := newTestClock()
	r := newTestRegistry(t, clock)
	cfg := Config{Key: "until", Type: TypeSession, Until: clock.Now().Add(-time.Second)}

	a := mustNew(t, r, cfg)
	mustSet(t, a, "x", "x")
	expectEqual(t, "writer", mustValue(t, a), map[string]any{"x": "x"})

	expectEqual(t, "fresh instance", mustValue(t, mustNew(t, r, cfg)), map[string]any{})
}

func TestStorage_IsOutdated(t *testing.T) {
	clock := newTestClock()
	r := newTestRegistry(t, clock)
	adapter := r.adapters[TypeVariable]

	fresh := mustNew(t, r, Config{Key: "outdated", Type: TypeVariable})
	if outdated, err := fresh.IsOutdated(); err != nil || outdated {
		t.Errorf("an instance without record must not be outdated (got %t, %v)", outdated, err)
	}

	a := mustNew(t, r, Config{Key: "outdated", Type: TypeVariable, Duration: time.Second})
	mustSet(t, a, "x", "x")
	before, _, _ := adapter.Get(checkPrefix + "outdated")

	clock.Advance(2 * time.Second)
	if outdated, _ := a.IsOutdated(); !outdated {
		t.Errorf("expected the loaded record to be outdated")
	}

	// peeking does not renew the persisted record
	b := mustNew(t, r, Config{Key: "outdated", Type: TypeVariable})
	for i := 0; i < 2; i++ {
		if outdated, _ := b.IsOutdated(); !outdated {
			t.Errorf("expected the persisted record to be outdated")
		}
	}
	after, _, _ := adapter.Get(checkPrefix + "outdated")
	expectEqual(t, "check record", after, before)

	// a tag mismatch is outdated as well
	tagged := mustNew(t, r, Config{Key: "outdated", Type: TypeVariable, Tag: "other"})
	if outdated, _ := tagged.IsOutdated(); !outdated {
		t.Errorf("expected a tag mismatch to be outdated")
	}
}

func TestStorage_InvalidCheckRecord(t *testing.T) {
	r := newTestRegistry(t, newTestClock())
	adapter := r.adapters[TypeVariable]

	_ = adapter.Set(checkPrefix+"garbage", "not a record")
	_ = adapter.Set(dataPrefix+"garbage", map[string]any{"old": "data"})

	s := mustNew(t, r, Config{Key: "garbage", Type: TypeVariable})
	if outdated, err := s.IsOutdated(); err != nil || outdated {
		t.Errorf("an unreadable record counts as missing (got %t, %v)", outdated, err)
	}
	expectEqual(t, "value", mustValue(t, s), map[string]any{})
}

// --------------------------------------------------------------------------
// Misc
// --------------------------------------------------------------------------

func TestStorage_Peek(t *testing.T) {
	r := newTestRegistry(t, newTestClock())

	missing := mustNew(t, r, Config{Key: "peek", Type: TypeSession})
	if v, err := missing.Peek(); v != nil || err != nil {
		t.Errorf("Peek on nothing = (%v, %v), want (nil, nil)", v, err)
	}

	w := mustNew(t, r, Config{Key: "peek", Type: TypeSession})
	_ = w.Replace(float64(7))

	p := mustNew(t, r, Config{Key: "peek", Type: TypeSession})
	v, err := p.Peek()
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	expectEqual(t, "Peek", v, float64(7))
	if p.initialized {
		t.Errorf("Peek must not initialize the instance")
	}
}

func TestStorage_Dump(t *testing.T) {
	s := mustNew(t, newTestRegistry(t, newTestClock()), Config{Key: "dump", Type: TypeVariable})
	mustSet(t, s, "a", "b")
	if err := s.Dump(); err != nil {
		t.Errorf("Dump failed: %v", err)
	}

	// values kept by reference may not be encodable
	_ = s.Replace(make(chan int))
	if err := s.Dump(); !IsCode(err, RetCInternalError) {
		t.Errorf("expected RetCInternalError, got %v", err)
	}
}

func TestStorage_Async(t *testing.T) {
	s := mustNew(t, newTestRegistry(t, newTestClock()), Config{Key: "async", Type: TypeSession})
	ctx := context.Background()

	if _, err := s.AsyncSet("a.b", "c").Await(ctx); err != nil {
		t.Fatalf("AsyncSet failed: %v", err)
	}
	if v, err := s.AsyncGet("a.b").Await(ctx); err != nil || v != "c" {
		t.Errorf("AsyncGet = (%v, %v), want (c, nil)", v, err)
	}
	if v, _ := s.AsyncGetOr("a.x", "fb").Await(ctx); v != "fb" {
		t.Errorf("AsyncGetOr = %v, want fb", v)
	}
	if res, _ := s.AsyncHas("a").Await(ctx); !res.Has {
		t.Errorf("AsyncHas(a) = %+v, want has", res)
	}
	if _, err := s.AsyncHas("").Await(ctx); !IsCode(err, RetCMissingPath) {
		t.Errorf("AsyncHas(\"\") must fail like Has, got %v", err)
	}
	if _, err := s.AsyncSet("a.b.c", "d").Await(ctx); !IsCode(err, RetCInvalidTarget) {
		t.Errorf("AsyncSet must fail like Set, got %v", err)
	}
	if _, err := s.AsyncRemove("a.b").Await(ctx); err != nil {
		t.Errorf("AsyncRemove failed: %v", err)
	}
	if _, err := s.AsyncReplace("whole").Await(ctx); err != nil {
		t.Errorf("AsyncReplace failed: %v", err)
	}
	if v, _ := s.AsyncValue().Await(ctx); v != "whole" {
		t.Errorf("AsyncValue = %v, want whole", v)
	}
	if _, err := s.AsyncClear().Await(ctx); err != nil {
		t.Errorf("AsyncClear failed: %v", err)
	}
	if _, err := s.AsyncDestroy().Await(ctx); err != nil {
		t.Errorf("AsyncDestroy failed: %v", err)
	}
}

func TestStorage_AsyncContext(t *testing.T) {
	s := mustNew(t, newTestRegistry(t, newTestClock()), Config{Key: "async-ctx", Type: TypeVariable})

	// block the instance so the future cannot finish
	s.mu.Lock()
	f := s.AsyncSet("a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	s.mu.Unlock()

	// the operation still completes
	<-f.Done()
	if _, err := f.Await(context.Background()); err != nil {
		t.Errorf("AsyncSet failed: %v", err)
	}
	got, _ := s.Get("a")
	expectEqual(t, "Get(a)", got, "b")
}

func TestStorage_Concurrent(t *testing.T) {
	s := mustNew(t, newTestRegistry(t, newTestClock()), Config{Key: "concurrent", Type: TypeSession})

	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				path := "w" + string(rune('a'+w)) + "." + string(rune('a'+i))
				if err := s.Set(path, float64(i)); err != nil {
					t.Errorf("Set(%s) failed: %v", path, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	v := mustValue(t, s).(map[string]any)
	if len(v) != workers {
		t.Fatalf("expected %d top level keys, got %d", workers, len(v))
	}
	for k, sub := range v {
		if n := len(sub.(map[string]any)); n != 25 {
			t.Errorf("expected 25 values under %s, got %d", k, n)
		}
	}
}

// --------------------------------------------------------------------------
// Config & check record
// --------------------------------------------------------------------------

func TestConfig(t *testing.T) {
	r := newTestRegistry(t, newTestClock())

	if _, err := r.New(Config{}); !IsCode(err, RetCInvalidConfig) {
		t.Errorf("expected RetCInvalidConfig for a missing key, got %v", err)
	}
	if _, err := r.New(Config{Key: "k", Type: "cookie"}); !IsCode(err, RetCInvalidConfig) {
		t.Errorf("expected RetCInvalidConfig for an unknown type, got %v", err)
	}
	if _, err := r.New(Config{Key: "k", Duration: -time.Second}); !IsCode(err, RetCInvalidConfig) {
		t.Errorf("expected RetCInvalidConfig for a negative duration, got %v", err)
	}

	// default type is local, unsupported here
	s := mustNew(t, r, Config{Key: "k"})
	if s.Config().Type != TypeLocal {
		t.Errorf("expected default type %s, got %s", TypeLocal, s.Config().Type)
	}
	if s.Type() != TypeVariable {
		t.Errorf("expected fallback to %s, got %s", TypeVariable, s.Type())
	}

	str := Config{Key: "city", Type: TypeSession, Tag: "1.0", Duration: time.Minute}.String()
	for _, want := range []string{"city", "sessionStorage", "1.0", "1m0s", "Until     : none"} {
		if !strings.Contains(str, want) {
			t.Errorf("expected %q in %q", want, str)
		}
	}
}

func TestCheckRecord_IsOutdated(t *testing.T) {
	now := time.UnixMilli(10_000)
	cases := []struct {
		name string
		rec  CheckRecord
		tag  string
		want bool
	}{
		{"empty", CheckRecord{}, "", false},
		{"same tag", CheckRecord{Tag: "1"}, "1", false},
		{"other tag", CheckRecord{Tag: "1"}, "2", true},
		{"no tag configured", CheckRecord{Tag: "1"}, "", false},
		{"within duration", CheckRecord{LastUpdate: 9_000, Duration: 1_000}, "", false},
		{"after duration", CheckRecord{LastUpdate: 8_999, Duration: 1_000}, "", true},
		{"before until", CheckRecord{Until: 10_000}, "", false},
		{"after until", CheckRecord{Until: 9_999}, "", true},
	}
	for _, c := range cases {
		if got := c.rec.IsOutdated(c.tag, now); got != c.want {
			t.Errorf("%s: IsOutdated = %t, want %t", c.name, got, c.want)
		}
	}
}

func TestNewCheckRecord_Duration(t *testing.T) {
	created := time.UnixMilli(1_000)
	cases := map[time.Duration]int64{
		0:                       0,
		time.Microsecond:        1,
		time.Millisecond:        1,
		1500 * time.Microsecond: 2,
		time.Second:             1_000,
	}
	for d, want := range cases {
		if got := newCheckRecord(Config{Key: "k", Duration: d}, created).Duration; got != want {
			t.Errorf("duration %s: got %d ms, want %d ms", d, got, want)
		}
	}

	// a sub-millisecond duration still expires
	rec := newCheckRecord(Config{Key: "k", Duration: time.Microsecond}, created)
	if !rec.IsOutdated("", created.Add(2*time.Millisecond)) {
		t.Errorf("expected a sub-millisecond duration to expire")
	}
}

func TestDecodeCheckRecord(t *testing.T) {
	// json numbers arrive as float64
	rec, ok := decodeCheckRecord(map[string]any{
		"tag":        "1.0",
		"lastUpdate": float64(1_700_000_000_000),
		"duration":   float64(200),
		"until":      nil,
	})
	if !ok {
		t.Fatalf("expected the record to decode")
	}
	expectEqual(t, "record", rec, CheckRecord{Tag: "1.0", LastUpdate: 1_700_000_000_000, Duration: 200})

	rec, ok = decodeCheckRecord(CheckRecord{Tag: "1.0", Placeholder: true}.toMap())
	if !ok || !rec.Placeholder {
		t.Errorf("expected the placeholder flag to survive, got %+v (%t)", rec, ok)
	}

	if _, ok := decodeCheckRecord("string"); ok {
		t.Errorf("a string is not a check record")
	}
	if _, ok := decodeCheckRecord(map[string]any{"duration": "soon"}); ok {
		t.Errorf("expected an undecodable duration to be rejected")
	}
}
