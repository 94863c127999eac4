package testing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/ValentinKolb/sKV/lib/backend"
)

// StoreFactory is a function that creates a new, empty string store
type StoreFactory func(t testing.TB) backend.IStringStore

// RunStringStoreTests runs a comprehensive test suite for an IStringStore implementation.
func RunStringStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory(t))
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory(t))
		})

		t.Run("Keys", func(t *testing.T) {
			testKeys(t, factory(t))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory(t))
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, factory(t))
		})

		t.Run("PersistentAdapter", func(t *testing.T) {
			testPersistentAdapter(t, factory(t))
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, store backend.IStringStore) {
	defer store.Close()

	testKey := "test-key"

	if err := store.SetItem(testKey, "test-value1"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}

	value, ok, err := store.GetItem(testKey)
	if err != nil || !ok {
		t.Fatalf("Expected key %s to exist after SetItem (ok=%t, err=%v)", testKey, ok, err)
	}
	if value != "test-value1" {
		t.Errorf("Expected value %s, got %s", "test-value1", value)
	}

	if err := store.SetItem(testKey, "test-value2"); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	value, _, _ = store.GetItem(testKey)
	if value != "test-value2" {
		t.Errorf("Expected overwritten value %s, got %s", "test-value2", value)
	}

	if _, ok, err := store.GetItem("nonexistent-key"); ok || err != nil {
		t.Errorf("Expected nonexistent key to return ok=false, err=nil (ok=%t, err=%v)", ok, err)
	}
}

func testRemove(t *testing.T, store backend.IStringStore) {
	defer store.Close()

	_ = store.SetItem("a", "1")
	_ = store.SetItem("b", "2")

	if err := store.RemoveItem("a"); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if _, ok, _ := store.GetItem("a"); ok {
		t.Errorf("Expected key a to be removed")
	}
	if _, ok, _ := store.GetItem("b"); !ok {
		t.Errorf("Removing a must not touch b")
	}

	if err := store.RemoveItem("never-set"); err != nil {
		t.Errorf("Removing a missing key must not fail: %v", err)
	}
}

func testKeys(t *testing.T, store backend.IStringStore) {
	defer store.Close()

	keys, err := store.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("Expected an empty store, got keys %v", keys)
	}

	want := []string{"x:1", "x:2", "y:1"}
	for _, k := range want {
		_ = store.SetItem(k, k)
	}
	_ = store.SetItem("x:1", "overwritten")

	keys, err = store.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	sort.Strings(keys)
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("Expected keys %v, got %v", want, keys)
	}
}

func testEdgeCases(t *testing.T, store backend.IStringStore) {
	defer store.Close()

	cases := map[string]string{
		"":                  "empty key",
		"empty-value":       "",
		"unicode-ключ-🔑":    "значение ✓",
		"with\nnewline":     "line1\nline2",
		"sKVCheck:with.dot": `{"tag":"1.0"}`,
	}

	for k, v := range cases {
		if err := store.SetItem(k, v); err != nil {
			t.Errorf("SetItem(%q) failed: %v", k, err)
			continue
		}
		got, ok, err := store.GetItem(k)
		if err != nil || !ok {
			t.Errorf("GetItem(%q) failed (ok=%t, err=%v)", k, ok, err)
			continue
		}
		if got != v {
			t.Errorf("GetItem(%q) = %q, want %q", k, got, v)
		}
	}
}

func testConcurrent(t *testing.T, store backend.IStringStore) {
	defer store.Close()

	const (
		workers = 8
		perW    = 50
	)

	var wg sync.WaitGroup
	errs := make(chan error, workers*perW)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perW; i++ {
				key := fmt.Sprintf("w%d:k%d", w, i)
				if err := store.SetItem(key, key); err != nil {
					errs <- err
					return
				}
				if v, ok, err := store.GetItem(key); err != nil || !ok || v != key {
					errs <- fmt.Errorf("read back %s: ok=%t v=%q err=%v", key, ok, v, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	keys, err := store.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != workers*perW {
		t.Errorf("Expected %d keys, got %d", workers*perW, len(keys))
	}
}

func testPersistentAdapter(t *testing.T, store backend.IStringStore) {
	defer store.Close()

	adapter := backend.NewPersistentAdapter(store)

	if !backend.Probe(adapter) {
		t.Fatalf("Expected probe to succeed")
	}

	value := map[string]any{"x": map[string]any{"y": []any{"a", float64(1), true, nil}}}
	if err := adapter.Set("structured", value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok, err := adapter.Get("structured")
	if err != nil || !ok {
		t.Fatalf("Get failed (ok=%t, err=%v)", ok, err)
	}
	if fmt.Sprint(got) != fmt.Sprint(value) {
		t.Errorf("Expected %v, got %v", value, got)
	}

	// raw, undecodable strings come back as is
	_ = store.SetItem("raw", "{not json")
	got, ok, err = adapter.Get("raw")
	if err != nil || !ok || got != "{not json" {
		t.Errorf("Expected raw string fallback, got (%v, %t, %v)", got, ok, err)
	}

	// empty strings count as missing
	_ = store.SetItem("empty", "")
	if _, ok, _ := adapter.Get("empty"); ok {
		t.Errorf("Expected empty stored string to be reported as missing")
	}

	if err := adapter.Remove("structured"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := adapter.Get("structured"); ok {
		t.Errorf("Expected key to be removed")
	}

	// the probe cleans up after itself
	keys, _ := adapter.Keys()
	for _, k := range keys {
		if len(k) > 10 && k[:10] == "sKV-probe-" {
			t.Errorf("Probe left key %s behind", k)
		}
	}
}

func testClose(t *testing.T, store backend.IStringStore) {
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.SetItem("k", "v"); !errors.Is(err, backend.ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Closing twice must not fail: %v", err)
	}
}
