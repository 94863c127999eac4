package testing

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/sKV/lib/backend"
)

// RunStringStoreBenchmarks runs all benchmarks for a string store implementation
func RunStringStoreBenchmarks(b *testing.B, name string, factory StoreFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("SetItem", func(b *testing.B) {
			benchmarkSetItem(b, factory(b))
		})

		b.Run("SetItemLargeValue", func(b *testing.B) {
			benchmarkSetItemLargeValue(b, factory(b))
		})

		b.Run("GetItem", func(b *testing.B) {
			benchmarkGetItem(b, factory(b))
		})

		b.Run("AdapterRoundTrip", func(b *testing.B) {
			benchmarkAdapterRoundTrip(b, factory(b))
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkSetItem(b *testing.B, store backend.IStringStore) {
	b.Cleanup(func() {
		_ = store.Close()
	})

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			if err := store.SetItem(fmt.Sprintf("key-%d", i%1000), "value"); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func benchmarkSetItemLargeValue(b *testing.B, store backend.IStringStore) {
	b.Cleanup(func() {
		_ = store.Close()
	})

	value := strings.Repeat("x", 100*1024)
	b.SetBytes(int64(len(value)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := store.SetItem(fmt.Sprintf("large-%d", i%10), value); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkGetItem(b *testing.B, store backend.IStringStore) {
	b.Cleanup(func() {
		_ = store.Close()
	})

	for i := 0; i < 1000; i++ {
		_ = store.SetItem(fmt.Sprintf("key-%d", i), "value")
	}

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			if _, _, err := store.GetItem(fmt.Sprintf("key-%d", i%1000)); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func benchmarkAdapterRoundTrip(b *testing.B, store backend.IStringStore) {
	b.Cleanup(func() {
		_ = store.Close()
	})

	adapter := backend.NewPersistentAdapter(store)
	value := map[string]any{"user": map[string]any{"name": "alice", "tags": []any{"a", "b"}}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := adapter.Set("bench", value); err != nil {
			b.Fatal(err)
		}
		if _, _, err := adapter.Get("bench"); err != nil {
			b.Fatal(err)
		}
	}
}
