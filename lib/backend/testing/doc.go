// Package testing provides standardised tests and benchmarks for string
// stores that satisfy the backend.IStringStore interface.
//
// The package contains:
//   - store_testing: A conformance suite for the IStringStore contract,
//     including a round trip through the persistent adapter
//   - store_benchmarks: Throughput benchmarks for common operations
//
// Example usage:
//
//	factory := func(t testing.TB) backend.IStringStore {
//		s, err := NewMyStore()
//		if err != nil {
//			t.Fatal(err)
//		}
//		return s
//	}
//
//	betesting.RunStringStoreTests(t, "MyStore", factory)
//	betesting.RunStringStoreBenchmarks(b, "MyStore", factory)
package testing
