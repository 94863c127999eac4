package storage

import (
	"context"
)

// Future is the deferred result of an asynchronous operation.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// goFuture runs fn on its own goroutine and returns its future
func goFuture[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn()
	}()
	return f
}

// goErrFuture is goFuture for operations without a result
func goErrFuture(fn func() error) *Future[struct{}] {
	return goFuture(func() (struct{}, error) {
		return struct{}{}, fn()
	})
}

// Done is closed once the operation has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await waits for the operation and returns its result. If ctx ends first,
// Await returns ctx.Err(); the operation itself still runs to completion.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// --------------------------------------------------------------------------
// Asynchronous variants (docu see the synchronous methods)
// --------------------------------------------------------------------------

func (s *Storage) AsyncReplace(value any) *Future[struct{}] {
	return goErrFuture(func() error { return s.Replace(value) })
}

func (s *Storage) AsyncSet(path string, value any) *Future[struct{}] {
	return goErrFuture(func() error { return s.Set(path, value) })
}

func (s *Storage) AsyncValue() *Future[any] {
	return goFuture(s.Value)
}

func (s *Storage) AsyncGet(path string) *Future[any] {
	return goFuture(func() (any, error) { return s.Get(path) })
}

func (s *Storage) AsyncGetOr(path string, fallback any) *Future[any] {
	return goFuture(func() (any, error) { return s.GetOr(path, fallback) })
}

func (s *Storage) AsyncHas(path string) *Future[HasResult] {
	return goFuture(func() (HasResult, error) { return s.Has(path) })
}

func (s *Storage) AsyncRemove(path string) *Future[struct{}] {
	return goErrFuture(func() error { return s.Remove(path) })
}

func (s *Storage) AsyncClear() *Future[struct{}] {
	return goErrFuture(s.Clear)
}

func (s *Storage) AsyncDestroy() *Future[struct{}] {
	return goErrFuture(s.Destroy)
}
