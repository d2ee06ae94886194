// SPDX-License-Identifier: Apache-2.0

// Package future provides the completion handle returned by every engine
// operation: issued immediately, settled exactly once when the correlated
// response arrives.
package future

import (
	"context"
	"sync/atomic"
)

const (
	statePending = iota
	stateSettled
)

// Future is a single-assignment result. The issuing side settles it with
// Resolve or Reject; any number of waiters may observe it through Done,
// Result or Wait.
type Future[T any] struct {
	done  chan struct{}
	state atomic.Uint32
	value T
	err   error
}

func New[T any]() *Future[T] {
	return &Future[T]{
		done: make(chan struct{}),
	}
}

// Resolved returns an already-settled successful future.
func Resolved[T any](value T) *Future[T] {
	f := New[T]()
	f.Resolve(value)
	return f
}

// Rejected returns an already-settled failed future.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Resolve settles the future with value. Settling twice is a no-op; the
// first outcome wins.
func (f *Future[T]) Resolve(value T) {
	if f.state.CompareAndSwap(statePending, stateSettled) {
		f.value = value
		close(f.done)
	}
}

// Reject settles the future with err.
func (f *Future[T]) Reject(err error) {
	if f.state.CompareAndSwap(statePending, stateSettled) {
		f.err = err
		close(f.done)
	}
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome. It must only be called after Done is closed.
func (f *Future[T]) Result() (T, error) {
	return f.value, f.err
}

// Wait blocks until the future settles or ctx is done. Returning early does
// not withdraw the underlying call; it will still settle.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
