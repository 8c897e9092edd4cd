// Package syncx holds the locking helpers shared across the module.
package syncx

import "sync"

func LockFunc(mux sync.Locker, fn func()) {
	mux.Lock()
	defer mux.Unlock()
	fn()
}

func LockFuncT[T any](mux sync.Locker, fn func() T) T {
	mux.Lock()
	defer mux.Unlock()
	return fn()
}

func LockFuncTErr[T any](mux sync.Locker, fn func() (T, error)) (T, error) {
	mux.Lock()
	defer mux.Unlock()
	return fn()
}

type RLocker interface {
	RLock()
	RUnlock()
}

func RLockFuncT[T any](mux RLocker, fn func() T) T {
	mux.RLock()
	defer mux.RUnlock()
	return fn()
}

// Guarded is a value that may only be read or replaced while holding its lock.
// The zero value is ready to use and holds the zero value of T.
type Guarded[T any] struct {
	mux sync.RWMutex
	val T
}

// Load returns the current value.
func (g *Guarded[T]) Load() T {
	return RLockFuncT(&g.mux, func() T {
		return g.val
	})
}

// Store replaces the current value.
func (g *Guarded[T]) Store(val T) {
	LockFunc(&g.mux, func() {
		g.val = val
	})
}
