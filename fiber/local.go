package fiber

import "go.uber.org/atomic"

// localKey identifies one Local[T] instance regardless of T, letting every
// fiber keep a single map[localKey]any rather than a map per Local type.
type localKey struct{ id uint64 }

var localKeySeq atomic.Uint64

func newLocalKey() localKey {
	return localKey{id: localKeySeq.Add(1)}
}

// Local is fiber-local storage (spec §4.7 FiberLocal[T]): a value visible
// only on the fiber that set it, inherited by snapshot into children spawned
// afterwards.
type Local[T any] struct {
	key  localKey
	zero T
}

// NewLocal creates a fresh Local[T], unset on every fiber until Set is
// called.
func NewLocal[T any]() *Local[T] {
	return &Local[T]{key: newLocalKey()}
}

// Get returns the value set on the calling goroutine's current fiber, and
// whether one was actually set. Outside any fiber, Get always reports unset
// (spec §4.7: "accessing outside a fiber is a usage error" — resolved here as
// a reported-false miss rather than a panic, so a library function that
// might run with or without a fiber doesn't need a recover to use Local).
func (l *Local[T]) Get() (T, bool) {
	b, ok := Current()
	if !ok {
		return l.zero, false
	}
	return l.GetFrom(b)
}

// GetFrom reads l's value from a specific fiber's Base rather than the
// current one.
func (l *Local[T]) GetFrom(b *Base) (T, bool) {
	b.localsMu.RLock()
	defer b.localsMu.RUnlock()
	v, ok := b.locals[l.key]
	if !ok {
		return l.zero, false
	}
	return v.(T), true
}

// Set stores v for l on the calling goroutine's current fiber and reports
// whether there was one to store it on. Set always stores a value, including
// the zero value of T, distinguishing "explicitly set to zero" from "never
// set" (the latter is what Clear restores) — the resolution SPEC_FULL.md
// records for the corresponding open question.
func (l *Local[T]) Set(v T) bool {
	b, ok := Current()
	if !ok {
		return false
	}
	b.localsMu.Lock()
	b.locals[l.key] = v
	b.localsMu.Unlock()
	return true
}

// Clear removes any value set for l on the current fiber, restoring the
// "never set" state.
func (l *Local[T]) Clear() {
	b, ok := Current()
	if !ok {
		return
	}
	b.localsMu.Lock()
	delete(b.locals, l.key)
	b.localsMu.Unlock()
}
