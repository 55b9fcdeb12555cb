// Package state is the client-side sync core: the saved-methods set, the
// profile points, and the award flow that ties them together.
//
// THE CONSISTENCY MODEL:
// Every value shown to the user is in one of three phases.
//
//	Stale       a cached or locally adjusted value; shown, but not trusted
//	Pending     a fetch or write is in flight
//	Reconciled  the value the backend last returned
//
// Components never block the caller on the cache and never treat a cached
// value as truth. When an authoritative value lands it replaces whatever was
// there, including any optimistic adjustment.
package state

import "fmt"

// Phase is where an Entity sits in the Stale → Pending → Reconciled cycle.
type Phase int

const (
	PhaseStale Phase = iota
	PhasePending
	PhaseReconciled
)

func (p Phase) String() string {
	switch p {
	case PhaseStale:
		return "stale"
	case PhasePending:
		return "pending"
	case PhaseReconciled:
		return "reconciled"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Entity holds one synced value and its phase. It is not safe for concurrent
// use; the owning component guards it with its own mutex.
type Entity[T any] struct {
	value T
	phase Phase
	known bool
	based bool
}

// Value returns the current value and whether any value (cached or
// authoritative) has been set since the last Reset.
func (e *Entity[T]) Value() (T, bool) { return e.value, e.known }

func (e *Entity[T]) Phase() Phase { return e.phase }

// Based reports whether the value rests on a cached or authoritative figure.
// A value built only from Adjust calls is known but not based.
func (e *Entity[T]) Based() bool { return e.based }

// Seed installs a cached value. It never overrides a reconciled one.
func (e *Entity[T]) Seed(v T) {
	if e.phase == PhaseReconciled {
		return
	}
	e.value = v
	e.known = true
	e.based = true
	e.phase = PhaseStale
}

// Begin marks a fetch or write as in flight.
func (e *Entity[T]) Begin() { e.phase = PhasePending }

// Reconcile installs the backend's value.
func (e *Entity[T]) Reconcile(v T) {
	e.value = v
	e.known = true
	e.based = true
	e.phase = PhaseReconciled
}

// Fail ends an in-flight operation without a value. What was there stays.
func (e *Entity[T]) Fail() {
	if e.phase == PhasePending {
		e.phase = PhaseStale
	}
}

// Adjust applies a local, optimistic change. The result is Stale until the
// next Reconcile overwrites it.
func (e *Entity[T]) Adjust(f func(T) T) {
	e.value = f(e.value)
	e.known = true
	e.phase = PhaseStale
}

// Reset forgets the value entirely, e.g. when the user signs out.
func (e *Entity[T]) Reset() {
	var zero T
	e.value = zero
	e.known = false
	e.based = false
	e.phase = PhaseStale
}
