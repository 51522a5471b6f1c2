// Package events is the typed notification channel for validation outcomes.
//
// An Emitter is constructed explicitly and handed to the components that
// publish on it, so independent callers (and tests) never share listeners:
//
//	em := events.New()
//	sub := em.On(events.ValidationError, func(e events.Event) {
//	    slog.Warn("invalid payload", "model", e.Model, "err", e.Err)
//	})
//	defer em.Off(sub)
//
// Listeners run synchronously on the emitting goroutine. The listener set is
// snapshotted before each emission, so listeners may subscribe or unsubscribe
// (including themselves) while an emission is in progress.
package events

import (
	"sync"
	"sync/atomic"
)

// Kind names an event.
type Kind string

const (
	BeforeValidation  Kind = "before-validation"
	ValidationSuccess Kind = "validation-success"
	ValidationError   Kind = "validation-error"
	ExtraKeysDetected Kind = "extra-keys-detected"
	AfterValidation   Kind = "after-validation"
)

// Kinds lists every event kind in the order one validation emits them.
// ValidationError and ValidationSuccess are never emitted together.
var Kinds = []Kind{BeforeValidation, ExtraKeysDetected, ValidationError, ValidationSuccess, AfterValidation}

// Event is one emitted notification.
type Event struct {
	Kind Kind
	// Model is the diagnostic name of the model being validated.
	Model string
	// Operation is the owning operation, when known.
	Operation string
	// Err carries the failure for ValidationError and ExtraKeysDetected.
	Err error
	// Message is the human-readable description for error kinds.
	Message string
}

// Listener receives events.
type Listener func(Event)

// Subscription identifies a registered listener for Off.
type Subscription struct {
	kind Kind
	any  bool
	id   uint64
}

type entry struct {
	id    uint64
	fn    Listener
	fired *atomic.Bool // non-nil for Once listeners
}

// Emitter dispatches events to per-kind and catch-all listeners.
// The zero value is not usable; use New.
type Emitter struct {
	mu     sync.RWMutex
	nextID uint64
	byKind map[Kind][]entry
	all    []entry
}

// New returns an Emitter with no listeners.
func New() *Emitter {
	return &Emitter{byKind: make(map[Kind][]entry)}
}

// On registers fn for events of kind.
func (e *Emitter) On(kind Kind, fn Listener) Subscription {
	return e.add(kind, false, fn, nil)
}

// Once registers fn for the next event of kind only.
func (e *Emitter) Once(kind Kind, fn Listener) Subscription {
	return e.add(kind, false, fn, new(atomic.Bool))
}

// OnAny registers fn for every event regardless of kind.
func (e *Emitter) OnAny(fn Listener) Subscription {
	return e.add("", true, fn, nil)
}

// OnceAny registers fn for the next event of any kind.
func (e *Emitter) OnceAny(fn Listener) Subscription {
	return e.add("", true, fn, new(atomic.Bool))
}

func (e *Emitter) add(kind Kind, catchAll bool, fn Listener, fired *atomic.Bool) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	ent := entry{id: e.nextID, fn: fn, fired: fired}
	if catchAll {
		e.all = append(e.all, ent)
	} else {
		e.byKind[kind] = append(e.byKind[kind], ent)
	}
	return Subscription{kind: kind, any: catchAll, id: ent.id}
}

// Off removes a listener. It reports whether the listener was registered.
func (e *Emitter) Off(sub Subscription) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sub.any {
		var removed bool
		e.all, removed = without(e.all, sub.id)
		return removed
	}
	list, removed := without(e.byKind[sub.kind], sub.id)
	if len(list) == 0 {
		delete(e.byKind, sub.kind)
	} else {
		e.byKind[sub.kind] = list
	}
	return removed
}

func without(list []entry, id uint64) ([]entry, bool) {
	for i, ent := range list {
		if ent.id == id {
			out := make([]entry, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...), true
		}
	}
	return list, false
}

// Emit delivers ev to catch-all listeners first, then to listeners of ev.Kind.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	all := e.all
	kinded := e.byKind[ev.Kind]
	e.mu.RUnlock()

	e.dispatch(all, true, ev)
	e.dispatch(kinded, false, ev)
}

func (e *Emitter) dispatch(snapshot []entry, catchAll bool, ev Event) {
	for _, ent := range snapshot {
		if ent.fired != nil {
			if !ent.fired.CompareAndSwap(false, true) {
				continue
			}
			e.Off(Subscription{kind: ev.Kind, any: catchAll, id: ent.id})
		}
		ent.fn(ev)
	}
}

// Reset removes the listeners of the given kinds, or every listener
// (catch-all included) when called without arguments.
func (e *Emitter) Reset(kinds ...Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(kinds) == 0 {
		e.byKind = make(map[Kind][]entry)
		e.all = nil
		return
	}
	for _, k := range kinds {
		delete(e.byKind, k)
	}
}

// Count reports how many listeners are registered for kind, catch-all excluded.
func (e *Emitter) Count(kind Kind) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byKind[kind])
}
