// Package changes provides the unit of work: an in-memory record of pending
// insert/update/delete actions for a batch of entities, committed together.
//
// A Tracker is owned by a single goroutine for the lifetime of one unit of work.
package changes

import (
	"fmt"
	"reflect"
)

// State is the pending persistence action of a tracked entity.
type State int

const (
	// Detached entities are not tracked (returned for unknown entities).
	Detached State = iota
	// Unchanged entities are tracked but need no statement.
	Unchanged
	// Added entities are inserted on save.
	Added
	// Modified entities are updated on save.
	Modified
	// Deleted entities are removed on save.
	Deleted
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Detached:
		return "detached"
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Entry is the pending change record of one entity instance.
type Entry struct {
	entity    any
	state     State
	requested State
}

// Entity returns the tracked entity pointer.
func (e *Entry) Entity() any {
	return e.entity
}

// State returns the action that will be persisted.
func (e *Entry) State() State {
	return e.state
}

// Requested returns the action the caller asked for, before any hook rewrote it.
func (e *Entry) Requested() State {
	return e.requested
}

// SetState reassigns the pending action. Used by persist hooks.
func (e *Entry) SetState(s State) {
	e.state = s
}

// Rewritten reports whether a hook changed the requested action.
func (e *Entry) Rewritten() bool {
	return e.state != e.requested
}

// Tracker is the unit of work.
type Tracker struct {
	entries []*Entry
	index   map[any]*Entry
}

// NewTracker creates an empty unit of work.
func NewTracker() *Tracker {
	return &Tracker{
		index: make(map[any]*Entry),
	}
}

// Add schedules an insert.
func (t *Tracker) Add(entity any) *Entry {
	return t.track(entity, Added)
}

// Attach starts tracking an entity loaded from storage without scheduling a statement.
func (t *Tracker) Attach(entity any) *Entry {
	return t.track(entity, Unchanged)
}

// Update schedules an update. Entities pending insert stay Added.
func (t *Tracker) Update(entity any) *Entry {
	if e, ok := t.index[entity]; ok && e.state == Added {
		return e
	}
	return t.track(entity, Modified)
}

// Remove schedules a delete. An entity pending insert is simply dropped.
func (t *Tracker) Remove(entity any) *Entry {
	if e, ok := t.index[entity]; ok && e.state == Added {
		t.detach(e)
		return e
	}
	return t.track(entity, Deleted)
}

// Entry returns the entry for entity, if tracked.
func (t *Tracker) Entry(entity any) (*Entry, bool) {
	e, ok := t.index[entity]
	return e, ok
}

// State returns the pending action of entity, Detached if not tracked.
func (t *Tracker) State(entity any) State {
	if e, ok := t.index[entity]; ok {
		return e.state
	}
	return Detached
}

// Entries returns all tracked entries in tracking order.
func (t *Tracker) Entries() []*Entry {
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// EntriesInState returns tracked entries whose pending action is s.
func (t *Tracker) EntriesInState(s State) []*Entry {
	var out []*Entry
	for _, e := range t.entries {
		if e.state == s {
			out = append(out, e)
		}
	}
	return out
}

// HasChanges reports whether any entry needs a statement.
func (t *Tracker) HasChanges() bool {
	for _, e := range t.entries {
		if e.state != Unchanged {
			return true
		}
	}
	return false
}

// Len returns the number of tracked entries.
func (t *Tracker) Len() int {
	return len(t.entries)
}

// AcceptChanges marks the unit of work as persisted:
// deleted entries are detached, the rest become Unchanged.
func (t *Tracker) AcceptChanges() {
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.state == Deleted {
			e.state = Detached
			e.requested = Detached
			delete(t.index, e.entity)
			continue
		}
		e.state = Unchanged
		e.requested = Unchanged
		kept = append(kept, e)
	}
	for i := len(kept); i < len(t.entries); i++ {
		t.entries[i] = nil
	}
	t.entries = kept
}

// Clear stops tracking everything.
func (t *Tracker) Clear() {
	for _, e := range t.entries {
		e.state = Detached
	}
	t.entries = nil
	t.index = make(map[any]*Entry)
}

func (t *Tracker) track(entity any, s State) *Entry {
	mustBePointer(entity)
	if e, ok := t.index[entity]; ok {
		e.state = s
		e.requested = s
		return e
	}
	e := &Entry{entity: entity, state: s, requested: s}
	t.entries = append(t.entries, e)
	t.index[entity] = e
	return e
}

func (t *Tracker) detach(e *Entry) {
	delete(t.index, e.entity)
	for i, cur := range t.entries {
		if cur == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	e.state = Detached
	e.requested = Detached
}

// mustBePointer panics on non-pointer entities; entries are keyed by pointer identity.
func mustBePointer(entity any) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		panic(fmt.Sprintf("changes: entity must be a non-nil pointer, got %T", entity))
	}
}
