// Package registry implements the thread-safe subscription registry: a
// mapping from message-class name to an ordered list of subscription
// entries, guarded by a read-write lock so dispatch reads never block
// each other.
package registry

import (
	"sync"

	"github.com/smartmessage/sm/filter"
)

// Entry is a single subscription: a handler id bound to a normalized
// filter. Entries are never mutated after creation.
type Entry struct {
	HandlerID string
	Filter    filter.Filter
}

// Registry is a per-message-class list of subscription entries. Ordering
// within a class is preserved for observability only; dispatch itself is
// concurrent and gives no ordering guarantee.
type Registry struct {
	mu      sync.RWMutex
	classes map[string][]Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{classes: make(map[string][]Entry)}
}

// Add appends a subscription entry for className. Duplicate (class,
// handler, filter) triples are allowed: a handler may be registered under
// multiple distinct filters, each invoked independently.
func (r *Registry) Add(className, handlerID string, f filter.Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[className] = append(r.classes[className], Entry{HandlerID: handlerID, Filter: f})
}

// Remove deletes every entry for className whose handler id matches. It is
// a no-op if handlerID is not subscribed to className.
func (r *Registry) Remove(className, handlerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, ok := r.classes[className]
	if !ok {
		return
	}
	kept := entries[:0:0]
	for _, e := range entries {
		if e.HandlerID != handlerID {
			kept = append(kept, e)
		}
	}
	r.classes[className] = kept
}

// RemoveAll deletes every subscription entry for className.
func (r *Registry) RemoveAll(className string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.classes, className)
}

// DropAll wipes the entire registry. Intended as a test aid.
func (r *Registry) DropAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes = make(map[string][]Entry)
}

// EntriesFor returns a snapshot slice of the entries registered for
// className, safe to range over without holding the registry's lock.
func (r *Registry) EntriesFor(className string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.classes[className]
	if len(entries) == 0 {
		return nil
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// ClassNames returns a snapshot of every message-class name with at least
// one subscription.
func (r *Registry) ClassNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.classes))
	for name, entries := range r.classes {
		if len(entries) > 0 {
			out = append(out, name)
		}
	}
	return out
}
