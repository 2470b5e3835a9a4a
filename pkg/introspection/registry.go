// Package introspection implements the ordered, unique-by-name set of
// interfaces a device instance presents to the platform, along with its
// canonical wire representation and fingerprint hash.
//
// The canonical string is emitted sorted by interface name rather than
// registration order, so the fingerprint persisted by the property cache
// stays stable across restarts no matter how the embedder happens to
// order its interface list.
package introspection

import (
	"iter"
	"sort"
	"sync"

	"github.com/edgelink/device-agent/pkg/agenterr"
	"github.com/edgelink/device-agent/pkg/schema"
)

// Registry is an ordered-unique-by-name set of interfaces. It is built
// once at device construction and never mutated concurrently with reads
// in practice, but every entrypoint is still safe to call from any
// goroutine.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]*schema.Interface
	order  []string // insertion order, kept for symmetry with the source SDK
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*schema.Interface)}
}

// Add inserts iface. Returns InterfaceAlreadyPresent if the name is taken.
func (r *Registry) Add(iface *schema.Interface) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[iface.Name]; exists {
		return agenterr.New(agenterr.InterfaceAlreadyPresent, "introspection.Add", "interface "+iface.Name+" already registered")
	}
	r.byName[iface.Name] = iface
	r.order = append(r.order, iface.Name)
	return nil
}

// Remove deletes the interface named name. Returns InterfaceNotFound if
// absent — including on a second call for the same name (no idempotence).
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; !exists {
		return agenterr.New(agenterr.InterfaceNotFound, "introspection.Remove", "interface "+name+" not registered")
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the interface named name, or InterfaceNotFound.
func (r *Registry) Get(name string) (*schema.Interface, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	iface, exists := r.byName[name]
	if !exists {
		return nil, agenterr.New(agenterr.InterfaceNotFound, "introspection.Get", "interface "+name+" not registered")
	}
	return iface, nil
}

// Len returns the number of registered interfaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// All returns a lazy, finite sequence over the registered interfaces in
// sorted-by-name order — the same order CanonicalString emits, so callers
// iterating for handshake/replay purposes see a stable sequence.
func (r *Registry) All() iter.Seq[*schema.Interface] {
	r.mu.RLock()
	names := r.sortedNames()
	r.mu.RUnlock()

	return func(yield func(*schema.Interface) bool) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, name := range names {
			iface, ok := r.byName[name]
			if !ok {
				continue // removed mid-iteration; undefined per spec, skip rather than panic
			}
			if !yield(iface) {
				return
			}
		}
	}
}

// sortedNames must be called with r.mu held for reading.
func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
