package route

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ales-tsurko/hexagon/internal/route/address"
)

// Listener is a registered pattern with its callback.
type Listener struct {
	Pattern  *address.Pattern
	Callback Callback
}

// Registry maps address patterns to callbacks.
// It is safe for concurrent use. Writers are serialized; readers take
// immutable snapshots and never block or get blocked.
type Registry struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Snapshot]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(&Snapshot{trie: address.NewTrie[Callback]()})
	return r
}

// Register compiles pattern and maps it to cb, replacing any callback
// previously registered under the same pattern text.
func (r *Registry) Register(pattern string, cb Callback) (replaced bool, err error) {
	if isNilCallback(cb) {
		return false, ErrNilCallback
	}
	p, err := address.Compile(pattern)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	next, replaced := cur.trie.With(p, cb)
	r.current.Store(&Snapshot{trie: next, generation: cur.generation + 1})
	return replaced, nil
}

// Unregister removes the callback registered under the exact pattern text.
// It returns false if nothing was registered; that is not an error.
func (r *Registry) Unregister(pattern string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	next, removed := cur.trie.Without(pattern)
	if !removed {
		return false
	}
	r.current.Store(&Snapshot{trie: next, generation: cur.generation + 1})
	return true
}

// Clear removes every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	r.current.Store(&Snapshot{trie: address.NewTrie[Callback](), generation: cur.generation + 1})
}

// Snapshot returns the current point-in-time view of the registry.
// The view is immutable; later writes do not affect it.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Len returns the number of registered patterns.
func (r *Registry) Len() int {
	return r.Snapshot().Len()
}

// Patterns returns all registered patterns in sorted order.
func (r *Registry) Patterns() []string {
	listeners := r.Snapshot().Listeners()
	out := make([]string, len(listeners))
	for i, l := range listeners {
		out[i] = l.Pattern.String()
	}
	return out
}

// Snapshot is an immutable view of the registry at one generation.
type Snapshot struct {
	trie       *address.Trie[Callback]
	generation uint64
}

// Match returns every listener whose pattern matches addr, in no
// particular order.
func (s *Snapshot) Match(addr address.Address) []Listener {
	entries := s.trie.Match(addr)
	if len(entries) == 0 {
		return nil
	}
	out := make([]Listener, len(entries))
	for i, e := range entries {
		out[i] = Listener{Pattern: e.Pattern, Callback: e.Value}
	}
	return out
}

// MatchPattern returns the listeners addressed by the send-side pattern p:
// every literal pattern p matches and the pattern with p's exact text.
func (s *Snapshot) MatchPattern(p *address.Pattern) []Listener {
	entries := s.trie.MatchPattern(p)
	if len(entries) == 0 {
		return nil
	}
	out := make([]Listener, len(entries))
	for i, e := range entries {
		out[i] = Listener{Pattern: e.Pattern, Callback: e.Value}
	}
	return out
}

// Lookup returns the callback registered under the exact pattern text.
// Wildcards in pattern are not expanded.
func (s *Snapshot) Lookup(pattern string) (Callback, bool) {
	e, ok := s.trie.Lookup(pattern)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Listeners returns all listeners sorted by pattern text.
func (s *Snapshot) Listeners() []Listener {
	entries := s.trie.All()
	out := make([]Listener, len(entries))
	for i, e := range entries {
		out[i] = Listener{Pattern: e.Pattern, Callback: e.Value}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Pattern.String() < out[j].Pattern.String()
	})
	return out
}

// Len returns the number of listeners in the snapshot.
func (s *Snapshot) Len() int {
	return s.trie.Len()
}

// Generation returns a counter incremented by every registry write.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

func isNilCallback(cb Callback) bool {
	if cb == nil {
		return true
	}
	if f, ok := cb.(CallbackFunc); ok && f == nil {
		return true
	}
	return false
}
