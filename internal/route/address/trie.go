package address

// Trie is a persistent trie optimized for pattern matching.
// It maps compiled patterns to values and finds every pattern that matches a
// concrete address in O(k) steps along literal segments, where k is the number
// of address segments, plus one test per wildcard segment encountered.
//
// A Trie is immutable. With and Without return a new Trie that shares all
// untouched nodes with the receiver, so readers holding an older Trie see a
// consistent view without any locking. The zero value and nil are empty tries.
type Trie[V any] struct {
	root *trieNode[V]
	size int
}

// Entry is a pattern stored in a Trie together with its value.
type Entry[V any] struct {
	Pattern *Pattern
	Value   V
}

// trieNode represents a node in the pattern trie.
type trieNode[V any] struct {
	literal map[string]*trieNode[V]
	wild    map[string]*wildChild[V]
	entry   *Entry[V] // pattern terminating at this node
}

// wildChild is an edge labelled with a non-literal segment.
type wildChild[V any] struct {
	seg  Segment
	node *trieNode[V]
}

// NewTrie creates an empty trie.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{}
}

// isEmpty returns true if the node has no children and no entry.
func (n *trieNode[V]) isEmpty() bool {
	return n.entry == nil && len(n.literal) == 0 && len(n.wild) == 0
}

// clone returns a shallow copy of n, or a fresh node if n is nil.
// Child maps are shared until modified through the copy's setters.
func (n *trieNode[V]) clone() *trieNode[V] {
	if n == nil {
		return &trieNode[V]{}
	}
	c := *n
	return &c
}

// child returns the child reached by seg's raw text.
func (n *trieNode[V]) child(raw string) *trieNode[V] {
	if n == nil {
		return nil
	}
	if c := n.literal[raw]; c != nil {
		return c
	}
	if w := n.wild[raw]; w != nil {
		return w.node
	}
	return nil
}

// setChild copies the relevant child map and stores child under seg.
// A nil child removes the edge.
func (n *trieNode[V]) setChild(seg Segment, child *trieNode[V]) {
	if seg.literal {
		m := make(map[string]*trieNode[V], len(n.literal)+1)
		for k, v := range n.literal {
			m[k] = v
		}
		if child == nil {
			delete(m, seg.raw)
		} else {
			m[seg.raw] = child
		}
		n.literal = m
		return
	}

	m := make(map[string]*wildChild[V], len(n.wild)+1)
	for k, v := range n.wild {
		m[k] = v
	}
	if child == nil {
		delete(m, seg.raw)
	} else {
		m[seg.raw] = &wildChild[V]{seg: seg, node: child}
	}
	n.wild = m
}

// With returns a trie that additionally maps pattern to value.
// If the pattern's source text is already present its value is replaced and
// replaced is true.
func (t *Trie[V]) With(pattern *Pattern, value V) (next *Trie[V], replaced bool) {
	var root *trieNode[V]
	size := 0
	if t != nil {
		root, size = t.root, t.size
	}

	entry := &Entry[V]{Pattern: pattern, Value: value}
	newRoot, replaced := insert(root, pattern.segments, 0, entry)
	if !replaced {
		size++
	}
	return &Trie[V]{root: newRoot, size: size}, replaced
}

// insert path-copies from n down to the node for segs and stores entry there.
func insert[V any](n *trieNode[V], segs []Segment, depth int, entry *Entry[V]) (*trieNode[V], bool) {
	c := n.clone()
	if depth == len(segs) {
		replaced := c.entry != nil
		c.entry = entry
		return c, replaced
	}

	seg := segs[depth]
	child, replaced := insert(c.child(seg.raw), segs, depth+1, entry)
	c.setChild(seg, child)
	return c, replaced
}

// Without returns a trie with the pattern whose source text is source removed,
// pruning nodes left empty. removed is false if the pattern was not present,
// in which case the receiver itself is returned.
func (t *Trie[V]) Without(source string) (next *Trie[V], removed bool) {
	if t == nil || t.root == nil {
		return t, false
	}
	segs := Split(source)
	if segs == nil {
		return t, false
	}

	// Track the path so nodes can be copied bottom-up.
	path := make([]*trieNode[V], 0, len(segs)+1)
	node := t.root
	path = append(path, node)
	for _, raw := range segs {
		node = node.child(raw)
		if node == nil {
			return t, false
		}
		path = append(path, node)
	}
	if node.entry == nil || node.entry.Pattern.source != source {
		return t, false
	}

	leaf := node.clone()
	leaf.entry = nil
	var cur *trieNode[V]
	if !leaf.isEmpty() {
		cur = leaf
	}

	for i := len(path) - 2; i >= 0; i-- {
		parent := path[i].clone()
		raw := segs[i]
		seg := Segment{raw: raw, literal: parent.literal[raw] != nil}
		if !seg.literal {
			seg = parent.wild[raw].seg
		}
		parent.setChild(seg, cur)
		if parent.isEmpty() {
			cur = nil
		} else {
			cur = parent
		}
	}

	return &Trie[V]{root: cur, size: t.size - 1}, true
}

// Lookup returns the entry whose pattern source text is exactly source.
// No wildcard expansion takes place.
func (t *Trie[V]) Lookup(source string) (Entry[V], bool) {
	if t == nil || t.root == nil {
		return Entry[V]{}, false
	}
	segs := Split(source)
	if segs == nil {
		return Entry[V]{}, false
	}

	node := t.root
	for _, raw := range segs {
		node = node.child(raw)
		if node == nil {
			return Entry[V]{}, false
		}
	}
	if node.entry == nil {
		return Entry[V]{}, false
	}
	return *node.entry, true
}

// Contains returns true if a pattern with the given source text is stored.
func (t *Trie[V]) Contains(source string) bool {
	_, ok := t.Lookup(source)
	return ok
}

// Match returns every entry whose pattern matches the concrete address.
// Each stored pattern appears at most once.
func (t *Trie[V]) Match(a Address) []Entry[V] {
	if t == nil || t.root == nil {
		return nil
	}
	segs := a.Segments()
	if segs == nil {
		return nil
	}

	var matches []Entry[V]
	matchRecursive(t.root, segs, 0, &matches)
	return matches
}

// matchRecursive walks literal edges by map lookup and tests wildcard edges
// against the current segment.
func matchRecursive[V any](node *trieNode[V], segs []string, depth int, matches *[]Entry[V]) {
	if depth == len(segs) {
		if node.entry != nil {
			*matches = append(*matches, *node.entry)
		}
		return
	}

	segment := segs[depth]

	// Exact match - continue down the tree
	if child := node.literal[segment]; child != nil {
		matchRecursive(child, segs, depth+1, matches)
	}

	for _, w := range node.wild {
		if w.seg.Match(segment) {
			matchRecursive(w.node, segs, depth+1, matches)
		}
	}
}

// MatchPattern returns every entry reached by a send-side pattern: literal
// patterns that p matches, plus the entry whose source text equals p.
func (t *Trie[V]) MatchPattern(p *Pattern) []Entry[V] {
	if t == nil || t.root == nil || p == nil {
		return nil
	}
	var matches []Entry[V]
	matchPatternRecursive(t.root, p.segments, 0, &matches)
	return matches
}

func matchPatternRecursive[V any](node *trieNode[V], segs []Segment, depth int, matches *[]Entry[V]) {
	if depth == len(segs) {
		if node.entry != nil {
			*matches = append(*matches, *node.entry)
		}
		return
	}

	seg := segs[depth]
	if seg.literal {
		if child := node.literal[seg.raw]; child != nil {
			matchPatternRecursive(child, segs, depth+1, matches)
		}
		return
	}

	for key, child := range node.literal {
		if seg.Match(key) {
			matchPatternRecursive(child, segs, depth+1, matches)
		}
	}
	if w := node.wild[seg.raw]; w != nil {
		matchPatternRecursive(w.node, segs, depth+1, matches)
	}
}

// All returns all entries stored in the trie.
func (t *Trie[V]) All() []Entry[V] {
	if t == nil || t.root == nil {
		return nil
	}
	entries := make([]Entry[V], 0, t.size)
	collectEntries(t.root, &entries)
	return entries
}

// collectEntries recursively collects all entries from the trie.
func collectEntries[V any](node *trieNode[V], entries *[]Entry[V]) {
	if node.entry != nil {
		*entries = append(*entries, *node.entry)
	}
	for _, child := range node.literal {
		collectEntries(child, entries)
	}
	for _, w := range node.wild {
		collectEntries(w.node, entries)
	}
}

// Len returns the number of patterns in the trie.
func (t *Trie[V]) Len() int {
	if t == nil {
		return 0
	}
	return t.size
}

// NodeCount returns the total number of nodes in the trie.
// This is useful for memory analysis.
func (t *Trie[V]) NodeCount() int {
	if t == nil || t.root == nil {
		return 0
	}
	count := 0
	countNodes(t.root, &count)
	return count
}

// countNodes recursively counts nodes in the trie.
func countNodes[V any](node *trieNode[V], count *int) {
	*count++
	for _, child := range node.literal {
		countNodes(child, count)
	}
	for _, w := range node.wild {
		countNodes(w.node, count)
	}
}
