package gateway

import (
	"cmp"
	"slices"
	"sync"
)

// Table is the correlation table between outstanding ids and their metadata.
//
// Every method takes the table's own lock, so a read-modify-write such as
// Remove is atomic with respect to concurrent Put/Remove from the issuing
// goroutine and the callback loop. Callers never lock around a Table.
// Remove reports whether it deleted the entry: exactly one caller observes
// true for a given Put, which makes terminal callbacks idempotent.
type Table[K cmp.Ordered, V any] struct {
	mu      sync.Mutex
	entries map[K]V
	onEmpty chan struct{}
}

// NewTable creates an empty table.
func NewTable[K cmp.Ordered, V any]() *Table[K, V] {
	return &Table[K, V]{
		entries: make(map[K]V),
		onEmpty: make(chan struct{}, 1),
	}
}

// Put registers v under k, replacing any previous value.
func (t *Table[K, V]) Put(k K, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[k] = v
}

// PutIfAbsent registers v only when k is not mapped yet.
func (t *Table[K, V]) PutIfAbsent(k K, v V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[k]; ok {
		return false
	}
	t.entries[k] = v
	return true
}

// Get looks k up without removing it.
func (t *Table[K, V]) Get(k K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[k]
	return v, ok
}

// Remove deletes k and returns the value it held.
func (t *Table[K, V]) Remove(k K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[k]
	if !ok {
		return v, false
	}
	delete(t.entries, k)
	if len(t.entries) == 0 {
		t.signalEmptyLocked()
	}
	return v, true
}

// Len returns the number of entries.
func (t *Table[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Empty reports whether no entry is outstanding.
func (t *Table[K, V]) Empty() bool {
	return t.Len() == 0
}

// Keys returns the ids in ascending order.
func (t *Table[K, V]) Keys() []K {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedKeys(t.entries)
}

// Drain removes and returns every entry.
func (t *Table[K, V]) Drain() map[K]V {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.entries
	t.entries = make(map[K]V)
	if len(out) > 0 {
		t.signalEmptyLocked()
	}
	return out
}

// Emptied is signalled (best-effort, coalesced) each time the table becomes empty.
func (t *Table[K, V]) Emptied() <-chan struct{} {
	return t.onEmpty
}

func (t *Table[K, V]) signalEmptyLocked() {
	select {
	case t.onEmpty <- struct{}{}:
	default:
	}
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
