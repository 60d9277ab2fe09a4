// Package indexmap provides a sparse map keyed by a 32-bit pool index.
//
// The native-function registry is built up incrementally and looked
// up by a dense-ish but not
// necessarily contiguous key space (pool indices), so a plain Go map
// is the natural fit - there is no sparse-integer-map library anywhere
// in the surrounding ecosystem this module draws from, so this stays
// a thin wrapper over the builtin map rather than reaching for one.
package indexmap

// IndexMap is a map from a raw uint32 key to a value of type V. Put
// always overwrites; PutIfAbsent only inserts when the key is not yet
// present.
type IndexMap[V any] struct {
	values map[uint32]V
}

// New returns an empty IndexMap.
func New[V any]() *IndexMap[V] {
	return &IndexMap[V]{values: make(map[uint32]V)}
}

// Get returns the value at key and whether it was present.
func (m *IndexMap[V]) Get(key uint32) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Put inserts or overwrites the value at key.
func (m *IndexMap[V]) Put(key uint32, value V) {
	m.values[key] = value
}

// PutIfAbsent inserts value at key only if key is not already present.
// Returns true if the insert happened.
func (m *IndexMap[V]) PutIfAbsent(key uint32, value V) bool {
	if _, ok := m.values[key]; ok {
		return false
	}
	m.values[key] = value
	return true
}

// Len reports the number of entries.
func (m *IndexMap[V]) Len() int {
	return len(m.values)
}

// Each calls fn for every entry. Iteration order is unspecified.
func (m *IndexMap[V]) Each(fn func(key uint32, value V)) {
	for k, v := range m.values {
		fn(k, v)
	}
}
