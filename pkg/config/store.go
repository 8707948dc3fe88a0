package config

import (
	"fmt"
	"sort"
)

// Store is a read-only view over a merged configuration tree.
type Store struct {
	tree map[string]any
}

// New wraps tree in a Store. The tree is copied; later changes to the
// argument do not affect the store.
func New(tree map[string]any) *Store {
	if tree == nil {
		tree = map[string]any{}
	}
	return &Store{tree: deepCopy(tree).(map[string]any)}
}

// Get walks the tree along path. Every segment but the last must address a map.
func (s *Store) Get(path ...string) (any, bool) {
	var cur any = s.tree
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return deepCopy(cur), true
}

// Has reports whether a value exists at path.
func (s *Store) Has(path ...string) bool {
	_, ok := s.Get(path...)
	return ok
}

// String returns the string at path, or "" if it is absent or not a string.
func (s *Store) String(path ...string) string {
	v, ok := s.Get(path...)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// Strings returns the list of strings at path. Non-string items are formatted
// with fmt.Sprint; a missing value yields nil.
func (s *Store) Strings(path ...string) []string {
	v, ok := s.Get(path...)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if str, ok := item.(string); ok {
			out = append(out, str)
			continue
		}
		out = append(out, fmt.Sprint(item))
	}
	return out
}

// Map returns the map at path, or nil if it is absent or not a map.
func (s *Store) Map(path ...string) map[string]any {
	v, ok := s.Get(path...)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// Keys returns the sorted keys of the map at path.
func (s *Store) Keys(path ...string) []string {
	m := s.Map(path...)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sub returns a Store rooted at path. A missing or non-map value yields an
// empty store.
func (s *Store) Sub(path ...string) *Store {
	return New(s.Map(path...))
}

// Tree returns a deep copy of the whole configuration tree.
func (s *Store) Tree() map[string]any {
	return deepCopy(s.tree).(map[string]any)
}
