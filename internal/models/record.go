package models

import "slices"

// Identifier is a unique, opaque catalog key. It is the unit of
// deduplication during discovery and of resume matching during harvest.
type Identifier string

// Record is the field mapping produced from one identifier's detail page.
// The schema is fixed by the catalog but individual values may be absent;
// an absent value is not an error.
type Record struct {
	ID     Identifier
	Fields map[string]string
}

// IdentifierSet is a deduplicated set of catalog identifiers.
type IdentifierSet map[Identifier]struct{}

// Add inserts an identifier and reports whether it was not already present.
func (s IdentifierSet) Add(id Identifier) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Contains reports whether the identifier is in the set.
func (s IdentifierSet) Contains(id Identifier) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the identifiers in lexicographic order. Persisting the
// discovered set in a stable order keeps repeat discovery runs byte-stable.
func (s IdentifierSet) Sorted() []Identifier {
	ids := make([]Identifier, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
