// Package category groups a catalog snapshot by category.
//
// An Index is built once per adopted snapshot and never patched. Groups hold
// positions into the snapshot's catalog rather than copies of the entries, so
// every group is a view of the same backing data.
package category

import (
	"github.com/Sternrassler/game-catalog/pkg/catalog"
)

// Index maps category names to ordered views of a catalog.
type Index struct {
	entries catalog.Catalog
	groups  map[string][]int
	names   []string
}

// Build indexes cat in a single pass. Entries keep their catalog order within
// each category. Entries without a category are indexed under
// catalog.DefaultCategory.
func Build(cat catalog.Catalog) *Index {
	idx := &Index{
		entries: cat,
		groups:  make(map[string][]int),
	}

	for i, e := range cat {
		name := catalog.CategoryOf(e)
		if _, ok := idx.groups[name]; !ok {
			idx.names = append(idx.names, name)
		}
		idx.groups[name] = append(idx.groups[name], i)
	}

	return idx
}

// ByCategory returns the entries of one category in catalog order.
// The returned slice is freshly allocated; an unknown category yields an
// empty slice.
func (idx *Index) ByCategory(name string) []catalog.Entry {
	if idx == nil {
		return []catalog.Entry{}
	}
	if name == "" {
		name = catalog.DefaultCategory
	}

	positions := idx.groups[name]
	out := make([]catalog.Entry, len(positions))
	for i, p := range positions {
		out[i] = idx.entries[p]
	}
	return out
}

// Categories returns category names in order of first appearance.
func (idx *Index) Categories() []string {
	if idx == nil {
		return nil
	}
	return append([]string(nil), idx.names...)
}

// Counts returns the number of entries per category.
func (idx *Index) Counts() map[string]int {
	counts := make(map[string]int)
	if idx == nil {
		return counts
	}
	for name, positions := range idx.groups {
		counts[name] = len(positions)
	}
	return counts
}

// Len returns the number of indexed entries.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}
