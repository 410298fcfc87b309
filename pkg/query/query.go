// Package query holds the stateless read-side transforms over a catalog
// snapshot: pagination, search, sorting and random picks. Inputs are never
// modified; every function returns new slices.
package query

import (
	"sort"
	"strings"

	"github.com/Sternrassler/game-catalog/pkg/catalog"
)

// DefaultPageSize is the number of entries per page.
const DefaultPageSize = 50

// MaxPageSize caps caller-supplied page sizes.
const MaxPageSize = 500

// Page is one page of entries.
type Page struct {
	Items      []catalog.Entry `json:"items"`
	Page       int             `json:"page"`
	Size       int             `json:"size"`
	TotalItems int             `json:"total_items"`
	TotalPages int             `json:"total_pages"`
}

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool {
	return p.Page < p.TotalPages
}

// HasPrev reports whether an earlier page exists.
func (p Page) HasPrev() bool {
	return p.Page > 1
}

// Paginate returns the 1-based page of entries. A size outside
// [1, MaxPageSize] falls back to DefaultPageSize (or MaxPageSize), and page
// is clamped to [1, TotalPages]. An empty input yields one empty page.
func Paginate(entries []catalog.Entry, page, size int) Page {
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}

	total := len(entries)
	totalPages := (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}

	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * size
	end := start + size
	if end > total {
		end = total
	}

	items := make([]catalog.Entry, end-start)
	copy(items, entries[start:end])

	return Page{
		Items:      items,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

// Filter returns the entries whose name, description or any tag contains q,
// ignoring case. A blank query returns a copy of all entries.
func Filter(entries []catalog.Entry, q string) []catalog.Entry {
	q = strings.ToLower(strings.TrimSpace(q))

	out := make([]catalog.Entry, 0, len(entries))
	for _, e := range entries {
		if q == "" || Matches(e, q) {
			out = append(out, e)
		}
	}
	return out
}

// Matches reports whether e matches the lower-cased query q.
func Matches(e catalog.Entry, q string) bool {
	if strings.Contains(strings.ToLower(e.Name), q) ||
		strings.Contains(strings.ToLower(e.Description), q) {
		return true
	}
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// SortByName returns the entries sorted alphabetically, ignoring case.
// Entries with equal names keep catalog order.
func SortByName(entries []catalog.Entry) []catalog.Entry {
	out := make([]catalog.Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Find returns the entry with the given ID.
func Find(entries []catalog.Entry, id string) (catalog.Entry, bool) {
	return catalog.Catalog(entries).Find(id)
}
