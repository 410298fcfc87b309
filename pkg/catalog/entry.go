// Package catalog defines the game catalog data model and the normalization
// of raw g.json records into catalog entries.
package catalog

const (
	// DefaultCategory is assigned to entries that carry no category.
	DefaultCategory = "browser"

	// DefaultName is used for records without a usable name.
	DefaultName = "Unknown Game"
)

// ServiceProvider is an external launcher for an entry (e.g. a cloud gaming service).
type ServiceProvider struct {
	URL string `json:"url"`
}

// Entry is one normalized catalog item.
type Entry struct {
	// ID is stable and unique within a catalog snapshot. Taken from the
	// record's slug, or derived from the name when the slug is missing.
	ID string `json:"id"`

	Name        string `json:"name"`
	Category    string `json:"category"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Description string `json:"description,omitempty"`

	// Tags keep source order. Never nil after normalization.
	Tags []string `json:"tags"`

	Publisher        string                     `json:"publisher,omitempty"`
	ReleaseDate      string                     `json:"releaseDate,omitempty"`
	ServiceProviders map[string]ServiceProvider `json:"serviceProviders,omitempty"`

	// Proxy reports whether the entry is launched through the proxy frame.
	Proxy bool `json:"proxy"`
}

// Catalog is the ordered list of entries. Order defines the default display
// order and survives cache round-trips.
type Catalog []Entry

// IDs returns the entry IDs in catalog order.
func (c Catalog) IDs() []string {
	ids := make([]string, len(c))
	for i, e := range c {
		ids[i] = e.ID
	}
	return ids
}

// Find returns the entry with the given ID.
func (c Catalog) Find(id string) (Entry, bool) {
	for _, e := range c {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// CategoryOf returns the entry's category, falling back to DefaultCategory.
func CategoryOf(e Entry) string {
	if e.Category == "" {
		return DefaultCategory
	}
	return e.Category
}
