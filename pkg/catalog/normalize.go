package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidDocument is returned when the catalog document is not a JSON array.
var ErrInvalidDocument = errors.New("invalid catalog document")

// MalformedEntry describes a record that was repaired or skipped during
// normalization. Malformed records never fail a catalog: missing fields are
// defaulted and only non-object array items are dropped.
type MalformedEntry struct {
	// Index is the record's position in the source array.
	Index  int
	Field  string
	Reason string
}

// Error implements the error interface.
func (m MalformedEntry) Error() string {
	return fmt.Sprintf("catalog record %d: %s: %s", m.Index, m.Field, m.Reason)
}

// Decode parses a g.json document and normalizes every record.
// Field types are read leniently: tags may be an array or a comma separated
// string and proxy may be a boolean, number or string.
func Decode(data []byte) (Catalog, []MalformedEntry, error) {
	if !gjson.ValidBytes(data) {
		return nil, nil, fmt.Errorf("%w: not valid JSON", ErrInvalidDocument)
	}

	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, nil, fmt.Errorf("%w: top-level value is not an array", ErrInvalidDocument)
	}

	n := normalizer{ids: idAllocator{}, entries: Catalog{}}
	index := 0
	root.ForEach(func(_, value gjson.Result) bool {
		n.add(index, value)
		index++
		return true
	})

	return n.entries, n.issues, nil
}

// normalizer accumulates normalized entries and keeps IDs unique.
type normalizer struct {
	ids     idAllocator
	entries Catalog
	issues  []MalformedEntry
}

func (n *normalizer) issue(index int, field, reason string) {
	n.issues = append(n.issues, MalformedEntry{Index: index, Field: field, Reason: reason})
}

func (n *normalizer) add(index int, rec gjson.Result) {
	if !rec.IsObject() {
		n.issue(index, "record", "not an object, skipped")
		return
	}

	e := Entry{
		Name:        strings.TrimSpace(rec.Get("name").String()),
		Category:    strings.TrimSpace(rec.Get("category").String()),
		ImageURL:    strings.TrimSpace(rec.Get("img").String()),
		Description: strings.TrimSpace(rec.Get("description").String()),
		Publisher:   strings.TrimSpace(rec.Get("publisher").String()),
		ReleaseDate: strings.TrimSpace(rec.Get("releaseDate").String()),
	}

	if e.Name == "" {
		n.issue(index, "name", "missing, defaulted")
		e.Name = DefaultName
	}

	if e.Category == "" {
		n.issue(index, "category", "missing, defaulted to "+DefaultCategory)
		e.Category = DefaultCategory
	}

	e.Tags = parseTags(rec.Get("tags"))
	e.ServiceProviders = parseProviders(rec.Get("serviceProviders"))

	proxy, ok := parseBool(rec.Get("proxy"), true)
	if !ok {
		n.issue(index, "proxy", "unparseable, defaulted to true")
	}
	e.Proxy = proxy

	id := strings.TrimSpace(rec.Get("slug").String())
	if id == "" {
		id = DeriveID(e.Name)
		n.issue(index, "slug", "missing, derived "+id)
	}
	id, renamed := n.ids.claim(id)
	if renamed {
		n.issue(index, "slug", "duplicate, renamed to "+id)
	}
	e.ID = id

	n.entries = append(n.entries, e)
}

func parseTags(v gjson.Result) []string {
	tags := []string{}

	switch {
	case v.IsArray():
		for _, t := range v.Array() {
			if s := strings.TrimSpace(t.String()); s != "" {
				tags = append(tags, s)
			}
		}
	case v.Type == gjson.String:
		for _, s := range strings.Split(v.Str, ",") {
			if s = strings.TrimSpace(s); s != "" {
				tags = append(tags, s)
			}
		}
	}

	return tags
}

func parseProviders(v gjson.Result) map[string]ServiceProvider {
	if !v.IsObject() {
		return nil
	}

	providers := make(map[string]ServiceProvider)
	v.ForEach(func(name, p gjson.Result) bool {
		url := p.Get("url").String()
		if p.Type == gjson.String {
			url = p.Str
		}
		if url = strings.TrimSpace(url); url != "" {
			providers[name.String()] = ServiceProvider{URL: url}
		}
		return true
	})

	if len(providers) == 0 {
		return nil
	}
	return providers
}

// parseBool reads a loosely typed boolean. The second result is false when
// the value was present but could not be interpreted.
func parseBool(v gjson.Result, def bool) (bool, bool) {
	switch v.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.Number:
		return v.Num != 0, true
	case gjson.String:
		b, err := strconv.ParseBool(strings.TrimSpace(v.Str))
		if err != nil {
			return def, false
		}
		return b, true
	default:
		// missing or null
		return def, true
	}
}
