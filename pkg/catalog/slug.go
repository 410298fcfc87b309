package catalog

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// idSpace namespaces derived IDs so the suffix is stable across processes.
var idSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://flamepass.games/game/"))

// Slugify lowercases name, turns whitespace runs into dashes and drops
// everything outside [a-z0-9-].
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	inSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
			continue
		}
		inSpace = false

		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// DeriveID builds an ID for a record that has no slug: the slugified name
// plus a 5 character suffix taken from a name-based UUID. The same name
// always yields the same ID.
func DeriveID(name string) string {
	base := Slugify(name)
	if base == "" {
		base = "game"
	}
	suffix := uuid.NewSHA1(idSpace, []byte(name)).String()[:5]
	return base + "-" + suffix
}

// idAllocator hands out unique IDs within one catalog.
type idAllocator map[string]struct{}

// claim returns id if unused, otherwise id-2, id-3, ... The second result
// reports whether the ID had to be changed.
func (a idAllocator) claim(id string) (string, bool) {
	if _, taken := a[id]; !taken {
		a[id] = struct{}{}
		return id, false
	}

	for n := 2; ; n++ {
		candidate := id + "-" + strconv.Itoa(n)
		if _, taken := a[candidate]; !taken {
			a[candidate] = struct{}{}
			return candidate, true
		}
	}
}
