package query

import (
	"math/rand"
	"strings"

	"github.com/Sternrassler/game-catalog/pkg/catalog"
)

// PickRandom returns n distinct entries in random order. n is clamped to
// len(entries). A nil rng uses the global source.
func PickRandom(entries []catalog.Entry, n int, rng *rand.Rand) []catalog.Entry {
	if n > len(entries) {
		n = len(entries)
	}
	if n <= 0 {
		return []catalog.Entry{}
	}

	perm := permutation(len(entries), rng)
	out := make([]catalog.Entry, n)
	for i := 0; i < n; i++ {
		out[i] = entries[perm[i]]
	}
	return out
}

// Related picks other entries to show next to excludeID: 20 when more than
// 20 are available, 10 when more than 10, otherwise all of them.
func Related(entries []catalog.Entry, excludeID string, rng *rand.Rand) []catalog.Entry {
	others := make([]catalog.Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID != excludeID {
			others = append(others, e)
		}
	}

	n := len(others)
	switch {
	case n > 20:
		n = 20
	case n > 10:
		n = 10
	}
	return PickRandom(others, n, rng)
}

const (
	// SimilarCount is the size of the same-category list on a game page.
	SimilarCount = 6

	// TrendingCount is the size of the trending list.
	TrendingCount = 6

	// TrendingTag marks entries promoted to the trending list.
	TrendingTag = "popular"
)

// Similar picks up to n random entries from the category of game, game
// itself excluded. An empty category counts as the default one. When the
// category holds no other entry the pick is drawn from all other entries.
func Similar(entries []catalog.Entry, game catalog.Entry, n int, rng *rand.Rand) []catalog.Entry {
	category := catalog.CategoryOf(game)
	var same, others []catalog.Entry
	for _, e := range entries {
		if e.ID == game.ID {
			continue
		}
		others = append(others, e)
		if catalog.CategoryOf(e) == category {
			same = append(same, e)
		}
	}
	if len(same) == 0 {
		return PickRandom(others, n, rng)
	}
	return PickRandom(same, n, rng)
}

// Trending returns n entries tagged TrendingTag. With fewer tagged entries
// than n, all of them come first in catalog order and random untagged
// entries fill the rest.
func Trending(entries []catalog.Entry, n int, rng *rand.Rand) []catalog.Entry {
	tagged := make([]catalog.Entry, 0, n)
	var rest []catalog.Entry
	for _, e := range entries {
		if hasTag(e, TrendingTag) {
			tagged = append(tagged, e)
		} else {
			rest = append(rest, e)
		}
	}
	if len(tagged) >= n {
		return PickRandom(tagged, n, rng)
	}
	return append(tagged, PickRandom(rest, n-len(tagged), rng)...)
}

func hasTag(e catalog.Entry, tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func permutation(n int, rng *rand.Rand) []int {
	if rng == nil {
		return rand.Perm(n)
	}
	return rng.Perm(n)
}
