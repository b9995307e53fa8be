package browse

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"cms-browser/internal/provider"
)

// maxSpreadPerRune bounds how far apart fuzzy matched characters may lie,
// relative to the query length.
const maxSpreadPerRune = 3

// Search filters the current folder by label. Substring matches come first
// in folder order, then fuzzy matches by score. An empty query ends the search.
func (c *Coordinator) Search(query string) {
	if !c.Alive() {
		return
	}
	query = strings.TrimSpace(query)
	if query == "" {
		if c.sess.Request.Type == RequestSearch {
			c.sess.Request = Request{}
		}
		c.sess.VisibleItems = nil
		c.emit()
		return
	}

	found := filterItems(c.sess.Items, query)
	c.sess.VisibleItems = found
	c.sess.Request = Request{Type: RequestSearch, Query: query, ResultCount: len(found)}
	c.emit()
}

type labelSource []provider.Item

func (s labelSource) String(i int) string { return s[i].Label }
func (s labelSource) Len() int            { return len(s) }

func filterItems(items []provider.Item, query string) []provider.Item {
	lq := strings.ToLower(query)
	out := make([]provider.Item, 0, len(items))
	taken := make(map[int]bool)
	for i, it := range items {
		if strings.Contains(strings.ToLower(it.Label), lq) {
			out = append(out, it)
			taken[i] = true
		}
	}

	matches := fuzzy.FindFrom(query, labelSource(items))
	maxSpread := maxSpreadPerRune * len([]rune(query))
	pruned := make([]int, 0, len(matches))
	for _, mt := range matches {
		if !taken[mt.Index] && matchSpread(mt) <= maxSpread {
			pruned = append(pruned, mt.Index)
		}
	}
	if len(pruned) == 0 && len(out) == 0 {
		// nothing tight enough, fall back to every fuzzy hit
		for _, mt := range matches {
			pruned = append(pruned, mt.Index)
		}
	}
	for _, i := range pruned {
		out = append(out, items[i])
	}
	return out
}

// matchSpread returns the distance between the first and last matched index.
func matchSpread(m fuzzy.Match) int {
	if len(m.MatchedIndexes) == 0 {
		return 0
	}
	return m.MatchedIndexes[len(m.MatchedIndexes)-1] - m.MatchedIndexes[0]
}
