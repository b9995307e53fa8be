package browse

import (
	"testing"

	"cms-browser/internal/provider"
)

func searchFixture(t *testing.T) *Coordinator {
	t.Helper()
	fp := newFakeProvider()
	fp.browseFn = func(provider.Item) (provider.BrowseResult, error) {
		return provider.BrowseResult{
			Items: []provider.Item{
				{ID: "1", Label: "Annual report.pdf", Type: provider.TypeFile},
				{ID: "2", Label: "Report draft.docx", Type: provider.TypeFile},
				{ID: "3", Label: "rprt-scan.png", Type: provider.TypeFile},
				{ID: "4", Label: "logo.svg", Type: provider.TypeFile},
			},
			HierarchyItems: []provider.Item{fp.root},
		}, nil
	}
	c := newCoordinator(t, fp, Options{})
	run(c, c.RefreshItems("", provider.Item{}, false))
	return c
}

func ids(items []provider.Item) string {
	out := ""
	for _, it := range items {
		out += it.ID
	}
	return out
}

func TestSearchSubstringThenFuzzy(t *testing.T) {
	c := searchFixture(t)
	c.Search("report")

	s := c.Snapshot()
	if s.Request.Type != RequestSearch || s.Request.Query != "report" {
		t.Fatalf("unexpected request: %+v", s.Request)
	}
	// substring hits keep folder order; the fuzzy-only hit comes last
	if got := ids(s.VisibleItems); got != "12" {
		t.Fatalf("expected substring matches 1,2 got %q", got)
	}
	if s.Request.ResultCount != 2 || len(s.Shown()) != 2 {
		t.Fatalf("unexpected result count %d", s.Request.ResultCount)
	}

	c.Search("rprt")
	if got := ids(c.Snapshot().VisibleItems); len(got) != 3 || got[0] != '3' {
		t.Fatalf("expected substring hit 3 then both fuzzy hits, got %q", got)
	}
}

func TestSearchNoMatches(t *testing.T) {
	c := searchFixture(t)
	c.Search("zzz")
	s := c.Snapshot()
	if s.Request.ResultCount != 0 || len(s.Shown()) != 0 {
		t.Fatalf("expected no results, got %+v", s.VisibleItems)
	}
}

func TestEmptySearchClears(t *testing.T) {
	c := searchFixture(t)
	c.Search("logo")
	c.Search("  ")
	s := c.Snapshot()
	if !s.Request.IsZero() || s.VisibleItems != nil || len(s.Shown()) != 4 {
		t.Fatalf("expected search cleared, got %+v", s.Request)
	}
}

func TestRefreshClearsSearch(t *testing.T) {
	c := searchFixture(t)
	c.Search("logo")
	run(c, c.RefreshItems("", provider.Item{}, true))
	s := c.Snapshot()
	if s.Request.Type == RequestSearch || s.VisibleItems != nil {
		t.Fatalf("expected refresh to end the search, got %+v", s.Request)
	}
}

func TestFilterItemsPrunesScatteredMatches(t *testing.T) {
	items := []provider.Item{
		{ID: "wide", Label: "a-long-winding-file.b"},
		{ID: "tight", Label: "ab.txt"},
	}
	if got := ids(filterItems(items, "ab")); got != "tight" {
		t.Fatalf("expected scattered match pruned, got %q", got)
	}
	// with nothing tight left, every fuzzy hit is kept
	if got := ids(filterItems(items[:1], "ab")); got != "wide" {
		t.Fatalf("expected fallback to loose fuzzy hits, got %q", got)
	}
}
