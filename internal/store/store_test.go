package store

import (
	"path/filepath"
	"testing"

	"cms-browser/internal/provider"
)

func sampleState() provider.LastOpenedState {
	sel := provider.Item{ID: "A1", Label: "a.pdf", Type: provider.TypeFile}
	return provider.LastOpenedState{
		HierarchyItems: []provider.Item{
			{Label: "Attachments", Type: provider.TypeFolder},
			{ID: "f1", Label: "one", Type: provider.TypeFolder},
		},
		SelectedItem: &sel,
	}
}

func checkRoundTrip(t *testing.T, s Store) {
	t.Helper()
	if _, ok, err := s.Load("attachment"); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
	if err := s.Save("attachment", sampleState()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, ok, err := s.Load("attachment")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if len(got.HierarchyItems) != 2 || got.HierarchyItems[1].ID != "f1" {
		t.Fatalf("unexpected hierarchy: %+v", got.HierarchyItems)
	}
	if got.SelectedItem == nil || got.SelectedItem.ID != "A1" {
		t.Fatalf("unexpected selection: %+v", got.SelectedItem)
	}

	// overwrite with no selection
	if err := s.Save("attachment", provider.LastOpenedState{HierarchyItems: got.HierarchyItems[:1]}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, _, _ = s.Load("attachment")
	if got.SelectedItem != nil || len(got.HierarchyItems) != 1 {
		t.Fatalf("expected overwritten state, got %+v", got)
	}
}

func TestMemoryStore(t *testing.T) {
	checkRoundTrip(t, NewMemory())
}

func TestMemoryStoreCopiesInput(t *testing.T) {
	m := NewMemory()
	st := sampleState()
	_ = m.Save("image", st)
	st.SelectedItem.ID = "changed"
	got, _, _ := m.Load("image")
	if got.SelectedItem.ID != "A1" {
		t.Fatalf("store shares selection with caller")
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "state", "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	defer s.Close()
	checkRoundTrip(t, s)
}
