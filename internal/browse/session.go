package browse

import (
	"cms-browser/internal/provider"
)

// RequestType tags the operation a Request describes.
type RequestType string

const (
	RequestNone   RequestType = ""
	RequestBrowse RequestType = "browse"
	RequestUpload RequestType = "upload"
	RequestSearch RequestType = "search"
)

// Request is the in-flight or last completed operation of a session.
// The zero value means idle without error.
type Request struct {
	Type RequestType
	Busy bool
	Err  error
	// Message is the user facing text for Err, when the caller supplied one.
	Message string

	Query       string
	ResultCount int
}

// IsZero reports whether the request slot is idle.
func (r Request) IsZero() bool {
	return r.Type == RequestNone && !r.Busy && r.Err == nil
}

// ViewMode selects how views lay out items.
type ViewMode string

const (
	ViewList ViewMode = "list"
	ViewGrid ViewMode = "grid"
)

// Session is the state of one open browse modal. Views receive copies;
// slices and maps inside are replaced on change, never written in place.
type Session struct {
	ID string

	HierarchyItems []provider.Item
	Items          []provider.Item
	SelectedItem   *provider.Item
	Request        Request

	CachedErrorByRemoteID  map[string]error
	AssetFolderByContextID map[string]provider.Item

	// InitialSelectedItem is the one-shot selection hint. Not rendered.
	InitialSelectedItem *provider.Item

	ViewMode       ViewMode
	SubmitDisabled bool

	// VisibleItems is the filtered view of Items while a search is active.
	VisibleItems []provider.Item
}

// CurrentFolder returns the deepest folder of the trail, or false before
// the first browse completed.
func (s Session) CurrentFolder() (provider.Item, bool) {
	if len(s.HierarchyItems) == 0 {
		return provider.Item{}, false
	}
	return s.HierarchyItems[len(s.HierarchyItems)-1], true
}

// Shown returns the items a view should list: the search results while a
// search is active, else all items.
func (s Session) Shown() []provider.Item {
	if s.Request.Type == RequestSearch {
		return s.VisibleItems
	}
	return s.Items
}
