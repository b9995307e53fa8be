package provider

import (
	"context"
	"io"
)

// ItemType distinguishes files from folders in a browse result.
type ItemType string

const (
	TypeFile   ItemType = "file"
	TypeFolder ItemType = "folder"
)

// Item is a single entry in a folder listing or breadcrumb trail.
// The root folder has an empty ID.
type Item struct {
	ID       string         `json:"id"`
	Label    string         `json:"label"`
	Type     ItemType       `json:"type"`
	Icon     string         `json:"icon,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// ExternalURL links a folder to the CMS itself, when the CMS provides one.
	ExternalURL string `json:"externalUrl,omitempty"`

	// Set on items synthesized from a finished upload.
	Uploaded bool  `json:"-"`
	File     *File `json:"-"`

	// Extra carries fields a caller attached to a selection hint.
	Extra map[string]any `json:"-"`
}

// IsRoot reports whether the item is the root folder of a provider.
func (it Item) IsRoot() bool { return it.ID == "" }

// IsFolder reports whether the item is a folder.
func (it Item) IsFolder() bool { return it.Type == TypeFolder }

// Merge returns a copy of it with every non-zero field of hint laid over it.
// Map fields are merged key by key, hint keys win.
func (it Item) Merge(hint Item) Item {
	out := it
	if hint.ID != "" {
		out.ID = hint.ID
	}
	if hint.Label != "" {
		out.Label = hint.Label
	}
	if hint.Type != "" {
		out.Type = hint.Type
	}
	if hint.Icon != "" {
		out.Icon = hint.Icon
	}
	if hint.ExternalURL != "" {
		out.ExternalURL = hint.ExternalURL
	}
	if hint.Uploaded {
		out.Uploaded = true
	}
	if hint.File != nil {
		out.File = hint.File
	}
	out.Metadata = mergeMaps(it.Metadata, hint.Metadata)
	out.Extra = mergeMaps(it.Extra, hint.Extra)
	return out
}

func mergeMaps(base, over map[string]any) map[string]any {
	if len(base) == 0 && len(over) == 0 {
		return base
	}
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// File is a local file picked for upload.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// BrowseResult is the content of one folder plus the breadcrumb trail leading to it.
type BrowseResult struct {
	Items          []Item `json:"items"`
	HierarchyItems []Item `json:"hierarchyItems"`
}

// UploadOptions describes what a provider accepts for uploads.
type UploadOptions struct {
	MaxFileSizeInBytes int64
	MimeTypesToAccept  string
}

// LastOpenedState is what a provider remembers from the previous session.
type LastOpenedState struct {
	HierarchyItems []Item `json:"hierarchyItems"`
	SelectedItem   *Item  `json:"selectedItem,omitempty"`
}

// DataProvider fetches folder contents and performs uploads for one asset type.
type DataProvider interface {
	GetFolderContents(ctx context.Context, browseContextID string, folder Item, noCache bool, trail []Item) (BrowseResult, error)
	RootHierarchyItem() Item
	Upload(ctx context.Context, folderID string, files []File) (Item, error)
	UploadOptions() UploadOptions
	LastOpenedState() (LastOpenedState, bool)
	StoreLastOpenedState(hierarchy []Item, selected *Item) error
}

// Filter keeps the items whose type is listed in resultTypes.
// An empty resultTypes keeps everything.
func Filter(items []Item, resultTypes []ItemType) []Item {
	if len(resultTypes) == 0 {
		return items
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		for _, rt := range resultTypes {
			if it.Type == rt {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// TrailTo derives a breadcrumb trail for folder from the previous trail.
// If folder already is on the trail the trail is cut after it, otherwise
// folder is appended. The root is always the first element.
func TrailTo(root Item, trail []Item, folder Item) []Item {
	out := []Item{root}
	if folder.IsRoot() {
		return out
	}
	for _, it := range trail {
		if it.IsRoot() {
			continue
		}
		out = append(out, it)
		if it.ID == folder.ID {
			return out
		}
	}
	return append(out, folder)
}
