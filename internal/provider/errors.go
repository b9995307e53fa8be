package provider

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound marks a folder or item that no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrUploadTooLarge is returned before any network call when a file exceeds the limit.
	ErrUploadTooLarge = errors.New("file exceeds upload size limit")
	// ErrUploadServer wraps a failed upload request.
	ErrUploadServer = errors.New("upload failed")
	// ErrUploadUnsupported is returned by providers without an upload asset type.
	ErrUploadUnsupported = errors.New("upload not supported")
	// ErrUnknownProvider is returned by Registry.Get for unregistered names.
	ErrUnknownProvider = errors.New("unknown data provider")
)

// StatusError carries an HTTP-like status for a failed provider operation.
type StatusError struct {
	Op     string
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s status %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

func (e *StatusError) Unwrap() error { return e.Err }

// IsNotFound reports whether err describes a missing folder, either through
// a 404 StatusError or ErrNotFound anywhere in the chain.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusNotFound
	}
	return false
}

// BrowseError is a failed folder fetch as presented to views.
type BrowseError struct {
	FolderID string
	Err      error
}

func (e *BrowseError) Error() string {
	return fmt.Sprintf("browse folder %q: %v", e.FolderID, e.Err)
}

func (e *BrowseError) Unwrap() error { return e.Err }

// ItemLoadError is a lazily loaded entry that failed independently of browsing.
type ItemLoadError struct {
	ID  string
	Err error
}

func (e *ItemLoadError) Error() string {
	return fmt.Sprintf("load item %q: %v", e.ID, e.Err)
}

func (e *ItemLoadError) Unwrap() error { return e.Err }
