package browse

import (
	"time"

	"cms-browser/internal/provider"
)

// UploadErrorMessages are the texts shown for failed uploads.
type UploadErrorMessages struct {
	FileSizeTooLarge string
	ServerError      string
}

// DefaultUploadErrorMessages is used for empty fields.
var DefaultUploadErrorMessages = UploadErrorMessages{
	FileSizeTooLarge: "This file is too large, please select another file and try again.",
	ServerError:      "Can't upload this file, please try again.",
}

func (m UploadErrorMessages) withDefaults() UploadErrorMessages {
	if m.FileSizeTooLarge == "" {
		m.FileSizeTooLarge = DefaultUploadErrorMessages.FileSizeTooLarge
	}
	if m.ServerError == "" {
		m.ServerError = DefaultUploadErrorMessages.ServerError
	}
	return m
}

// BrowseResultMsg carries a finished GetFolderContents call back to Update.
type BrowseResultMsg struct {
	SessionID string
	Seq       uint64
	ContextID string
	Folder    provider.Item
	Fallback  bool
	Started   time.Time

	Result provider.BrowseResult
	Err    error
}

// UploadResultMsg carries a finished upload back to Update.
type UploadResultMsg struct {
	SessionID string
	Seq       uint64
	File      provider.File
	Messages  UploadErrorMessages

	Item provider.Item
	Err  error
}
