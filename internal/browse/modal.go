package browse

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"cms-browser/internal/metrics"
	"cms-browser/internal/provider"
)

// Modal describes one kind of browse dialog.
type Modal struct {
	Name           string
	ProviderName   string
	ViewMode       ViewMode
	SubmitKey      string
	UploadMessages UploadErrorMessages
	CanSubmit      func(*provider.Item) bool
}

var (
	DocumentModal = Modal{
		Name:         "document",
		ProviderName: provider.Documents,
		ViewMode:     ViewList,
		SubmitKey:    "remoteDocumentId",
		CanSubmit:    canSubmitFile,
	}
	DocumentTemplateModal = Modal{
		Name:         "document-template",
		ProviderName: provider.DocumentTemplates,
		ViewMode:     ViewList,
		SubmitKey:    "remoteDocumentId",
		CanSubmit:    canSubmitFile,
	}
	ImageModal = Modal{
		Name:         "image",
		ProviderName: provider.Images,
		ViewMode:     ViewGrid,
		SubmitKey:    "selectedImageId",
		UploadMessages: UploadErrorMessages{
			FileSizeTooLarge: "This image is larger than 4 megabyte, please select another image or resize it and try again.",
			ServerError:      "Can't upload this image, please try again.",
		},
		CanSubmit: canSubmitFile,
	}
	AttachmentModal = Modal{
		Name:         "attachment",
		ProviderName: provider.Attachments,
		ViewMode:     ViewGrid,
		SubmitKey:    "selectedAttachmentId",
		UploadMessages: UploadErrorMessages{
			FileSizeTooLarge: "This attachment is larger than 4 megabyte, please select another attachment or resize it and try again.",
			ServerError:      "Can't upload this attachment, please try again.",
		},
		CanSubmit: canSubmitFile,
	}
)

// Modals lists the built-in dialogs by name.
var Modals = map[string]Modal{
	DocumentModal.Name:         DocumentModal,
	DocumentTemplateModal.Name: DocumentTemplateModal,
	ImageModal.Name:            ImageModal,
	AttachmentModal.Name:       AttachmentModal,
}

// OpenOptions are the inputs a host passes when opening a modal.
type OpenOptions struct {
	BrowseContextID string
	SelectedID      string
	// ProviderName overrides the modal's default provider.
	ProviderName string

	OnChange func(Session)
	Metrics  *metrics.Recorder
}

// Open creates the coordinator for modal and returns the command for the
// initial root browse. A SelectedID becomes the initial selection hint.
func Open(reg *provider.Registry, modal Modal, o OpenOptions) (*Coordinator, tea.Cmd, error) {
	name := modal.ProviderName
	if o.ProviderName != "" {
		name = o.ProviderName
	}
	c, err := New(reg, name, Options{
		ViewMode:  modal.ViewMode,
		OnChange:  o.OnChange,
		CanSubmit: modal.CanSubmit,
		Metrics:   o.Metrics,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s modal: %w", modal.Name, err)
	}
	c.modal = modal
	c.contextID = o.BrowseContextID
	if o.SelectedID != "" {
		c.OnInitialSelectedItemIDChange(provider.Item{ID: o.SelectedID})
	}
	return c, c.RefreshItems(o.BrowseContextID, c.provider.RootHierarchyItem(), false), nil
}

// BrowseContextID returns the context the modal was opened with.
func (c *Coordinator) BrowseContextID() string { return c.contextID }

// UploadMessages returns the upload texts of the modal.
func (c *Coordinator) UploadMessages() UploadErrorMessages { return c.modal.UploadMessages.withDefaults() }

// SubmitData returns the data handed to the host for the current selection,
// or false when the selection cannot be submitted.
func (c *Coordinator) SubmitData() (map[string]string, bool) {
	sel := c.sess.SelectedItem
	if c.sess.SubmitDisabled || sel == nil {
		return nil, false
	}
	key := c.modal.SubmitKey
	if key == "" {
		key = "id"
	}
	return map[string]string{key: sel.ID}, true
}
