package provider

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config describes one registered asset type.
type Config struct {
	Name                     string     `toml:"name"`
	AssetTypes               []string   `toml:"asset_types"`
	ResultTypes              []ItemType `toml:"result_types"`
	RootFolderLabel          string     `toml:"root_folder_label"`
	UploadAssetType          string     `toml:"upload_asset_type"`
	UploadMimeTypesToAccept  string     `toml:"upload_mime_types_to_accept"`
	UploadMaxFileSizeInBytes int64      `toml:"upload_max_file_size_in_bytes"`
}

// CanUpload reports whether the asset type accepts uploads.
func (c Config) CanUpload() bool { return c.UploadAssetType != "" }

// RootItem returns the root folder node for this asset type.
func (c Config) RootItem() Item {
	return Item{ID: "", Label: c.RootFolderLabel, Type: TypeFolder}
}

const (
	DefaultUploadMimeTypes    = "image/*"
	DefaultUploadMaxFileSize  = 12000000
	attachmentUploadMimeTypes = "application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document," +
		"application/acad,image/vnd.dwg,image/x-dwg,drawing/x-dwf,model/vnd.dwf,model/vnd.dwfx," +
		"application/excel,application/vnd.ms-excel,application/x-excel,application/x-msexcel," +
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet," +
		"application/mspowerpoint,application/powerpoint,application/vnd.ms-powerpoint,application/x-mspowerpoint," +
		"application/vnd.openxmlformats-officedocument.presentationml.presentation," +
		"application/pdf,application/rtf,application/x-rtf,text/richtext,application/xml,text/xml," +
		"application/x-compressed,application/x-zip-compressed,application/zip,multipart/x-zip"
)

// Names of the built-in asset type configurations.
const (
	Documents         = "dataProviderUsingConfiguredConnectorsForDocuments"
	DocumentTemplates = "dataProviderUsingConfiguredConnectorsForDocumentTemplates"
	DocumentFolders   = "dataProviderUsingConfiguredConnectorsForDocumentFolders"
	Images            = "dataProviderUsingConfiguredConnectorsForImages"
	Attachments       = "dataProviderUsingConfiguredConnectorsForAttachments"
	AttachmentFolders = "dataProviderUsingConfiguredConnectorsForAttachmentFolders"
)

// DefaultConfigs returns the built-in asset type configurations.
func DefaultConfigs() []Config {
	return []Config{
		{Name: Documents, AssetTypes: []string{"document"}, ResultTypes: []ItemType{TypeFile, TypeFolder}, RootFolderLabel: "Document library"},
		{Name: DocumentTemplates, AssetTypes: []string{"document-template"}, ResultTypes: []ItemType{TypeFile}, RootFolderLabel: "Templates"},
		{Name: DocumentFolders, AssetTypes: []string{"document"}, ResultTypes: []ItemType{TypeFolder}, RootFolderLabel: "Document library"},
		{
			Name: Images, AssetTypes: []string{"image"}, ResultTypes: []ItemType{TypeFile, TypeFolder}, RootFolderLabel: "Image library",
			UploadAssetType: "image", UploadMimeTypesToAccept: DefaultUploadMimeTypes, UploadMaxFileSizeInBytes: DefaultUploadMaxFileSize,
		},
		{
			Name: Attachments, AssetTypes: []string{"attachment"}, ResultTypes: []ItemType{TypeFile, TypeFolder}, RootFolderLabel: "Attachments",
			UploadAssetType: "file", UploadMimeTypesToAccept: attachmentUploadMimeTypes, UploadMaxFileSizeInBytes: DefaultUploadMaxFileSize,
		},
		{Name: AttachmentFolders, AssetTypes: []string{"attachment"}, ResultTypes: []ItemType{TypeFolder}, RootFolderLabel: "Attachments"},
	}
}

type configFile struct {
	Provider []Config `toml:"provider"`
}

// LoadConfigs reads asset type configurations from a TOML file with
// [[provider]] blocks. Entries override built-in ones by name; a missing
// file yields the built-in set.
func LoadConfigs(path string) ([]Config, error) {
	defaults := DefaultConfigs()
	if path == "" {
		return defaults, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaults, nil
	}
	if err != nil {
		return defaults, fmt.Errorf("read provider config: %w", err)
	}
	var f configFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return defaults, fmt.Errorf("parse provider config %s: %w", path, err)
	}

	byName := make(map[string]int, len(defaults))
	for i, c := range defaults {
		byName[c.Name] = i
	}
	for _, c := range f.Provider {
		if c.Name == "" {
			return defaults, fmt.Errorf("parse provider config %s: provider without name", path)
		}
		if c.CanUpload() && c.UploadMaxFileSizeInBytes <= 0 {
			c.UploadMaxFileSizeInBytes = DefaultUploadMaxFileSize
		}
		if c.CanUpload() && c.UploadMimeTypesToAccept == "" {
			c.UploadMimeTypesToAccept = DefaultUploadMimeTypes
		}
		if i, ok := byName[c.Name]; ok {
			defaults[i] = c
			continue
		}
		byName[c.Name] = len(defaults)
		defaults = append(defaults, c)
	}
	return defaults, nil
}

// Registry maps provider names to data providers. It replaces a
// process-wide table: callers build one and hand it to coordinators.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]DataProvider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]DataProvider)}
}

// Set registers p under name, replacing any previous registration.
func (r *Registry) Set(name string, p DataProvider) {
	r.mu.Lock()
	r.providers[name] = p
	r.mu.Unlock()
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (DataProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
