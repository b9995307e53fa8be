// Package connector implements provider.DataProvider on top of the CMS
// connector HTTP API.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	cms "cms-browser/internal/connector"
	"cms-browser/internal/infra/logx"
	"cms-browser/internal/provider"
	"cms-browser/internal/store"
)

// Client is the subset of the connector client the provider needs.
type Client interface {
	Browse(ctx context.Context, req cms.BrowseRequest) (cms.BrowseResponse, error)
	Upload(ctx context.Context, assetType, folderID string, f provider.File) (provider.Item, error)
}

// fetchTimeout bounds a shared folder fetch. The fetch outlives the caller
// that started it so that callers joining the flight are not cancelled with it.
const fetchTimeout = time.Minute

type cacheKey struct {
	contextID string
	folderID  string
}

// folderListing is a fetched folder. When the server sent no hierarchy
// the trail is derived per caller, so only the items are kept.
type folderListing struct {
	items     []provider.Item
	hierarchy []provider.Item
}

// Provider serves one asset type configuration.
type Provider struct {
	client Client
	cfg    provider.Config
	store  store.Store

	mu    sync.Mutex
	cache map[cacheKey]folderListing
	group singleflight.Group
}

var _ provider.DataProvider = (*Provider)(nil)

// New returns a provider for cfg. A nil st disables last opened state.
func New(client Client, cfg provider.Config, st store.Store) *Provider {
	return &Provider{
		client: client,
		cfg:    cfg,
		store:  st,
		cache:  make(map[cacheKey]folderListing),
	}
}

// Config returns the asset type configuration the provider serves.
func (p *Provider) Config() provider.Config { return p.cfg }

func (p *Provider) RootHierarchyItem() provider.Item { return p.cfg.RootItem() }

func (p *Provider) UploadOptions() provider.UploadOptions {
	return provider.UploadOptions{
		MaxFileSizeInBytes: p.cfg.UploadMaxFileSizeInBytes,
		MimeTypesToAccept:  p.cfg.UploadMimeTypesToAccept,
	}
}

// GetFolderContents returns the items of folder. Results are cached per
// browse context and folder; noCache forces a fetch and replaces the entry.
// Cancelling ctx abandons the wait but not a fetch other callers share.
func (p *Provider) GetFolderContents(ctx context.Context, browseContextID string, folder provider.Item, noCache bool, trail []provider.Item) (provider.BrowseResult, error) {
	key := cacheKey{contextID: browseContextID, folderID: folder.ID}
	if !noCache {
		p.mu.Lock()
		l, ok := p.cache[key]
		p.mu.Unlock()
		if ok {
			return p.result(l, folder, trail), nil
		}
	}

	ch := p.group.DoChan(browseContextID+"\x00"+folder.ID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return p.fetch(fctx, browseContextID, folder, trail)
	})
	select {
	case <-ctx.Done():
		return provider.BrowseResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return provider.BrowseResult{}, r.Err
		}
		l := r.Val.(folderListing)
		p.mu.Lock()
		p.cache[key] = l
		p.mu.Unlock()
		return p.result(l, folder, trail), nil
	}
}

// result copies l for one caller, deriving the trail from that caller's
// trail when the server did not send one.
func (p *Provider) result(l folderListing, folder provider.Item, trail []provider.Item) provider.BrowseResult {
	hierarchy := l.hierarchy
	if len(hierarchy) == 0 {
		hierarchy = provider.TrailTo(p.cfg.RootItem(), trail, folder)
	}
	return provider.BrowseResult{
		Items:          append([]provider.Item(nil), l.items...),
		HierarchyItems: append([]provider.Item(nil), hierarchy...),
	}
}

func (p *Provider) fetch(ctx context.Context, browseContextID string, folder provider.Item, trail []provider.Item) (folderListing, error) {
	req := cms.BrowseRequest{
		AssetTypes:     p.cfg.AssetTypes,
		ResultTypes:    p.cfg.ResultTypes,
		HierarchyItems: trail,
	}
	if !folder.IsRoot() {
		id := folder.ID
		req.FolderID = &id
	}
	if browseContextID != "" {
		id := browseContextID
		req.BrowseContextDocumentID = &id
	}

	resp, err := p.client.Browse(ctx, req)
	if err != nil {
		return folderListing{}, fmt.Errorf("browse %s: %w", p.cfg.Name, err)
	}

	root := p.cfg.RootItem()
	hierarchy := resp.HierarchyItems
	switch {
	case len(hierarchy) == 0:
	case !hierarchy[0].IsRoot():
		hierarchy = append([]provider.Item{root}, hierarchy...)
	case hierarchy[0].Label == "":
		hierarchy = append([]provider.Item(nil), hierarchy...)
		hierarchy[0].Label = root.Label
	}

	logx.Debugw("connector browse",
		zap.String("provider", p.cfg.Name),
		zap.String("folder", folder.ID),
		zap.Int("items", len(resp.Items)),
		zap.Bool("server_trail", len(hierarchy) > 0),
	)
	return folderListing{
		items:     provider.Filter(resp.Items, p.cfg.ResultTypes),
		hierarchy: hierarchy,
	}, nil
}

// Upload sends the first file to folderID. Further files are ignored.
func (p *Provider) Upload(ctx context.Context, folderID string, files []provider.File) (provider.Item, error) {
	if !p.cfg.CanUpload() {
		return provider.Item{}, fmt.Errorf("%s: %w", p.cfg.Name, provider.ErrUploadUnsupported)
	}
	if len(files) == 0 {
		return provider.Item{}, errors.New("upload: no files")
	}
	item, err := p.client.Upload(ctx, p.cfg.UploadAssetType, folderID, files[0])
	if err != nil {
		return provider.Item{}, fmt.Errorf("%w: %w", provider.ErrUploadServer, err)
	}

	p.mu.Lock()
	for k := range p.cache {
		if k.folderID == folderID {
			delete(p.cache, k)
		}
	}
	p.mu.Unlock()
	return item, nil
}

func (p *Provider) LastOpenedState() (provider.LastOpenedState, bool) {
	if p.store == nil {
		return provider.LastOpenedState{}, false
	}
	st, ok, err := p.store.Load(p.cfg.Name)
	if err != nil {
		logx.Warnf("last opened state %s: %v", p.cfg.Name, err)
		return provider.LastOpenedState{}, false
	}
	return st, ok
}

func (p *Provider) StoreLastOpenedState(hierarchy []provider.Item, selected *provider.Item) error {
	if p.store == nil {
		return nil
	}
	return p.store.Save(p.cfg.Name, provider.LastOpenedState{HierarchyItems: hierarchy, SelectedItem: selected})
}
