package connector

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cms "cms-browser/internal/connector"
	"cms-browser/internal/provider"
	"cms-browser/internal/store"
)

type fakeClient struct {
	mu       sync.Mutex
	browseFn func(req cms.BrowseRequest) (cms.BrowseResponse, error)
	requests []cms.BrowseRequest
	calls    atomic.Int32
	gate     chan struct{}

	uploads   []string
	uploadErr error
}

func (f *fakeClient) Browse(ctx context.Context, req cms.BrowseRequest) (cms.BrowseResponse, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return cms.BrowseResponse{}, ctx.Err()
		}
	}
	return f.browseFn(req)
}

func (f *fakeClient) Upload(ctx context.Context, assetType, folderID string, file provider.File) (provider.Item, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, assetType+":"+folderID+":"+file.Name)
	f.mu.Unlock()
	if f.uploadErr != nil {
		return provider.Item{}, f.uploadErr
	}
	return provider.Item{ID: "new", Label: file.Name, Type: provider.TypeFile}, nil
}

func attachmentsConfig() provider.Config {
	for _, c := range provider.DefaultConfigs() {
		if c.Name == provider.Attachments {
			return c
		}
	}
	panic("no attachments config")
}

func listing(items ...provider.Item) func(cms.BrowseRequest) (cms.BrowseResponse, error) {
	return func(cms.BrowseRequest) (cms.BrowseResponse, error) {
		return cms.BrowseResponse{Items: items, TotalItemCount: len(items)}, nil
	}
}

func TestGetFolderContentsBuildsRequest(t *testing.T) {
	fc := &fakeClient{browseFn: listing(provider.Item{ID: "A1", Type: provider.TypeFile})}
	p := New(fc, attachmentsConfig(), nil)

	folder := provider.Item{ID: "f1", Label: "one", Type: provider.TypeFolder}
	if _, err := p.GetFolderContents(context.Background(), "doc-1", folder, false, nil); err != nil {
		t.Fatalf("GetFolderContents returned error: %v", err)
	}
	req := fc.requests[0]
	if req.FolderID == nil || *req.FolderID != "f1" {
		t.Fatalf("expected folder id f1, got %v", req.FolderID)
	}
	if req.BrowseContextDocumentID == nil || *req.BrowseContextDocumentID != "doc-1" {
		t.Fatalf("expected context id doc-1, got %v", req.BrowseContextDocumentID)
	}
	if len(req.AssetTypes) != 1 || req.AssetTypes[0] != "attachment" {
		t.Fatalf("unexpected asset types: %v", req.AssetTypes)
	}

	// root browse without context sends nulls
	if _, err := p.GetFolderContents(context.Background(), "", provider.Item{}, false, nil); err != nil {
		t.Fatalf("GetFolderContents returned error: %v", err)
	}
	if req := fc.requests[1]; req.FolderID != nil || req.BrowseContextDocumentID != nil {
		t.Fatalf("expected nil ids for root browse, got %+v", req)
	}
}

func TestGetFolderContentsDerivesTrail(t *testing.T) {
	fc := &fakeClient{browseFn: listing()}
	p := New(fc, attachmentsConfig(), nil)
	root := p.RootHierarchyItem()
	one := provider.Item{ID: "f1", Label: "one", Type: provider.TypeFolder}
	two := provider.Item{ID: "f2", Label: "two", Type: provider.TypeFolder}

	res, err := p.GetFolderContents(context.Background(), "", two, false, []provider.Item{root, one})
	if err != nil {
		t.Fatalf("GetFolderContents returned error: %v", err)
	}
	if len(res.HierarchyItems) != 3 || res.HierarchyItems[0].Label != "Attachments" || res.HierarchyItems[2].ID != "f2" {
		t.Fatalf("unexpected trail: %+v", res.HierarchyItems)
	}

	res, _ = p.GetFolderContents(context.Background(), "", one, true, []provider.Item{root, one, two})
	if len(res.HierarchyItems) != 2 || res.HierarchyItems[1].ID != "f1" {
		t.Fatalf("expected trail cut at f1, got %+v", res.HierarchyItems)
	}
}

func TestGetFolderContentsKeepsServerTrail(t *testing.T) {
	fc := &fakeClient{browseFn: func(cms.BrowseRequest) (cms.BrowseResponse, error) {
		return cms.BrowseResponse{HierarchyItems: []provider.Item{
			{ID: "", Type: provider.TypeFolder},
			{ID: "x", Label: "jumped", Type: provider.TypeFolder},
		}}, nil
	}}
	p := New(fc, attachmentsConfig(), nil)
	res, err := p.GetFolderContents(context.Background(), "", provider.Item{ID: "f9", Type: provider.TypeFolder}, false, nil)
	if err != nil {
		t.Fatalf("GetFolderContents returned error: %v", err)
	}
	if len(res.HierarchyItems) != 2 || res.HierarchyItems[1].ID != "x" {
		t.Fatalf("expected server trail, got %+v", res.HierarchyItems)
	}
	if res.HierarchyItems[0].Label != "Attachments" {
		t.Fatalf("expected root label filled in, got %q", res.HierarchyItems[0].Label)
	}
}

func TestGetFolderContentsFiltersResultTypes(t *testing.T) {
	cfg := attachmentsConfig()
	cfg.ResultTypes = []provider.ItemType{provider.TypeFolder}
	fc := &fakeClient{browseFn: listing(
		provider.Item{ID: "a", Type: provider.TypeFile},
		provider.Item{ID: "b", Type: provider.TypeFolder},
	)}
	p := New(fc, cfg, nil)
	res, _ := p.GetFolderContents(context.Background(), "", provider.Item{}, false, nil)
	if len(res.Items) != 1 || res.Items[0].ID != "b" {
		t.Fatalf("expected only folders, got %+v", res.Items)
	}
}

func TestGetFolderContentsCachesUnlessNoCache(t *testing.T) {
	fc := &fakeClient{browseFn: listing(provider.Item{ID: "a", Type: provider.TypeFile})}
	p := New(fc, attachmentsConfig(), nil)
	ctx := context.Background()

	_, _ = p.GetFolderContents(ctx, "", provider.Item{}, false, nil)
	res, _ := p.GetFolderContents(ctx, "", provider.Item{}, false, nil)
	if got := fc.calls.Load(); got != 1 {
		t.Fatalf("expected cached second call, got %d browse calls", got)
	}
	res.Items[0].ID = "mutated"

	_, _ = p.GetFolderContents(ctx, "", provider.Item{}, true, nil)
	if got := fc.calls.Load(); got != 2 {
		t.Fatalf("expected noCache to fetch, got %d browse calls", got)
	}
	again, _ := p.GetFolderContents(ctx, "", provider.Item{}, false, nil)
	if again.Items[0].ID != "a" {
		t.Fatalf("cache shares slices with callers")
	}

	// separate context is a separate entry
	_, _ = p.GetFolderContents(ctx, "doc-2", provider.Item{}, false, nil)
	if got := fc.calls.Load(); got != 3 {
		t.Fatalf("expected per-context cache, got %d browse calls", got)
	}
}

func TestGetFolderContentsCollapsesConcurrentLoads(t *testing.T) {
	fc := &fakeClient{browseFn: listing(), gate: make(chan struct{})}
	p := New(fc, attachmentsConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.GetFolderContents(context.Background(), "", provider.Item{}, true, nil)
		}()
	}
	// let every goroutine join the flight before releasing it
	deadline := time.Now().Add(time.Second)
	for fc.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(fc.gate)
	wg.Wait()
	if got := fc.calls.Load(); got < 1 || got > 4 {
		t.Fatalf("unexpected browse calls: %d", got)
	}
}

func TestGetFolderContentsOutlivesCancelledStarter(t *testing.T) {
	fc := &fakeClient{browseFn: listing(provider.Item{ID: "B2", Type: provider.TypeFile}), gate: make(chan struct{})}
	p := New(fc, attachmentsConfig(), nil)
	folder := provider.Item{ID: "f1", Type: provider.TypeFolder}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.GetFolderContents(first, "", folder, true, nil)
		firstErr <- err
	}()
	deadline := time.Now().Add(time.Second)
	for fc.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	type outcome struct {
		res provider.BrowseResult
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := p.GetFolderContents(context.Background(), "", folder, true, nil)
		second <- outcome{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	// the superseded caller gives up; the shared fetch must carry on
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancelled caller to see context.Canceled, got %v", err)
	}
	close(fc.gate)

	got := <-second
	if got.err != nil {
		t.Fatalf("live caller failed: %v", got.err)
	}
	if len(got.res.Items) != 1 || got.res.Items[0].ID != "B2" {
		t.Fatalf("unexpected items: %+v", got.res.Items)
	}
}

func TestCachedFolderRederivesTrail(t *testing.T) {
	fc := &fakeClient{browseFn: listing()}
	p := New(fc, attachmentsConfig(), nil)
	root := p.RootHierarchyItem()
	one := provider.Item{ID: "f1", Label: "one", Type: provider.TypeFolder}
	other := provider.Item{ID: "f7", Label: "other", Type: provider.TypeFolder}
	two := provider.Item{ID: "f2", Label: "two", Type: provider.TypeFolder}
	ctx := context.Background()

	_, _ = p.GetFolderContents(ctx, "", two, false, []provider.Item{root, one})
	res, err := p.GetFolderContents(ctx, "", two, false, []provider.Item{root, other})
	if err != nil {
		t.Fatalf("GetFolderContents returned error: %v", err)
	}
	if fc.calls.Load() != 1 {
		t.Fatalf("expected the second visit served from cache, got %d calls", fc.calls.Load())
	}
	if len(res.HierarchyItems) != 3 || res.HierarchyItems[1].ID != "f7" {
		t.Fatalf("expected trail through f7, got %+v", res.HierarchyItems)
	}
}

func TestGetFolderContentsKeepsStatus(t *testing.T) {
	fc := &fakeClient{browseFn: func(cms.BrowseRequest) (cms.BrowseResponse, error) {
		return cms.BrowseResponse{}, &provider.StatusError{Op: "browse", Status: http.StatusNotFound}
	}}
	p := New(fc, attachmentsConfig(), nil)
	_, err := p.GetFolderContents(context.Background(), "", provider.Item{ID: "gone", Type: provider.TypeFolder}, false, nil)
	if !provider.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestUpload(t *testing.T) {
	fc := &fakeClient{browseFn: listing()}
	p := New(fc, attachmentsConfig(), nil)
	ctx := context.Background()
	_, _ = p.GetFolderContents(ctx, "", provider.Item{ID: "f1", Type: provider.TypeFolder}, false, nil)

	item, err := p.Upload(ctx, "f1", []provider.File{
		{Name: "a.pdf", Body: strings.NewReader("x")},
		{Name: "b.pdf", Body: strings.NewReader("y")},
	})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if item.ID != "new" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if len(fc.uploads) != 1 || fc.uploads[0] != "file:f1:a.pdf" {
		t.Fatalf("expected only the first file uploaded, got %v", fc.uploads)
	}

	// the folder listing is stale after an upload
	_, _ = p.GetFolderContents(ctx, "", provider.Item{ID: "f1", Type: provider.TypeFolder}, false, nil)
	if got := fc.calls.Load(); got != 2 {
		t.Fatalf("expected refetch after upload, got %d browse calls", got)
	}
}

func TestUploadErrors(t *testing.T) {
	fc := &fakeClient{browseFn: listing(), uploadErr: errors.New("boom")}
	p := New(fc, attachmentsConfig(), nil)
	_, err := p.Upload(context.Background(), "", []provider.File{{Name: "a"}})
	if !errors.Is(err, provider.ErrUploadServer) {
		t.Fatalf("expected ErrUploadServer, got %v", err)
	}

	cfg := attachmentsConfig()
	cfg.UploadAssetType = ""
	_, err = New(fc, cfg, nil).Upload(context.Background(), "", []provider.File{{Name: "a"}})
	if !errors.Is(err, provider.ErrUploadUnsupported) {
		t.Fatalf("expected ErrUploadUnsupported, got %v", err)
	}
}

func TestLastOpenedStateUsesStore(t *testing.T) {
	p := New(&fakeClient{browseFn: listing()}, attachmentsConfig(), store.NewMemory())
	if _, ok := p.LastOpenedState(); ok {
		t.Fatalf("expected no state")
	}
	sel := provider.Item{ID: "A1", Type: provider.TypeFile}
	if err := p.StoreLastOpenedState([]provider.Item{p.RootHierarchyItem()}, &sel); err != nil {
		t.Fatalf("StoreLastOpenedState returned error: %v", err)
	}
	st, ok := p.LastOpenedState()
	if !ok || st.SelectedItem == nil || st.SelectedItem.ID != "A1" {
		t.Fatalf("unexpected state: %+v ok=%v", st, ok)
	}

	if err := New(&fakeClient{}, attachmentsConfig(), nil).StoreLastOpenedState(nil, nil); err != nil {
		t.Fatalf("nil store should be a no-op, got %v", err)
	}
}

func TestUploadOptions(t *testing.T) {
	opts := New(&fakeClient{}, attachmentsConfig(), nil).UploadOptions()
	if opts.MaxFileSizeInBytes != provider.DefaultUploadMaxFileSize || !strings.Contains(opts.MimeTypesToAccept, "application/pdf") {
		t.Fatalf("unexpected upload options: %+v", opts)
	}
}
