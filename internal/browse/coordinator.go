// Package browse coordinates the browse, select and upload state of one
// asset browser modal.
//
// Operations mutate the session synchronously and return a tea.Cmd that
// performs the provider call. The message the command produces must be fed
// back through Update on the same goroutine that calls the operations, so
// all state changes happen on one event loop.
package browse

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cms-browser/internal/infra/logx"
	"cms-browser/internal/metrics"
	"cms-browser/internal/provider"
)

// Options configure a Coordinator. All fields are optional.
type Options struct {
	ViewMode ViewMode

	// OnChange receives a snapshot after every state change.
	OnChange func(Session)
	// OnSelectionChange is told about every new selection, including nil,
	// so the host can update its submit button.
	OnSelectionChange func(*provider.Item)
	// CanSubmit decides SubmitDisabled. Defaults to "a non-folder is selected".
	CanSubmit func(*provider.Item) bool

	Metrics *metrics.Recorder
	// Context is the parent of every provider call. Defaults to Background.
	Context context.Context
	Now     func() time.Time
}

// Coordinator owns the Session of one modal and its provider handle.
type Coordinator struct {
	provider provider.DataProvider
	name     string
	opts     Options
	sess     Session
	alive    atomic.Bool

	modal     Modal
	contextID string

	ctx    context.Context
	cancel context.CancelFunc

	browseSeq    uint64
	browseCtx    context.Context
	browseCancel context.CancelFunc
	uploadSeq    uint64
}

// New creates a coordinator for the provider registered under providerName.
func New(reg *provider.Registry, providerName string, opts Options) (*Coordinator, error) {
	if reg == nil {
		return nil, fmt.Errorf("browse: %w: no registry", provider.ErrUnknownProvider)
	}
	p, err := reg.Get(providerName)
	if err != nil {
		return nil, fmt.Errorf("browse: %w", err)
	}
	if opts.ViewMode == "" {
		opts.ViewMode = ViewList
	}
	if opts.CanSubmit == nil {
		opts.CanSubmit = canSubmitFile
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	parent := opts.Context
	if parent == nil {
		parent = context.Background()
	}

	c := &Coordinator{provider: p, name: providerName, opts: opts}
	c.ctx, c.cancel = context.WithCancel(parent)
	c.sess = Session{
		ID:                     uuid.NewString(),
		CachedErrorByRemoteID:  map[string]error{},
		AssetFolderByContextID: map[string]provider.Item{},
		ViewMode:               opts.ViewMode,
		SubmitDisabled:         !opts.CanSubmit(nil),
	}
	c.alive.Store(true)
	return c, nil
}

func canSubmitFile(it *provider.Item) bool {
	return it != nil && !it.IsFolder()
}

// Snapshot returns the current session.
func (c *Coordinator) Snapshot() Session { return c.sess }

// Alive reports whether the coordinator has not been torn down.
func (c *Coordinator) Alive() bool { return c.alive.Load() }

// ProviderName returns the registry name of the provider in use.
func (c *Coordinator) ProviderName() string { return c.name }

// UploadOptions passes through the provider's upload constraints.
func (c *Coordinator) UploadOptions() provider.UploadOptions { return c.provider.UploadOptions() }

// LastOpenedState passes through the provider's persisted state.
func (c *Coordinator) LastOpenedState() (provider.LastOpenedState, bool) {
	return c.provider.LastOpenedState()
}

func (c *Coordinator) emit() {
	if c.opts.OnChange != nil {
		c.opts.OnChange(c.sess)
	}
}

// ---------- Browse ----------

// RefreshItems loads folder for browseContextID. Any browse still in flight
// is cancelled and its result will be dropped.
func (c *Coordinator) RefreshItems(browseContextID string, folder provider.Item, noCache bool) tea.Cmd {
	if !c.Alive() {
		return nil
	}
	if c.browseCancel != nil {
		c.browseCancel()
	}
	c.browseSeq++
	c.browseCtx, c.browseCancel = context.WithCancel(c.ctx)

	c.sess.Request = Request{Type: RequestBrowse, Busy: true}
	c.emit()
	return c.browseCmd(c.browseCtx, c.browseSeq, browseContextID, folder, noCache, c.sess.HierarchyItems, false)
}

func (c *Coordinator) browseCmd(ctx context.Context, seq uint64, contextID string, folder provider.Item, noCache bool, trail []provider.Item, fallback bool) tea.Cmd {
	p := c.provider
	sessionID := c.sess.ID
	now := c.opts.Now
	return func() tea.Msg {
		started := now()
		res, err := p.GetFolderContents(ctx, contextID, folder, noCache, trail)
		return BrowseResultMsg{
			SessionID: sessionID,
			Seq:       seq,
			ContextID: contextID,
			Folder:    folder,
			Fallback:  fallback,
			Started:   started,
			Result:    res,
			Err:       err,
		}
	}
}

func (c *Coordinator) applyBrowse(m BrowseResultMsg) tea.Cmd {
	if !c.Alive() {
		logx.Debugw("browse result after teardown dropped", zap.String("session", m.SessionID))
		return nil
	}
	if m.Seq != c.browseSeq {
		c.opts.Metrics.Stale("browse")
		logx.Debugw("stale browse result dropped", zap.Uint64("seq", m.Seq), zap.Uint64("current", c.browseSeq))
		return nil
	}
	took := c.opts.Now().Sub(m.Started)

	if m.Err != nil {
		if provider.IsNotFound(m.Err) && !m.Fallback {
			c.opts.Metrics.Browse(metrics.OutcomeNotFound, took)
			c.opts.Metrics.RootFallback()
			logx.Infow("folder not found, browsing root", zap.String("provider", c.name), zap.String("folder", m.Folder.ID))
			return c.browseCmd(c.browseCtx, m.Seq, m.ContextID, c.provider.RootHierarchyItem(), false, nil, true)
		}
		c.opts.Metrics.Browse(metrics.OutcomeError, took)
		logx.Warnw("browse failed", zap.String("provider", c.name), zap.String("folder", m.Folder.ID), zap.Error(m.Err))
		c.sess.HierarchyItems = []provider.Item{c.provider.RootHierarchyItem()}
		c.sess.Request = Request{Type: RequestBrowse, Err: &provider.BrowseError{FolderID: m.Folder.ID, Err: m.Err}}
		c.setSelected(nil)
		c.browseCancel()
		c.emit()
		return nil
	}

	hierarchy := m.Result.HierarchyItems
	if len(hierarchy) == 0 {
		hierarchy = []provider.Item{c.provider.RootHierarchyItem()}
	}

	if m.ContextID != "" && m.Folder.IsRoot() {
		for _, it := range m.Result.Items {
			if it.Label == "assets" && it.IsFolder() {
				folders := make(map[string]provider.Item, len(c.sess.AssetFolderByContextID)+1)
				for k, v := range c.sess.AssetFolderByContextID {
					folders[k] = v
				}
				folders[m.ContextID] = it
				c.sess.AssetFolderByContextID = folders
				break
			}
		}
	}

	var selected *provider.Item
	if last := hierarchy[len(hierarchy)-1]; !last.IsRoot() {
		selected = &last
	}
	if hint := c.sess.InitialSelectedItem; hint != nil && hint.ID != "" {
		for _, it := range m.Result.Items {
			if it.ID == hint.ID {
				merged := it.Merge(*hint)
				selected = &merged
				break
			}
		}
	}

	c.sess.Items = m.Result.Items
	c.sess.HierarchyItems = hierarchy
	c.sess.Request = Request{}
	c.sess.VisibleItems = nil
	c.setSelected(selected)
	c.browseCancel()

	c.opts.Metrics.Browse(metrics.OutcomeOK, took)
	c.emit()
	return nil
}

// ---------- Selection ----------

// OnItemSelect selects item, folders included. Selecting a file other than
// the hinted one drops the initial selection hint.
func (c *Coordinator) OnItemSelect(item *provider.Item) {
	if !c.Alive() {
		return
	}
	c.selectItem(item)
	c.emit()
}

func (c *Coordinator) selectItem(item *provider.Item) {
	c.setSelected(item)
	if item != nil && !item.IsFolder() {
		if hint := c.sess.InitialSelectedItem; hint == nil || hint.ID != item.ID {
			c.sess.InitialSelectedItem = nil
		}
	}
}

func (c *Coordinator) setSelected(item *provider.Item) {
	if item != nil {
		cp := *item
		item = &cp
	}
	c.sess.SelectedItem = item
	c.sess.SubmitDisabled = !c.opts.CanSubmit(item)
	if c.opts.OnSelectionChange != nil {
		c.opts.OnSelectionChange(item)
	}
}

// OnInitialSelectedItemIDChange records the one-shot selection hint used by
// the next browse results.
func (c *Coordinator) OnInitialSelectedItemIDChange(item provider.Item) {
	if !c.Alive() {
		return
	}
	c.sess.InitialSelectedItem = &item
	c.emit()
}

// ---------- Upload ----------

// OnUploadFileSelect uploads the first of files into the asset folder of
// browseContextID, or into the current folder when none is known.
func (c *Coordinator) OnUploadFileSelect(browseContextID string, files []provider.File, msgs UploadErrorMessages) tea.Cmd {
	if !c.Alive() || len(files) == 0 {
		return nil
	}
	msgs = msgs.withDefaults()
	file := files[0]

	if limit := c.provider.UploadOptions().MaxFileSizeInBytes; limit > 0 && file.Size > limit {
		c.opts.Metrics.Upload(metrics.OutcomeTooLarge)
		c.sess.Request = Request{
			Type:    RequestUpload,
			Err:     fmt.Errorf("%w: %d > %d bytes", provider.ErrUploadTooLarge, file.Size, limit),
			Message: msgs.FileSizeTooLarge,
		}
		c.emit()
		return nil
	}

	dest, ok := c.sess.AssetFolderByContextID[browseContextID]
	if !ok {
		dest, ok = c.sess.CurrentFolder()
		if !ok {
			dest = c.provider.RootHierarchyItem()
		}
	}

	c.uploadSeq++
	seq := c.uploadSeq
	c.sess.Request = Request{Type: RequestUpload, Busy: true}
	c.emit()

	p, ctx, sessionID := c.provider, c.ctx, c.sess.ID
	return func() tea.Msg {
		item, err := p.Upload(ctx, dest.ID, files[:1])
		return UploadResultMsg{SessionID: sessionID, Seq: seq, File: file, Messages: msgs, Item: item, Err: err}
	}
}

func (c *Coordinator) applyUpload(m UploadResultMsg) {
	if !c.Alive() {
		logx.Debugw("upload result after teardown dropped", zap.String("session", m.SessionID))
		return
	}
	if m.Seq != c.uploadSeq {
		c.opts.Metrics.Stale("upload")
		logx.Debugw("stale upload result dropped", zap.Uint64("seq", m.Seq), zap.Uint64("current", c.uploadSeq))
		return
	}

	if m.Err != nil {
		c.opts.Metrics.Upload(metrics.OutcomeError)
		logx.Warnw("upload failed", zap.String("provider", c.name), zap.String("file", m.File.Name), zap.Error(m.Err))
		err := m.Err
		if !errors.Is(err, provider.ErrUploadServer) {
			err = fmt.Errorf("%w: %w", provider.ErrUploadServer, err)
		}
		c.sess.Request = Request{Type: RequestUpload, Err: err, Message: m.Messages.ServerError}
		c.emit()
		return
	}

	file := m.File
	item := m.Item
	item.Uploaded = true
	item.File = &file
	c.selectItem(&item)
	if c.sess.Request.Type == RequestUpload {
		c.sess.Request = Request{}
	}
	c.opts.Metrics.Upload(metrics.OutcomeOK)
	c.emit()
}

// ---------- Lazy item errors ----------

// OnItemIsErrored caches a lazy load failure for id.
func (c *Coordinator) OnItemIsErrored(id string, err error) {
	if !c.Alive() {
		return
	}
	cached := make(map[string]error, len(c.sess.CachedErrorByRemoteID)+1)
	for k, v := range c.sess.CachedErrorByRemoteID {
		cached[k] = v
	}
	cached[id] = &provider.ItemLoadError{ID: id, Err: err}
	c.sess.CachedErrorByRemoteID = cached
	c.emit()
}

// OnItemIsLoaded clears the cached error for id. Without one it changes nothing.
func (c *Coordinator) OnItemIsLoaded(id string) {
	if !c.Alive() {
		return
	}
	if _, ok := c.sess.CachedErrorByRemoteID[id]; !ok {
		return
	}
	cached := make(map[string]error, len(c.sess.CachedErrorByRemoteID))
	for k, v := range c.sess.CachedErrorByRemoteID {
		if k != id {
			cached[k] = v
		}
	}
	c.sess.CachedErrorByRemoteID = cached
	c.emit()
}

// IsItemErrored reports whether a lazy load of item failed.
func (c *Coordinator) IsItemErrored(item provider.Item) bool {
	_, ok := c.sess.CachedErrorByRemoteID[item.ID]
	return ok
}

// OnViewModeChange switches between list and grid.
func (c *Coordinator) OnViewModeChange(mode ViewMode) {
	if !c.Alive() {
		return
	}
	c.sess.ViewMode = mode
	c.emit()
}

// ---------- Event loop ----------

// Update applies a provider completion. Unknown messages and messages of
// other sessions are ignored.
func (c *Coordinator) Update(msg tea.Msg) tea.Cmd {
	switch m := msg.(type) {
	case BrowseResultMsg:
		if m.SessionID != c.sess.ID {
			return nil
		}
		return c.applyBrowse(m)
	case UploadResultMsg:
		if m.SessionID != c.sess.ID {
			return nil
		}
		c.applyUpload(m)
	}
	return nil
}

// Teardown stores the last opened state, cancels in-flight provider calls
// and turns every later completion into a no-op. Calling it twice is safe.
func (c *Coordinator) Teardown() error {
	if !c.alive.CompareAndSwap(true, false) {
		return nil
	}
	c.cancel()
	if err := c.provider.StoreLastOpenedState(c.sess.HierarchyItems, c.sess.SelectedItem); err != nil {
		return fmt.Errorf("store last opened state: %w", err)
	}
	return nil
}
