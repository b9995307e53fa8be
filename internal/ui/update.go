package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"cms-browser/internal/browse"
	"cms-browser/internal/provider"
)

// ---------- Update ----------
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.mode != inputNone {
			return m.handleInputKey(msg)
		}
		return m.handleBrowseKey(msg.String())

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		// header, breadcrumbs, dividers, status and help
		const chrome = 9
		m.viewport.Width = m.width
		m.viewport.Height = max(3, m.height-chrome)
		m.refreshViewport()
		return m, nil

	case browse.BrowseResultMsg:
		cmd := m.coord.Update(msg)
		m.sync(true)
		m.refreshViewport()
		return m, cmd

	case browse.UploadResultMsg:
		cmd := m.coord.Update(msg)
		m.sync(false)
		if sel := m.sess.SelectedItem; sel != nil && sel.Uploaded && m.sess.Request.Err == nil {
			m.statusMsg = "Uploaded " + sel.Label
		}
		m.refreshViewport()
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	return m, tea.Quit
}

func (m Model) handleBrowseKey(key string) (tea.Model, tea.Cmd) {
	items := m.shown()
	var cmd tea.Cmd

	switch key {
	case "q":
		return m.quit()
	case "esc":
		if m.sess.Request.Type == browse.RequestSearch {
			m.coord.Search("")
			m.sync(false)
			break
		}
		return m.quit()
	case "j", "down":
		if m.cursor < len(items)-1 {
			m.cursor++
			m.selectCursor(items)
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
			m.selectCursor(items)
		}
	case "enter":
		if len(items) == 0 {
			break
		}
		it := items[m.cursor]
		if it.IsFolder() {
			cmd = m.coord.RefreshItems(m.coord.BrowseContextID(), it, false)
			m.sync(false)
			break
		}
		m.selectCursor(items)
		return m.submit()
	case "backspace":
		if h := m.sess.HierarchyItems; len(h) > 1 {
			cmd = m.coord.RefreshItems(m.coord.BrowseContextID(), h[len(h)-2], false)
			m.sync(false)
		}
	case "r":
		folder, ok := m.sess.CurrentFolder()
		if !ok {
			folder = provider.Item{}
		}
		cmd = m.coord.RefreshItems(m.coord.BrowseContextID(), folder, true)
		m.sync(false)
	case "v":
		mode := browse.ViewGrid
		if m.sess.ViewMode == browse.ViewGrid {
			mode = browse.ViewList
		}
		m.coord.OnViewModeChange(mode)
		m.sync(false)
	case "/":
		m.mode = inputSearch
		m.input.Placeholder = "search this folder"
		m.input.SetValue(m.sess.Request.Query)
		m.input.Focus()
	case "u":
		m.mode = inputUpload
		m.input.Placeholder = "path of the file to upload"
		m.input.SetValue("")
		m.input.Focus()
	case "s":
		return m.submit()
	}

	m.refreshViewport()
	return m, cmd
}

func (m *Model) selectCursor(items []provider.Item) {
	if m.cursor < 0 || m.cursor >= len(items) {
		return
	}
	it := items[m.cursor]
	m.coord.OnItemSelect(&it)
	m.sess = m.coord.Snapshot()
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	data, ok := m.coord.SubmitData()
	if !ok {
		m.statusMsg = "Select a file to submit."
		return m, nil
	}
	m.submitted = data
	return m.quit()
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.mode == inputSearch {
			m.coord.Search("")
			m.sync(false)
		}
		m.mode = inputNone
		m.input.Blur()
		m.refreshViewport()
		return m, nil

	case "enter":
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = inputNone
		m.input.Blur()
		if mode == inputSearch {
			m.refreshViewport()
			return m, nil
		}
		if value == "" {
			return m, nil
		}
		f, err := m.readFile(value)
		if err != nil {
			m.statusMsg = err.Error()
			return m, nil
		}
		m.statusMsg = ""
		cmd := m.coord.OnUploadFileSelect(m.coord.BrowseContextID(), []provider.File{f}, m.coord.UploadMessages())
		m.sync(false)
		return m, closeAfter(f, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.mode == inputSearch {
		m.coord.Search(m.input.Value())
		m.cursor = 0
		m.sync(false)
		m.refreshViewport()
	}
	return m, cmd
}

// refreshViewport re-renders the item list into the viewport and scrolls
// the cursor into view.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderItems())
	m.ensureCursorInViewport(m.cursorLine())
}
