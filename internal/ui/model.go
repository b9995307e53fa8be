package ui

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"cms-browser/internal/browse"
	"cms-browser/internal/provider"
)

// --- Model / State ---
type inputMode int

const (
	inputNone inputMode = iota
	inputSearch
	inputUpload
)

// Model renders one browse coordinator and forwards key presses to it.
type Model struct {
	coord   *browse.Coordinator
	initial tea.Cmd
	title   string

	sess   browse.Session
	cursor int

	viewport viewport.Model
	spinner  spinner.Model
	input    textinput.Model
	mode     inputMode

	width, height int
	statusMsg     string

	submitted map[string]string
	quitting  bool

	// readFile loads a file picked for upload.
	readFile func(path string) (provider.File, error)
}

// New returns a model for c. initial is the command returned by browse.Open.
func New(c *browse.Coordinator, title string, initial tea.Cmd) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ti := textinput.New()
	ti.CharLimit = 256

	vp := viewport.New(80, 15)

	return Model{
		coord:    c,
		initial:  initial,
		title:    title,
		sess:     c.Snapshot(),
		viewport: vp,
		spinner:  sp,
		input:    ti,
		readFile: readLocalFile,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.initial)
}

// Submitted returns the submit data when the user confirmed a selection.
func (m Model) Submitted() (map[string]string, bool) {
	return m.submitted, m.submitted != nil
}

// readLocalFile opens path for upload. Size comes from a stat so oversized
// files are rejected without being read; the caller closes Body.
func readLocalFile(path string) (provider.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return provider.File{}, fmt.Errorf("read %s: %w", path, err)
	}
	if info.IsDir() {
		return provider.File{}, fmt.Errorf("read %s: is a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return provider.File{}, fmt.Errorf("read %s: %w", path, err)
	}
	return provider.File{
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Body:        f,
	}, nil
}

// closeAfter closes the body of f once cmd has run, or right away when
// there is nothing to run.
func closeAfter(f provider.File, cmd tea.Cmd) tea.Cmd {
	c, ok := f.Body.(io.Closer)
	if !ok {
		return cmd
	}
	if cmd == nil {
		_ = c.Close()
		return nil
	}
	return func() tea.Msg {
		defer c.Close()
		return cmd()
	}
}

// shown returns the items currently listed.
func (m Model) shown() []provider.Item { return m.sess.Shown() }

// sync copies the coordinator state and keeps the cursor in range.
// After a browse the cursor jumps to the selected item.
func (m *Model) sync(afterBrowse bool) {
	m.sess = m.coord.Snapshot()
	items := m.shown()
	if afterBrowse {
		m.cursor = 0
		if sel := m.sess.SelectedItem; sel != nil {
			for i, it := range items {
				if it.ID == sel.ID {
					m.cursor = i
					break
				}
			}
		}
	}
	if m.cursor > len(items)-1 {
		m.cursor = len(items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) gridColumns() int {
	cols := m.width / (gridCellWidth + 4)
	if cols < 1 {
		cols = 1
	}
	return cols
}

// cursorLine returns the content line the cursor is rendered on.
func (m Model) cursorLine() int {
	if m.sess.ViewMode == browse.ViewGrid {
		// every grid row is three lines tall because of the cell border
		return (m.cursor / m.gridColumns()) * 3
	}
	return m.cursor
}
