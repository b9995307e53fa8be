package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"cms-browser/internal/browse"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("CMS Browser · " + m.title))
	b.WriteString("\n")
	b.WriteString(crumbStyle.Render(m.breadcrumbs()))
	b.WriteString("\n")
	b.WriteString(dividerStyle.Render(strings.Repeat("─", max(10, m.width-2))))
	b.WriteString("\n")

	if len(m.shown()) == 0 && !m.sess.Request.Busy {
		if m.sess.Request.Type == browse.RequestSearch {
			b.WriteString(subtleStyle.Render("No results.") + "\n")
		} else if m.sess.Request.Err == nil {
			b.WriteString(subtleStyle.Render("This folder is empty.") + "\n")
		}
	} else {
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
	}

	b.WriteString(dividerStyle.Render(strings.Repeat("─", max(10, m.width-2))))
	b.WriteString("\n")
	if line := m.requestLine(); line != "" {
		b.WriteString(line + "\n")
	}
	switch m.mode {
	case inputSearch:
		b.WriteString("/ " + m.input.View() + "\n")
		b.WriteString(helpStyle.Render("enter keep results  |  esc clear"))
	case inputUpload:
		b.WriteString("upload " + m.input.View() + "\n")
		b.WriteString(helpStyle.Render("enter upload  |  esc cancel"))
	default:
		b.WriteString(renderFooter(m.statusMsg,
			"j/k move  |  enter open/submit  |  backspace up  |  / search  |  u upload",
			"v list/grid  |  r reload  |  s submit  |  q cancel",
		))
	}
	return b.String()
}

func (m Model) breadcrumbs() string {
	if len(m.sess.HierarchyItems) == 0 {
		return "…"
	}
	labels := make([]string, 0, len(m.sess.HierarchyItems))
	for _, it := range m.sess.HierarchyItems {
		labels = append(labels, it.Label)
	}
	return strings.Join(labels, " / ")
}

func (m Model) requestLine() string {
	r := m.sess.Request
	switch {
	case r.Busy && r.Type == browse.RequestUpload:
		return m.spinner.View() + " Uploading…"
	case r.Busy:
		return m.spinner.View() + " Loading…"
	case r.Err != nil:
		msg := r.Message
		if msg == "" {
			msg = r.Err.Error()
		}
		return errorStyle.Render(msg)
	case r.Type == browse.RequestSearch:
		return warnStyle.Render(fmt.Sprintf("%d results for %q", r.ResultCount, r.Query))
	}
	if sel := m.sess.SelectedItem; sel != nil && !m.sess.SubmitDisabled {
		return okStyle.Render("✓ " + sel.Label)
	}
	return ""
}

func (m Model) renderItems() string {
	if m.sess.ViewMode == browse.ViewGrid {
		return m.renderGrid()
	}
	return m.renderList()
}

func (m Model) symbolFor(i int) string {
	it := m.shown()[i]
	switch {
	case m.coord.IsItemErrored(it):
		return symbolErrored
	case it.IsFolder():
		return symbolFolder
	}
	return symbolFile
}

func (m Model) isSelected(i int) bool {
	sel := m.sess.SelectedItem
	return sel != nil && sel.ID == m.shown()[i].ID
}

func (m Model) renderList() string {
	items := m.shown()
	lines := make([]string, 0, len(items))
	for i, it := range items {
		cursorCell := " "
		if i == m.cursor {
			cursorCell = cursorBarStyle.Render(" ")
		}
		markCell := " "
		if m.isSelected(i) {
			markCell = markBarStyle.Render(" ")
		}
		content := fmt.Sprintf("%s %s", m.symbolFor(i), it.Label)
		if i == m.cursor {
			content = cursorLineStyle.Render(content)
		}
		lines = append(lines, cursorCell+markCell+content)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderGrid() string {
	items := m.shown()
	cols := m.gridColumns()
	var rows []string
	for start := 0; start < len(items); start += cols {
		end := min(start+cols, len(items))
		cells := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			label := items[i].Label
			if r := []rune(label); len(r) > gridCellWidth-4 {
				label = string(r[:gridCellWidth-5]) + "…"
			}
			style := gridCellStyle
			if i == m.cursor {
				style = gridCursorStyle
			}
			text := m.symbolFor(i) + " " + label
			if m.isSelected(i) {
				text = markBarStyle.Render(" ") + text
			}
			cells = append(cells, style.Render(text))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return strings.Join(rows, "\n")
}
