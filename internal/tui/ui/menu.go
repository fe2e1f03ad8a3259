package ui

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/notehub/nhchat/internal/tui/keys"
)

// Menu displays keyboard shortcut hints in columns.
type Menu struct {
	*tview.TextView
	theme *Theme
	rows  int
}

// NewMenu creates a new menu hint block with the given number of rows per column.
func NewMenu(theme *Theme, rows int) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
		rows:     max(rows, 1),
	}
}

// Update renders hints column-major, rows entries per column.
func (m *Menu) Update(hints []keys.Hint) {
	m.Clear()
	_, _ = fmt.Fprint(m, FormatHints(hints, m.rows, ColorName(m.theme.MenuKeyColor)))
}

// FormatHints lays hints out in columns of the given height.
func FormatHints(hints []keys.Hint, rows int, keyColor string) string {
	if rows < 1 {
		rows = 1
	}
	cells := make([]string, len(hints))
	width := 0
	for i, h := range hints {
		plain := fmt.Sprintf("<%s> %s", h.Key, h.Description)
		width = max(width, len(plain))
		cells[i] = plain
	}

	var out string
	for r := 0; r < rows && r < len(hints); r++ {
		for i := r; i < len(hints); i += rows {
			h := hints[i]
			pad := width - len(cells[i]) + 2
			out += fmt.Sprintf("[%s::b]<%s>[-:-:-] %s%*s", keyColor, tview.Escape(h.Key), h.Description, pad, "")
		}
		out += "\n"
	}
	return out
}
