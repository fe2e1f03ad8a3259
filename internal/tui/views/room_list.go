package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/paginate"
	"github.com/notehub/nhchat/internal/tui/ui"
)

// RoomList is one page of the room list.
type RoomList struct {
	*tview.Table
	theme *ui.Theme
	rooms []chat.Room
}

// NewRoomList creates the room table.
func NewRoomList(theme *ui.Theme) *RoomList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Rooms ")
	table.SetTitleColor(theme.TitleColor)

	return &RoomList{
		Table: table,
		theme: theme,
	}
}

// Name implements ui.Component.
func (rl *RoomList) Name() string { return "Rooms" }

// FocusTarget implements ui.Component.
func (rl *RoomList) FocusTarget() tview.Primitive { return rl.Table }

// Update renders one page of rooms. The cursor stays on the same room when
// it is still on the page.
func (rl *RoomList) Update(rooms []chat.Room, pager paginate.Pager, view chat.View) {
	keep := rl.SelectedRoom()
	rl.rooms = rooms
	rl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" ", 0},
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" UNREAD", 0},
	}
	for col, h := range headers {
		rl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(rl.theme.TableHeaderFg).
			SetBackgroundColor(rl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	now := time.Now()
	selfID := view.Self.ID
	cursor := 1
	for i, r := range rooms {
		row := i + 1
		if r.ID == keep {
			cursor = row
		}

		dot := " "
		if p, ok := peerPresence(r, selfID, view.Presence); ok {
			dot = presenceDot(rl.theme, p)
		}

		fg := rl.theme.FgColor
		name := clean(r.DisplayName(selfID))
		unread := ""
		if r.UnreadCount > 0 {
			fg = rl.theme.UnreadColor
			name = "[::b]" + name + "[::-]"
			unread = fmt.Sprintf("%d", r.UnreadCount)
		}
		if r.ID == view.SelectedRoom {
			name = "» " + name
		}

		var when string
		if r.LastMessage != nil {
			when = formatTimestamp(r.LastMessage.CreatedAt, now)
		}

		rl.SetCell(row, 0, tview.NewTableCell(" "+dot).SetExpansion(0))
		rl.SetCell(row, 1, tview.NewTableCell(" "+name).SetExpansion(1).SetTextColor(fg))
		rl.SetCell(row, 2, tview.NewTableCell(" "+clean(preview(r.LastMessage, selfID))).SetExpansion(2).SetMaxWidth(60).SetTextColor(rl.theme.FgColor))
		rl.SetCell(row, 3, tview.NewTableCell(when).SetAlign(tview.AlignRight).SetTextColor(rl.theme.MutedColor))
		rl.SetCell(row, 4, tview.NewTableCell(unread).SetAlign(tview.AlignRight).SetTextColor(rl.theme.UnreadColor))
	}

	if len(rooms) > 0 {
		rl.Select(cursor, 0)
	}
	rl.SetTitle(fmt.Sprintf(" Rooms (%d) %s ", pager.Total, pageWindow(pager.Window(5), pager.Page)))
}

// SelectedRoom returns the id of the room under the cursor.
func (rl *RoomList) SelectedRoom() string {
	row, _ := rl.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(rl.rooms) {
		return rl.rooms[idx].ID
	}
	return ""
}

// RoomAt returns the id of the nth room on the page (1-based).
func (rl *RoomList) RoomAt(n int) string {
	if n < 1 || n > len(rl.rooms) {
		return ""
	}
	return rl.rooms[n-1].ID
}
