package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/tui/ui"
)

// RoomInfo shows a room's participants and their presence.
type RoomInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewRoomInfo creates a new room info view.
func NewRoomInfo(theme *ui.Theme) *RoomInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Room ")
	tv.SetTitleColor(theme.TitleColor)

	return &RoomInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements ui.Component.
func (ri *RoomInfo) Name() string { return "Info" }

// FocusTarget implements ui.Component.
func (ri *RoomInfo) FocusTarget() tview.Primitive { return ri.TextView }

// Update renders the room with the given id from the snapshot.
func (ri *RoomInfo) Update(v chat.View, roomID string) {
	ri.Clear()
	room, ok := v.Room(roomID)
	if !ok {
		_, _ = fmt.Fprint(ri, "\n Room no longer exists.")
		return
	}

	label := ui.ColorName(ri.theme.FgColor)
	value := ui.ColorName(ri.theme.CounterColor)
	row := func(name, val string) string {
		return fmt.Sprintf(" [%s::b]%-13s[-:-:-] [%s]%s[-]\n", label, name+":", value, val)
	}

	kind := "Direct"
	if room.IsGroup {
		kind = "Group"
	}
	last := "-"
	if room.LastMessage != nil {
		last = formatTimestamp(room.LastMessage.CreatedAt, time.Now())
	}
	theme := room.Theme
	if theme == "" {
		theme = "-"
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(row("Name", clean(room.DisplayName(v.Self.ID))))
	b.WriteString(row("ID", clean(room.ID)))
	b.WriteString(row("Type", kind))
	b.WriteString(row("Theme", clean(theme)))
	b.WriteString(row("Unread", fmt.Sprint(room.UnreadCount)))
	b.WriteString(row("Last activity", last))
	fmt.Fprintf(&b, "\n [%s::b]Participants (%d)[-:-:-]\n", label, len(room.Participants))
	for _, p := range room.Participants {
		st, ok := v.Presence[p.ID]
		if !ok {
			st = chat.PresenceOffline
		}
		name := clean(p.Name)
		if p.ID == v.Self.ID {
			name += " (you)"
		}
		fmt.Fprintf(&b, "  %s %s [%s]%s[-]\n", presenceDot(ri.theme, st), name, ui.ColorName(ri.theme.MutedColor), st)
	}

	_, _ = fmt.Fprint(ri, b.String())
	ri.SetTitle(fmt.Sprintf(" %s ", clean(room.DisplayName(v.Self.ID))))
}
