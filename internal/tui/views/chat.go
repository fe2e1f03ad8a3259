package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/tui/ui"
)

// ChatView shows the selected room: pinned messages, the message list, who
// is typing, and the composer.
type ChatView struct {
	*tview.Flex
	theme       *ui.Theme
	pinned      *tview.TextView
	messages    *tview.Table
	typing      *tview.TextView
	composer    *tview.InputField
	roomName    string
	msgs        []chat.Message
	onSend      func(text string)
	onKeystroke func()
}

// NewChatView creates the chat page.
func NewChatView(theme *ui.Theme) *ChatView {
	pinned := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	pinned.SetBackgroundColor(theme.BgColor)
	pinned.SetBorderPadding(0, 0, 1, 1)

	messages := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	typing := tview.NewTextView().
		SetDynamicColors(true)
	typing.SetBackgroundColor(theme.BgColor)
	typing.SetTextColor(theme.MutedColor)
	typing.SetBorderPadding(0, 0, 1, 0)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus, Esc to leave) ")
	composer.SetTitleColor(theme.TitleColor)

	cv := &ChatView{
		theme:    theme,
		pinned:   pinned,
		messages: messages,
		typing:   typing,
		composer: composer,
	}

	composer.SetChangedFunc(func(text string) {
		if text != "" && cv.onKeystroke != nil {
			cv.onKeystroke()
		}
	})
	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || cv.onSend == nil {
			return
		}
		text := strings.TrimSpace(composer.GetText())
		if text == "" {
			return
		}
		cv.onSend(text)
		composer.SetText("")
	})

	cv.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(pinned, 0, 0, false).
		AddItem(messages, 0, 1, true).
		AddItem(typing, 1, 0, false).
		AddItem(composer, 3, 0, false)
	return cv
}

// Name implements ui.Component.
func (cv *ChatView) Name() string { return "Chat" }

// RoomName is the display name of the room on screen.
func (cv *ChatView) RoomName() string { return cv.roomName }

// FocusTarget implements ui.Component.
func (cv *ChatView) FocusTarget() tview.Primitive { return cv.messages }

// SetOnSend sets the callback when the composer submits text.
func (cv *ChatView) SetOnSend(fn func(text string)) { cv.onSend = fn }

// SetOnKeystroke sets the callback fired on every composer edit.
func (cv *ChatView) SetOnKeystroke(fn func()) { cv.onKeystroke = fn }

// Composer returns the composer input (for focus management).
func (cv *ChatView) Composer() *tview.InputField { return cv.composer }

// Messages returns the message table (for focus management).
func (cv *ChatView) Messages() *tview.Table { return cv.messages }

// Update renders the selected room from a view snapshot.
func (cv *ChatView) Update(v chat.View) {
	room, _ := v.Room(v.SelectedRoom)
	cv.roomName = room.DisplayName(v.Self.ID)
	if v.SelectedRoom == "" {
		cv.roomName = ""
	}

	title := fmt.Sprintf(" %s ", clean(cv.roomName))
	if v.LoadingRoom != "" {
		title = fmt.Sprintf(" %s [%s](loading…)[-] ", clean(cv.roomName), ui.ColorName(cv.theme.MutedColor))
	}
	cv.messages.SetTitle(title)

	cv.renderPinned(v.Pinned)
	cv.renderMessages(v.Messages, v.Self.ID)

	cv.typing.Clear()
	_, _ = fmt.Fprint(cv.typing, typingLine(v.Typing))
}

func (cv *ChatView) renderPinned(pinned []chat.Message) {
	cv.pinned.Clear()
	cv.ResizeItem(cv.pinned, min(len(pinned), 3), 0)
	color := ui.ColorName(cv.theme.PinnedColor)
	for i, m := range pinned {
		if i == 3 {
			break
		}
		_, _ = fmt.Fprintf(cv.pinned, "[%s]📌 %s:[-] %s\n", color, clean(m.Sender.Name), clean(firstLine(m.Text)))
	}
}

func (cv *ChatView) renderMessages(msgs []chat.Message, selfID string) {
	keep := cv.SelectedMessage().ID
	atEnd := cv.atEnd()

	cv.msgs = msgs
	cv.messages.Clear()

	now := time.Now()
	cursor := -1
	for i, m := range msgs {
		if m.ID == keep {
			cursor = i
		}
		cv.messages.SetCell(i, 0, tview.NewTableCell(formatTimestamp(m.CreatedAt, now)).
			SetTextColor(cv.theme.MutedColor))
		cv.messages.SetCell(i, 1, tview.NewTableCell(cv.sender(m, selfID)).
			SetMaxWidth(18))
		cv.messages.SetCell(i, 2, tview.NewTableCell(cv.body(m, selfID)).
			SetExpansion(1).
			SetTextColor(cv.theme.FgColor))
	}

	switch {
	case len(msgs) == 0:
	case atEnd || cursor < 0:
		cv.messages.Select(len(msgs)-1, 0)
	default:
		cv.messages.Select(cursor, 0)
	}
}

func (cv *ChatView) atEnd() bool {
	row, _ := cv.messages.GetSelection()
	return len(cv.msgs) == 0 || row >= len(cv.msgs)-1
}

func (cv *ChatView) sender(m chat.Message, selfID string) string {
	name := m.Sender.Name
	if m.Sender.ID == selfID {
		name = "You"
	}
	return "[::b]" + clean(name) + "[::-]"
}

func (cv *ChatView) body(m chat.Message, selfID string) string {
	var b strings.Builder
	if m.Pinned {
		b.WriteString("📌 ")
	}
	b.WriteString(clean(strings.Join(strings.Fields(m.Text), " ")))
	if m.PhotoURL != "" {
		fmt.Fprintf(&b, " [%s::u]%s[-::-]", ui.ColorName(cv.theme.MenuKeyColor), clean(m.PhotoURL))
	}
	if r := formatReactions(m.Reactions, selfID); r != "" {
		b.WriteString("  " + r)
	}
	switch m.Status {
	case chat.StatusSending:
		fmt.Fprintf(&b, " [%s](sending)[-]", ui.ColorName(cv.theme.PendingColor))
	case chat.StatusFailed:
		fmt.Fprintf(&b, " [%s::b](failed)[-::-]", ui.ColorName(cv.theme.FailedColor))
	}
	return b.String()
}

// SelectedMessage returns the message under the cursor, or a zero Message.
func (cv *ChatView) SelectedMessage() chat.Message {
	row, _ := cv.messages.GetSelection()
	if row >= 0 && row < len(cv.msgs) {
		return cv.msgs[row]
	}
	return chat.Message{}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
