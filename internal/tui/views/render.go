package views

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rivo/tview"

	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/tui/ui"
)

// sanitizeForTerminal drops codepoints tcell cannot lay out reliably: skin
// tone modifiers, zero width joiners and variation selectors. A composed
// emoji degrades to its base glyph.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isProblematicRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}

// clean prepares user text for a tview cell or text view.
func clean(s string) string {
	return tview.Escape(sanitizeForTerminal(s))
}

// formatTimestamp shows the time for today's messages and the date otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 02")
	}
	return t.Format("2006-01-02")
}

// preview is the one-line room list summary of a message.
func preview(m *chat.Message, selfID string) string {
	if m == nil {
		return ""
	}
	text := strings.Join(strings.Fields(m.Text), " ")
	if text == "" && m.PhotoURL != "" {
		text = "[photo]"
	}
	if m.Sender.ID == selfID {
		text = "You: " + text
	}
	return text
}

// peerPresence returns the presence of the other participant of a direct
// room. Groups have no single presence.
func peerPresence(r chat.Room, selfID string, presence map[string]chat.Presence) (chat.Presence, bool) {
	if r.IsGroup {
		return "", false
	}
	for _, p := range r.Participants {
		if p.ID == selfID {
			continue
		}
		if st, ok := presence[p.ID]; ok {
			return st, true
		}
		return chat.PresenceOffline, true
	}
	return "", false
}

// presenceDot renders a colored dot for a presence value.
func presenceDot(theme *ui.Theme, p chat.Presence) string {
	c, ok := theme.Presence[p]
	if !ok {
		return " "
	}
	return ui.Tag(c) + "●[-]"
}

// formatReactions renders reactions as "👍 2  🎉 1", sorted by emoji.
// Reactions by selfID are bolded.
func formatReactions(reactions map[string][]string, selfID string) string {
	if len(reactions) == 0 {
		return ""
	}
	emojis := make([]string, 0, len(reactions))
	for e := range reactions {
		emojis = append(emojis, e)
	}
	slices.Sort(emojis)

	parts := make([]string, 0, len(emojis))
	for _, e := range emojis {
		users := reactions[e]
		part := fmt.Sprintf("%s %d", clean(e), len(users))
		if slices.Contains(users, selfID) {
			part = "[::b]" + part + "[::-]"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "  ")
}

// typingLine renders the typing indicator for the selected room.
func typingLine(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return clean(names[0]) + " is typing…"
	case 2:
		return clean(names[0]) + " and " + clean(names[1]) + " are typing…"
	}
	return fmt.Sprintf("%s and %d others are typing…", clean(names[0]), len(names)-1)
}

// pageWindow renders the page selector, e.g. "‹ 1 [2] 3 ›".
func pageWindow(pages []int, current int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		if p == current {
			parts[i] = fmt.Sprintf("[::r]%d[::-]", p)
		} else {
			parts[i] = fmt.Sprint(p)
		}
	}
	return "‹ " + strings.Join(parts, " ") + " ›"
}
