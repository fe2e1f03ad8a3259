package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/notehub/nhchat/internal/tui/keys"
	"github.com/notehub/nhchat/internal/tui/ui"
)

// HelpSection is one titled block of key bindings.
type HelpSection struct {
	Title string
	Hints []keys.Hint
}

// commandHelp documents the ':' prompt.
var commandHelp = []keys.Hint{
	{Key: ":search <query>", Description: "Search messages"},
	{Key: ":room <name>", Description: "Open room by name"},
	{Key: ":react <emoji>", Description: "React to the selected message"},
	{Key: ":photo <url> [text]", Description: "Send a photo link"},
	{Key: ":presence <state>", Description: "online, away, busy or offline"},
	{Key: ":refresh", Description: "Reload rooms from the relay"},
	{Key: ":logout", Description: "Sign out"},
	{Key: ":quit", Description: "Quit"},
}

// HelpView displays the key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	return &HelpView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "Help" }

// FocusTarget implements ui.Component.
func (hv *HelpView) FocusTarget() tview.Primitive { return hv.TextView }

// Update renders the given binding sections followed by the commands.
func (hv *HelpView) Update(sections []HelpSection) {
	hv.Clear()
	_, _ = fmt.Fprint(hv, renderHelp(append(sections, HelpSection{Title: "Commands", Hints: commandHelp}), ui.ColorName(hv.theme.MenuKeyColor)))
}

func renderHelp(sections []HelpSection, keyColor string) string {
	var b strings.Builder
	for _, s := range sections {
		if len(s.Hints) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.Title)
		for _, h := range s.Hints {
			fmt.Fprintf(&b, "  [%s]%-22s[-:-:-] %s\n", keyColor, tview.Escape(h.Key), h.Description)
		}
	}
	return b.String()
}
