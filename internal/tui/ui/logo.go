package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Logo displays the product mark in the header.
type Logo struct {
	*tview.TextView
}

// NewLogo creates a new logo component.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignRight)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 0, 1)

	title := ColorName(theme.TitleColor)
	_, _ = fmt.Fprintf(tv,
		"[%s::b]┏┓╻╻ ╻[-:-:-]\n"+
			"[%s::b]┃┗┫┣━┫[-:-:-]\n"+
			"[%s::b]╹ ╹╹ ╹[-:-:-]\n"+
			"[%s]notehub chat[-:-:-]",
		title, title, title, ColorName(theme.MutedColor),
	)
	return &Logo{TextView: tv}
}
