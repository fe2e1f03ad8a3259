package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/notehub/nhchat/internal/chat"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	MutedColor        tcell.Color
	BorderColor       tcell.Color
	TitleColor        tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	CounterColor      tcell.Color
	UnreadColor       tcell.Color
	PinnedColor       tcell.Color
	FailedColor       tcell.Color
	PendingColor      tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color
	Presence          map[chat.Presence]tcell.Color
}

// DefaultTheme returns the dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorSilver,
		MutedColor:        tcell.ColorGray,
		BorderColor:       tcell.ColorTeal,
		TitleColor:        tcell.ColorAqua,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorTeal,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorAqua,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorTeal,
		MenuKeyColor:      tcell.ColorAqua,
		CounterColor:      tcell.ColorPapayaWhip,
		UnreadColor:       tcell.ColorGold,
		PinnedColor:       tcell.ColorOrange,
		FailedColor:       tcell.ColorOrangeRed,
		PendingColor:      tcell.ColorGray,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorAqua,
		Presence: map[chat.Presence]tcell.Color{
			chat.PresenceOnline:  tcell.ColorLime,
			chat.PresenceAway:    tcell.ColorGold,
			chat.PresenceBusy:    tcell.ColorOrangeRed,
			chat.PresenceOffline: tcell.ColorGray,
		},
	}
}

// Tag returns a tview color tag for c, e.g. "[gold]".
func Tag(c tcell.Color) string {
	return "[" + ColorName(c) + "]"
}

// ColorName returns a tview-compatible color name string.
func ColorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
