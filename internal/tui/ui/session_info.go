package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/notehub/nhchat/internal/api"
)

// SessionInfo displays daemon and session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the status; state overrides st.State when non-empty since
// the view stream is fresher than the last status call.
func (si *SessionInfo) Update(st *api.StatusResponse, state string) {
	si.Clear()
	if st == nil {
		return
	}
	if state == "" {
		state = st.State
	}

	user := st.User.Name
	if user == "" {
		user = "-"
	}

	label := ColorName(si.theme.FgColor)
	value := ColorName(si.theme.CounterColor)
	row := func(name, v string) string {
		return fmt.Sprintf("[%s::b]%-8s[-:-:-] [%s]%s[-]\n", label, name+":", value, tview.Escape(v))
	}

	_, _ = fmt.Fprint(si,
		row("Profile", st.Profile)+
			row("User", user)+
			row("Relay", st.RelayURL)+
			row("State", state)+
			row("Pending", fmt.Sprint(st.PendingWrites))+
			row("Uptime", formatDuration(time.Duration(st.UptimeMs)*time.Millisecond)),
	)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
