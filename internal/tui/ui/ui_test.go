package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rivo/tview"

	"github.com/notehub/nhchat/internal/tui/keys"
)

type stubPage struct {
	*tview.Box
	name string
}

func (s stubPage) Name() string                 { return s.name }
func (s stubPage) FocusTarget() tview.Primitive { return s.Box }

func TestPagesStack(t *testing.T) {
	p := NewPages()
	for _, n := range []string{"rooms", "chat", "search"} {
		p.Add(stubPage{Box: tview.NewBox(), name: n})
	}
	var tops []string
	p.SetOnChange(func(top Component, _ []string) { tops = append(tops, top.Name()) })

	p.Reset("rooms")
	p.Push("chat")
	p.Push("chat")
	p.Push("search")
	if got := strings.Join(p.Stack(), ">"); got != "rooms>chat>search" {
		t.Fatalf("stack = %s", got)
	}
	if popped := p.Pop(); popped != "search" {
		t.Errorf("Pop = %q, want search", popped)
	}
	p.Pop()
	if popped := p.Pop(); popped != "" {
		t.Errorf("root popped: %q", popped)
	}
	if p.Current() != "rooms" || p.Top().Name() != "rooms" {
		t.Errorf("current = %q", p.Current())
	}
	if got := strings.Join(tops, ","); got != "rooms,chat,search,chat,rooms" {
		t.Errorf("onChange tops = %s", got)
	}
}

func TestFlashExpires(t *testing.T) {
	f := NewFlashModel()
	now := time.Unix(100, 0)
	f.now = func() time.Time { return now }

	if f.Current() != nil {
		t.Fatal("empty model has a message")
	}
	f.Err(errors.New("send failed"))
	msg := f.Current()
	if msg == nil || msg.Level != FlashErr || msg.Text != "send failed" {
		t.Fatalf("Current = %+v", msg)
	}
	now = now.Add(9 * time.Second)
	if f.Current() != nil {
		t.Error("message did not expire")
	}
}

func TestFormatHintsColumns(t *testing.T) {
	hints := []keys.Hint{{Key: "q", Description: "Quit"}, {Key: "/", Description: "Search"}, {Key: "n", Description: "Next page"}}
	out := FormatHints(hints, 2, "aqua")
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "Quit") || !strings.Contains(lines[0], "Next page") {
		t.Errorf("first row = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Search") {
		t.Errorf("second row = %q", lines[1])
	}
}
