package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func runeEvent(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestViewBindingShadowsGlobal(t *testing.T) {
	r := NewRegistry()
	var hit string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'd', Handler: func() { hit = "global" }})
	r.AddView("chat", &Action{Key: tcell.KeyRune, Rune: 'd', Handler: func() { hit = "chat" }})

	if !r.HandleEvent("chat", runeEvent('d')) || hit != "chat" {
		t.Errorf("chat view: hit = %q, want chat", hit)
	}
	if !r.HandleEvent("rooms", runeEvent('d')) || hit != "global" {
		t.Errorf("rooms view: hit = %q, want global", hit)
	}
	if r.HandleEvent("rooms", runeEvent('z')) {
		t.Error("unbound key reported as handled")
	}
}

func TestSpecialKeys(t *testing.T) {
	r := NewRegistry()
	called := false
	r.AddView("rooms", &Action{Key: tcell.KeyCtrlR, Handler: func() { called = true }})

	if !r.HandleEvent("rooms", tcell.NewEventKey(tcell.KeyCtrlR, 0, tcell.ModCtrl)) || !called {
		t.Error("Ctrl-R not dispatched")
	}
	if r.HandleEvent("rooms", runeEvent('r')) {
		t.Error("rune r matched a Ctrl-R binding")
	}
}

func TestHintsOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true})
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: '!', Description: "hidden"})
	r.AddView("chat", &Action{Key: tcell.KeyRune, Rune: 'D', Description: "Delete room", Visible: true})
	r.AddView("chat", &Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Send", Visible: true})

	got := r.Hints("chat")
	want := []Hint{{"D", "Delete room"}, {"Enter", "Send"}, {"q", "Quit"}}
	if len(got) != len(want) {
		t.Fatalf("Hints = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hint %d = %v, want %v", i, got[i], want[i])
		}
	}
}
