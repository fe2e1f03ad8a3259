package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"quit", Command{Name: "quit"}},
		{"  Q  ", Command{Name: "quit"}},
		{":search  hello world ", Command{Name: "search", Args: "hello world"}},
		{"s lunch", Command{Name: "search", Args: "lunch"}},
		{"room Team Alpha", Command{Name: "room", Args: "Team Alpha"}},
		{"", Command{}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.in); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestSplitFirst(t *testing.T) {
	first, rest := ParseCommand("photo https://x/p.png look at this").SplitFirst()
	if first != "https://x/p.png" || rest != "look at this" {
		t.Errorf("SplitFirst = %q, %q", first, rest)
	}
	first, rest = ParseCommand("photo https://x/p.png").SplitFirst()
	if first != "https://x/p.png" || rest != "" {
		t.Errorf("SplitFirst without rest = %q, %q", first, rest)
	}
}
