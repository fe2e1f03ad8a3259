package tui

import "strings"

// Command is a parsed ':' prompt line.
type Command struct {
	Name string
	Args string
}

var commandAliases = map[string]string{
	"s": "search",
	"r": "room",
	"q": "quit",
	"h": "help",
}

// ParseCommand parses a command string (without the leading ':'). Names are
// case-insensitive and short aliases are expanded.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), ":"))
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if full, ok := commandAliases[cmd.Name]; ok {
		cmd.Name = full
	}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// SplitFirst returns the first word of Args and the remainder.
func (c Command) SplitFirst() (string, string) {
	first, rest, _ := strings.Cut(c.Args, " ")
	return first, strings.TrimSpace(rest)
}
