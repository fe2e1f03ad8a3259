package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/notehub/nhchat/internal/profile"
	"github.com/notehub/nhchat/internal/tui/client"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	timeout := flag.Duration("timeout", 15*time.Second, "overall deadline for the command")
	flag.Usage = printUsage
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := client.New(profile.SocketPath(name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", name, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := newCLI(c, os.Stdout, *jsonFlag, name).run(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", errMessage(err))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: nhctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                             Show daemon and session status")
	fmt.Fprintln(os.Stderr, "  login <user> [--register]          Sign in (password from --password or prompt)")
	fmt.Fprintln(os.Stderr, "  logout                             Sign out")
	fmt.Fprintln(os.Stderr, "  rooms [--page N]                   List rooms")
	fmt.Fprintln(os.Stderr, "  messages <room>                    Show a room's messages")
	fmt.Fprintln(os.Stderr, "  send <room> <text> [--photo URL]   Send a message")
	fmt.Fprintln(os.Stderr, "  react <room> <msg> <emoji>         React to a message (--remove to undo)")
	fmt.Fprintln(os.Stderr, "  pin|unpin <room> <msg>             Pin or unpin a message")
	fmt.Fprintln(os.Stderr, "  delete <room> [msg]                Delete a message, or the room")
	fmt.Fprintln(os.Stderr, "  search <query>                     Search messages")
	fmt.Fprintln(os.Stderr, "  hidden list [--cached]             Show hidden notes")
	fmt.Fprintln(os.Stderr, "  hidden hide|unhide <note>          Change hidden notes")
	fmt.Fprintln(os.Stderr, "  hidden migrate [path]              Import legacy hidden notes once")
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
