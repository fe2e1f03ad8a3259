package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/notehub/nhchat/internal/config"
	"github.com/notehub/nhchat/internal/profile"
	"github.com/notehub/nhchat/internal/tui"
	"github.com/notehub/nhchat/internal/tui/client"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	relayFlag := flag.String("relay", "", "relay base URL passed to an auto-started daemon")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cfg := config.LoadOrDefault(profile.ConfigPath())

	socketPath := profile.SocketPath(name)
	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	// Probe daemon health; auto-start if needed.
	if !probeDaemon(c) {
		fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", name)
		if err := startDaemon(name, *relayFlag); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !waitForDaemon(c, 10*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready\n")
			os.Exit(1)
		}
	}

	app := tui.NewApp(c, tui.Options{
		Profile:  name,
		Username: cfg.Username,
		PageSize: cfg.PageSize,
	})
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// probeDaemon asks the daemon's health service whether it is serving.
func probeDaemon(c *client.Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Probe(ctx) == nil
}

func startDaemon(name, relay string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	nhd := filepath.Join(filepath.Dir(executable), "nhd")

	if _, err := os.Stat(nhd); err != nil {
		nhd = "nhd"
	}

	args := []string{"--profile", name}
	if relay != "" {
		args = append(args, "--relay", relay)
	}
	cmd := exec.Command(nhd, args...)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// waitForDaemon polls the health service until it reports serving.
func waitForDaemon(c *client.Client, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(c) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
