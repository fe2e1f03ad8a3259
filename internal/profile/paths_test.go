package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/notehub/nhchat/internal/config"
)

func TestPathsUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	if got, want := Dir("main"), filepath.Join(home, "profiles", "main"); got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
	if got, want := SocketPath("w"), filepath.Join(home, "profiles", "w", "daemon.sock"); got != want {
		t.Errorf("SocketPath = %q, want %q", got, want)
	}
	if got, want := LogPath("w"), filepath.Join(home, "profiles", "w", "logs", "nhd.log"); got != want {
		t.Errorf("LogPath = %q, want %q", got, want)
	}
}

func TestEnsureDirAndList(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if err := EnsureDir("work"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(LogDir("work"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}

	names, err := List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "work" {
		t.Errorf("List() = %v, want [work]", names)
	}
}

func TestResolvePrecedence(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if got := Resolve(""); got != DefaultName {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultName)
	}
	if err := config.Save(ConfigPath(), &config.Config{DefaultProfile: "team"}); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "team" {
		t.Errorf("Resolve() = %q, want team", got)
	}
	if got := Resolve("cli"); got != "cli" {
		t.Errorf("Resolve(cli) = %q, want cli", got)
	}
}
