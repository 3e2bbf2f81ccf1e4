package runtimepath

import (
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestDir_UsesXDGRuntimeDirWhenSet(t *testing.T) {
	td := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", td)

	got, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error: %v", err)
	}
	if got != td {
		t.Fatalf("Dir() = %q, want %q", got, td)
	}
}

func TestDir_FallbacksWhenXDGRuntimeDirMissing(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")

	got, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error: %v", err)
	}
	if got == "" {
		t.Fatal("Dir() returned empty path")
	}

	wantRun := fmt.Sprintf("/run/user/%d", os.Getuid())
	wantTmp := fmt.Sprintf("/tmp/surfacebridge-runtime-%d", os.Getuid())
	if got != wantRun && got != wantTmp {
		t.Fatalf("Dir() = %q, want %q or %q", got, wantRun, wantTmp)
	}
}

func TestSocketPath(t *testing.T) {
	td := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", td)

	socket, err := SocketPath()
	if err != nil {
		t.Fatalf("SocketPath() error: %v", err)
	}
	if !strings.HasSuffix(socket, "/surfacebridge.sock") {
		t.Fatalf("SocketPath() = %q, missing suffix", socket)
	}
}

func TestResolveSocket_PrefersConfiguredPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	got, err := ResolveSocket("/custom/host.sock")
	if err != nil {
		t.Fatalf("ResolveSocket() error: %v", err)
	}
	if got != "/custom/host.sock" {
		t.Fatalf("ResolveSocket() = %q, want configured path", got)
	}

	def, err := ResolveSocket("")
	if err != nil {
		t.Fatalf("ResolveSocket() error: %v", err)
	}
	if !strings.HasSuffix(def, "/surfacebridge.sock") {
		t.Fatalf("ResolveSocket(\"\") = %q, want default socket", def)
	}
}
