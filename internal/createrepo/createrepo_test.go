package createrepo

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writeScript creates an executable shell script standing in for createrepo.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "fake-createrepo")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewShellGenerator_Default(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	err := NewShellGenerator("", testLogger()).Generate(context.Background(), t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "unable to invoke '"+DefaultExecutable+"'") {
		t.Errorf("expected the default executable to be invoked, got %v", err)
	}
}

func TestGenerate_Success(t *testing.T) {
	script := writeScript(t, `mkdir -p "$1/repodata" && echo '<repomd/>' > "$1/repodata/repomd.xml" && echo done`)
	dir := t.TempDir()

	if err := NewShellGenerator(script, testLogger()).Generate(context.Background(), dir); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "repodata", "repomd.xml")); err != nil {
		t.Errorf("repomd.xml not written: %v", err)
	}
}

func TestGenerate_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "cannot read packages" >&2; exit 3`)

	err := NewShellGenerator(script, testLogger()).Generate(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected error for failing generator")
	}
	if !strings.Contains(err.Error(), "status code 3") {
		t.Errorf("error should carry the exit status: %v", err)
	}
	if !strings.Contains(err.Error(), "cannot read packages") {
		t.Errorf("error should carry the tool output: %v", err)
	}
}

func TestGenerate_NoRepodata(t *testing.T) {
	script := writeScript(t, `exit 0`)

	err := NewShellGenerator(script, testLogger()).Generate(context.Background(), t.TempDir())
	if !errors.Is(err, ErrNoMetadata) {
		t.Fatalf("expected ErrNoMetadata, got %v", err)
	}
}

func TestGenerate_MissingExecutable(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-createrepo")

	err := NewShellGenerator(missing, testLogger()).Generate(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if !strings.Contains(err.Error(), "unable to invoke") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGenerate_Cancelled(t *testing.T) {
	script := writeScript(t, `sleep 5`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewShellGenerator(script, testLogger()).Generate(ctx, t.TempDir()); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestGenerate_RealCreaterepo(t *testing.T) {
	exe, err := exec.LookPath(DefaultExecutable)
	if err != nil {
		t.Skip("createrepo not installed")
	}

	dir := t.TempDir()
	if err := NewShellGenerator(exe, testLogger()).Generate(context.Background(), dir); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "repodata", "repomd.xml")); err != nil {
		t.Errorf("repomd.xml not written: %v", err)
	}
}
