package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spaceapi.json")

	if err := WriteFile(path, []byte(`{"open":true}`), Options{}); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"open":true}` {
		t.Fatalf("got %q", got)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != DefaultMode {
		t.Fatalf("got mode %o, want %o", fi.Mode().Perm(), DefaultMode)
	}
}

func TestWriteFileCustomMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "private.json")

	if err := WriteFile(path, []byte("x"), Options{Mode: 0o600}); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("got mode %o, want 0600", fi.Mode().Perm())
	}
}

func TestWriteFileReplacesLongerContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")

	if err := os.WriteFile(path, []byte("a much longer previous document"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, []byte("short"), Options{}); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "short" {
		t.Fatalf("got %q, want %q", got, "short")
	}
}

func TestWriteFailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := Write(path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	}, Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapping of %v", err, boom)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Fatalf("original file was corrupted: got %q", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the original file, got %v", entries)
	}
}

func TestWriteFileMissingDir(t *testing.T) {
	dir := t.TempDir()
	err := WriteFile(filepath.Join(dir, "nodir", "out.json"), []byte("x"), Options{})
	if err == nil {
		t.Fatal("expected error for missing parent directory")
	}
}

func TestSymlinkCreatesMissingLink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "open.png")
	link := filepath.Join(dir, "state.png")
	if err := os.WriteFile(target, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	got, err := os.Readlink(link)
	if err != nil {
		t.Fatal(err)
	}
	if got != target {
		t.Fatalf("link points at %q, want %q", got, target)
	}
}

func TestSymlinkReplacesExistingLink(t *testing.T) {
	dir := t.TempDir()
	open := filepath.Join(dir, "open.png")
	closed := filepath.Join(dir, "closed.png")
	link := filepath.Join(dir, "state.png")

	if err := os.Symlink(open, link); err != nil {
		t.Fatal(err)
	}
	if err := Symlink(closed, link); err != nil {
		t.Fatal(err)
	}

	got, err := os.Readlink(link)
	if err != nil {
		t.Fatal(err)
	}
	if got != closed {
		t.Fatalf("link points at %q, want %q", got, closed)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the link, got %v", entries)
	}
}

func TestSymlinkOntoDirectoryFails(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "state.png")
	if err := os.Mkdir(link, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(link, "keep"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Symlink("/nonexistent", link); err == nil {
		t.Fatal("expected error when replacing a non-empty directory")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp link to be cleaned up, got %v", entries)
	}
}
