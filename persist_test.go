package spacestatus

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testPersister returns a Persister rooted in a fresh temp dir with both
// images present.
func testPersister(t *testing.T) *Persister {
	t.Helper()
	dir := t.TempDir()
	p := &Persister{
		OutPath:     filepath.Join(dir, "spaceapi.json"),
		OpenImage:   filepath.Join(dir, "open.png"),
		ClosedImage: filepath.Join(dir, "closed.png"),
		SymlinkPath: filepath.Join(dir, "state.png"),
	}
	for _, img := range []string{p.OpenImage, p.ClosedImage} {
		if err := os.WriteFile(img, []byte(filepath.Base(img)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func readLink(t *testing.T, path string) string {
	t.Helper()
	target, err := os.Readlink(path)
	if err != nil {
		t.Fatal(err)
	}
	return target
}

func TestPersistFirstRun(t *testing.T) {
	p := testPersister(t)
	doc := loadTestTemplate(t)
	doc.Lever = LeverState{Open: true, LastChange: t0}

	if err := p.Persist(doc); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(p.OutPath)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := doc.MarshalJSON()
	if string(data) != string(want) {
		t.Fatalf("file content:\n%s\nwant:\n%s", data, want)
	}
	parsed, err := ParseDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.Equal(doc) {
		t.Fatalf("persisted document = %+v, want %+v", parsed, doc)
	}

	if got := readLink(t, p.SymlinkPath); got != p.OpenImage {
		t.Fatalf("symlink -> %q, want %q", got, p.OpenImage)
	}
	if !filepath.IsAbs(readLink(t, p.SymlinkPath)) {
		t.Fatal("symlink target must be absolute")
	}
}

func TestPersistSymlinkFollowsLever(t *testing.T) {
	p := testPersister(t)
	doc := loadTestTemplate(t)

	for i, open := range []bool{true, false, false, true, false} {
		doc.Lever = LeverState{Open: open, LastChange: t0.Add(time.Duration(i) * time.Second)}
		if err := p.Persist(doc); err != nil {
			t.Fatal(err)
		}
		want := p.ClosedImage
		if open {
			want = p.OpenImage
		}
		if got := readLink(t, p.SymlinkPath); got != want {
			t.Fatalf("step %d: symlink -> %q, want %q", i, got, want)
		}
	}

	// No temporary files are left behind.
	entries, err := os.ReadDir(filepath.Dir(p.OutPath))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected directory contents: %v", names)
	}
}

func TestPersistRelativePaths(t *testing.T) {
	p := testPersister(t)
	doc := loadTestTemplate(t)
	t.Chdir(filepath.Dir(p.OutPath))
	p.OutPath = "spaceapi.json"
	p.OpenImage = "open.png"
	p.SymlinkPath = "state.png"

	doc.Lever.Open = true
	if err := p.Persist(doc); err != nil {
		t.Fatal(err)
	}
	got := readLink(t, "state.png")
	if !filepath.IsAbs(got) || filepath.Base(got) != "open.png" {
		t.Fatalf("symlink -> %q, want absolute path to open.png", got)
	}
}

func TestPersistMissingImage(t *testing.T) {
	p := testPersister(t)
	doc := loadTestTemplate(t)

	doc.Lever.Open = true
	if err := p.Persist(doc); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(p.ClosedImage); err != nil {
		t.Fatal(err)
	}

	doc.Lever.Open = false
	err := p.Persist(doc)
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PersistenceError, got %v", err)
	}
	if perr.Op != "image" || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("unexpected error: %+v", perr)
	}

	// The document was written but the old symlink is untouched.
	if got := readLink(t, p.SymlinkPath); got != p.OpenImage {
		t.Fatalf("symlink -> %q, want unchanged %q", got, p.OpenImage)
	}
	data, err := os.ReadFile(p.OutPath)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Lever.Open {
		t.Fatal("document file not updated")
	}
}

func TestPersistUnwritableOutput(t *testing.T) {
	p := testPersister(t)
	p.OutPath = filepath.Join(filepath.Dir(p.OutPath), "missing", "spaceapi.json")

	err := p.Persist(loadTestTemplate(t))
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "write" {
		t.Fatalf("expected write PersistenceError, got %v", err)
	}
	if _, err := os.Lstat(p.SymlinkPath); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("symlink must not be created after a failed write: %v", err)
	}
}

func TestImageFor(t *testing.T) {
	p := &Persister{OpenImage: "o", ClosedImage: "c"}
	if got := p.ImageFor(Document{Lever: LeverState{Open: true}}); got != "o" {
		t.Errorf("open: %q", got)
	}
	if got := p.ImageFor(Document{}); got != "c" {
		t.Errorf("closed: %q", got)
	}
}
