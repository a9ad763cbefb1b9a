package spacestatus

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/andrew-d/spacestatus/internal/atomicfile"
)

// PersistenceError reports a failed persistence step.
type PersistenceError struct {
	Op   string // "encode", "write", "image" or "symlink"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persister writes the document file and points the state image symlink at
// the image matching the lever.
type Persister struct {
	OutPath     string
	OpenImage   string
	ClosedImage string
	SymlinkPath string

	// FileMode is the mode of the document file. Defaults to
	// [atomicfile.DefaultMode].
	FileMode os.FileMode
}

// Persist writes doc to OutPath and then repoints SymlinkPath. Both
// replacements are atomic: readers see either the previous or the new file
// and link, never a partial file or a missing link. Errors are
// [*PersistenceError]; a failed document write leaves the symlink untouched.
func (p *Persister) Persist(doc Document) error {
	data, err := doc.MarshalJSON()
	if err != nil {
		return &PersistenceError{Op: "encode", Path: p.OutPath, Err: err}
	}
	if err := atomicfile.WriteFile(p.OutPath, data, atomicfile.Options{Mode: p.FileMode}); err != nil {
		return &PersistenceError{Op: "write", Path: p.OutPath, Err: err}
	}

	image := p.ImageFor(doc)
	target, err := filepath.Abs(image)
	if err != nil {
		return &PersistenceError{Op: "image", Path: image, Err: err}
	}
	if _, err := os.Stat(target); err != nil {
		return &PersistenceError{Op: "image", Path: target, Err: err}
	}

	link, err := filepath.Abs(p.SymlinkPath)
	if err != nil {
		return &PersistenceError{Op: "symlink", Path: p.SymlinkPath, Err: err}
	}
	if err := atomicfile.Symlink(target, link); err != nil {
		return &PersistenceError{Op: "symlink", Path: link, Err: err}
	}
	return nil
}

// ImageFor returns the configured image for the document's lever state.
func (p *Persister) ImageFor(doc Document) string {
	if doc.Lever.Open {
		return p.OpenImage
	}
	return p.ClosedImage
}
