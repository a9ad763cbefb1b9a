// Package atomicfile replaces files and symlinks so that readers never observe
// a partially-written file or a missing link. Both operations stage the new
// entry next to the destination and rename it into place.
package atomicfile

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultMode is used by [Write] when Options.Mode is zero.
const DefaultMode os.FileMode = 0o644

// Options controls the permissions of a written file.
type Options struct {
	// Mode is the file permission bits. Defaults to [DefaultMode].
	Mode os.FileMode
}

// WriteFile atomically replaces the file at path with data.
func WriteFile(path string, data []byte, opts Options) error {
	return Write(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}, opts)
}

// Write atomically replaces the file at path with whatever fn writes.
//
// The contents go to a temporary file in the same directory, which is
// fsynced, chmodded and renamed over path. On any failure the temporary file
// is removed and path is left untouched.
func Write(path string, fn func(w io.Writer) error, opts Options) (retErr error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("atomicfile: create temp: %w", err)
	}
	tmpPath := f.Name()
	defer func() {
		if retErr != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := fn(f); err != nil {
		return fmt.Errorf("atomicfile: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("atomicfile: fsync: %w", err)
	}
	mode := opts.Mode
	if mode == 0 {
		mode = DefaultMode
	}
	if err := f.Chmod(mode); err != nil {
		return fmt.Errorf("atomicfile: chmod: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("atomicfile: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("atomicfile: rename: %w", err)
	}
	return nil
}

// maxLinkAttempts bounds the search for an unused temporary link name.
const maxLinkAttempts = 100

// Symlink makes path a symbolic link to target, replacing any existing link
// at path in a single rename. At every instant path is either the old link or
// the new one. path need not exist beforehand.
func Symlink(target, path string) error {
	dir := filepath.Dir(path)
	for range maxLinkAttempts {
		tmpPath := filepath.Join(dir, ".tmp-link-"+strconv.FormatUint(rand.Uint64(), 36))
		err := os.Symlink(target, tmpPath)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("atomicfile: create temp link: %w", err)
		}
		if err := os.Rename(tmpPath, path); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("atomicfile: rename link: %w", err)
		}
		return nil
	}
	return fmt.Errorf("atomicfile: no free temp link name in %s", dir)
}
