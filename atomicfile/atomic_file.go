package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// Some references:
// - https://www.slideshare.net/nan1nan1/eat-my-data
// - https://lwn.net/Articles/457667/

var (
	// ErrCancelled is returned by calls subsequent to RemoveIfNotClosed()
	ErrCancelled = errors.New("cancelled")

	_ io.WriteCloser = &File{}
)

// File replaces the destination file only if everything
// written to it made it to disk. Until Close() succeeds the
// destination is untouched.
type File struct {
	dstPath string
	dir     string
	tmpFile *os.File
	perm    os.FileMode
	err     error

	tmpPath string
}

// New creates a temporary file in the same directory as path.
// The directory must exist.
func New(path string) (*File, error) {
	dir, fName := filepath.Split(path)
	if fName == "" {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	tmpFile, err := os.CreateTemp(dir, "."+fName+".tmp-*")
	if err != nil {
		return nil, err
	}

	return &File{
		dstPath: path,
		dir:     dir,
		tmpFile: tmpFile,
		tmpPath: tmpFile.Name(),
	}, nil
}

// SetPerm sets permissions the destination file will have.
// os.CreateTemp() creates files with 0600.
func (f *File) SetPerm(perm os.FileMode) {
	f.perm = perm
}

func (f *File) handleError(err error) error {
	if err == nil {
		return nil
	}
	if f.err == nil {
		f.err = err
	}
	_ = f.Close()
	return err
}

func (f *File) Write(d []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmpFile.Write(d)
	return n, f.handleError(err)
}

func (f *File) WriteString(s string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmpFile.WriteString(s)
	return n, f.handleError(err)
}

func (f *File) Sync() error {
	if f.err != nil {
		return f.err
	}
	return f.handleError(f.tmpFile.Sync())
}

func (f *File) alreadyClosed() bool {
	return f.tmpFile == nil
}

// RemoveIfNotClosed deletes the temp file if Close() wasn't called yet.
// The destination is left as it was. Meant to be deferred.
// A no-op after Close().
func (f *File) RemoveIfNotClosed() {
	if f == nil || f.alreadyClosed() {
		return
	}
	f.err = ErrCancelled
	_ = f.Close()
}

// Close syncs and renames the temp file over the destination.
// Safe to call multiple times, returns the first error.
func (f *File) Close() error {
	if f.alreadyClosed() {
		return f.err
	}
	tmpFile := f.tmpFile
	f.tmpFile = nil

	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	var errPerm error
	if f.perm != 0 && f.err == nil {
		errPerm = tmpFile.Chmod(f.perm)
	}
	errSync := tmpFile.Sync()
	errClose := tmpFile.Close()

	didRename := false
	defer func() {
		if !didRename {
			_ = os.Remove(f.tmpPath)
		}
	}()

	if f.err != nil {
		return f.err
	}

	err := errPerm
	if err == nil {
		err = errSync
	}
	if err == nil {
		err = errClose
	}
	if err == nil {
		err = os.Rename(f.tmpPath, f.dstPath)
		didRename = (err == nil)
		// sync the directory so the rename survives a crash
		fdir, _ := os.Open(f.dir)
		if fdir != nil {
			_ = fdir.Sync()
			_ = fdir.Close()
		}
	}

	f.err = err
	return f.err
}

// WriteFile is like os.WriteFile but either fully replaces path
// with data or leaves it untouched.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := New(path)
	if err != nil {
		return err
	}
	defer f.RemoveIfNotClosed()
	f.SetPerm(perm)

	if _, err = f.Write(data); err != nil {
		return err
	}
	return f.Close()
}
