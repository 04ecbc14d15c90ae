package kvfile

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kjk/kvfile/log"
	"github.com/kjk/kvfile/u"
)

// WriteSnapshot writes a copy of the table to path in the format of the
// backing file, compressed if path ends with .gz, .zst or .br.
// Relative paths are resolved like in Open().
func (s *Store) WriteSnapshot(path string) error {
	d, err := s.ExportJSON()
	if err != nil {
		return err
	}
	dst, err := s.resolvePath(path)
	if err != nil {
		return fmt.Errorf("kvfile: writeSnapshot: bad path '%s': %w", path, err)
	}
	timeStart := time.Now()
	if err = u.WriteFileMaybeCompressed(dst, d, s.opts.Perm); err != nil {
		return fmt.Errorf("kvfile: writeSnapshot: %w", err)
	}
	log.EventWithDuration("kvfile.snapshot", time.Since(timeStart), "path", dst, "size", humanize.Bytes(uint64(len(d))))
	return nil
}

// ReadSnapshot replaces the whole table with content of a snapshot
// written by WriteSnapshot() and rewrites the backing file
func (s *Store) ReadSnapshot(path string) error {
	if err := s.wait("readSnapshot"); err != nil {
		return err
	}
	src, err := s.resolvePath(path)
	if err != nil {
		return fmt.Errorf("kvfile: readSnapshot: bad path '%s': %w", path, err)
	}
	d, err := u.ReadFileMaybeCompressed(src)
	if err != nil {
		return fmt.Errorf("kvfile: readSnapshot: %w", err)
	}
	t, err := decodeTable(d)
	if err != nil {
		return fmt.Errorf("kvfile: readSnapshot: '%s': %w: %w", src, ErrInvalidData, err)
	}
	return s.replace("readSnapshot", t)
}
