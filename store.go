package kvfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/kjk/kvfile/atomicfile"
	"github.com/kjk/kvfile/log"
	"github.com/kjk/kvfile/u"
)

// State of the initial load of a Store
type State int

const (
	// Loading means the backing file is still being read
	Loading State = iota
	// Ready means the table was loaded (or created) and operations can run
	Ready
	// Failed means loading failed. The Store is unusable.
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Entry is a key and its value, as returned by Find()
type Entry struct {
	Key   string
	Value any
}

// Store is a key-value table mirrored to a single JSON file.
// It's safe for concurrent use.
type Store struct {
	path    string
	baseDir string
	opts    Options

	// closed once when the initial load finishes, successfully or not.
	// state and initErr don't change after that.
	ready   chan struct{}
	state   State
	initErr error

	mu    sync.Mutex
	table *table
}

// Open returns a Store backed by the file at path and starts loading it
// in the background. Relative paths are resolved against opts.BaseDir.
// If the file doesn't exist, it's created with an empty table.
//
// Open doesn't wait for the load to finish. Every operation does
// and Wait() can be used to check for load errors up front.
func Open(path string, opts *Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("kvfile: open: missing file path: %w", ErrInvalidArgument)
	}
	o := opts.withDefaults()
	baseDir := o.BaseDir
	if baseDir == "" {
		var err error
		baseDir, err = u.ExecutableDir()
		if err != nil {
			return nil, fmt.Errorf("kvfile: open: %w", err)
		}
	}
	absPath, err := u.ResolvePath(baseDir, path)
	if err != nil {
		return nil, fmt.Errorf("kvfile: open: failed to get absolute path for '%s': %w", path, err)
	}
	s := &Store{
		path:    absPath,
		baseDir: baseDir,
		opts:    o,
		ready:   make(chan struct{}),
		state:   Loading,
	}
	go s.load()
	return s, nil
}

// Path returns absolute path of the backing file
func (s *Store) Path() string {
	return s.path
}

// State returns the current state without blocking
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until the initial load finishes. It returns an error
// wrapping ErrInitialization if it failed.
func (s *Store) Wait() error {
	return s.wait("wait")
}

func (s *Store) wait(op string) error {
	<-s.ready
	if s.state == Failed {
		return fmt.Errorf("kvfile: %s: %w", op, s.initErr)
	}
	return nil
}

func (s *Store) load() {
	timeStart := time.Now()
	t, err := s.readTable()

	s.mu.Lock()
	if err != nil {
		s.state = Failed
		s.initErr = fmt.Errorf("%w: %w", ErrInitialization, err)
	} else {
		s.table = t
		s.state = Ready
		log.Verbosef("kvfile: loaded %d keys from '%s' in %s\n", t.len(), s.path, time.Since(timeStart))
	}
	s.mu.Unlock()

	close(s.ready)
}

func (s *Store) readTable() (*table, error) {
	err := os.MkdirAll(filepath.Dir(s.path), s.opts.DirPerm)
	if err != nil {
		return nil, err
	}
	d, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		// first run
		t := newTable()
		if err = s.writeTable(t); err != nil {
			return nil, err
		}
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	t, err := decodeTable(d)
	if err != nil {
		return nil, fmt.Errorf("failed to parse '%s': %w", s.path, err)
	}
	return t, nil
}

// writeTable rewrites the whole backing file with content of t
func (s *Store) writeTable(t *table) error {
	d, err := encodeTable(t, s.opts.Indent)
	if err != nil {
		return err
	}
	if err = atomicfile.WriteFile(s.path, d, s.opts.Perm); err != nil {
		return err
	}
	log.Verbosef("kvfile: wrote %d keys (%s) to '%s'\n", t.len(), humanize.Bytes(uint64(len(d))), s.path)
	return nil
}

// persistLocked must be called with s.mu held
func (s *Store) persistLocked(op string) error {
	if err := s.writeTable(s.table); err != nil {
		return fmt.Errorf("kvfile: %s: %w: %w", op, ErrPersistence, err)
	}
	return nil
}

// replace swaps the whole table and persists it
func (s *Store) replace(op string, t *table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t
	return s.persistLocked(op)
}

func checkKey(op string, key string) error {
	if key == "" {
		return fmt.Errorf("kvfile: %s: key must be a non-empty string: %w", op, ErrInvalidKey)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("kvfile: %s: key %q is not valid UTF-8: %w", op, key, ErrInvalidKey)
	}
	return nil
}

// resolvePath resolves paths of snapshots the same way as
// the path given to Open()
func (s *Store) resolvePath(path string) (string, error) {
	if path == "" {
		return "", ErrInvalidArgument
	}
	return u.ResolvePath(s.baseDir, path)
}
