package kvstore

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/kjk/minidb/atomicfile"
	"github.com/kjk/minidb/log"
	"github.com/kjk/minidb/recfile"
	"github.com/kjk/minidb/u"
)

// Open creates a store backed by file at path and loads its content.
// Missing or unreadable file is logged and results in an empty store.
// If the last record in the file is truncated, it's discarded
// with a warning. Other decoding errors are returned.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("kvstore: path is empty")
	}
	s := New()
	s.Path = path
	_, err := s.loadFile(path, true)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFile replaces content of the store with content of file at path.
// Missing file or a file that can't be opened results in an empty store.
// Read errors and truncated or corrupted data are returned and the store
// is not modified.
func (s *Store) LoadFile(path string) error {
	_, err := s.loadFile(path, false)
	return err
}

func (s *Store) loadFile(path string, keepPartial bool) (int, error) {
	if !u.PathExists(path) {
		log.Logf("kvstore: '%s' doesn't exist, starting with empty database\n", path)
		s.data = map[string]string{}
		return 0, nil
	}
	r, err := u.OpenFileMaybeCompressed(path)
	if err != nil {
		// not fatal: we start with empty database
		log.Logf("kvstore: can't open backup file '%s': %s\n", path, err)
		s.data = map[string]string{}
		return 0, nil
	}
	defer u.CloseNoError(r)

	br := bufio.NewReader(r)
	m, err := recfile.DecodeFrom(br)
	if err != nil {
		switch {
		case !keepPartial:
			return 0, fmt.Errorf("kvstore: load '%s': %w", path, err)
		case errors.Is(err, recfile.ErrTruncatedRecord):
			log.Logf("kvstore: warning: '%s': %s, discarded partial record, loaded %d keys\n", path, err, len(m))
			log.Event(log.EventLoadTruncated, "path", path, "keys", len(m))
		case errors.Is(err, recfile.ErrFieldTooLarge):
			return 0, fmt.Errorf("kvstore: load '%s': %w", path, err)
		default:
			// i/o error, not a format error: same as a file we can't open
			log.Logf("kvstore: can't read backup file '%s': %s\n", path, err)
			s.data = map[string]string{}
			return 0, nil
		}
	}
	s.data = m
	log.Verbosef("kvstore: loaded %d keys from '%s'\n", len(m), path)
	log.Event(log.EventLoad, "path", path, "keys", len(m))
	return len(m), nil
}

// SaveFile writes the whole store to file at path, replacing previous
// content. The file is replaced atomically: on error the previous
// content is intact
func (s *Store) SaveFile(path string) error {
	f, err := atomicfile.New(path)
	if err != nil {
		return fmt.Errorf("kvstore: save '%s': %w", path, err)
	}
	defer f.RemoveIfNotClosed()

	cw, err := u.NewWriterMaybeCompressed(path, f)
	if err != nil {
		return fmt.Errorf("kvstore: save '%s': %w", path, err)
	}
	bw := bufio.NewWriter(cw)
	n, err := s.Save(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = cw.Close()
	}
	if err == nil {
		err = f.Close()
	}
	if err != nil {
		return fmt.Errorf("kvstore: save '%s': %w", path, err)
	}
	log.Verbosef("kvstore: saved %d keys (%s) to '%s'\n", len(s.data), u.FormatSize(n), f.Path())
	log.Event(log.EventSave, "path", path, "keys", len(s.data), "bytes", n)
	return nil
}

// Backup saves the store to its backing file
func (s *Store) Backup() error {
	if s.Path == "" {
		return fmt.Errorf("kvstore: store has no backing file")
	}
	return s.SaveFile(s.Path)
}

// Close saves the store to its backing file. It's a no-op for
// in-memory store. Can be called multiple times, only first call saves
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.Path == "" {
		return nil
	}
	return s.SaveFile(s.Path)
}
