package kvstore

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/kjk/minidb/recfile"
)

// ErrNotFound is returned by Get when a key doesn't exist
var ErrNotFound = errors.New("key not found")

type Store struct {
	// Path of the backing file, empty for in-memory store
	Path string

	data   map[string]string
	closed bool
}

// New creates an empty store without a backing file
func New() *Store {
	return &Store{
		data: map[string]string{},
	}
}

// Put inserts or over-writes value for key
func (s *Store) Put(key, value string) {
	s.data[key] = value
}

// Get returns value for key or ErrNotFound
func (s *Store) Get(key string) (string, error) {
	v, ok := s.data[key]
	if !ok {
		return "", fmt.Errorf("%w: '%s'", ErrNotFound, key)
	}
	return v, nil
}

// Delete removes key. Returns number of removed keys
// i.e. 1 if key existed and 0 if it didn't
func (s *Store) Delete(key string) int {
	if _, ok := s.data[key]; !ok {
		return 0
	}
	delete(s.data, key)
	return 1
}

// Len returns number of keys
func (s *Store) Len() int {
	return len(s.data)
}

// Keys returns all keys, sorted
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Map returns a copy of the mapping
func (s *Store) Map() map[string]string {
	res := make(map[string]string, len(s.data))
	for k, v := range s.data {
		res[k] = v
	}
	return res
}

// Load replaces content of the store with records read from r.
// On error the store is not modified
func (s *Store) Load(r io.Reader) error {
	m, err := recfile.DecodeFrom(r)
	if err != nil {
		return err
	}
	s.data = m
	return nil
}

// Save writes all records to w.
// Returns number of bytes written
func (s *Store) Save(w io.Writer) (int64, error) {
	return recfile.EncodeTo(w, s.data)
}

// Print writes human-readable content of the store to w
func (s *Store) Print(w io.Writer) {
	fmt.Fprintf(w, "Database content (%d keys):\n", len(s.data))
	for _, k := range s.Keys() {
		fmt.Fprintf(w, "%s : %s\n", k, s.data[k])
	}
}
