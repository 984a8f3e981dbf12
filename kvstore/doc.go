// Package kvstore is an in-memory string key / value store persisted
// to a single file.
//
// The whole mapping is kept in memory. Open loads it from a file in the
// [recfile] format, Save / SaveFile write the complete mapping, replacing
// previous content of the file. There is no journal: a save rewrites
// the entire file (atomically, via [atomicfile]).
//
// # Basic Usage
//
//	s, err := kvstore.Open("data.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close() // saves to data.db
//
//	s.Put("name", "John")
//	v, err := s.Get("name")
//	n := s.Delete("name") // 1 if deleted, 0 if there was no such key
//
// A missing or unreadable file is not an error: the store starts empty.
// A file whose last record was only partially written loads all complete
// records and logs a warning.
//
// If the file name ends with .gz, .zst (.zstd) or .br, the data is
// compressed with gzip, zstd or brotli.
//
// # Thread Safety
//
// Store is not safe for concurrent use. Callers must serialize access.
package kvstore
