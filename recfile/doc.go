/*
Package recfile reads and writes the flat binary file format used by kvstore.

A file is a sequence of key/value records with no header, index or checksum:

	[key length: uint64 LE][key bytes][value length: uint64 LE][value bytes]
	[key length: uint64 LE][key bytes][value length: uint64 LE][value bytes]
	...

Both lengths are always 8 bytes, little-endian, on every platform. Keys and
values can be empty. The file ends at a record boundary; there is no
terminator record.

If the input ends in the middle of a record, reading fails with an error
wrapping ErrTruncatedRecord. Records read before that point remain available
to the caller, which decides whether to keep them.

Writing a whole map:

	d := recfile.Encode(m)

Reading it back:

	m, err := recfile.Decode(d)

Streaming:

	r := recfile.NewReader(bufio.NewReader(f))
	for r.ReadNextRecord() {
		fmt.Printf("%s => %s\n", r.Key, r.Value)
	}
	if err := r.Err(); err != nil {
		// ...
	}
*/
package recfile
