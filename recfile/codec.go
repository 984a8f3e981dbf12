package recfile

import (
	"bufio"
	"bytes"
	"io"
	"slices"

	"github.com/kjk/minidb/u"
)

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Encode serializes all entries of m, sorted by key so that
// the same map always produces the same bytes
func Encode(m map[string]string) []byte {
	var buf bytes.Buffer
	// can't fail when writing to bytes.Buffer
	_, err := EncodeTo(&buf, m)
	u.Must(err)
	return buf.Bytes()
}

// EncodeTo is like Encode but writes to w.
// Returns number of bytes written
func EncodeTo(w io.Writer, m map[string]string) (int64, error) {
	rw := NewWriter(w)
	var total int64
	for _, k := range sortedKeys(m) {
		n, err := rw.WriteString(k, m[k])
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Decode decodes data created with Encode.
// On error the returned map has all records decoded before
// the bad one
func Decode(d []byte) (map[string]string, error) {
	return DecodeFrom(bytes.NewReader(d))
}

// DecodeFrom is like Decode but reads from r until io.EOF
func DecodeFrom(r io.Reader) (map[string]string, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	rr := NewReader(br)
	m := map[string]string{}
	for rr.ReadNextRecord() {
		// later record with the same key wins
		m[string(rr.Key)] = string(rr.Value)
	}
	return m, rr.Err()
}
