package recfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
)

// LenSize is the size of a length prefix in bytes
const LenSize = 8

// Writer writes records to an io.Writer
type Writer struct {
	w io.Writer

	writeBuf bytes.Buffer
	mu       sync.Mutex
}

// NewWriter creates a writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w: w,
	}
}

// WriteRecord writes a single key / value record.
// Returns number of bytes written (including length prefixes)
func (w *Writer) WriteRecord(key, value []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// most records should be small. if buffer gets big, don't keep it
	// around (unbounded cache is a mem leak)
	if w.writeBuf.Cap() > 100*1024 && len(key)+len(value) < 50*1024 {
		w.writeBuf = bytes.Buffer{}
	}

	d := MarshalRecord(key, value, &w.writeBuf)
	return w.w.Write(d)
}

// WriteString is WriteRecord for string key and value
func (w *Writer) WriteString(key, value string) (int, error) {
	return w.WriteRecord([]byte(key), []byte(value))
}

// MarshalRecord serializes a record. If wb is given, it's re-used
// and returned data is only valid until next use of wb.
func MarshalRecord(key, value []byte, wb *bytes.Buffer) []byte {
	if wb == nil {
		wb = &bytes.Buffer{}
	} else {
		wb.Reset()
	}
	wb.Grow(RecordSize(len(key), len(value)))

	var lenBuf [LenSize]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(key)))
	wb.Write(lenBuf[:])
	wb.Write(key)
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(value)))
	wb.Write(lenBuf[:])
	wb.Write(value)
	return wb.Bytes()
}

// RecordSize returns serialized size of a record
func RecordSize(keyLen, valueLen int) int {
	return LenSize + keyLen + LenSize + valueLen
}
