package recfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFieldSize is the largest key or value we accept when reading.
// Larger length prefix means the data is corrupted.
const MaxFieldSize = 1 << 30

var (
	// ErrTruncatedRecord is returned when input ends in the middle of a record
	ErrTruncatedRecord = errors.New("truncated record")
	// ErrFieldTooLarge is returned when length prefix is bigger than MaxFieldSize
	ErrFieldTooLarge = errors.New("record field too large")
)

// Reader is for reading (deserializing) records from a bufio.Reader
type Reader struct {
	r *bufio.Reader

	// Key and Value are available after ReadNextRecord().
	// They are over-written in next ReadNextRecord().
	Key   []byte
	Value []byte

	// position of the current record within the reader.
	// We keep track of it so that errors can report offset
	// of a bad record
	CurrRecordPos int64

	// position of the next record within the reader.
	NextRecordPos int64

	keyBuf bytes.Buffer
	valBuf bytes.Buffer

	err error

	// true if reached end of input at a record boundary
	done bool
}

// NewReader creates a new reader
func NewReader(r *bufio.Reader) *Reader {
	return &Reader{
		r: r,
	}
}

// Done returns true if we're finished reading from the reader
func (r *Reader) Done() bool {
	return r.err != nil || r.done
}

func (r *Reader) truncated(what string) error {
	return fmt.Errorf("%w: record at offset %d ends inside %s", ErrTruncatedRecord, r.CurrRecordPos, what)
}

// readLen reads a length prefix. atStart is true for the first
// field of a record, where clean EOF means end of data
func (r *Reader) readLen(atStart bool, what string) (uint64, bool) {
	var lenBuf [LenSize]byte
	n, err := io.ReadFull(r.r, lenBuf[:])
	if err != nil {
		if err == io.EOF && n == 0 && atStart {
			r.done = true
			return 0, false
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			r.err = r.truncated(what + " length")
		} else {
			r.err = err
		}
		return 0, false
	}
	size := binary.LittleEndian.Uint64(lenBuf[:])
	if size > MaxFieldSize {
		r.err = fmt.Errorf("%w: record at offset %d has %s length %d", ErrFieldTooLarge, r.CurrRecordPos, what, size)
		return 0, false
	}
	return size, true
}

// readPayload reads size bytes into buf. buf grows as data arrives
// so a bogus length doesn't allocate up front
func (r *Reader) readPayload(buf *bytes.Buffer, size uint64, what string) bool {
	// we try to re-use buffers as long as they don't grow too much
	// (limit to 1 MB)
	if buf.Cap() > 1024*1024 {
		*buf = bytes.Buffer{}
	}
	buf.Reset()
	n, err := io.CopyN(buf, r.r, int64(size))
	if uint64(n) == size {
		return true
	}
	// compressed sources report a cut stream as io.ErrUnexpectedEOF
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		r.err = r.truncated(what)
	} else {
		r.err = err
	}
	return false
}

// ReadNextRecord reads next key / value record.
// Returns false if there are no more records or there was an error.
// Check Err() for errors.
func (r *Reader) ReadNextRecord() bool {
	if r.Done() {
		return false
	}
	r.CurrRecordPos = r.NextRecordPos

	keyLen, ok := r.readLen(true, "key")
	if !ok {
		return false
	}
	if !r.readPayload(&r.keyBuf, keyLen, "key") {
		return false
	}
	valLen, ok := r.readLen(false, "value")
	if !ok {
		return false
	}
	if !r.readPayload(&r.valBuf, valLen, "value") {
		return false
	}
	r.Key = r.keyBuf.Bytes()
	r.Value = r.valBuf.Bytes()
	r.NextRecordPos += int64(RecordSize(int(keyLen), int(valLen)))
	return true
}

// Err returns error from last ReadNextRecord. Reaching the end of data
// at a record boundary is not an error
func (r *Reader) Err() error {
	return r.err
}
