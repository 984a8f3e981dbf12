package atomicfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert"
)

func assertFileExists(t *testing.T, path string) {
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("file '%s' doesn't exist, os.Stat() failed with '%s'", path, err)
	}
	if !st.Mode().IsRegular() {
		t.Fatalf("Path '%s' exists but is not a file (mode: %d)", path, int(st.Mode()))
	}
}

func assertFileNotExists(t *testing.T, path string) {
	_, err := os.Stat(path)
	if err == nil {
		t.Fatalf("file '%s' exist, expected to not exist", path)
	}
}

func assertFileContent(t *testing.T, path string, exp string) {
	d, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, exp, string(d))
}

func TestSimulateError(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "store.db")
	f, err := New(dst)
	assert.NoError(t, err)
	assertFileExists(t, f.tmpPath)
	_, err = f.Write([]byte("foo"))
	assert.NoError(t, err)

	errSimulated := errors.New("simulated")
	f.err = errSimulated
	err = f.Close()
	assert.Equal(t, errSimulated, err)
	assertFileNotExists(t, f.tmpPath)
	assertFileNotExists(t, dst)
	// on second Close() should get the same error
	assert.Equal(t, errSimulated, f.Close())
}

func writeWithPanicCancel(t *testing.T, f *File) {
	defer f.RemoveIfNotClosed()

	_, err := f.Write([]byte("foo"))
	assert.NoError(t, err)
	panic("simulating a crash")
}

func TestCancelOnPanic(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "store.db")
	f, err := New(dst)
	assert.NoError(t, err)
	func() {
		defer func() {
			assert.NotNil(t, recover())
		}()
		writeWithPanicCancel(t, f)
	}()
	assertFileNotExists(t, f.tmpPath)
	assertFileNotExists(t, dst)
}

func TestOverwrite(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "store.db")
	assert.NoError(t, os.WriteFile(dst, []byte("old content"), 0644))

	f, err := New(dst)
	assert.NoError(t, err)
	assert.Equal(t, dst, f.Path())
	n, err := f.Write([]byte("new"))
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	// destination is untouched until Close
	assertFileContent(t, dst, "old content")
	assert.NoError(t, f.Close())
	assertFileNotExists(t, f.tmpPath)
	assertFileContent(t, dst, "new")
	// calling Close twice is a no-op
	assert.NoError(t, f.Close())
}

func TestRemoveIfNotClosedKeepsDestination(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "store.db")
	assert.NoError(t, os.WriteFile(dst, []byte("keep me"), 0644))

	f, err := New(dst)
	assert.NoError(t, err)
	f.RemoveIfNotClosed()
	_, err = f.Write([]byte("lost"))
	assert.Equal(t, ErrCancelled, err)
	assert.Equal(t, ErrCancelled, f.Close())
	assertFileContent(t, dst, "keep me")
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "a.bin")
	assert.NoError(t, WriteFile(dst, []byte("data")))
	assertFileContent(t, dst, "data")

	// we can't create files in directories that don't exist
	// so we fail early, before writing anything
	err := WriteFile(filepath.Join(dir, "foo", "bar.txt"), []byte("data"))
	assert.Error(t, err)

	_, err = New(dir + string(filepath.Separator))
	assert.Error(t, err)
}
