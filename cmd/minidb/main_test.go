package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/minidb/kvstore"
)

func TestKeyForValue(t *testing.T) {
	assert.Equal(t, "key <foo>", keyForValue("foo"))
	assert.Equal(t, "key <>", keyForValue(""))
}

func TestRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	run(path, []string{"a", "b"})
	run(path, []string{"c", "a"})

	s, err := kvstore.Open(path)
	assert.NoError(t, err)
	exp := map[string]string{
		"key <a>": "a",
		"key <b>": "b",
		"key <c>": "c",
	}
	assert.Equal(t, exp, s.Map())
}

func TestExportJSON(t *testing.T) {
	dir := t.TempDir()
	s := kvstore.New()
	s.Put(keyForValue("x"), "x")
	path := filepath.Join(dir, "export.json")
	assert.NoError(t, exportJSON(s, path))

	d, err := os.ReadFile(path)
	assert.NoError(t, err)
	var m map[string]string
	assert.NoError(t, json.Unmarshal(d, &m))
	assert.Equal(t, map[string]string{"key <x>": "x"}, m)

	err = exportJSON(s, filepath.Join(dir, "no", "such", "dir.json"))
	assert.Error(t, err)
}

func TestRunCorruptFileIsNotOverwritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")
	d := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 'k', 'e', 'y'}
	assert.NoError(t, os.WriteFile(path, d, 0644))

	run(path, []string{"a"})

	got, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, d, got)
}
