// minidb stores command line values in a key/value store backed by a file,
// saves it and verifies the file by loading it back.
//
//	minidb [-json] [-v] [-log-dir dir] [-export file.json] <path_to_db> [values...]
//
// Each value is stored under key "key <value>".
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kjk/minidb/atomicfile"
	"github.com/kjk/minidb/kvstore"
	"github.com/kjk/minidb/log"
	"github.com/kjk/minidb/u"
	"github.com/mattn/go-isatty"
	"github.com/tidwall/pretty"
)

var (
	flgJSON    bool
	flgVerbose bool
	flgLogDir  string
	flgExport  string
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-json] [-v] [-log-dir dir] [-export file.json] <path_to_db> [values...]\n", os.Args[0])
	flag.PrintDefaults()
}

func keyForValue(v string) string {
	return "key <" + v + ">"
}

func marshalJSON(s *kvstore.Store) ([]byte, error) {
	d, err := json.Marshal(s.Map())
	if err != nil {
		return nil, err
	}
	return pretty.Pretty(d), nil
}

func exportJSON(s *kvstore.Store, path string) error {
	d, err := marshalJSON(s)
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(path, d)
}

func printStore(w io.Writer, s *kvstore.Store) {
	if !flgJSON {
		s.Print(w)
		return
	}
	d, err := marshalJSON(s)
	if log.IfErrf(err) {
		return
	}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		d = pretty.Color(d, nil)
	}
	_, _ = w.Write(d)
}

func run(path string, values []string) {
	s, err := kvstore.Open(path)
	if err != nil {
		// saving would over-write data we couldn't read
		log.Errorf("can't load '%s': %s\nleft the file untouched, values were not stored\n", path, err)
		return
	}
	for _, v := range values {
		s.Put(keyForValue(v), v)
	}
	printStore(os.Stdout, s)

	if err = s.Close(); err != nil {
		log.Errorf("%s\n", err)
		return
	}
	log.Verbosef("saved '%s', %s\n", path, u.FormatSize(u.FileSize(path)))

	s2, err := kvstore.Open(path)
	if err != nil {
		log.Errorf("can't re-load '%s': %s\n", path, err)
		return
	}
	fmt.Printf("Reloaded from '%s':\n", path)
	printStore(os.Stdout, s2)
	if flgExport != "" {
		if err = exportJSON(s2, flgExport); err != nil {
			log.Errorf("export to '%s' failed: %s\n", flgExport, err)
			return
		}
		log.Logf("exported %d keys to '%s'\n", s2.Len(), flgExport)
	}
}

func main() {
	flag.BoolVar(&flgJSON, "json", false, "print content as json")
	flag.BoolVar(&flgVerbose, "v", false, "verbose logging")
	flag.StringVar(&flgLogDir, "log-dir", "", "if set, also write logs to files in this directory")
	flag.StringVar(&flgExport, "export", "", "if set, write content as json to this file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	log.Init(&log.Config{
		Dir:     flgLogDir,
		Verbose: flgVerbose,
	})
	defer log.Close()

	run(args[0], args[1:])
}
