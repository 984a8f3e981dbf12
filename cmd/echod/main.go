//go:build unix

// echod is a TCP echo server. It stops on SIGINT or SIGTERM.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/kjk/minidb/config"
	"github.com/kjk/minidb/log"
	"github.com/kjk/minidb/server"
)

var (
	flgConfig  string
	flgPort    int
	flgLogDir  string
	flgVerbose bool
)

func main() {
	flag.StringVar(&flgConfig, "config", "", "path to YAML config file")
	flag.IntVar(&flgPort, "port", 0, "port to listen on, overrides config")
	flag.StringVar(&flgLogDir, "log-dir", "", "directory for log files, overrides config")
	flag.BoolVar(&flgVerbose, "v", false, "verbose logging")
	flag.Parse()

	cfg, err := config.Load(flgConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	if flgPort != 0 {
		cfg.Port = flgPort
	}
	if flgLogDir != "" {
		cfg.LogDir = flgLogDir
	}
	log.Init(&log.Config{
		Dir:     cfg.LogDir,
		Verbose: cfg.Verbose || flgVerbose,
	})

	srv := server.New(&server.Options{
		Port:          cfg.Port,
		Backlog:       cfg.Backlog,
		ReadChunkSize: cfg.ReadChunkSize,
		MaxPending:    cfg.MaxPending,
		Signals:       []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}, nil)
	err = srv.ListenAndServe()
	if err != nil {
		if errors.Is(err, server.ErrBind) {
			log.Errorf("failed to start: %s\n", err)
		} else {
			log.Errorf("server stopped with error: %s\n", err)
		}
		log.Close()
		os.Exit(1)
	}
	log.Logf("bye\n")
	log.Close()
}
