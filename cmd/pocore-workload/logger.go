package main

import (
	"io"
	"log/slog"
	"os"
)

// log is the CLI's logger. It discards everything unless --verbose is
// set, matching how mem.Context itself stays silent by default.
var log = slog.New(slog.NewTextHandler(io.Discard, nil))

func initLogger(verbose bool) {
	if !verbose {
		return
	}
	log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
