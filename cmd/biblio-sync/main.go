// Package main is the entry point for the biblio-sync service.
package main

import (
	"log/slog"
	"os"

	"github.com/stacklok/biblio-sync/cmd/biblio-sync/app"
)

func main() {
	// stderr keeps stdout clean for status tables and JSON output
	slog.SetDefault(slog.New(newLogHandler(os.Stderr, logSettings())))

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
