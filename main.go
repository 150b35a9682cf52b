package main

import (
	"fmt"
	"os"

	"github.com/pixsort/pixsort-go/cmd"
	"github.com/pixsort/pixsort-go/internal/conf"
	"github.com/pixsort/pixsort-go/internal/logging"
)

// Populated at build time via -ldflags.
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	settings, err := conf.Load()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	settings.Version = version
	settings.BuildDate = buildDate

	logging.Init()

	return cmd.RootCommand(settings).Execute()
}
