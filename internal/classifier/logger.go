// Package classifier provides logging for the classifier package.
package classifier

import (
	"log/slog"
	"sync"

	"github.com/pixsort/pixsort-go/internal/logging"
)

var (
	serviceLogger *slog.Logger
	initOnce      sync.Once
)

// getLogger returns the classifier package logger.
// Uses sync.Once to ensure the logger is only initialized once.
func getLogger() *slog.Logger {
	initOnce.Do(func() {
		serviceLogger = logging.ForService("classifier")
	})
	return serviceLogger
}
