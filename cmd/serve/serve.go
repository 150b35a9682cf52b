// Package serve implements the HTTP API server command.
package serve

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/pixsort/pixsort-go/internal/api"
	"github.com/pixsort/pixsort-go/internal/classifier"
	"github.com/pixsort/pixsort-go/internal/conf"
	"github.com/pixsort/pixsort-go/internal/events"
	"github.com/pixsort/pixsort-go/internal/logging"
	"github.com/pixsort/pixsort-go/internal/modelstore"
	"github.com/pixsort/pixsort-go/internal/observability"
	"github.com/pixsort/pixsort-go/internal/pending"
)

// Command creates the serve command, which runs the sorting API until
// interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the image sorting HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(settings)
		},
	}
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", settings.WebServer.Port, "Port for the web server")
	return cmd
}

func runServe(settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.ForService("serve")

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to build metrics: %w", err)
	}

	bus := events.NewBus()
	defer bus.Close()

	if err := os.MkdirAll(settings.Sorter.WorkingDir, 0o755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	queue, err := pending.New(settings.Sorter.WorkingDir,
		pending.WithBus(bus),
		pending.WithMetrics(metrics))
	if err != nil {
		return err
	}

	store, err := modelstore.New(settings.Sorter.ArtifactsDir)
	if err != nil {
		return err
	}

	var manager *classifier.Manager
	extractor, err := classifier.NewTFLiteExtractor(&settings.Backbone)
	if err != nil {
		// The queue and folder endpoints still work without a backbone;
		// model endpoints report model-unavailable.
		logger.Warn("feature extractor unavailable, classification disabled", "error", err)
	} else {
		defer extractor.Close()
		manager = classifier.NewManager(settings, store, extractor,
			classifier.WithMetrics(metrics))
		if err := manager.StartCommitListener(ctx, bus); err != nil {
			return fmt.Errorf("failed to subscribe to dataset events: %w", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	controller, err := api.New(e, settings, queue, manager,
		log.New(os.Stdout, "api ", log.LstdFlags),
		api.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer controller.Shutdown()

	errChan := make(chan error, 1)
	go func() {
		addr := ":" + settings.WebServer.Port
		logger.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
