// Package train implements the one-shot model training command.
package train

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pixsort/pixsort-go/internal/classifier"
	"github.com/pixsort/pixsort-go/internal/conf"
	"github.com/pixsort/pixsort-go/internal/modelstore"
)

// Command creates the train command, which ensures a model generation
// exists for the current dataset and exits.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the classifier on the current category folders",
		Long: "Scans the working directory, compares the dataset fingerprint against " +
			"the stored one, and retrains the classification head when they differ.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(settings)
		},
	}
	return cmd
}

func runTrain(settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := modelstore.New(settings.Sorter.ArtifactsDir)
	if err != nil {
		return err
	}

	extractor, err := classifier.NewTFLiteExtractor(&settings.Backbone)
	if err != nil {
		return err
	}
	defer extractor.Close()

	manager := classifier.NewManager(settings, store, extractor)
	gen, err := manager.EnsureModel(ctx)
	if err != nil {
		return err
	}

	if len(gen.Labels) == 0 {
		fmt.Println("No category folders with images found; nothing to train.")
		return nil
	}
	fmt.Printf("Model ready for %d labels: %v\n", len(gen.Labels), gen.Labels)
	return nil
}
