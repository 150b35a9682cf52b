// Package classify implements the single-image scoring command.
package classify

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pixsort/pixsort-go/internal/classifier"
	"github.com/pixsort/pixsort-go/internal/conf"
	"github.com/pixsort/pixsort-go/internal/modelstore"
	"github.com/pixsort/pixsort-go/internal/pending"
)

// Command creates the classify command, which scores one image file
// against the trained model.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [image file]",
		Short: "Score an image against the current category folders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(settings, args[0])
		},
	}
	return cmd
}

func runClassify(settings *conf.Settings, imagePath string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", imagePath, err)
	}

	labels, err := categoryLabels(settings.Sorter.WorkingDir)
	if err != nil {
		return err
	}
	if len(labels) == 0 {
		return fmt.Errorf("no category folders found in %s", settings.Sorter.WorkingDir)
	}

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
	scores, err := manager.Classify(data, labels)
	if err != nil {
		return err
	}

	type ranked struct {
		label string
		score classifier.Score
	}
	order := make([]ranked, 0, len(scores))
	for label, score := range scores {
		order = append(order, ranked{label, score})
	}
	sort.Slice(order, func(i, j int) bool { return order[i].score.Percent > order[j].score.Percent })

	fmt.Printf("Predictions for %s:\n", filepath.Base(imagePath))
	for _, r := range order {
		if r.score.Unavailable {
			fmt.Printf("  %-20s (not in trained model)\n", r.label)
			continue
		}
		fmt.Printf("  %-20s %6.2f%%\n", r.label, r.score.Percent)
	}
	return nil
}

func categoryLabels(workingDir string) ([]string, error) {
	entries, err := os.ReadDir(workingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read working directory %s: %w", workingDir, err)
	}
	var labels []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.EqualFold(entry.Name(), pending.InputFolder) {
			continue
		}
		labels = append(labels, entry.Name())
	}
	return labels, nil
}
