// Package cmd wires the cobra command tree for the pixsort CLI.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pixsort/pixsort-go/cmd/classify"
	"github.com/pixsort/pixsort-go/cmd/serve"
	"github.com/pixsort/pixsort-go/cmd/train"
	"github.com/pixsort/pixsort-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pixsort",
		Short: "Interactive image sorter with incremental classifier retraining",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		serve.Command(settings),
		train.Command(settings),
		classify.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().StringVar(&settings.Sorter.WorkingDir, "working-dir",
		viper.GetString("sorter.workingdir"), "Root directory holding input/ and category folders")
	rootCmd.PersistentFlags().StringVar(&settings.Sorter.ArtifactsDir, "artifacts-dir",
		viper.GetString("sorter.artifactsdir"), "Directory for persisted model artifacts")
	rootCmd.PersistentFlags().StringVar(&settings.Backbone.ModelPath, "model",
		viper.GetString("backbone.modelpath"), "Path to the TensorFlow Lite embeddings model")
	rootCmd.PersistentFlags().BoolVarP(&settings.Backbone.Debug, "debug", "d",
		viper.GetBool("backbone.debug"), "Enable debug output")

	flagBindings := map[string]string{
		"sorter.workingdir":   "working-dir",
		"sorter.artifactsdir": "artifacts-dir",
		"backbone.modelpath":  "model",
		"backbone.debug":      "debug",
	}
	for key, flag := range flagBindings {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding %s flag: %w", flag, err)
		}
	}
	return nil
}
