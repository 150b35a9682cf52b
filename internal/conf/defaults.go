// defaults.go default values for the viper-backed configuration
package conf

import "github.com/spf13/viper"

// setDefaultConfig sets the default values for each configuration parameter.
func setDefaultConfig() {
	viper.SetDefault("main.name", "pixsort")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/pixsort.log")
	viper.SetDefault("main.log.level", "info")

	viper.SetDefault("sorter.workingdir", "workspace")
	viper.SetDefault("sorter.artifactsdir", "model_artifacts")
	viper.SetDefault("sorter.inputfolder", "input")
	viper.SetDefault("sorter.trashfolder", "trash")

	viper.SetDefault("training.epochs", 5)
	viper.SetDefault("training.batchsize", 16)
	viper.SetDefault("training.learningrate", 0.005)
	viper.SetDefault("training.augmentation", "mild")
	viper.SetDefault("training.oncommit", "full")
	viper.SetDefault("training.seed", 0)

	viper.SetDefault("backbone.modelpath", "model/backbone_embeddings.tflite")
	viper.SetDefault("backbone.threads", 0)
	viper.SetDefault("backbone.usexnnpack", true)
	viper.SetDefault("backbone.debug", false)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.sessionttl", 60)
	viper.SetDefault("webserver.log.enabled", true)
	viper.SetDefault("webserver.log.path", "logs/api.log")
	viper.SetDefault("webserver.log.level", "info")
}
