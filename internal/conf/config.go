// config.go: This file contains the configuration for the pixsort application.
// It defines the settings struct and functions to load and save the settings.
package conf

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var defaultConfigData []byte

// LogConfig contains settings for a log output.
type LogConfig struct {
	Enabled bool   // true to enable this log
	Path    string // path to log file
	Level   string // debug, info, warn, error
}

// MainSettings contains general application settings.
type MainSettings struct {
	Name string    // name of this node, used e.g. in logging
	Log  LogConfig // main log settings
}

// SorterSettings contains settings for the image sorting workspace.
type SorterSettings struct {
	WorkingDir   string // root directory holding input/ and category folders
	ArtifactsDir string // directory for persisted model artifacts
	InputFolder  string // reserved folder for unsorted images
	TrashFolder  string // reserved folder behaving as an ordinary label
}

// Retraining modes applied after a successful commit.
const (
	OnCommitFull   = "full"
	OnCommitExtend = "extend"
)

// TrainingSettings contains the hyperparameters for the classification head.
type TrainingSettings struct {
	Epochs       int     // fixed number of passes over the training set
	BatchSize    int     // mini-batch size
	LearningRate float64 // Adam learning rate
	Augmentation string  // "none", "mild" or "heavy"
	OnCommit     string  // "full" or "extend", retrain mode after commit
	Seed         int64   // RNG seed for head init and shuffling, 0 = time-based
}

// BackboneSettings contains settings for the frozen feature extractor.
type BackboneSettings struct {
	ModelPath  string // path to the TensorFlow Lite embeddings model
	Threads    int    // number of CPU threads, 0 = automatic
	UseXNNPACK bool   // true to enable XNNPACK delegate
	Debug      bool   // true to enable debug output
}

// WebServerSettings contains settings for the HTTP API.
type WebServerSettings struct {
	Enabled    bool      // true to enable the web server
	Port       string    // port for the web server
	Debug      bool      // true to enable debug mode
	SessionTTL int       // session heartbeat timeout in seconds
	Log        LogConfig // API log settings
}

// Settings contains all application settings.
type Settings struct {
	Version   string `yaml:"-"` // runtime value, not stored in config
	BuildDate string `yaml:"-"` // runtime value, not stored in config

	Main      MainSettings
	Sorter    SorterSettings
	Training  TrainingSettings
	Backbone  BackboneSettings
	WebServer WebServerSettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfigData, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				panic(fmt.Sprintf("error loading settings: %v", err))
			}
		}
	})
	return GetSettings()
}

// SetTestSettings installs a settings instance directly, bypassing viper.
// Intended for tests that need a workspace-scoped configuration.
func SetTestSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write to a temporary file first to ensure an atomic replace
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary config file: %w", err)
	}
	tempName := tempFile.Name()

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		os.Remove(tempName)
		return fmt.Errorf("error writing temporary config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error closing temporary config file: %w", err)
	}

	if err := os.Rename(tempName, configPath); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPaths returns the default config file paths for the current OS.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user home directory: %w", err)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user config directory: %w", err)
	}

	return []string{
		filepath.Join(configDir, "pixsort"),
		filepath.Join(homeDir, ".config", "pixsort"),
		".",
	}, nil
}
