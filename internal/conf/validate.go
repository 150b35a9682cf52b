// conf/validate.go

package conf

import (
	"fmt"
	"strconv"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateSorterSettings(&settings.Sorter); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateTrainingSettings(&settings.Training); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateSorterSettings(settings *SorterSettings) error {
	if settings.WorkingDir == "" {
		return fmt.Errorf("working directory must not be empty")
	}
	if settings.InputFolder == "" {
		return fmt.Errorf("input folder name must not be empty")
	}
	if settings.InputFolder == settings.TrashFolder {
		return fmt.Errorf("input and trash folders must differ")
	}
	return nil
}

func validateTrainingSettings(settings *TrainingSettings) error {
	if settings.Epochs < 1 {
		return fmt.Errorf("training epochs must be at least 1")
	}
	if settings.BatchSize < 1 {
		return fmt.Errorf("training batch size must be at least 1")
	}
	if settings.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive")
	}
	switch settings.Augmentation {
	case "none", "mild", "heavy":
	default:
		return fmt.Errorf("augmentation must be none, mild or heavy, got %q", settings.Augmentation)
	}
	switch settings.OnCommit {
	case OnCommitFull, OnCommitExtend:
	default:
		return fmt.Errorf("oncommit must be full or extend, got %q", settings.OnCommit)
	}
	return nil
}

func validateWebServerSettings(settings *WebServerSettings) error {
	if settings.Enabled {
		port, err := strconv.Atoi(settings.Port)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("web server port must be a valid port number, got %q", settings.Port)
		}
	}
	if settings.SessionTTL < 1 {
		return fmt.Errorf("session TTL must be at least 1 second")
	}
	return nil
}
