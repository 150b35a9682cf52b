// dataset.go labeled sample collection for head training
package classifier

import (
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/pixsort/pixsort-go/internal/errors"
	"github.com/pixsort/pixsort-go/internal/imaging"
)

// sample is one training example: backbone features plus the label index.
type sample struct {
	features []float32
	label    int
}

// FeedbackImage is a user-supplied training example for the incremental
// extend path. The category is encoded by the parent folder of ImagePath,
// mirroring the on-disk layout after a commit.
type FeedbackImage struct {
	ImagePath string
	Data      []byte
}

// Category returns the label encoded in the image path.
func (f *FeedbackImage) Category() string {
	return filepath.Base(filepath.Dir(f.ImagePath))
}

// loadTrainingSamples walks the category folders and extracts features for
// every admitted image. Undecodable files are skipped with a warning so one
// broken image does not abort a whole training run.
func loadTrainingSamples(root string, labelIndex map[string]int, extractor FeatureExtractor, augmenter *imaging.Augmenter, excluded ...string) ([]sample, error) {
	skip := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		skip[strings.ToLower(name)] = true
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryFileIO).
			FileContext(root).
			Build()
	}

	log := getLogger()
	var samples []sample
	for _, entry := range entries {
		if !entry.IsDir() || skip[strings.ToLower(entry.Name())] {
			continue
		}
		label, known := labelIndex[entry.Name()]
		if !known {
			continue
		}

		dir := filepath.Join(root, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, errors.New(err).
				Component("classifier").
				Category(errors.CategoryFileIO).
				FileContext(dir).
				Build()
		}

		for _, file := range files {
			if file.IsDir() || !imaging.IsImageFile(file.Name()) {
				continue
			}
			path := filepath.Join(dir, file.Name())
			features, err := featuresForFile(path, extractor, augmenter)
			if err != nil {
				log.Warn("skipping unusable training image", "path", path, "error", err)
				continue
			}
			samples = append(samples, sample{features: features, label: label})
		}
	}
	return samples, nil
}

func featuresForFile(path string, extractor FeatureExtractor, augmenter *imaging.Augmenter) ([]float32, error) {
	img, err := imaging.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	if augmenter != nil {
		img = augmenter.Apply(img)
	}
	return extractor.Features(imaging.ToTensor(img))
}

// feedbackSamples converts user feedback images into training samples. A
// feedback image naming an unknown category is a validation error, matching
// the contract that old categories are a subset of the updated label set.
func feedbackSamples(feedback []FeedbackImage, labelIndex map[string]int, extractor FeatureExtractor, augmenter *imaging.Augmenter) ([]sample, error) {
	var samples []sample
	for i := range feedback {
		fb := &feedback[i]
		label, known := labelIndex[fb.Category()]
		if !known {
			return nil, errors.Newf("category %q not found in known categories", fb.Category()).
				Component("classifier").
				Category(errors.CategoryValidation).
				Context("image_path", fb.ImagePath).
				Build()
		}
		var img *image.RGBA
		var err error
		if len(fb.Data) > 0 {
			img, err = imaging.Decode(fb.Data)
		} else {
			img, err = imaging.DecodeFile(fb.ImagePath)
		}
		if err != nil {
			return nil, err
		}
		if augmenter != nil {
			img = augmenter.Apply(img)
		}
		features, err := extractor.Features(imaging.ToTensor(img))
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample{features: features, label: label})
	}
	return samples, nil
}
