// Package fingerprint content-addresses the labeled dataset so the lifecycle
// manager can detect whether retraining is needed.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pixsort/pixsort-go/internal/errors"
	"github.com/pixsort/pixsort-go/internal/imaging"
)

// ImageEntry identifies one labeled image by name and content hash.
type ImageEntry struct {
	Filename string `json:"filename"`
	Hash     string `json:"hash"`
}

// Fingerprint is a deterministic digest of the labeled dataset: the sorted
// category list plus, per category, the filename-sorted image entries.
// Two fingerprints are equal iff both structures are identical.
type Fingerprint struct {
	Categories []string                `json:"categories"`
	Data       map[string][]ImageEntry `json:"data"`
}

// Compute scans the immediate subfolders of root, excluding the named
// folders, and hashes every admitted image file. Category folders with no
// images still appear with an empty entry list. A root with no category
// folders yields an empty fingerprint, which is not an error.
//
// The result does not depend on filesystem iteration order: categories and
// per-category entries are sorted before return.
func Compute(root string, excluded ...string) (*Fingerprint, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.New(err).
			Component("fingerprint").
			Category(errors.CategoryFileIO).
			FileContext(root).
			Build()
	}

	skip := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		skip[strings.ToLower(name)] = true
	}

	fp := &Fingerprint{Data: make(map[string][]ImageEntry)}
	for _, entry := range entries {
		if !entry.IsDir() || skip[strings.ToLower(entry.Name())] {
			continue
		}
		category := entry.Name()
		images, err := hashCategory(filepath.Join(root, category))
		if err != nil {
			return nil, err
		}
		fp.Categories = append(fp.Categories, category)
		fp.Data[category] = images
	}

	slices.Sort(fp.Categories)
	return fp, nil
}

func hashCategory(dir string) ([]ImageEntry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.New(err).
			Component("fingerprint").
			Category(errors.CategoryFileIO).
			FileContext(dir).
			Build()
	}

	// Non-nil so an empty category is distinguishable in JSON form.
	images := []ImageEntry{}
	for _, file := range files {
		if file.IsDir() || !imaging.IsImageFile(file.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, errors.New(err).
				Component("fingerprint").
				Category(errors.CategoryFileIO).
				FileContext(filepath.Join(dir, file.Name())).
				Build()
		}
		sum := sha256.Sum256(data)
		images = append(images, ImageEntry{
			Filename: file.Name(),
			Hash:     hex.EncodeToString(sum[:]),
		})
	}

	slices.SortFunc(images, func(a, b ImageEntry) int {
		return strings.Compare(a.Filename, b.Filename)
	})
	return images, nil
}

// Equal reports exact structural equality. Any changed byte in any labeled
// image, or any renamed file or category, makes fingerprints unequal.
func (fp *Fingerprint) Equal(other *Fingerprint) bool {
	if fp == nil || other == nil {
		return fp == other
	}
	if !slices.Equal(fp.Categories, other.Categories) {
		return false
	}
	if len(fp.Data) != len(other.Data) {
		return false
	}
	for category, images := range fp.Data {
		if !slices.Equal(images, other.Data[category]) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the fingerprint covers no categories.
func (fp *Fingerprint) IsEmpty() bool {
	return fp == nil || len(fp.Categories) == 0
}

// NewLabels returns the categories in other that are not present in fp,
// sorted lexicographically. Used to decide whether the incremental extend
// path applies.
func (fp *Fingerprint) NewLabels(other *Fingerprint) []string {
	known := make(map[string]bool, len(fp.Categories))
	for _, c := range fp.Categories {
		known[c] = true
	}
	var added []string
	for _, c := range other.Categories {
		if !known[c] {
			added = append(added, c)
		}
	}
	slices.Sort(added)
	return added
}

// UnchangedExcept reports whether every category of fp carries identical
// image entries in other, i.e. the dataset only grew by new categories.
func (fp *Fingerprint) UnchangedExcept(other *Fingerprint) bool {
	for category, images := range fp.Data {
		if !slices.Equal(images, other.Data[category]) {
			return false
		}
	}
	return true
}

// Encode serializes the fingerprint for persistence.
func (fp *Fingerprint) Encode() ([]byte, error) {
	return json.MarshalIndent(fp, "", "  ")
}

// Decode deserializes a persisted fingerprint.
func Decode(data []byte) (*Fingerprint, error) {
	fp := &Fingerprint{}
	if err := json.Unmarshal(data, fp); err != nil {
		return nil, errors.New(err).
			Component("fingerprint").
			Category(errors.CategoryModelLoad).
			Build()
	}
	if fp.Data == nil {
		fp.Data = make(map[string][]ImageEntry)
	}
	return fp, nil
}
