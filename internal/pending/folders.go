package pending

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pixsort/pixsort-go/internal/errors"
)

// FolderRecord describes one category folder in the workspace.
type FolderRecord struct {
	Name         string `json:"name"`
	IsEmpty      bool   `json:"is_empty"`
	PendingCount int    `json:"pending_count"`
}

// Folders lists every folder in the workspace, reserved ones included,
// sorted by name.
func (m *Manager) Folders() ([]FolderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.foldersLocked()
}

func (m *Manager) foldersLocked() ([]FolderRecord, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, errors.New(err).
			Component("pending").
			Category(errors.CategoryFileIO).
			FileContext(m.root).
			Build()
	}

	counts := make(map[string]int)
	for i := range m.actions {
		counts[m.actions[i].Target]++
	}

	var records []FolderRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		empty, err := folderIsEmpty(filepath.Join(m.root, entry.Name()))
		if err != nil {
			return nil, err
		}
		records = append(records, FolderRecord{
			Name:         entry.Name(),
			IsEmpty:      empty,
			PendingCount: counts[entry.Name()],
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// CreateFolder makes a new category folder. Creating an existing folder
// is not an error.
func (m *Manager) CreateFolder(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateFolderName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(m.root, name), 0o755); err != nil {
		return errors.New(err).
			Component("pending").
			Category(errors.CategoryFileIO).
			FileContext(filepath.Join(m.root, name)).
			Build()
	}
	getLogger().Info("created folder", "name", name)
	return nil
}

// DeleteFolder removes a category folder. The input folder, non-empty
// folders, and folders with pending actions targeting them cannot be
// deleted.
func (m *Manager) DeleteFolder(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateFolderName(name); err != nil {
		return err
	}
	if strings.EqualFold(name, InputFolder) {
		return errors.Newf("cannot delete the input folder").
			Component("pending").
			Category(errors.CategoryConflict).
			Build()
	}

	path := filepath.Join(m.root, name)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return errors.NotFound("folder %q does not exist", name)
	}

	for i := range m.actions {
		if m.actions[i].Target == name {
			return errors.Newf("folder %q has pending actions targeting it", name).
				Component("pending").
				Category(errors.CategoryConflict).
				Build()
		}
	}

	empty, err := folderIsEmpty(path)
	if err != nil {
		return err
	}
	if !empty {
		return errors.Newf("folder %q is not empty", name).
			Component("pending").
			Category(errors.CategoryConflict).
			Build()
	}

	if err := os.Remove(path); err != nil {
		return errors.New(err).
			Component("pending").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	getLogger().Info("deleted folder", "name", name)
	return nil
}

func folderIsEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, errors.New(err).
			Component("pending").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return len(entries) == 0, nil
}
