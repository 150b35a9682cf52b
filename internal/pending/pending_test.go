package pending

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixsort/pixsort-go/internal/errors"
	"github.com/pixsort/pixsort-go/internal/events"
)

func newWorkspace(t *testing.T, folders []string, inputImages []string) *Manager {
	t.Helper()
	root := t.TempDir()
	for _, folder := range folders {
		require.NoError(t, os.MkdirAll(filepath.Join(root, folder), 0o755))
	}
	m, err := New(root)
	require.NoError(t, err)
	for _, name := range inputImages {
		writeImage(t, m.InputDir(), name)
	}
	return m
}

func writeImage(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img-bytes"), 0o644))
}

func TestNewCreatesReservedFolders(t *testing.T) {
	root := t.TempDir()
	m, err := New(root)
	require.NoError(t, err)

	for _, reserved := range []string{InputFolder, TrashFolder} {
		info, err := os.Stat(filepath.Join(root, reserved))
		require.NoError(t, err, reserved)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(root, InputFolder), m.InputDir())
}

func TestNewRejectsMissingWorkingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestStageUndoCommitOrdering(t *testing.T) {
	m := newWorkspace(t, []string{"cats", "dogs"}, []string{"a.png", "b.png", "c.png"})

	require.NoError(t, m.Stage("a.png", "cats"))
	require.NoError(t, m.Stage("b.png", "dogs"))
	require.NoError(t, m.Stage("c.png", "cats"))

	// Undo pops the most recent staging.
	popped, err := m.Undo()
	require.NoError(t, err)
	assert.Equal(t, "c.png", popped.ImageName)

	// Commit drains in original staging order.
	result, err := m.Commit()
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "a.png", result.Items[0].ImageName)
	assert.Equal(t, "b.png", result.Items[1].ImageName)
	assert.Equal(t, 2, result.Moved)

	assert.FileExists(t, filepath.Join(m.WorkingDir(), "cats", "a.png"))
	assert.FileExists(t, filepath.Join(m.WorkingDir(), "dogs", "b.png"))
	assert.NoFileExists(t, filepath.Join(m.WorkingDir(), "cats", "c.png"))
	assert.Zero(t, m.Len())
}

func TestStageRejectsDuplicate(t *testing.T) {
	m := newWorkspace(t, []string{"cats"}, []string{"a.png"})

	require.NoError(t, m.Stage("a.png", "cats"))
	err := m.Stage("a.png", "cats")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDuplicatePending))

	// An undo clears the way for restaging.
	_, err = m.Undo()
	require.NoError(t, err)
	assert.NoError(t, m.Stage("a.png", "cats"))
}

func TestStageValidation(t *testing.T) {
	m := newWorkspace(t, []string{"cats"}, []string{"a.png"})

	tests := []struct {
		name     string
		image    string
		target   string
		category errors.ErrorCategory
	}{
		{"missing image", "ghost.png", "cats", errors.CategoryNotFound},
		{"missing folder", "a.png", "birds", errors.CategoryNotFound},
		{"empty image", "", "cats", errors.CategoryValidation},
		{"empty target", "a.png", "", errors.CategoryValidation},
		{"path traversal", "../a.png", "cats", errors.CategoryValidation},
		{"input target", "a.png", "input", errors.CategoryValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := m.Stage(tc.image, tc.target)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, tc.category), "got %v", err)
		})
	}
}

func TestUndoEmptyQueue(t *testing.T) {
	m := newWorkspace(t, nil, nil)
	_, err := m.Undo()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryEmptyQueue))
}

func TestCommitEmptyQueue(t *testing.T) {
	m := newWorkspace(t, nil, nil)
	_, err := m.Commit()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryEmptyQueue))
}

func TestCommitPartialFailure(t *testing.T) {
	m := newWorkspace(t, []string{"cats", "dogs"}, []string{"a.png", "b.png"})

	require.NoError(t, m.Stage("a.png", "cats"))
	require.NoError(t, m.Stage("b.png", "dogs"))

	// b.png vanishes between staging and commit.
	require.NoError(t, os.Remove(filepath.Join(m.InputDir(), "b.png")))

	result, err := m.Commit()
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.True(t, result.Items[0].Moved)
	assert.False(t, result.Items[1].Moved)
	assert.Contains(t, result.Items[1].Error, "b.png")
	assert.Equal(t, 1, result.Moved)

	// The queue ends empty regardless of per-item outcomes.
	assert.Zero(t, m.Len())
	assert.FileExists(t, filepath.Join(m.WorkingDir(), "cats", "a.png"))
}

func TestCommitPublishesDatasetChanged(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cats"), 0o755))
	m, err := New(root, WithBus(bus))
	require.NoError(t, err)
	writeImage(t, m.InputDir(), "a.png")

	received := make(chan events.DatasetChanged, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, bus.SubscribeDatasetChanged(ctx, func(ev events.DatasetChanged) {
		received <- ev
	}))

	require.NoError(t, m.Stage("a.png", "cats"))
	_, err = m.Commit()
	require.NoError(t, err)

	select {
	case ev := <-received:
		assert.Equal(t, []string{"a.png"}, ev.MovedImages)
		assert.Equal(t, []string{"cats"}, ev.Targets)
	case <-time.After(2 * time.Second):
		t.Fatal("no dataset-changed event received")
	}
}

func TestCommitWithoutMovesPublishesNothing(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cats"), 0o755))
	m, err := New(root, WithBus(bus))
	require.NoError(t, err)
	writeImage(t, m.InputDir(), "a.png")

	received := make(chan events.DatasetChanged, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, bus.SubscribeDatasetChanged(ctx, func(ev events.DatasetChanged) {
		received <- ev
	}))

	require.NoError(t, m.Stage("a.png", "cats"))
	require.NoError(t, os.Remove(filepath.Join(m.InputDir(), "a.png")))

	result, err := m.Commit()
	require.NoError(t, err)
	assert.Zero(t, result.Moved)

	select {
	case <-received:
		t.Fatal("dataset-changed event published for a commit that moved nothing")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNextImageSkipsPendingAndNonImages(t *testing.T) {
	m := newWorkspace(t, []string{"cats"}, []string{"b.jpg", "a.png", "c.jpeg"})
	require.NoError(t, os.WriteFile(filepath.Join(m.InputDir(), "notes.txt"), []byte("x"), 0o644))

	next, err := m.NextImage()
	require.NoError(t, err)
	assert.Equal(t, "a.png", next)

	require.NoError(t, m.Stage("a.png", "cats"))
	next, err = m.NextImage()
	require.NoError(t, err)
	assert.Equal(t, "b.jpg", next)

	available, err := m.AvailableImages()
	require.NoError(t, err)
	assert.Equal(t, []string{"b.jpg", "c.jpeg"}, available)
}

func TestNextImageEmptyInput(t *testing.T) {
	m := newWorkspace(t, nil, nil)
	_, err := m.NextImage()
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestFoldersReportState(t *testing.T) {
	m := newWorkspace(t, []string{"cats", "dogs"}, []string{"a.png"})
	writeImage(t, filepath.Join(m.WorkingDir(), "dogs"), "old.png")
	require.NoError(t, m.Stage("a.png", "cats"))

	records, err := m.Folders()
	require.NoError(t, err)

	byName := make(map[string]FolderRecord, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}

	require.Contains(t, byName, InputFolder)
	require.Contains(t, byName, TrashFolder)
	assert.Equal(t, FolderRecord{Name: "cats", IsEmpty: true, PendingCount: 1}, byName["cats"])
	assert.Equal(t, FolderRecord{Name: "dogs", IsEmpty: false, PendingCount: 0}, byName["dogs"])
}

func TestCreateFolder(t *testing.T) {
	m := newWorkspace(t, nil, nil)

	require.NoError(t, m.CreateFolder("birds"))
	info, err := os.Stat(filepath.Join(m.WorkingDir(), "birds"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Creating an existing folder is idempotent.
	assert.NoError(t, m.CreateFolder("birds"))

	err = m.CreateFolder("../escape")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestDeleteFolderGates(t *testing.T) {
	m := newWorkspace(t, []string{"cats", "dogs", "empty"}, []string{"a.png"})
	writeImage(t, filepath.Join(m.WorkingDir(), "dogs"), "old.png")
	require.NoError(t, m.Stage("a.png", "cats"))

	err := m.DeleteFolder("input")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	err = m.DeleteFolder("dogs")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict), "non-empty folder")

	err = m.DeleteFolder("cats")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict), "pending actions")

	err = m.DeleteFolder("ghost")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, m.DeleteFolder("empty"))
	assert.NoDirExists(t, filepath.Join(m.WorkingDir(), "empty"))
}

func TestMoveFileCopyFallbackPreservesContent(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "src.png")
	dest := filepath.Join(dir, "dst.png")
	require.NoError(t, os.WriteFile(source, []byte("payload"), 0o644))

	require.NoError(t, moveFile(source, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.NoFileExists(t, source)
}
