package pending

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pixsort/pixsort-go/internal/errors"
	"github.com/pixsort/pixsort-go/internal/events"
)

// CommitItem is the per-action outcome of a commit.
type CommitItem struct {
	ImageName string `json:"image"`
	Target    string `json:"target_folder"`
	Moved     bool   `json:"moved"`
	Error     string `json:"error,omitempty"`
}

// CommitResult enumerates every drained action in staging order.
type CommitResult struct {
	Items []CommitItem `json:"items"`
	Moved int          `json:"moved"`
}

// Commit drains the queue oldest-first, moving each image from the input
// folder into its target. A failed move is recorded per item and does not
// abort the rest; the queue ends empty either way. When at least one move
// succeeded a dataset-changed event is published.
func (m *Manager) Commit() (CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.actions) == 0 {
		return CommitResult{}, errors.Newf("no pending actions to commit").
			Component("pending").
			Category(errors.CategoryEmptyQueue).
			Build()
	}

	result := CommitResult{Items: make([]CommitItem, 0, len(m.actions))}
	var movedImages, movedTargets []string

	for i := range m.actions {
		action := m.actions[i]
		item := CommitItem{ImageName: action.ImageName, Target: action.Target}

		source := filepath.Join(m.InputDir(), action.ImageName)
		destDir := filepath.Join(m.root, action.Target)
		dest := filepath.Join(destDir, action.ImageName)

		if err := m.moveOne(source, destDir, dest); err != nil {
			item.Error = err.Error()
			m.countMove("error")
			getLogger().Warn("commit move failed",
				"image", action.ImageName,
				"target", action.Target,
				"error", err)
		} else {
			item.Moved = true
			result.Moved++
			movedImages = append(movedImages, action.ImageName)
			movedTargets = append(movedTargets, action.Target)
			m.countMove("moved")
		}
		result.Items = append(result.Items, item)
	}

	m.actions = m.actions[:0]
	m.setPendingGauge()

	getLogger().Info("commit finished",
		"moved", result.Moved,
		"failed", len(result.Items)-result.Moved)

	if result.Moved > 0 && m.bus != nil {
		event := events.DatasetChanged{
			MovedImages: movedImages,
			Targets:     movedTargets,
			OccurredAt:  time.Now(),
		}
		if err := m.bus.PublishDatasetChanged(event); err != nil {
			getLogger().Error("failed to publish dataset-changed event", "error", err)
		}
	}

	return result, nil
}

func (m *Manager) moveOne(source, destDir, dest string) error {
	if _, err := os.Stat(source); err != nil {
		return errors.NotFound("image %q not found in input folder", filepath.Base(source))
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errors.New(err).
			Component("pending").
			Category(errors.CategoryFileIO).
			FileContext(destDir).
			Build()
	}
	if err := moveFile(source, dest); err != nil {
		return errors.New(err).
			Component("pending").
			Category(errors.CategoryFileIO).
			FileContext(source).
			Build()
	}
	return nil
}

func (m *Manager) countMove(outcome string) {
	if m.metrics != nil {
		m.metrics.CommitMoves.WithLabelValues(outcome).Inc()
	}
}

// moveFile renames source to dest, falling back to copy-then-remove when
// the two paths sit on different filesystems.
func moveFile(source, dest string) error {
	if err := os.Rename(source, dest); err == nil {
		return nil
	}

	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return os.Remove(source)
}
