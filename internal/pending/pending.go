// Package pending owns the staged-move queue and the category folder
// registry for a sorting workspace. Actions accumulate in staging order;
// undo pops the most recent, commit drains oldest-first and performs the
// physical moves.
package pending

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pixsort/pixsort-go/internal/errors"
	"github.com/pixsort/pixsort-go/internal/events"
	"github.com/pixsort/pixsort-go/internal/imaging"
	"github.com/pixsort/pixsort-go/internal/logging"
	"github.com/pixsort/pixsort-go/internal/observability"
)

// Reserved folder names inside the working directory.
const (
	InputFolder = "input"
	TrashFolder = "trash"
)

var (
	serviceLogger *slog.Logger
	loggerOnce    sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logging.ForService("pending")
	})
	return serviceLogger
}

// Action is a staged, not-yet-applied image move.
type Action struct {
	ImageName string    `json:"image"`
	Target    string    `json:"target_folder"`
	StagedAt  time.Time `json:"staged_at"`
}

// Manager holds the pending queue and mediates all workspace mutations.
// Operations are serialized with a mutex; the single-session gate at the
// API layer means contention is rare, but commit and stage must never
// interleave.
type Manager struct {
	mu      sync.Mutex
	root    string
	actions []Action
	bus     *events.Bus
	metrics *observability.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus attaches the event bus the commit path publishes on.
func WithBus(bus *events.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithMetrics attaches observability counters.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// New prepares a manager over workingDir, creating the reserved input and
// trash folders if they are missing.
func New(workingDir string, opts ...Option) (*Manager, error) {
	info, err := os.Stat(workingDir)
	if err != nil {
		return nil, errors.New(err).
			Component("pending").
			Category(errors.CategoryConfiguration).
			FileContext(workingDir).
			Build()
	}
	if !info.IsDir() {
		return nil, errors.Newf("working directory %s is not a directory", workingDir).
			Component("pending").
			Category(errors.CategoryConfiguration).
			Build()
	}

	for _, reserved := range []string{InputFolder, TrashFolder} {
		if err := os.MkdirAll(filepath.Join(workingDir, reserved), 0o755); err != nil {
			return nil, errors.New(err).
				Component("pending").
				Category(errors.CategoryFileIO).
				FileContext(filepath.Join(workingDir, reserved)).
				Build()
		}
	}

	m := &Manager{root: workingDir}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// WorkingDir returns the workspace root.
func (m *Manager) WorkingDir() string {
	return m.root
}

// InputDir returns the unsorted-image folder path.
func (m *Manager) InputDir() string {
	return filepath.Join(m.root, InputFolder)
}

// Stage records a pending move of imageName from the input folder to the
// target category. At most one action may be pending per image.
func (m *Manager) Stage(imageName, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateImageName(imageName); err != nil {
		return err
	}
	if err := validateFolderName(target); err != nil {
		return err
	}
	if strings.EqualFold(target, InputFolder) {
		return errors.ValidationError("cannot stage a move into the input folder")
	}

	if _, err := os.Stat(filepath.Join(m.root, target)); err != nil {
		return errors.NotFound("target folder %q does not exist", target)
	}
	if _, err := os.Stat(filepath.Join(m.InputDir(), imageName)); err != nil {
		return errors.NotFound("image %q not found in input folder", imageName)
	}

	for i := range m.actions {
		if m.actions[i].ImageName == imageName {
			return errors.Newf("image %q already has a pending action", imageName).
				Component("pending").
				Category(errors.CategoryDuplicatePending).
				Build()
		}
	}

	m.actions = append(m.actions, Action{
		ImageName: imageName,
		Target:    target,
		StagedAt:  time.Now(),
	})
	m.setPendingGauge()
	getLogger().Info("staged move", "image", imageName, "target", target, "pending", len(m.actions))
	return nil
}

// Undo removes and returns the most recently staged action.
func (m *Manager) Undo() (Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.actions) == 0 {
		return Action{}, errors.Newf("no pending actions to undo").
			Component("pending").
			Category(errors.CategoryEmptyQueue).
			Build()
	}

	last := m.actions[len(m.actions)-1]
	m.actions = m.actions[:len(m.actions)-1]
	m.setPendingGauge()
	getLogger().Info("undid staged move", "image", last.ImageName, "target", last.Target)
	return last, nil
}

// List returns the pending actions in staging order.
func (m *Manager) List() []Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Action, len(m.actions))
	copy(out, m.actions)
	return out
}

// Len reports the number of pending actions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.actions)
}

// NextImage returns the first input-folder image with no pending action,
// in lexical order.
func (m *Manager) NextImage() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names, err := m.availableLocked()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", errors.NotFound("no images found in input folder")
	}
	return names[0], nil
}

// AvailableImages lists every input-folder image with no pending action.
func (m *Manager) AvailableImages() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableLocked()
}

func (m *Manager) availableLocked() ([]string, error) {
	entries, err := os.ReadDir(m.InputDir())
	if err != nil {
		return nil, errors.New(err).
			Component("pending").
			Category(errors.CategoryFileIO).
			FileContext(m.InputDir()).
			Build()
	}

	pending := make(map[string]struct{}, len(m.actions))
	for i := range m.actions {
		pending[m.actions[i].ImageName] = struct{}{}
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !imaging.IsImageFile(entry.Name()) {
			continue
		}
		if _, staged := pending[entry.Name()]; staged {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (m *Manager) setPendingGauge() {
	if m.metrics != nil {
		m.metrics.PendingActions.Set(float64(len(m.actions)))
	}
}

func validateImageName(name string) error {
	if name == "" {
		return errors.ValidationError("image name is required")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return errors.ValidationError("image name must be a bare filename")
	}
	return nil
}

func validateFolderName(name string) error {
	if name == "" {
		return errors.ValidationError("folder name is required")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return errors.ValidationError("folder name must not contain path separators")
	}
	return nil
}
