// lifecycle.go classifier lifecycle orchestration: reuse, retrain, extend
package classifier

import (
	"context"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/pixsort/pixsort-go/internal/conf"
	"github.com/pixsort/pixsort-go/internal/errors"
	"github.com/pixsort/pixsort-go/internal/events"
	"github.com/pixsort/pixsort-go/internal/fingerprint"
	"github.com/pixsort/pixsort-go/internal/imaging"
	"github.com/pixsort/pixsort-go/internal/modelstore"
	"github.com/pixsort/pixsort-go/internal/observability"
)

// Manager owns the model store and decides, per request, whether the
// persisted generation can be reused, must be retrained from scratch, or can
// be extended with new labels. All operations are serialized; training is
// synchronous and blocking by contract.
type Manager struct {
	settings  *conf.Settings
	store     *modelstore.Store
	extractor FeatureExtractor
	metrics   *observability.Metrics
	mu        sync.Mutex
}

// Option is a functional option for configuring the Manager.
type Option func(*Manager)

// WithMetrics attaches a metrics instance.
func WithMetrics(m *observability.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// NewManager creates a lifecycle manager over the given store and backbone.
func NewManager(settings *conf.Settings, store *modelstore.Store, extractor FeatureExtractor, opts ...Option) *Manager {
	mgr := &Manager{
		settings:  settings,
		store:     store,
		extractor: extractor,
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

func (m *Manager) rng() *rand.Rand {
	seed := m.settings.Training.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func (m *Manager) trainAugmenter() *imaging.Augmenter {
	seed := m.settings.Training.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return imaging.NewAugmenter(m.settings.Training.Augmentation, seed)
}

// EnsureModel guarantees a persisted generation consistent with the labeled
// dataset on disk. If the stored fingerprint matches the current scan the
// stored generation is returned unchanged; otherwise a full retrain runs and
// its result is persisted together with the new fingerprint. Nothing is
// persisted when training fails or is cancelled.
func (m *Manager) EnsureModel(ctx context.Context) (*modelstore.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureModelLocked(ctx)
}

func (m *Manager) ensureModelLocked(ctx context.Context) (*modelstore.Generation, error) {
	log := getLogger()
	root := m.settings.Sorter.WorkingDir

	fpNow, err := fingerprint.Compute(root, m.settings.Sorter.InputFolder)
	if err != nil {
		return nil, err
	}

	if stored, err := m.store.LoadFingerprint(); err == nil && !stored.IsEmpty() && stored.Equal(fpNow) {
		gen, err := m.store.Load()
		if err == nil {
			log.Info("dataset unchanged, reusing persisted model",
				"labels", len(gen.Labels))
			m.countRun("reuse", "ok")
			return gen, nil
		}
		if !errors.IsModelUnavailable(err) {
			return nil, err
		}
		log.Warn("persisted model unusable, falling back to full retrain", "error", err)
	}

	return m.retrainLocked(ctx, fpNow)
}

func (m *Manager) retrainLocked(ctx context.Context, fpNow *fingerprint.Fingerprint) (*modelstore.Generation, error) {
	log := getLogger()
	start := time.Now()

	labels := append([]string(nil), fpNow.Categories...)
	labelIndex := make(map[string]int, len(labels))
	for i, label := range labels {
		labelIndex[label] = i
	}

	if len(labels) == 0 {
		// No category folders yet: nothing to train against and nothing
		// to persist. Callers get an empty generation.
		log.Info("no category folders found, skipping training")
		return &modelstore.Generation{InputDim: m.extractor.Dim()}, nil
	}

	rng := m.rng()
	h := newHead(m.extractor.Dim(), len(labels), rng)

	samples, err := loadTrainingSamples(m.settings.Sorter.WorkingDir, labelIndex,
		m.extractor, m.trainAugmenter(), m.settings.Sorter.InputFolder)
	if err != nil {
		m.countRun("full", "error")
		return nil, err
	}

	log.Info("starting full retrain",
		"labels", len(labels),
		"samples", len(samples))

	if err := trainHead(ctx, h, samples, &m.settings.Training, rng); err != nil {
		m.countRun("full", "cancelled")
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryTraining).
			Timing("full-retrain", time.Since(start)).
			Build()
	}

	gen := h.generation(labels)
	if err := m.store.Save(gen, fpNow); err != nil {
		m.countRun("full", "error")
		return nil, err
	}

	m.countRun("full", "ok")
	m.observeTraining(time.Since(start))
	log.Info("full retrain complete",
		"labels", len(labels),
		"samples", len(samples),
		"duration", time.Since(start))
	return gen, nil
}

// ExtendModel grows the persisted generation with newly observed labels
// while preserving the learned weights of existing ones. Existing labels
// keep their original indices; new labels are appended sorted. Only the
// supplied feedback images are used for fine-tuning. The persisted
// fingerprint is recomputed over the updated label order.
func (m *Manager) ExtendModel(ctx context.Context, feedback []FeedbackImage, categories []string) (*modelstore.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := getLogger()
	start := time.Now()

	stored, err := m.store.LoadFingerprint()
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ModelUnavailable(err, "no trained generation to extend")
		}
		return nil, err
	}
	oldLabels := stored.Categories
	if len(oldLabels) == 0 {
		return nil, errors.ModelUnavailable(nil, "stored generation has no labels")
	}

	oldGen, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	// Old labels keep their positions; genuinely new ones are appended in
	// lexicographic order.
	added := make([]string, 0, len(categories))
	known := make(map[string]bool, len(oldLabels))
	for _, label := range oldLabels {
		known[label] = true
	}
	for _, label := range categories {
		if !known[label] {
			added = append(added, label)
			known[label] = true
		}
	}
	slices.Sort(added)
	updated := append(append([]string(nil), oldLabels...), added...)

	labelIndex := make(map[string]int, len(updated))
	for i, label := range updated {
		labelIndex[label] = i
	}

	rng := m.rng()
	h := headFromGeneration(oldGen).extend(len(updated), rng)

	samples, err := feedbackSamples(feedback, labelIndex, m.extractor, m.trainAugmenter())
	if err != nil {
		m.countRun("extend", "error")
		return nil, err
	}

	log.Info("starting incremental extend",
		"old_labels", len(oldLabels),
		"new_labels", len(added),
		"samples", len(samples))

	if err := trainHead(ctx, h, samples, &m.settings.Training, rng); err != nil {
		m.countRun("extend", "cancelled")
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryTraining).
			Timing("incremental-extend", time.Since(start)).
			Build()
	}

	fpNow, err := fingerprint.Compute(m.settings.Sorter.WorkingDir, m.settings.Sorter.InputFolder)
	if err != nil {
		m.countRun("extend", "error")
		return nil, err
	}
	// The stored category order is the label index order, which after an
	// extend is no longer lexicographic.
	fpNow.Categories = updated

	gen := h.generation(updated)
	if err := m.store.Save(gen, fpNow); err != nil {
		m.countRun("extend", "error")
		return nil, err
	}

	m.countRun("extend", "ok")
	m.observeTraining(time.Since(start))
	log.Info("incremental extend complete",
		"labels", len(updated),
		"duration", time.Since(start))
	return gen, nil
}

// StartCommitListener subscribes the manager to dataset-changed events so
// committed moves trigger the configured retraining mode. Because EnsureModel
// reuses the persisted generation when the fingerprint is unchanged, an
// event-triggered run and a direct caller-initiated run coalesce instead of
// training twice.
func (m *Manager) StartCommitListener(ctx context.Context, bus *events.Bus) error {
	return bus.SubscribeDatasetChanged(ctx, func(event events.DatasetChanged) {
		log := getLogger()
		log.Info("dataset changed, refreshing model",
			"moved", len(event.MovedImages),
			"mode", m.settings.Training.OnCommit)
		if _, err := m.EnsureModel(ctx); err != nil {
			log.Error("retraining after commit failed", "error", err)
		}
	})
}

func (m *Manager) countRun(kind, outcome string) {
	if m.metrics != nil {
		m.metrics.TrainingRuns.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Manager) observeTraining(d time.Duration) {
	if m.metrics != nil {
		m.metrics.TrainingDuration.Observe(d.Seconds())
	}
}
