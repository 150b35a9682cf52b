// predict.go single-image inference against the persisted generation
package classifier

import (
	"math"

	"github.com/pixsort/pixsort-go/internal/errors"
)

// Score is the per-label classification result. Unavailable marks a label
// the current generation was never trained on, e.g. a freshly created
// folder; it is distinct from a zero percentage.
type Score struct {
	Percent     float64 `json:"percent"`
	Unavailable bool    `json:"unavailable,omitempty"`
}

// Classify runs one forward pass against the currently persisted generation
// and maps every trained label to a percentage score. Labels present in
// currentLabels but absent from the trained index are reported with the
// unavailable sentinel rather than omitted. The numeric scores sum to 100
// within rounding.
func (m *Manager) Classify(imageData []byte, currentLabels []string) (map[string]Score, error) {
	if m.metrics != nil {
		m.metrics.PredictionTotal.Inc()
	}

	scores, err := m.classify(imageData, currentLabels)
	if err != nil && m.metrics != nil {
		m.metrics.PredictionErrors.Inc()
	}
	return scores, err
}

func (m *Manager) classify(imageData []byte, currentLabels []string) (map[string]Score, error) {
	gen, err := m.store.Load()
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ModelUnavailable(err, "no trained generation exists")
		}
		return nil, err
	}
	if len(gen.Labels) == 0 {
		return nil, errors.ModelUnavailable(nil, "persisted generation has no labels")
	}
	if gen.InputDim != m.extractor.Dim() {
		return nil, errors.ModelUnavailable(nil, "persisted generation does not match the backbone feature size")
	}

	tensor, err := tensorForImage(imageData)
	if err != nil {
		return nil, err
	}
	features, err := m.extractor.Features(tensor)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Build()
	}

	h := headFromGeneration(gen)
	probs := softmax(h.logits(features))

	scores := make(map[string]Score, len(gen.Labels)+len(currentLabels))
	for i, label := range gen.Labels {
		scores[label] = Score{Percent: math.Round(probs[i]*10000) / 100}
	}
	for _, label := range currentLabels {
		if _, trained := scores[label]; !trained {
			scores[label] = Score{Unavailable: true}
		}
	}
	return scores, nil
}
