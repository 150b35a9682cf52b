// head.go trainable softmax classification head over frozen features
package classifier

import (
	"math"
	"math/rand"

	"github.com/pixsort/pixsort-go/internal/modelstore"
)

// head is a single linear layer with one output per label. It is the only
// trainable part of the model; the backbone stays frozen.
type head struct {
	inputDim   int
	numClasses int
	weights    []float32 // row-major [numClasses x inputDim]
	bias       []float32 // [numClasses]
}

// newHead creates a head with small random weights.
func newHead(inputDim, numClasses int, rng *rand.Rand) *head {
	h := &head{
		inputDim:   inputDim,
		numClasses: numClasses,
		weights:    make([]float32, numClasses*inputDim),
		bias:       make([]float32, numClasses),
	}
	// Uniform init scaled by fan-in, matching a default linear layer.
	bound := float32(1.0 / math.Sqrt(float64(inputDim)))
	for i := range h.weights {
		h.weights[i] = (rng.Float32()*2 - 1) * bound
	}
	for i := range h.bias {
		h.bias[i] = (rng.Float32()*2 - 1) * bound
	}
	return h
}

// headFromGeneration rebuilds a head from persisted weights.
func headFromGeneration(gen *modelstore.Generation) *head {
	return &head{
		inputDim:   gen.InputDim,
		numClasses: len(gen.Bias),
		weights:    append([]float32(nil), gen.Weights...),
		bias:       append([]float32(nil), gen.Bias...),
	}
}

// extend grows the head to numTotal outputs: learned rows keep their
// positions, new trailing rows are randomly initialized.
func (h *head) extend(numTotal int, rng *rand.Rand) *head {
	grown := newHead(h.inputDim, numTotal, rng)
	copy(grown.weights[:h.numClasses*h.inputDim], h.weights)
	copy(grown.bias[:h.numClasses], h.bias)
	return grown
}

// logits computes the raw per-class outputs for one feature vector.
func (h *head) logits(features []float32) []float32 {
	out := make([]float32, h.numClasses)
	for c := 0; c < h.numClasses; c++ {
		row := h.weights[c*h.inputDim : (c+1)*h.inputDim]
		var sum float32
		for i, f := range features {
			sum += row[i] * f
		}
		out[c] = sum + h.bias[c]
	}
	return out
}

// softmax converts logits into a probability distribution. Subtracting the
// max keeps the exponentials in range.
func softmax(logits []float32) []float64 {
	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(float64(l - maxLogit))
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// generation snapshots the head into a persistable form with the given
// label order.
func (h *head) generation(labels []string) *modelstore.Generation {
	return &modelstore.Generation{
		Labels:   append([]string(nil), labels...),
		InputDim: h.inputDim,
		Weights:  append([]float32(nil), h.weights...),
		Bias:     append([]float32(nil), h.bias...),
	}
}
