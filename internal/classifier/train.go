// train.go mini-batch cross-entropy training loop for the head
package classifier

import (
	"context"
	"math"
	"math/rand"

	"github.com/pixsort/pixsort-go/internal/conf"
)

// Adam optimizer constants.
const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// adamState carries first and second moment estimates for one parameter
// vector across update steps.
type adamState struct {
	m, v []float32
	t    int
}

func newAdamState(size int) *adamState {
	return &adamState{m: make([]float32, size), v: make([]float32, size)}
}

// step applies one Adam update to params given the accumulated gradients.
func (s *adamState) step(params, grads []float32, lr float64) {
	s.t++
	correction1 := 1 - math.Pow(adamBeta1, float64(s.t))
	correction2 := 1 - math.Pow(adamBeta2, float64(s.t))
	for i, g := range grads {
		s.m[i] = adamBeta1*s.m[i] + (1-adamBeta1)*g
		s.v[i] = adamBeta2*s.v[i] + (1-adamBeta2)*g*g
		mHat := float64(s.m[i]) / correction1
		vHat := float64(s.v[i]) / correction2
		params[i] -= float32(lr * mHat / (math.Sqrt(vHat) + adamEpsilon))
	}
}

// trainHead runs the fixed-epoch supervised loop: shuffled mini-batches,
// softmax cross-entropy loss, Adam on the head parameters only. The context
// is checked between batches; a cancelled run returns without touching any
// persisted state.
func trainHead(ctx context.Context, h *head, samples []sample, settings *conf.TrainingSettings, rng *rand.Rand) error {
	if len(samples) == 0 {
		return nil
	}

	log := getLogger()
	weightOpt := newAdamState(len(h.weights))
	biasOpt := newAdamState(len(h.bias))

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}

	gradW := make([]float32, len(h.weights))
	gradB := make([]float32, len(h.bias))

	for epoch := 0; epoch < settings.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		var runningLoss float64
		for start := 0; start < len(order); start += settings.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}

			end := min(start+settings.BatchSize, len(order))
			batch := order[start:end]

			clear(gradW)
			clear(gradB)

			for _, idx := range batch {
				s := samples[idx]
				probs := softmax(h.logits(s.features))
				runningLoss += -math.Log(math.Max(probs[s.label], 1e-12))

				for c := 0; c < h.numClasses; c++ {
					dLogit := float32(probs[c])
					if c == s.label {
						dLogit -= 1
					}
					row := gradW[c*h.inputDim : (c+1)*h.inputDim]
					for i, f := range s.features {
						row[i] += dLogit * f
					}
					gradB[c] += dLogit
				}
			}

			// Average gradients over the batch before the update.
			scale := float32(1) / float32(len(batch))
			for i := range gradW {
				gradW[i] *= scale
			}
			for i := range gradB {
				gradB[i] *= scale
			}

			weightOpt.step(h.weights, gradW, settings.LearningRate)
			biasOpt.step(h.bias, gradB, settings.LearningRate)
		}

		epochLoss := runningLoss / float64(len(samples))
		log.Info("training epoch complete",
			"epoch", epoch+1,
			"epochs", settings.Epochs,
			"loss", epochLoss,
			"samples", len(samples))
	}

	return nil
}
