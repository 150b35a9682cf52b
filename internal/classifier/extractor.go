// extractor.go frozen feature extractor backing the trainable head
package classifier

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/pixsort/pixsort-go/internal/conf"
	"github.com/pixsort/pixsort-go/internal/errors"
	"github.com/pixsort/pixsort-go/internal/imaging"
)

// FeatureExtractor turns a prepared input tensor into a fixed-length feature
// vector. Implementations must be safe for sequential reuse; the lifecycle
// manager serializes calls.
type FeatureExtractor interface {
	// Features runs one forward pass over the frozen backbone.
	Features(tensor []float32) ([]float32, error)
	// Dim is the length of the returned feature vectors.
	Dim() int
	// Close releases the underlying model resources.
	Close() error
}

// TFLiteExtractor wraps a TensorFlow Lite embeddings model as the frozen
// general-purpose backbone.
type TFLiteExtractor struct {
	interpreter *tflite.Interpreter
	dim         int
	mu          sync.Mutex
}

// NewTFLiteExtractor loads the backbone model configured in settings.
func NewTFLiteExtractor(settings *conf.BackboneSettings) (*TFLiteExtractor, error) {
	start := time.Now()

	modelPath := os.ExpandEnv(settings.ModelPath)
	if strings.HasPrefix(modelPath, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryFileIO).
				Context("path", modelPath).
				Build()
		}
		modelPath = filepath.Join(homeDir, modelPath[2:])
	}

	modelData, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			FileContext(modelPath).
			Timing("backbone-file-read", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, errors.Newf("cannot load TensorFlow Lite backbone model").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Context("model_size_mb", len(modelData)/1024/1024).
			Build()
	}

	threads := determineThreadCount(settings.Threads)
	options := tflite.NewInterpreterOptions()

	log := getLogger()
	if settings.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: thread count bounded by CPU count, safe conversion
		if delegate == nil {
			log.Warn("failed to create XNNPACK delegate, falling back to default CPU")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, user_data any) {
		getLogger().Error("TFLite error", "message", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, errors.Newf("cannot create backbone interpreter").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		return nil, errors.Newf("backbone tensor allocation failed").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}

	outputTensor := interpreter.GetOutputTensor(0)
	if outputTensor == nil {
		return nil, errors.Newf("backbone model has no output tensor").
			Component("classifier").
			Category(errors.CategoryModelInit).
			Build()
	}
	dim := outputTensor.Dim(outputTensor.NumDims() - 1)

	// Backbone data is no longer needed, TFLite keeps its own copy.
	runtime.GC()

	log.Info("backbone model initialized",
		"model", modelPath,
		"feature_dim", dim,
		"threads", threads,
		"total_cpus", runtime.NumCPU())

	return &TFLiteExtractor{interpreter: interpreter, dim: dim}, nil
}

// Features implements FeatureExtractor.
func (e *TFLiteExtractor) Features(tensor []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inputTensor := e.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	if len(inputTensor.Float32s()) != len(tensor) {
		return nil, fmt.Errorf("input tensor expects %d values, got %d",
			len(inputTensor.Float32s()), len(tensor))
	}
	copy(inputTensor.Float32s(), tensor)

	if status := e.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	outputTensor := e.interpreter.GetOutputTensor(0)
	features := make([]float32, e.dim)
	copy(features, outputTensor.Float32s())
	return features, nil
}

// Dim implements FeatureExtractor.
func (e *TFLiteExtractor) Dim() int {
	return e.dim
}

// Close implements FeatureExtractor.
func (e *TFLiteExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.interpreter != nil {
		e.interpreter.Delete()
		e.interpreter = nil
	}
	return nil
}

// determineThreadCount maps the configured value to a usable thread count.
func determineThreadCount(configured int) int {
	if configured > 0 {
		return min(configured, runtime.NumCPU())
	}
	return runtime.NumCPU()
}

// tensorForImage prepares the backbone input for raw image bytes.
func tensorForImage(data []byte) ([]float32, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}
	return imaging.ToTensor(img), nil
}
