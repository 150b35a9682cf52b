// Package modelstore persists exactly one trained classifier generation
// together with the dataset fingerprint it was trained on.
//
// A generation is stored as two co-located artifacts: the head weights blob
// (binary, checksummed) and the fingerprint JSON carrying the ordered label
// list. The weights are written before the fingerprint so a torn write is
// detectable on load instead of silently serving wrong predictions.
package modelstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pixsort/pixsort-go/internal/errors"
	"github.com/pixsort/pixsort-go/internal/fingerprint"
)

const (
	weightsFileName     = "head_weights.bin"
	fingerprintFileName = "fingerprint.json"

	weightsMagic   = "PXSORT01"
	weightsVersion = 1
)

// Generation is one persisted, internally consistent (weights, label-index)
// pair. Labels are in index order: position i is the head's output i.
type Generation struct {
	Labels   []string  // label names in index order
	InputDim int       // feature vector length expected by the head
	Weights  []float32 // row-major [len(Labels) x InputDim]
	Bias     []float32 // [len(Labels)]
}

// LabelIndex returns the label -> output position mapping.
func (g *Generation) LabelIndex() map[string]int {
	index := make(map[string]int, len(g.Labels))
	for i, label := range g.Labels {
		index[label] = i
	}
	return index
}

// weightsHeader describes the weights blob payload.
type weightsHeader struct {
	Version    int       `json:"version"`
	InputDim   int       `json:"input_dim"`
	NumClasses int       `json:"num_classes"`
	SavedAt    time.Time `json:"saved_at"`
}

// Store owns the model artifacts directory. The lifecycle manager is the
// only writer; inference borrows generations read-only.
type Store struct {
	dir string
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("modelstore").
			Category(errors.CategoryFileIO).
			FileContext(dir).
			Build()
	}
	return &Store{dir: dir}, nil
}

func (s *Store) weightsPath() string     { return filepath.Join(s.dir, weightsFileName) }
func (s *Store) fingerprintPath() string { return filepath.Join(s.dir, fingerprintFileName) }

// Exists reports whether both artifacts are present.
func (s *Store) Exists() bool {
	if _, err := os.Stat(s.weightsPath()); err != nil {
		return false
	}
	_, err := os.Stat(s.fingerprintPath())
	return err == nil
}

// Save persists the generation and the fingerprint it was trained against.
// The weights blob is written first; each file is replaced atomically via a
// temp file and rename. Nothing is persisted if any step fails.
func (s *Store) Save(gen *Generation, fp *fingerprint.Fingerprint) error {
	if len(gen.Weights) != len(gen.Labels)*gen.InputDim {
		return errors.Newf("weights size %d does not match %d labels x %d features",
			len(gen.Weights), len(gen.Labels), gen.InputDim).
			Component("modelstore").
			Category(errors.CategoryState).
			Build()
	}
	if len(gen.Bias) != len(gen.Labels) {
		return errors.Newf("bias size %d does not match %d labels", len(gen.Bias), len(gen.Labels)).
			Component("modelstore").
			Category(errors.CategoryState).
			Build()
	}

	blob, err := encodeWeights(gen)
	if err != nil {
		return err
	}
	if err := s.writeAtomic(s.weightsPath(), blob); err != nil {
		return err
	}

	fpData, err := fp.Encode()
	if err != nil {
		return errors.New(err).
			Component("modelstore").
			Category(errors.CategoryFileIO).
			Build()
	}
	return s.writeAtomic(s.fingerprintPath(), fpData)
}

// Load reads the persisted generation, validating the weights checksum and
// the consistency between the two artifacts. Missing artifacts yield a
// not-found error; corrupt or mismatched artifacts yield model-unavailable,
// which forces the caller onto the full-retrain path.
func (s *Store) Load() (*Generation, error) {
	fp, err := s.LoadFingerprint()
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(s.weightsPath())
	if err != nil {
		if os.IsNotExist(err) {
			// Fingerprint present but weights absent: torn write.
			return nil, errors.ModelUnavailable(err, "weights artifact missing")
		}
		return nil, errors.New(err).
			Component("modelstore").
			Category(errors.CategoryFileIO).
			FileContext(s.weightsPath()).
			Build()
	}

	gen, err := decodeWeights(blob)
	if err != nil {
		return nil, err
	}

	if len(fp.Categories) != len(gen.Bias) {
		return nil, errors.ModelUnavailable(nil,
			fmt.Sprintf("fingerprint lists %d labels but weights were trained for %d",
				len(fp.Categories), len(gen.Bias)))
	}
	gen.Labels = append([]string(nil), fp.Categories...)
	return gen, nil
}

// LoadFingerprint reads only the stored fingerprint artifact.
func (s *Store) LoadFingerprint() (*fingerprint.Fingerprint, error) {
	data, err := os.ReadFile(s.fingerprintPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("no stored fingerprint at %s", s.fingerprintPath())
		}
		return nil, errors.New(err).
			Component("modelstore").
			Category(errors.CategoryFileIO).
			FileContext(s.fingerprintPath()).
			Build()
	}
	return fingerprint.Decode(data)
}

func (s *Store) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "artifact-*")
	if err != nil {
		return errors.New(err).
			Component("modelstore").
			Category(errors.CategoryFileIO).
			FileContext(s.dir).
			Build()
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.New(err).
			Component("modelstore").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.New(err).
			Component("modelstore").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.New(err).
			Component("modelstore").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return nil
}

// encodeWeights builds the weights blob: magic, header length, JSON header,
// little-endian float32 payload (weights then bias), SHA-256 payload digest.
func encodeWeights(gen *Generation) ([]byte, error) {
	header, err := json.Marshal(weightsHeader{
		Version:    weightsVersion,
		InputDim:   gen.InputDim,
		NumClasses: len(gen.Labels),
		SavedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, errors.New(err).Component("modelstore").Build()
	}

	payload := make([]byte, 0, (len(gen.Weights)+len(gen.Bias))*4)
	payload = appendFloats(payload, gen.Weights)
	payload = appendFloats(payload, gen.Bias)
	digest := sha256.Sum256(payload)

	var buf bytes.Buffer
	buf.WriteString(weightsMagic)
	var headerLen [4]byte
	binary.LittleEndian.PutUint32(headerLen[:], uint32(len(header)))
	buf.Write(headerLen[:])
	buf.Write(header)
	buf.Write(payload)
	buf.Write(digest[:])
	return buf.Bytes(), nil
}

func decodeWeights(blob []byte) (*Generation, error) {
	const magicLen = len(weightsMagic)
	if len(blob) < magicLen+4 || string(blob[:magicLen]) != weightsMagic {
		return nil, errors.ModelUnavailable(nil, "weights artifact has no valid header")
	}
	headerLen := int(binary.LittleEndian.Uint32(blob[magicLen : magicLen+4]))
	headerStart := magicLen + 4
	if len(blob) < headerStart+headerLen+sha256.Size {
		return nil, errors.ModelUnavailable(nil, "weights artifact truncated")
	}

	var header weightsHeader
	if err := json.Unmarshal(blob[headerStart:headerStart+headerLen], &header); err != nil {
		return nil, errors.ModelUnavailable(err, "weights header unreadable")
	}
	if header.Version != weightsVersion {
		return nil, errors.ModelUnavailable(nil,
			fmt.Sprintf("unsupported weights version %d", header.Version))
	}

	payload := blob[headerStart+headerLen : len(blob)-sha256.Size]
	digest := sha256.Sum256(payload)
	if !bytes.Equal(digest[:], blob[len(blob)-sha256.Size:]) {
		return nil, errors.ModelUnavailable(nil, "weights checksum mismatch")
	}

	wantFloats := header.InputDim*header.NumClasses + header.NumClasses
	if len(payload) != wantFloats*4 {
		return nil, errors.ModelUnavailable(nil, "weights payload size mismatch")
	}

	floats := make([]float32, wantFloats)
	for i := range floats {
		bits := binary.LittleEndian.Uint32(payload[i*4:])
		floats[i] = math.Float32frombits(bits)
	}

	split := header.InputDim * header.NumClasses
	return &Generation{
		InputDim: header.InputDim,
		Weights:  floats[:split],
		Bias:     floats[split:],
	}, nil
}

func appendFloats(dst []byte, src []float32) []byte {
	var scratch [4]byte
	for _, f := range src {
		binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(f))
		dst = append(dst, scratch[:]...)
	}
	return dst
}
