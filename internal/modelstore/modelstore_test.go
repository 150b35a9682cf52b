package modelstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixsort/pixsort-go/internal/errors"
	"github.com/pixsort/pixsort-go/internal/fingerprint"
)

func testGeneration() *Generation {
	return &Generation{
		Labels:   []string{"cats", "dogs"},
		InputDim: 3,
		Weights:  []float32{0.1, 0.2, 0.3, -0.1, -0.2, -0.3},
		Bias:     []float32{0.5, -0.5},
	}
}

func testFingerprint() *fingerprint.Fingerprint {
	return &fingerprint.Fingerprint{
		Categories: []string{"cats", "dogs"},
		Data: map[string][]fingerprint.ImageEntry{
			"cats": {{Filename: "a.jpg", Hash: "aa"}},
			"dogs": {{Filename: "b.jpg", Hash: "bb"}},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.False(t, store.Exists())
	require.NoError(t, store.Save(testGeneration(), testFingerprint()))
	require.True(t, store.Exists())

	gen, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"cats", "dogs"}, gen.Labels)
	assert.Equal(t, 3, gen.InputDim)
	assert.Equal(t, testGeneration().Weights, gen.Weights)
	assert.Equal(t, testGeneration().Bias, gen.Bias)

	fp, err := store.LoadFingerprint()
	require.NoError(t, err)
	assert.True(t, fp.Equal(testFingerprint()))
}

func TestLoadWithoutArtifacts(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load()
	assert.True(t, errors.IsNotFound(err), "missing artifacts should be not-found, got %v", err)
}

func TestLoadDetectsTornWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(testGeneration(), testFingerprint()))

	// Fingerprint present, weights gone: must be model-unavailable, not a
	// silent success.
	require.NoError(t, os.Remove(filepath.Join(dir, "head_weights.bin")))

	_, err = store.Load()
	assert.True(t, errors.IsModelUnavailable(err), "torn write should be model-unavailable, got %v", err)
}

func TestLoadDetectsCorruptPayload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(testGeneration(), testFingerprint()))

	path := filepath.Join(dir, "head_weights.bin")
	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip one payload byte past the header.
	blob[len(blob)-40] ^= 0xFF
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	_, err = store.Load()
	assert.True(t, errors.IsModelUnavailable(err), "corrupt payload should be model-unavailable, got %v", err)
}

func TestLoadDetectsLabelCountMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(testGeneration(), testFingerprint()))

	// Rewrite the fingerprint with an extra label against the same weights.
	fp := testFingerprint()
	fp.Categories = append(fp.Categories, "birds")
	fp.Data["birds"] = []fingerprint.ImageEntry{}
	data, err := fp.Encode()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fingerprint.json"), data, 0o644))

	_, err = store.Load()
	assert.True(t, errors.IsModelUnavailable(err), "label/weight mismatch should be model-unavailable, got %v", err)
}

func TestSaveRejectsInconsistentGeneration(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	gen := testGeneration()
	gen.Bias = gen.Bias[:1]
	assert.Error(t, store.Save(gen, testFingerprint()))
	assert.False(t, store.Exists(), "failed save must not leave artifacts behind")
}
