package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// encodePNG renders a small solid-color test image.
func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestIsImageFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"photo.jpg", true},
		{"photo.JPEG", true},
		{"photo.PNG", true},
		{"photo.gif", false},
		{"notes.txt", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := IsImageFile(tt.name); got != tt.want {
			t.Errorf("IsImageFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte("not an image")); err == nil {
		t.Fatal("expected decode error for garbage bytes")
	}
}

func TestToTensorShapeAndNormalization(t *testing.T) {
	t.Parallel()

	img, err := Decode(encodePNG(t, 64, 48, color.RGBA{R: 255, G: 255, B: 255, A: 255}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	tensor := ToTensor(img)
	if len(tensor) != TensorLen {
		t.Fatalf("tensor length = %d, want %d", len(tensor), TensorLen)
	}

	// Pure white normalizes to (1 - mean) / std on every channel.
	wantR := (1.0 - channelMean[0]) / channelStd[0]
	if math.Abs(float64(tensor[0]-wantR)) > 1e-4 {
		t.Errorf("red channel = %f, want %f", tensor[0], wantR)
	}
}

func TestAugmenterNoneIsIdentity(t *testing.T) {
	t.Parallel()

	img, err := Decode(encodePNG(t, 32, 32, color.RGBA{R: 10, G: 20, B: 30, A: 255}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	a := NewAugmenter("none", 1)
	out := a.Apply(img)
	if !bytes.Equal(img.Pix, out.Pix) {
		t.Error("augmentation mode none must not modify the raster")
	}
}

func TestAugmenterKeepsDimensions(t *testing.T) {
	t.Parallel()

	img, err := Decode(encodePNG(t, 40, 30, color.RGBA{R: 100, G: 150, B: 200, A: 255}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	for _, mode := range []string{"mild", "heavy"} {
		a := NewAugmenter(mode, 42)
		out := a.Apply(img)
		if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 30 {
			t.Errorf("mode %s changed dimensions to %v", mode, out.Bounds())
		}
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	raw := encodePNG(t, 8, 8, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	path := filepath.Join(t.TempDir(), "img.png")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := NewPayloadFromFile(path, "img.png")
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.MimeType != "image/png" {
		t.Errorf("mime = %q, want image/png", p.MimeType)
	}

	back, err := p.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	if !bytes.Equal(back, raw) {
		t.Error("payload round trip altered the bytes")
	}
}
