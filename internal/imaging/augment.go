package imaging

import (
	"image"
	"math"
	"math/rand"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Augmenter applies train-time perturbations before tensor conversion.
// Inference always uses the un-augmented path.
type Augmenter struct {
	Mode string // "none", "mild" or "heavy"
	rng  *rand.Rand
}

// NewAugmenter creates an augmenter with the given mode and seed.
func NewAugmenter(mode string, seed int64) *Augmenter {
	return &Augmenter{Mode: mode, rng: rand.New(rand.NewSource(seed))}
}

// Apply perturbs the raster according to the configured mode.
func (a *Augmenter) Apply(img *image.RGBA) *image.RGBA {
	switch a.Mode {
	case "mild":
		if a.rng.Intn(2) == 0 {
			img = flipHorizontal(img)
		}
		img = rotate(img, a.randomDegrees(10))
	case "heavy":
		if a.rng.Intn(2) == 0 {
			img = flipHorizontal(img)
		}
		img = rotate(img, a.randomDegrees(45))
		img = a.randomCrop(img, 0.8)
	}
	return img
}

func (a *Augmenter) randomDegrees(limit float64) float64 {
	return (a.rng.Float64()*2 - 1) * limit
}

func flipHorizontal(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, img.At(b.Min.X+b.Dx()-1-x, b.Min.Y+y))
		}
	}
	return out
}

// rotate turns the raster around its center by the given angle in degrees,
// keeping the original dimensions.
func rotate(img *image.RGBA, degrees float64) *image.RGBA {
	if degrees == 0 {
		return img
	}
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	// Rotation around the image center expressed as an affine transform.
	m := f64.Aff3{
		cos, -sin, w/2 - cos*w/2 + sin*h/2,
		sin, cos, h/2 - sin*w/2 - cos*h/2,
	}

	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.CatmullRom.Transform(out, m, img, b, xdraw.Src, nil)
	return out
}

// randomCrop takes a random sub-rectangle with area at least minScale of the
// original and scales it back to the original size.
func (a *Augmenter) randomCrop(img *image.RGBA, minScale float64) *image.RGBA {
	b := img.Bounds()
	scale := minScale + a.rng.Float64()*(1-minScale)
	cw := int(float64(b.Dx()) * scale)
	ch := int(float64(b.Dy()) * scale)
	if cw < 1 || ch < 1 {
		return img
	}
	x0 := b.Min.X + a.rng.Intn(b.Dx()-cw+1)
	y0 := b.Min.Y + a.rng.Intn(b.Dy()-ch+1)

	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	src := image.Rect(x0, y0, x0+cw, y0+ch)
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, src, xdraw.Src, nil)
	return out
}
