package imaging

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// InputSize is the fixed edge length of the backbone's input raster.
const InputSize = 224

// TensorLen is the number of float32 values in one prepared input tensor
// (height x width x RGB).
const TensorLen = InputSize * InputSize * 3

// Per-channel normalization constants matching the backbone's pretraining.
var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// Resize scales the raster to the backbone input size using Catmull-Rom
// interpolation.
func Resize(img *image.RGBA) *image.RGBA {
	if b := img.Bounds(); b.Dx() == InputSize && b.Dy() == InputSize {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, InputSize, InputSize))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// ToTensor converts a resized raster into a normalized HWC float32 tensor.
// Values are scaled to [0,1] and then normalized per channel.
func ToTensor(img *image.RGBA) []float32 {
	img = Resize(img)
	tensor := make([]float32, TensorLen)
	i := 0
	for y := 0; y < InputSize; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+InputSize*4]
		for x := 0; x < InputSize; x++ {
			px := row[x*4 : x*4+3]
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255.0
				tensor[i] = (v - channelMean[c]) / channelStd[c]
				i++
			}
		}
	}
	return tensor
}
