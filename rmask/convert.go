package rmask

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// FromImage converts an image to a mask by normalized luminance. A grayscale
// mask render round-trips through ToGray.
func FromImage(img image.Image) *Mask {
	nrgba := imaging.Grayscale(imaging.Clone(img))
	out := NewMask(nrgba.Rect.Dx(), nrgba.Rect.Dy())
	for y := 0; y < out.height; y++ {
		for x := 0; x < out.width; x++ {
			out.data.Set(y, x, float64(nrgba.Pix[nrgba.PixOffset(x, y)])/255.)
		}
	}
	return out
}

// ToGray renders the mask as an 8-bit grayscale image, 0 -> black, 1 -> white.
func (m *Mask) ToGray() *image.Gray {
	out := image.NewGray(m.Bounds())
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			v := m.data.At(y, x)
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			out.SetGray(x, y, color.Gray{Y: uint8(v*255. + 0.5)})
		}
	}
	return out
}
