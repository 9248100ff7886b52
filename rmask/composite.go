package rmask

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Composite alpha-blends background over live, per channel:
//
//	out = alpha*background + (1-alpha)*live
//
// alpha=1 shows the background (the inpainted clean plate), alpha=0 shows the
// live frame. Both images must match the mask dimensions.
func Composite(alpha *Mask, background, live image.Image) (*image.NRGBA, error) {
	bg := imaging.Clone(background)
	lv := imaging.Clone(live)
	if bg.Rect.Dx() != alpha.Width() || bg.Rect.Dy() != alpha.Height() {
		return nil, errors.Errorf("composite: background is %dx%d, mask is %dx%d",
			bg.Rect.Dx(), bg.Rect.Dy(), alpha.Width(), alpha.Height())
	}
	if lv.Rect.Dx() != alpha.Width() || lv.Rect.Dy() != alpha.Height() {
		return nil, errors.Errorf("composite: live frame is %dx%d, mask is %dx%d",
			lv.Rect.Dx(), lv.Rect.Dy(), alpha.Width(), alpha.Height())
	}
	out := image.NewNRGBA(image.Rect(0, 0, alpha.Width(), alpha.Height()))
	for y := 0; y < alpha.Height(); y++ {
		for x := 0; x < alpha.Width(); x++ {
			a := alpha.At(x, y)
			bi := bg.PixOffset(x, y)
			li := lv.PixOffset(x, y)
			oi := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := a*float64(bg.Pix[bi+c]) + (1-a)*float64(lv.Pix[li+c])
				out.Pix[oi+c] = uint8(math.Round(math.Min(255, math.Max(0, v))))
			}
			out.Pix[oi+3] = 0xFF
		}
	}
	return out, nil
}

// HardComposite is the sigma=0 fallback: background wherever the binarized
// mask is on, live everywhere else, no intermediate values.
func HardComposite(mask *Mask, background, live image.Image) (*image.NRGBA, error) {
	return Composite(mask.Binarize(), background, live)
}

// MeanFill paints the binarized mask region with the mean color of all
// unmasked pixels. Used by the inpainting ablation.
func MeanFill(mask *Mask, img image.Image) (*image.NRGBA, error) {
	out := imaging.Clone(img)
	if out.Rect.Dx() != mask.Width() || out.Rect.Dy() != mask.Height() {
		return nil, errors.Errorf("mean fill: image is %dx%d, mask is %dx%d",
			out.Rect.Dx(), out.Rect.Dy(), mask.Width(), mask.Height())
	}
	var rSum, gSum, bSum, n uint64
	for y := 0; y < mask.Height(); y++ {
		for x := 0; x < mask.Width(); x++ {
			if mask.On(x, y) {
				continue
			}
			i := out.PixOffset(x, y)
			rSum += uint64(out.Pix[i])
			gSum += uint64(out.Pix[i+1])
			bSum += uint64(out.Pix[i+2])
			n++
		}
	}
	fill := color.NRGBA{R: 0, G: 0, B: 0, A: 0xFF}
	if n > 0 {
		fill = color.NRGBA{
			R: uint8(rSum / n),
			G: uint8(gSum / n),
			B: uint8(bSum / n),
			A: 0xFF,
		}
	}
	for y := 0; y < mask.Height(); y++ {
		for x := 0; x < mask.Width(); x++ {
			if !mask.On(x, y) {
				continue
			}
			i := out.PixOffset(x, y)
			out.Pix[i] = fill.R
			out.Pix[i+1] = fill.G
			out.Pix[i+2] = fill.B
			out.Pix[i+3] = 0xFF
		}
	}
	return out, nil
}
