package distill

import (
	"image"

	"github.com/robodistill/cgvd/rmask"
)

// compositor blends the cached clean plate with the live frame. It is
// stateless; all episode state lives on the wrapper.
type compositor struct {
	cfg *Config
}

// compositeInputs is everything one frame's blend needs.
type compositeInputs struct {
	live          image.Image
	cleanBG       image.Image
	feather       *rmask.Mask // compositing region, pre-feather (undilated distractor minus dilated safe)
	distractorBin *rmask.Mask // raw distractor footprint, binarized, undilated
	safeNow       *rmask.Mask // target + anchor + current robot mask
	targetAnchor  *rmask.Mask // frozen target + anchor, pre-dilation
}

// render produces the distilled frame:
//
//  1. feather the compositing mask into a soft alpha
//  2. clamp alpha to 1 wherever the raw distractor footprint lies outside the
//     dilated target/anchor band, so a distractor never leaks through no
//     matter how the robot moved past it
//  3. force alpha to 0 across the safe set and the dilated target/anchor
//     band, so target, anchor and robot are never occluded by the plate
//  4. alpha-blend plate over live frame
//
// With BlendSigma zero the same gated mask composites with a hard edge. With
// the inpainting ablation on, the gated binary region is mean-filled instead.
func (c *compositor) render(in compositeInputs) (*image.NRGBA, error) {
	alpha := in.feather.GaussianFeather(c.cfg.BlendSigma)

	enforce := in.targetAnchor.Binarize()
	if k := c.cfg.enforcementDilation(); k > 0 {
		var err error
		enforce, err = enforce.DilateSquare(k)
		if err != nil {
			return nil, err
		}
	}
	safeBin := in.safeNow.Binarize()

	for y := 0; y < alpha.Height(); y++ {
		for x := 0; x < alpha.Width(); x++ {
			if in.distractorBin.On(x, y) && !enforce.On(x, y) {
				alpha.Set(x, y, 1)
			}
			if safeBin.On(x, y) || enforce.On(x, y) {
				alpha.Set(x, y, 0)
			}
		}
	}

	if c.cfg.DisableInpaint {
		return rmask.MeanFill(alpha.Binarize(), in.live)
	}
	if c.cfg.BlendSigma == 0 {
		return rmask.HardComposite(alpha, in.cleanBG, in.live)
	}
	return rmask.Composite(alpha, in.cleanBG, in.live)
}
