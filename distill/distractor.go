package distill

import (
	"github.com/edaniels/golog"

	"github.com/robodistill/cgvd/rmask"
	"github.com/robodistill/cgvd/vision"
)

// distractorBuilder accumulates raw distractor detections and derives the
// two masks compositing needs: the dilated inpainting region and the
// undilated feather-boundary region, both with the safe set subtracted.
type distractorBuilder struct {
	cfg    *Config
	logger golog.Logger
	width  int
	height int

	// raw is the per-pixel max over every distractor observation so far.
	// No IoU gating: distractors are assumed static within an episode.
	raw *rmask.Mask
}

func newDistractorBuilder(cfg *Config, width, height int, logger golog.Logger) *distractorBuilder {
	return &distractorBuilder{
		cfg:    cfg,
		logger: logger,
		width:  width,
		height: height,
		raw:    rmask.NewMask(width, height),
	}
}

// observe folds one distractor segmentation into the raw accumulation.
func (b *distractorBuilder) observe(seg *vision.Segmentation) error {
	return b.raw.Union(seg.Combined)
}

// reset discards the accumulation, for a wholesale periodic refresh.
func (b *distractorBuilder) reset() {
	b.raw = rmask.NewMask(b.width, b.height)
}

// build derives the final distractor regions from the accumulated raw mask
// and the frozen safe set:
//
//	inpaintRegion    = dilate(raw) AND NOT dilate(safe)
//	compositeRegion  = raw(binary) AND NOT dilate(safe)
//
// Subtraction of the dilated safe set is what makes disjointness from the
// safe set hold by construction. With the safe-set ablation on, both regions
// skip the subtraction.
func (b *distractorBuilder) build(safe *rmask.Mask) (inpaintRegion, compositeRegion *rmask.Mask, err error) {
	inpaintRegion = b.raw.Binarize()
	if b.cfg.LamaDilation > 0 {
		inpaintRegion, err = inpaintRegion.DilateSquare(b.cfg.LamaDilation)
		if err != nil {
			return nil, nil, err
		}
	}
	compositeRegion = b.raw.Binarize()

	if b.cfg.DisableSafeSet {
		return inpaintRegion, compositeRegion, nil
	}

	safeDilated := safe.Binarize()
	if b.cfg.SafeDilation > 0 {
		safeDilated, err = safeDilated.DilateSquare(b.cfg.SafeDilation)
		if err != nil {
			return nil, nil, err
		}
	}
	if err := inpaintRegion.Subtract(safeDilated); err != nil {
		return nil, nil, err
	}
	if err := compositeRegion.Subtract(safeDilated); err != nil {
		return nil, nil, err
	}
	return inpaintRegion, compositeRegion, nil
}
