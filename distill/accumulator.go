package distill

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/robodistill/cgvd/rmask"
	"github.com/robodistill/cgvd/vision"
)

// crossValidationIoU is the instance-overlap threshold above which a
// distractor detection counts as a competing interpretation of the same
// pixels.
const crossValidationIoU = 0.3

// safeSetAccumulator builds the frozen target and anchor masks over the
// warm-up window. Target detections are spatially gated against what has
// already accumulated; anchor detections are always trusted.
type safeSetAccumulator struct {
	cfg    *Config
	logger golog.Logger

	target string
	anchor string
	width  int
	height int

	targetMask *rmask.Mask
	anchorMask *rmask.Mask
	votes      *rmask.VoteGrid

	// genuineness keeps the worst cross-validation score seen per instance
	// name; a single contaminated frame is enough to taint an instance.
	genuineness map[string]float64
	// instanceMasks keeps the accumulated footprint per instance name so
	// component cleanup can map instances onto components.
	instanceMasks map[string]*rmask.Mask

	frameIndex int
}

func newSafeSetAccumulator(cfg *Config, target, anchor string, width, height int, logger golog.Logger) *safeSetAccumulator {
	return &safeSetAccumulator{
		cfg:           cfg,
		logger:        logger,
		target:        target,
		anchor:        anchor,
		width:         width,
		height:        height,
		targetMask:    rmask.NewMask(width, height),
		anchorMask:    rmask.NewMask(width, height),
		votes:         rmask.NewVoteGrid(width, height),
		genuineness:   make(map[string]float64),
		instanceMasks: make(map[string]*rmask.Mask),
	}
}

// observe folds one warm-up frame's safe-set segmentation into the
// accumulated state. distractors is the distractor segmentation of the same
// frame, used only for cross-validation scoring; it never removes a
// detection here.
func (a *safeSetAccumulator) observe(safe, distractors *vision.Segmentation, debug *debugWriter) error {
	defer func() { a.frameIndex++ }()

	targetInstances := safe.InstancesOf(a.target)
	if err := a.crossValidate(targetInstances, distractors, debug); err != nil {
		return err
	}
	for _, in := range targetInstances {
		if err := a.unionInstance(in); err != nil {
			return err
		}
	}

	// anchor accumulates unconditionally, instances are assumed genuine
	if a.anchor != "" {
		anchorMask, err := safe.ConceptMask(a.anchor, a.width, a.height)
		if err != nil {
			return err
		}
		if err := a.anchorMask.Union(anchorMask); err != nil {
			return err
		}
	}

	frameTarget, err := vision.Combine(targetInstances, a.width, a.height)
	if err != nil {
		return err
	}
	return a.accumulateTarget(frameTarget, debug)
}

// crossValidate scores each target instance against every overlapping
// distractor interpretation. Compute-only: even a strongly negative score
// never drops the instance at this stage.
func (a *safeSetAccumulator) crossValidate(targets []vision.Instance, distractors *vision.Segmentation, debug *debugWriter) error {
	for _, in := range targets {
		best := math.Inf(-1)
		for _, d := range distractors.Instances {
			iou, err := rmask.IoU(in.Mask, d.Mask)
			if err != nil {
				return err
			}
			if iou > crossValidationIoU && d.Score > best {
				best = d.Score
			}
		}
		score := in.Score
		if !math.IsInf(best, -1) {
			score = in.Score - best - a.cfg.GenuinenessMargin
		}
		prev, seen := a.genuineness[in.Name()]
		if !seen || score < prev {
			a.genuineness[in.Name()] = score
		}
		debug.logf("frame %d: genuineness %s = %.3f", a.frameIndex, in.Name(), score)
	}
	return nil
}

func (a *safeSetAccumulator) unionInstance(in vision.Instance) error {
	acc, ok := a.instanceMasks[in.Name()]
	if !ok {
		acc = rmask.NewMask(a.width, a.height)
		a.instanceMasks[in.Name()] = acc
	}
	return acc.Union(in.Mask)
}

// accumulateTarget applies the size filter and IoU gate, then unions the
// detection in and records votes. The gate only engages once something has
// accumulated: a first-ever detection past the start frame has no mask to
// compare against and is admitted unconditionally. The accumulated mask and
// the vote grid always move together.
func (a *safeSetAccumulator) accumulateTarget(detection *rmask.Mask, debug *debugWriter) error {
	area := detection.Area()
	if area == 0 {
		debug.logf("frame %d: target %q absent", a.frameIndex, a.target)
		return nil
	}
	if area < a.cfg.MinComponentPixels {
		a.logger.Debugw("target detection below minimum size, discarding",
			"frame", a.frameIndex, "pixels", area, "min", a.cfg.MinComponentPixels)
		debug.logf("frame %d: reject target detection, %d px < %d", a.frameIndex, area, a.cfg.MinComponentPixels)
		return nil
	}
	if a.frameIndex >= a.cfg.IoUGateStartFrame && !a.targetMask.Empty() {
		iou, err := rmask.IoU(detection, a.targetMask)
		if err != nil {
			return err
		}
		if iou <= a.cfg.IoUGateThreshold {
			a.logger.Debugw("target detection failed IoU gate, rejecting",
				"frame", a.frameIndex, "iou", iou, "gate", a.cfg.IoUGateThreshold)
			debug.logf("frame %d: reject target detection, iou %.3f <= %.3f", a.frameIndex, iou, a.cfg.IoUGateThreshold)
			return nil
		}
		debug.logf("frame %d: accept target detection, iou %.3f", a.frameIndex, iou)
	} else {
		debug.logf("frame %d: accept target detection unconditionally", a.frameIndex)
	}
	if err := a.targetMask.Union(detection); err != nil {
		return err
	}
	return a.votes.Add(detection)
}

// finalize runs connected-component cleanup on the accumulated target mask:
// label the components, score each one, keep only the best. The anchor mask
// is never cleaned.
func (a *safeSetAccumulator) finalize(distractorMask *rmask.Mask, debug *debugWriter) error {
	components := a.targetMask.ConnectedComponents()
	if len(components) <= 1 {
		return nil
	}
	bestScore := math.Inf(-1)
	var best *rmask.Component
	for _, comp := range components {
		compMask := comp.Mask(a.width, a.height)
		score, err := a.scoreComponent(comp, compMask, distractorMask)
		if err != nil {
			return err
		}
		debug.logf("cleanup: component %d area=%d score=%.4f", comp.Label, comp.Area(), score)
		// strict greater-than keeps the first of equal-scoring components,
		// so selection is deterministic
		if score > bestScore {
			bestScore = score
			best = comp
		}
	}
	if best == nil {
		return errors.New("component cleanup found no scoreable component")
	}
	a.logger.Debugw("component cleanup kept one component",
		"label", best.Label, "area", best.Area(), "score", bestScore, "dropped", len(components)-1)
	a.targetMask = best.Mask(a.width, a.height)
	return nil
}

// scoreComponent computes avg_votes * (1 - dist_overlap) * (1 + genuineness),
// with the distractor overlap capped and the genuineness taken from the best
// target instance touching the component.
func (a *safeSetAccumulator) scoreComponent(comp *rmask.Component, compMask, distractorMask *rmask.Mask) (float64, error) {
	avgVotes := a.votes.MeanOver(comp)

	distOverlap, err := rmask.Overlap(compMask, distractorMask)
	if err != nil {
		return 0, err
	}
	if distOverlap > a.cfg.OverlapPenaltyCap {
		distOverlap = a.cfg.OverlapPenaltyCap
	}

	genuineness := 0.0
	found := false
	for name, instMask := range a.instanceMasks {
		hits, err := rmask.Intersects(instMask, compMask)
		if err != nil {
			return 0, err
		}
		if !hits {
			continue
		}
		if g := a.genuineness[name]; !found || g > genuineness {
			genuineness = g
			found = true
		}
	}

	return avgVotes * (1 - distOverlap) * (1 + genuineness), nil
}

// safeMask recomputes max(target, anchor).
func (a *safeSetAccumulator) safeMask() (*rmask.Mask, error) {
	return rmask.UnionOf(a.targetMask, a.anchorMask)
}
