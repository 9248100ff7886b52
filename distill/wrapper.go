package distill

import (
	"context"
	"image"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/robodistill/cgvd/env"
	"github.com/robodistill/cgvd/instruction"
	"github.com/robodistill/cgvd/rmask"
	"github.com/robodistill/cgvd/vision"
)

// State is the wrapper's lifecycle phase.
type State string

// Wrapper lifecycle states. Warm-up is driven internally by Reset, so callers
// only ever observe Uninitialized or Steady.
const (
	StateUninitialized = State("uninitialized")
	StateWarmup        = State("warmup")
	StateSteady        = State("steady")
)

// Wrapper is the distillation orchestrator. It wraps an environment,
// rebuilds its perception caches at every episode boundary, and rewrites the
// configured camera frame on every step so the policy only ever sees the
// distilled scene.
//
// One wrapper owns one environment. The segmentation and inpainting handles
// are shared process-wide and are only ever issued stateless queries.
type Wrapper struct {
	wrapped env.Environment
	seg     vision.Segmenter
	inp     vision.Inpainter
	cfg     Config
	logger  golog.Logger
	tel     *telemetry
	comp    *compositor

	state State
	ep    *episodeState
	debug *debugWriter
}

// episodeState is everything that must be discarded and rebuilt at reset.
type episodeState struct {
	distractorNames []string
	target          string
	anchor          string
	width           int
	height          int

	acc  *safeSetAccumulator
	dist *distractorBuilder

	// safeMask is the frozen target+anchor union; the robot is tracked
	// per frame, never frozen.
	safeMask        *rmask.Mask
	inpaintRegion   *rmask.Mask // dilated distractor minus dilated safe
	compositeRegion *rmask.Mask // undilated distractor minus dilated safe
	cleanPlate      image.Image
	robotMask       *rmask.Mask
	cachedRobotMask *rmask.Mask // warm-up union, only for plate building
	frameCount      int
}

// Option configures a Wrapper at construction.
type Option func(*Wrapper)

// WithClock substitutes the telemetry clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(w *Wrapper) { w.tel = newTelemetry(clk) }
}

// NewWrapper validates the config and builds the orchestrator around an
// environment and the shared model registry.
func NewWrapper(
	wrapped env.Environment,
	models *vision.ModelRegistry,
	cfg Config,
	logger golog.Logger,
	opts ...Option,
) (*Wrapper, error) {
	if wrapped == nil {
		return nil, errors.New("wrapper needs an environment")
	}
	if models == nil {
		return nil, errors.New("wrapper needs a model registry")
	}
	if err := cfg.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "invalid distillation config")
	}
	if cfg.passThrough() {
		logger.Warnw("no distractor names configured, wrapper will pass frames through untouched")
	}
	w := &Wrapper{
		wrapped: wrapped,
		seg:     models.Segmenter(),
		inp:     models.Inpainter(),
		cfg:     cfg,
		logger:  logger,
		tel:     newTelemetry(nil),
		state:   StateUninitialized,
	}
	w.comp = &compositor{cfg: &w.cfg}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// State returns the lifecycle phase.
func (w *Wrapper) State() State { return w.state }

// Timing returns a snapshot of the per-stage wall-clock telemetry.
func (w *Wrapper) Timing() map[string]StageTiming { return w.tel.snapshot() }

// FrameCount returns the number of frames since the last reset, warm-up
// included.
func (w *Wrapper) FrameCount() int {
	if w.ep == nil {
		return 0
	}
	return w.ep.frameCount
}

// Close releases the debug writer. The wrapped environment and the shared
// models are not owned by the wrapper and stay open.
func (w *Wrapper) Close() error {
	debug := w.debug
	w.debug = nil
	return debug.Close()
}

// episodeDistractors resolves this episode's distractor names, preferring
// freshly spawned names the environment reports over the static config.
func (w *Wrapper) episodeDistractors() []string {
	if namer, ok := w.wrapped.(env.DistractorNamer); ok {
		if names := namer.DistractorNames(); len(names) > 0 {
			return names
		}
	}
	return w.cfg.DistractorNames
}

func (w *Wrapper) episodeInstruction() string {
	if w.cfg.Instruction != "" {
		return w.cfg.Instruction
	}
	if p, ok := w.wrapped.(env.InstructionProvider); ok {
		return p.LanguageInstruction()
	}
	return ""
}

// Reset resets the wrapped environment, then internally drives the full
// warm-up protocol before returning: the caller never sees a warm-up frame,
// only the first distilled observation. With no distractor names configured
// the raw observation passes through untouched.
func (w *Wrapper) Reset(
	ctx context.Context,
	seed int64,
	options map[string]interface{},
) (*env.Observation, map[string]interface{}, error) {
	obs, info, err := w.wrapped.Reset(ctx, seed, options)
	if err != nil {
		return nil, nil, err
	}
	w.ep = nil
	// the previous episode's writer closes on every reset, pass-through
	// included, so a later distilled episode starts with a fresh one
	if w.debug != nil {
		goutils.UncheckedErrorFunc(w.debug.Close)
		w.debug = nil
	}

	names := w.episodeDistractors()
	if len(names) == 0 {
		w.state = StateSteady
		return obs, info, nil
	}

	frame, err := obs.Image(w.cfg.CameraName)
	if err != nil {
		return nil, nil, err
	}
	bounds := frame.Bounds()

	w.debug, err = newDebugWriter(w.cfg.DebugDir, w.logger)
	if err != nil {
		return nil, nil, err
	}

	target, anchor := instruction.Parse(w.episodeInstruction())
	w.logger.Debugw("episode concepts resolved",
		"target", target, "anchor", anchor, "distractors", names)

	ep := &episodeState{
		distractorNames: names,
		target:          target,
		anchor:          anchor,
		width:           bounds.Dx(),
		height:          bounds.Dy(),
		cachedRobotMask: rmask.NewMask(bounds.Dx(), bounds.Dy()),
	}
	ep.acc = newSafeSetAccumulator(&w.cfg, target, anchor, ep.width, ep.height, w.logger)
	ep.dist = newDistractorBuilder(&w.cfg, ep.width, ep.height, w.logger)
	w.ep = ep

	w.state = StateWarmup
	if err := w.warmup(ctx, frame); err != nil {
		return nil, nil, err
	}
	w.state = StateSteady

	// one extra pass produces the first visible distilled observation
	if err := w.refreshRobotMask(ctx, frame); err != nil {
		return nil, nil, err
	}
	out, err := w.distill(frame)
	if err != nil {
		return nil, nil, err
	}
	obs.SetImage(w.cfg.CameraName, out)
	return obs, info, nil
}

// warmup runs the accumulation protocol over the settled scene. Physics is
// never stepped; every iteration re-queries the models on the reset frame
// (or a robot-hidden re-render of it, when the environment can provide one).
func (w *Wrapper) warmup(ctx context.Context, frame image.Image) error {
	ep := w.ep
	safePrompt := instruction.BuildConceptPrompt(ep.target, ep.anchor, false)
	distPrompt := strings.Join(ep.distractorNames, vision.ConceptSeparator)
	robotPrompt := instruction.RobotConcepts

	for i := 0; i < w.cfg.SafeSetWarmupFrames; i++ {
		queryFrame := frame
		if i < w.cfg.IoUGateStartFrame {
			if hidden := w.tryHiddenRender(ctx); hidden != nil {
				queryFrame = hidden
			}
		}

		var safeSeg, distSeg, robotSeg *vision.Segmentation
		if err := w.tel.time(StageSegmentation, func() error {
			var err error
			if !w.cfg.DisableSafeSet {
				if safeSeg, err = w.seg.Segment(ctx, queryFrame, safePrompt, w.cfg.PresenceThreshold); err != nil {
					return err
				}
			}
			if distSeg, err = w.seg.Segment(ctx, queryFrame, distPrompt, w.cfg.DistractorPresenceThreshold); err != nil {
				return err
			}
			// the robot query always runs on the live frame
			robotSeg, err = w.seg.Segment(ctx, frame, robotPrompt, w.cfg.RobotPresenceThreshold)
			return err
		}); err != nil {
			return err
		}

		if safeSeg != nil {
			if err := ep.acc.observe(safeSeg, distSeg, w.debug); err != nil {
				return err
			}
		}
		if err := ep.dist.observe(distSeg); err != nil {
			return err
		}
		if err := ep.cachedRobotMask.Union(robotSeg.Combined); err != nil {
			return err
		}
		ep.frameCount++
	}

	if err := ep.acc.finalize(ep.dist.raw, w.debug); err != nil {
		return err
	}
	safe, err := ep.acc.safeMask()
	if err != nil {
		return err
	}
	ep.safeMask = safe
	if ep.safeMask.Empty() && !w.cfg.DisableSafeSet {
		w.debug.logf("warning: safe set is empty after warm-up, target %q may be undetected", ep.target)
	}

	if err := w.rebuildDistractorRegions(); err != nil {
		return err
	}
	return w.rebuildCleanPlate(ctx, frame)
}

// tryHiddenRender asks the environment for a robot-hidden view. Strictly
// best-effort: any failure logs a warning and falls back to the live frame.
func (w *Wrapper) tryHiddenRender(ctx context.Context) image.Image {
	hider, ok := w.wrapped.(env.RobotHider)
	if !ok {
		return nil
	}
	img, err := hider.RenderWithoutRobot(ctx, w.cfg.CameraName)
	if err != nil {
		w.logger.Warnw("robot-hidden render failed, using live frame", "error", err)
		return nil
	}
	return img
}

// rebuildDistractorRegions derives the inpainting and compositing regions
// from the accumulated distractor mask and the frozen safe set.
func (w *Wrapper) rebuildDistractorRegions() error {
	inpaintRegion, compositeRegion, err := w.ep.dist.build(w.ep.safeMask)
	if err != nil {
		return err
	}
	w.ep.inpaintRegion = inpaintRegion
	w.ep.compositeRegion = compositeRegion
	return nil
}

// rebuildCleanPlate inpaints the distractor and robot regions out of the
// live frame, producing the episode's clean background. The robot region is
// the warm-up union plus the current per-frame mask, so a mid-episode rebuild
// removes the arm where it is now, not where it sat at reset. The plate is
// always replaced wholesale, never patched.
func (w *Wrapper) rebuildCleanPlate(ctx context.Context, frame image.Image) error {
	if w.cfg.DisableInpaint {
		// the ablation mean-fills per frame; no plate is needed
		w.ep.cleanPlate = frame
		return nil
	}
	robotRegion := w.ep.cachedRobotMask.Binarize()
	if w.ep.robotMask != nil {
		var err error
		if robotRegion, err = rmask.UnionOf(robotRegion, w.ep.robotMask.Binarize()); err != nil {
			return err
		}
	}
	if w.cfg.LamaDilation > 0 {
		var err error
		if robotRegion, err = robotRegion.DilateSquare(w.cfg.LamaDilation); err != nil {
			return err
		}
	}
	plateMask, err := rmask.UnionOf(w.ep.inpaintRegion, robotRegion)
	if err != nil {
		return err
	}
	return w.tel.time(StageInpainting, func() error {
		plate, err := w.inp.Inpaint(ctx, frame, plateMask)
		if err != nil {
			return err
		}
		w.ep.cleanPlate = plate
		return nil
	})
}

// refreshRobotMask re-segments the robot on the given frame.
func (w *Wrapper) refreshRobotMask(ctx context.Context, frame image.Image) error {
	return w.tel.time(StageSegmentation, func() error {
		seg, err := w.seg.Segment(ctx, frame, instruction.RobotConcepts, w.cfg.RobotPresenceThreshold)
		if err != nil {
			return err
		}
		w.ep.robotMask = seg.Combined
		return nil
	})
}

// distill composites one live frame against the episode caches.
func (w *Wrapper) distill(frame image.Image) (*image.NRGBA, error) {
	ep := w.ep
	safeNow, err := rmask.UnionOf(ep.safeMask, ep.robotMask)
	if err != nil {
		return nil, err
	}
	var out *image.NRGBA
	if err := w.tel.time(StageCompositing, func() error {
		out, err = w.comp.render(compositeInputs{
			live:          frame,
			cleanBG:       ep.cleanPlate,
			feather:       ep.compositeRegion,
			distractorBin: ep.dist.raw.Binarize(),
			safeNow:       safeNow,
			targetAnchor:  ep.safeMask,
		})
		return err
	}); err != nil {
		return nil, err
	}
	w.debug.writePanel(frame, ep.dist.raw, safeNow, out)
	return out, nil
}

// Step forwards the action, then rewrites the camera frame in the resulting
// observation with its distilled version. Reward and termination signals
// pass through unchanged.
func (w *Wrapper) Step(ctx context.Context, action []float64) (*env.StepResult, error) {
	if w.state == StateUninitialized {
		return nil, errors.New("step called before reset")
	}
	res, err := w.wrapped.Step(ctx, action)
	if err != nil {
		return nil, err
	}
	if w.ep == nil {
		// pass-through episode
		return res, nil
	}

	start := w.tel.clock.Now()
	frame, err := res.Observation.Image(w.cfg.CameraName)
	if err != nil {
		return nil, err
	}
	w.ep.frameCount++

	if w.ep.frameCount%w.cfg.UpdateFreq == 0 {
		if err := w.refreshRobotMask(ctx, frame); err != nil {
			return nil, err
		}
	}

	if !w.cfg.CacheDistractorOnce && w.ep.frameCount%w.cfg.CacheRefreshInterval == 0 {
		if err := w.refreshDistractorCache(ctx, frame); err != nil {
			return nil, err
		}
	}

	out, err := w.distill(frame)
	if err != nil {
		return nil, err
	}
	res.Observation.SetImage(w.cfg.CameraName, out)
	w.tel.record(StagePipeline, w.tel.clock.Since(start))
	return res, nil
}

// refreshDistractorCache re-segments the distractors on the current frame
// and rebuilds every derived cache, clean plate included.
func (w *Wrapper) refreshDistractorCache(ctx context.Context, frame image.Image) error {
	var distSeg *vision.Segmentation
	if err := w.tel.time(StageSegmentation, func() error {
		var err error
		prompt := strings.Join(w.ep.distractorNames, vision.ConceptSeparator)
		distSeg, err = w.seg.Segment(ctx, frame, prompt, w.cfg.DistractorPresenceThreshold)
		return err
	}); err != nil {
		return err
	}
	w.ep.dist.reset()
	if err := w.ep.dist.observe(distSeg); err != nil {
		return err
	}
	if err := w.rebuildDistractorRegions(); err != nil {
		return err
	}
	return w.rebuildCleanPlate(ctx, frame)
}
