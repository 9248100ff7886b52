// Package distill implements concept-gated visual distillation: a wrapper
// around a manipulation environment that removes distractor objects from the
// camera stream while guaranteeing the task target, its anchor, and the robot
// stay untouched.
package distill

import "github.com/pkg/errors"

// Config holds every knob the wrapper recognizes. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// CameraName selects the observation key the wrapper reads from and
	// writes back to.
	CameraName string `json:"camera_name"`

	// DistractorNames lists the concepts to remove. An empty list puts the
	// wrapper in strict pass-through mode.
	DistractorNames []string `json:"distractor_names"`

	// Instruction overrides the environment-provided language instruction.
	Instruction string `json:"instruction,omitempty"`

	// SafeSetWarmupFrames is the number of internal warm-up iterations per
	// episode. Must be at least 1.
	SafeSetWarmupFrames int `json:"safeset_warmup_frames"`

	// PresenceThreshold is the confidence floor for target/anchor queries.
	PresenceThreshold float64 `json:"presence_threshold"`
	// DistractorPresenceThreshold is the confidence floor for distractor
	// queries, typically stricter than the safe-set threshold.
	DistractorPresenceThreshold float64 `json:"distractor_presence_threshold"`
	// RobotPresenceThreshold is the confidence floor for the per-frame
	// robot query, typically looser than the others.
	RobotPresenceThreshold float64 `json:"robot_presence_threshold"`

	// UpdateFreq re-derives the robot mask every N frames. 1 means every
	// frame.
	UpdateFreq int `json:"update_freq"`

	// CacheDistractorOnce freezes the distractor mask after warm-up.
	CacheDistractorOnce bool `json:"cache_distractor_once"`
	// CacheRefreshInterval, when CacheDistractorOnce is false, re-segments
	// the distractors and rebuilds the clean plate every N frames.
	CacheRefreshInterval int `json:"cache_refresh_interval"`

	// BlendSigma is the Gaussian feather width in pixels; 0 disables
	// feathering and composites with a hard edge.
	BlendSigma float64 `json:"blend_sigma"`
	// LamaDilation is the box-kernel size applied to the raw distractor
	// mask before inpainting; odd, or 0 for none.
	LamaDilation int `json:"lama_dilation"`
	// SafeDilation is the box-kernel size applied to the safe-set mask
	// before it is subtracted from the distractor region; odd, or 0 for
	// none.
	SafeDilation int `json:"safe_dilation"`

	// IoUGateThreshold is the minimum IoU between a new target detection
	// and the accumulated mask for the detection to be accepted.
	IoUGateThreshold float64 `json:"iou_gate_threshold"`
	// IoUGateStartFrame is the warm-up frame index at which the IoU gate
	// engages; earlier frames accumulate unconditionally.
	IoUGateStartFrame int `json:"iou_gate_start_frame"`
	// MinComponentPixels drops target detections smaller than this.
	MinComponentPixels int `json:"min_component_pixels"`

	// GenuinenessMargin shifts the cross-validation score; a detection
	// must beat the best competing distractor by this much to count as
	// corroborated.
	GenuinenessMargin float64 `json:"genuineness_margin"`
	// OverlapPenaltyCap bounds the distractor-overlap penalty in component
	// scoring.
	OverlapPenaltyCap float64 `json:"overlap_penalty_cap"`

	// DisableSafeSet skips safe-set subtraction (ablation).
	DisableSafeSet bool `json:"disable_safeset"`
	// DisableInpaint replaces the clean plate with a flat mean-color fill
	// (ablation).
	DisableInpaint bool `json:"disable_inpaint"`

	// DebugDir, when set, enables per-frame diagnostic panels and a
	// decision log under this directory.
	DebugDir string `json:"debug_dir,omitempty"`
}

// DefaultConfig returns the tuned defaults for a tabletop manipulation scene.
func DefaultConfig(cameraName string, distractorNames []string) Config {
	return Config{
		CameraName:                  cameraName,
		DistractorNames:             distractorNames,
		SafeSetWarmupFrames:         5,
		PresenceThreshold:           0.3,
		DistractorPresenceThreshold: 0.4,
		RobotPresenceThreshold:      0.2,
		UpdateFreq:                  1,
		CacheDistractorOnce:         true,
		BlendSigma:                  2.0,
		LamaDilation:                11,
		SafeDilation:                7,
		IoUGateThreshold:            0.2,
		IoUGateStartFrame:           2,
		MinComponentPixels:          30,
		OverlapPenaltyCap:           0.8,
	}
}

// checkKernel validates a box-kernel size: 0 (disabled) or odd and positive.
func checkKernel(name string, k int) error {
	if k < 0 || (k > 0 && k%2 == 0) {
		return errors.Errorf("%s must be 0 or an odd positive kernel size, got %d", name, k)
	}
	return nil
}

func checkUnit(name string, v float64) error {
	if v < 0 || v > 1 {
		return errors.Errorf("%s must be in [0,1], got %v", name, v)
	}
	return nil
}

// CheckValid validates the configuration; it is called at wrapper
// construction so bad configs fail loudly up front.
func (c *Config) CheckValid() error {
	if c.CameraName == "" {
		return errors.New("camera_name cannot be empty")
	}
	if c.SafeSetWarmupFrames < 1 {
		return errors.Errorf("safeset_warmup_frames must be at least 1, got %d", c.SafeSetWarmupFrames)
	}
	for name, v := range map[string]float64{
		"presence_threshold":            c.PresenceThreshold,
		"distractor_presence_threshold": c.DistractorPresenceThreshold,
		"robot_presence_threshold":      c.RobotPresenceThreshold,
		"iou_gate_threshold":            c.IoUGateThreshold,
		"overlap_penalty_cap":           c.OverlapPenaltyCap,
	} {
		if err := checkUnit(name, v); err != nil {
			return err
		}
	}
	if c.BlendSigma < 0 {
		return errors.Errorf("blend_sigma cannot be negative, got %v", c.BlendSigma)
	}
	if err := checkKernel("lama_dilation", c.LamaDilation); err != nil {
		return err
	}
	if err := checkKernel("safe_dilation", c.SafeDilation); err != nil {
		return err
	}
	if c.UpdateFreq < 1 {
		return errors.Errorf("update_freq must be at least 1, got %d", c.UpdateFreq)
	}
	if c.IoUGateStartFrame < 0 {
		return errors.Errorf("iou_gate_start_frame cannot be negative, got %d", c.IoUGateStartFrame)
	}
	if c.MinComponentPixels < 0 {
		return errors.Errorf("min_component_pixels cannot be negative, got %d", c.MinComponentPixels)
	}
	if !c.CacheDistractorOnce && c.CacheRefreshInterval < 1 {
		return errors.New("cache_refresh_interval must be at least 1 when the distractor cache is not frozen")
	}
	return nil
}

// passThrough reports whether the wrapper should do nothing at all.
func (c *Config) passThrough() bool { return len(c.DistractorNames) == 0 }

// enforcementDilation is the kernel for the hard target/anchor protection
// band: the safe dilation widened by about three feather sigmas, so the
// Gaussian tail is negligible at the band's edge.
func (c *Config) enforcementDilation() int {
	extra := int(3 * c.BlendSigma)
	k := c.SafeDilation + 2*extra
	if k == 0 {
		return 0
	}
	if k%2 == 0 {
		k++
	}
	return k
}
