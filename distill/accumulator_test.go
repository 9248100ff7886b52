package distill

import (
	"image"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/robodistill/cgvd/rmask"
	"github.com/robodistill/cgvd/vision"
)

const testW, testH = 64, 48

func rect(r image.Rectangle) *rmask.Mask {
	m := rmask.NewMask(testW, testH)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(x, y, 1)
		}
	}
	return m
}

func inst(concept string, index int, score float64, r image.Rectangle) vision.Instance {
	return vision.Instance{Concept: concept, Index: index, Score: score, Mask: rect(r)}
}

func seg(t *testing.T, instances ...vision.Instance) *vision.Segmentation {
	t.Helper()
	combined, err := vision.Combine(instances, testW, testH)
	test.That(t, err, test.ShouldBeNil)
	return &vision.Segmentation{Combined: combined, Instances: instances}
}

func accConfig() *Config {
	cfg := DefaultConfig("overhead", []string{"fork"})
	cfg.MinComponentPixels = 4
	cfg.IoUGateStartFrame = 2
	cfg.IoUGateThreshold = 0.2
	return &cfg
}

func TestIoUGateMonotonicity(t *testing.T) {
	logger := golog.NewTestLogger(t)
	acc := newSafeSetAccumulator(accConfig(), "spoon", "towel", testW, testH, logger)
	empty := seg(t)

	// frames before the gate engages accumulate unconditionally
	err := acc.observe(seg(t, inst("spoon", 0, 0.9, image.Rect(2, 2, 8, 8))), empty, nil)
	test.That(t, err, test.ShouldBeNil)
	err = acc.observe(seg(t, inst("spoon", 0, 0.9, image.Rect(30, 30, 36, 36))), empty, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, acc.targetMask.Area(), test.ShouldEqual, 72)

	// gated frame with zero IoU is rejected, leaving the mask untouched
	before := acc.targetMask.Clone()
	err = acc.observe(seg(t, inst("spoon", 0, 0.9, image.Rect(50, 2, 56, 8))), empty, nil)
	test.That(t, err, test.ShouldBeNil)
	iou, err := rmask.IoU(before, acc.targetMask)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, iou, test.ShouldEqual, 1.0)

	// gated frame with sufficient overlap is accepted
	err = acc.observe(seg(t, inst("spoon", 0, 0.9, image.Rect(2, 2, 9, 8))), empty, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, acc.targetMask.Area(), test.ShouldEqual, 78)
}

func TestIoUGateFirstDetectionAfterStart(t *testing.T) {
	logger := golog.NewTestLogger(t)
	acc := newSafeSetAccumulator(accConfig(), "spoon", "", testW, testH, logger)
	empty := seg(t)

	// the target is missed entirely during the ungated frames
	for i := 0; i < 3; i++ {
		err := acc.observe(empty, empty, nil)
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, acc.targetMask.Empty(), test.ShouldBeTrue)

	// the first detection lands past the gate start frame; with nothing
	// accumulated there is no mask to gate against, so it is admitted
	err := acc.observe(seg(t, inst("spoon", 0, 0.9, image.Rect(2, 2, 8, 8))), empty, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, acc.targetMask.Area(), test.ShouldEqual, 36)

	// once a mask exists the gate engages as usual
	err = acc.observe(seg(t, inst("spoon", 0, 0.9, image.Rect(40, 40, 46, 46))), empty, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, acc.targetMask.Area(), test.ShouldEqual, 36)
}

func TestVotesMoveWithMask(t *testing.T) {
	logger := golog.NewTestLogger(t)
	acc := newSafeSetAccumulator(accConfig(), "spoon", "", testW, testH, logger)
	empty := seg(t)
	box := image.Rect(2, 2, 8, 8)

	for i := 0; i < 3; i++ {
		err := acc.observe(seg(t, inst("spoon", 0, 0.9, box)), empty, nil)
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, acc.votes.At(3, 3), test.ShouldEqual, 3)
	test.That(t, acc.votes.At(20, 20), test.ShouldEqual, 0)

	// a rejected detection leaves both the mask and the votes untouched
	err := acc.observe(seg(t, inst("spoon", 0, 0.9, image.Rect(40, 40, 46, 46))), empty, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, acc.votes.At(43, 43), test.ShouldEqual, 0)
	test.That(t, acc.targetMask.On(43, 43), test.ShouldBeFalse)
}

func TestMinComponentPixels(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cfg := accConfig()
	cfg.MinComponentPixels = 10
	acc := newSafeSetAccumulator(cfg, "spoon", "", testW, testH, logger)

	err := acc.observe(seg(t, inst("spoon", 0, 0.9, image.Rect(0, 0, 3, 3))), seg(t), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, acc.targetMask.Empty(), test.ShouldBeTrue)
}

func TestAnchorAccumulatesUnconditionally(t *testing.T) {
	logger := golog.NewTestLogger(t)
	acc := newSafeSetAccumulator(accConfig(), "spoon", "towel", testW, testH, logger)
	empty := seg(t)

	// anchor detections union in on every frame, wherever they appear
	for i, r := range []image.Rectangle{
		image.Rect(0, 0, 5, 5), image.Rect(20, 20, 25, 25), image.Rect(40, 40, 45, 45),
	} {
		err := acc.observe(seg(t, inst("towel", 0, 0.9, r)), empty, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, acc.anchorMask.Area(), test.ShouldEqual, 25*(i+1))
	}
}

func TestGenuinenessScoring(t *testing.T) {
	logger := golog.NewTestLogger(t)
	acc := newSafeSetAccumulator(accConfig(), "spoon", "", testW, testH, logger)

	spoon := inst("spoon", 0, 0.6, image.Rect(2, 2, 10, 10))
	spatula := inst("spoon", 1, 0.5, image.Rect(30, 2, 38, 10))
	// a distractor interpretation covers the spatula with higher confidence
	fork := inst("fork", 0, 0.8, image.Rect(30, 2, 38, 10))

	err := acc.observe(seg(t, spoon, spatula), seg(t, fork), nil)
	test.That(t, err, test.ShouldBeNil)
	// no competitor overlaps the true spoon
	test.That(t, acc.genuineness["spoon"], test.ShouldEqual, 0.6)
	// spatula loses to the fork interpretation
	test.That(t, acc.genuineness["spoon_1"], test.ShouldAlmostEqual, -0.3)
}

func TestComponentCleanupKeepsBestComponent(t *testing.T) {
	logger := golog.NewTestLogger(t)
	acc := newSafeSetAccumulator(accConfig(), "spoon", "", testW, testH, logger)

	spoonBox := image.Rect(2, 2, 10, 10)
	spatulaBox := image.Rect(30, 2, 38, 10)
	fork := inst("fork", 0, 0.9, spatulaBox)

	for i := 0; i < 3; i++ {
		err := acc.observe(
			seg(t, inst("spoon", 0, 0.6, spoonBox), inst("spoon", 1, 0.5, spatulaBox)),
			seg(t, fork),
			nil,
		)
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, len(acc.targetMask.ConnectedComponents()), test.ShouldEqual, 2)

	err := acc.finalize(rect(spatulaBox), nil)
	test.That(t, err, test.ShouldBeNil)

	comps := acc.targetMask.ConnectedComponents()
	test.That(t, len(comps), test.ShouldEqual, 1)
	// the surviving component is the true spoon
	test.That(t, acc.targetMask.On(5, 5), test.ShouldBeTrue)
	test.That(t, acc.targetMask.On(33, 5), test.ShouldBeFalse)
}

func TestComponentCleanupSkipsSingleComponent(t *testing.T) {
	logger := golog.NewTestLogger(t)
	acc := newSafeSetAccumulator(accConfig(), "spoon", "", testW, testH, logger)

	err := acc.observe(seg(t, inst("spoon", 0, 0.9, image.Rect(2, 2, 10, 10))), seg(t), nil)
	test.That(t, err, test.ShouldBeNil)
	before := acc.targetMask.Clone()

	err = acc.finalize(rmask.NewMask(testW, testH), nil)
	test.That(t, err, test.ShouldBeNil)
	iou, err := rmask.IoU(before, acc.targetMask)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, iou, test.ShouldEqual, 1.0)
}

func TestComponentCleanupDeterminism(t *testing.T) {
	logger := golog.NewTestLogger(t)
	score := func() *rmask.Mask {
		acc := newSafeSetAccumulator(accConfig(), "spoon", "", testW, testH, logger)
		for i := 0; i < 2; i++ {
			err := acc.observe(seg(t,
				inst("spoon", 0, 0.5, image.Rect(2, 2, 10, 10)),
				inst("spoon", 1, 0.5, image.Rect(30, 2, 38, 10)),
			), seg(t), nil)
			test.That(t, err, test.ShouldBeNil)
		}
		err := acc.finalize(rmask.NewMask(testW, testH), nil)
		test.That(t, err, test.ShouldBeNil)
		return acc.targetMask
	}
	first := score()
	for i := 0; i < 5; i++ {
		iou, err := rmask.IoU(first, score())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, iou, test.ShouldEqual, 1.0)
	}
}
