package vision

import (
	"image"
	"testing"

	"go.viam.com/test"

	"github.com/robodistill/cgvd/rmask"
)

func boxMask(w, h int, r image.Rectangle) *rmask.Mask {
	m := rmask.NewMask(w, h)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(x, y, 1)
		}
	}
	return m
}

func TestInstanceName(t *testing.T) {
	in := Instance{Concept: "spoon", Index: 0}
	test.That(t, in.Name(), test.ShouldEqual, "spoon")
	in.Index = 2
	test.That(t, in.Name(), test.ShouldEqual, "spoon_2")
}

func TestSplitPrompt(t *testing.T) {
	test.That(t, SplitPrompt("spoon. towel. robot arm"),
		test.ShouldResemble, []string{"spoon", "towel", "robot arm"})
	test.That(t, SplitPrompt("spoon"), test.ShouldResemble, []string{"spoon"})
	test.That(t, SplitPrompt(""), test.ShouldBeNil)
}

func TestConceptMaskAndCombine(t *testing.T) {
	s := &Segmentation{
		Instances: []Instance{
			{Concept: "spoon", Index: 0, Score: 0.9, Mask: boxMask(16, 16, image.Rect(0, 0, 4, 4))},
			{Concept: "spoon", Index: 1, Score: 0.8, Mask: boxMask(16, 16, image.Rect(8, 8, 12, 12))},
			{Concept: "fork", Index: 0, Score: 0.7, Mask: boxMask(16, 16, image.Rect(4, 0, 8, 4))},
		},
	}
	spoon, err := s.ConceptMask("spoon", 16, 16)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spoon.Area(), test.ShouldEqual, 32)
	test.That(t, spoon.On(5, 1), test.ShouldBeFalse)

	// an undetected concept is an all-zero mask, not an error
	missing, err := s.ConceptMask("plate", 16, 16)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, missing.Empty(), test.ShouldBeTrue)

	all, err := Combine(s.Instances, 16, 16)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, all.Area(), test.ShouldEqual, 48)
}

func TestModelRegistry(t *testing.T) {
	_, err := NewModelRegistry(nil, nil)
	test.That(t, err, test.ShouldNotBeNil)
}
