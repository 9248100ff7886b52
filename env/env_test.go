package env

import (
	"image"
	"testing"

	"go.viam.com/test"
)

func TestObservationImageLookup(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	obs := &Observation{Images: map[string]image.Image{"overhead": img}}

	got, err := obs.Image("overhead")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, img)

	_, err = obs.Image("wrist")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `camera "wrist" not found`)

	var empty *Observation
	_, err = empty.Image("overhead")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSetImageWritesBackSameKey(t *testing.T) {
	obs := &Observation{}
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	obs.SetImage("overhead", img)
	got, err := obs.Image("overhead")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, img)
}
