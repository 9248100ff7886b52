// Package env defines the contract between the distillation wrapper and the
// host environment it wraps. The shape follows the conventional RL
// environment loop: Reset starts an episode, Step advances it by one action.
package env

import (
	"context"
	"image"

	"github.com/pkg/errors"
)

// Observation is what the environment returns each step. Images maps camera
// names to RGB frames; the wrapper reads from and writes back to the same
// camera key.
type Observation struct {
	Images map[string]image.Image
	Extra  map[string]interface{}
}

// Image looks up a camera frame. A missing camera is a collaborator contract
// violation and a hard error.
func (o *Observation) Image(camera string) (image.Image, error) {
	if o == nil || o.Images == nil {
		return nil, errors.New("observation carries no images")
	}
	img, ok := o.Images[camera]
	if !ok {
		return nil, errors.Errorf("camera %q not found in observation", camera)
	}
	return img, nil
}

// SetImage writes a frame back under a camera key.
func (o *Observation) SetImage(camera string, img image.Image) {
	if o.Images == nil {
		o.Images = make(map[string]image.Image)
	}
	o.Images[camera] = img
}

// StepResult bundles a Step return.
type StepResult struct {
	Observation *Observation
	Reward      float64
	Terminated  bool
	Truncated   bool
	Info        map[string]interface{}
}

// Environment is the wrapped collaborator. Both calls block until the
// environment has produced the next observation.
type Environment interface {
	Reset(ctx context.Context, seed int64, options map[string]interface{}) (*Observation, map[string]interface{}, error)
	Step(ctx context.Context, action []float64) (*StepResult, error)
}

// InstructionProvider is an optional capability: environments that know the
// current language instruction expose it here.
type InstructionProvider interface {
	LanguageInstruction() string
}

// DistractorNamer is an optional capability: environments that spawn
// distractors per episode report their concept names here. Absence means
// "use the statically configured names".
type DistractorNamer interface {
	DistractorNames() []string
}

// RobotHider is an optional capability: environments that can re-render a
// camera with the robot's visual meshes hidden expose it here. Strictly a
// best-effort warm-up optimization; failures are logged and ignored.
type RobotHider interface {
	RenderWithoutRobot(ctx context.Context, camera string) (image.Image, error)
}
