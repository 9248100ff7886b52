// Package fake provides a scripted environment for wrapper tests.
package fake

import (
	"context"
	"image"

	"github.com/pkg/errors"

	"github.com/robodistill/cgvd/env"
)

// Env replays a fixed sequence of frames under one camera. Reset serves
// Frames[0]; each Step serves the next frame, repeating the last one when the
// script runs out.
type Env struct {
	Camera      string
	Frames      []image.Image
	Instruction string

	// Distractors, when non-nil, is reported through the DistractorNamer
	// capability.
	Distractors []string

	// HiddenRobotFrames, when non-nil, enables the RobotHider capability
	// and serves these frames instead of the scripted ones.
	HiddenRobotFrames []image.Image
	// FailHide makes RenderWithoutRobot return an error, for exercising
	// the best-effort path.
	FailHide bool

	ResetCalls int
	StepCalls  int
	// LastActions records every action passed to Step.
	LastActions [][]float64

	cursor int
}

func (e *Env) frame() image.Image {
	if len(e.Frames) == 0 {
		return nil
	}
	i := e.cursor
	if i >= len(e.Frames) {
		i = len(e.Frames) - 1
	}
	return e.Frames[i]
}

func (e *Env) observation() *env.Observation {
	return &env.Observation{Images: map[string]image.Image{e.Camera: e.frame()}}
}

// Reset implements env.Environment.
func (e *Env) Reset(ctx context.Context, seed int64, options map[string]interface{}) (*env.Observation, map[string]interface{}, error) {
	e.ResetCalls++
	e.cursor = 0
	return e.observation(), map[string]interface{}{"seed": seed}, nil
}

// Step implements env.Environment.
func (e *Env) Step(ctx context.Context, action []float64) (*env.StepResult, error) {
	e.StepCalls++
	e.LastActions = append(e.LastActions, action)
	e.cursor++
	return &env.StepResult{Observation: e.observation()}, nil
}

// LanguageInstruction implements env.InstructionProvider.
func (e *Env) LanguageInstruction() string { return e.Instruction }

// DistractorNames implements env.DistractorNamer.
func (e *Env) DistractorNames() []string { return e.Distractors }

// RenderWithoutRobot implements env.RobotHider when hidden frames are
// scripted.
func (e *Env) RenderWithoutRobot(ctx context.Context, camera string) (image.Image, error) {
	if e.FailHide {
		return nil, errors.New("hide robot failed")
	}
	if len(e.HiddenRobotFrames) == 0 {
		return nil, errors.New("no hidden-robot frames scripted")
	}
	i := e.cursor
	if i >= len(e.HiddenRobotFrames) {
		i = len(e.HiddenRobotFrames) - 1
	}
	return e.HiddenRobotFrames[i], nil
}
