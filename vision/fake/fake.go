// Package fake provides deterministic in-memory segmentation and inpainting
// models for tests and examples.
package fake

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/robodistill/cgvd/rmask"
	"github.com/robodistill/cgvd/vision"
)

// Detection scripts one object instance the fake segmenter should report.
// The mask is a filled rectangle unless Mask is set explicitly.
type Detection struct {
	Concept string
	Score   float64
	Rect    image.Rectangle
	Mask    *rmask.Mask
}

func (d Detection) mask(width, height int) *rmask.Mask {
	if d.Mask != nil {
		return d.Mask.Clone()
	}
	m := rmask.NewMask(width, height)
	r := d.Rect.Intersect(image.Rect(0, 0, width, height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(x, y, 1)
		}
	}
	return m
}

// Segmenter replays scripted detections. Frames[i] holds the detections for
// the i-th Segment call; past the end of the script the last entry repeats,
// so a single frame scripts a static scene.
type Segmenter struct {
	Width  int
	Height int
	Frames [][]Detection

	// SegmentFunc, when non-nil, replaces the scripted behavior.
	SegmentFunc func(ctx context.Context, img image.Image, prompt string, threshold float64) (*vision.Segmentation, error)

	mu            sync.Mutex
	calls         int
	lastPrompt    string
	lastThreshold float64
}

// Segment implements vision.Segmenter.
func (s *Segmenter) Segment(
	ctx context.Context,
	img image.Image,
	prompt string,
	threshold float64,
) (*vision.Segmentation, error) {
	if s.SegmentFunc != nil {
		s.mu.Lock()
		s.calls++
		s.lastPrompt, s.lastThreshold = prompt, threshold
		s.mu.Unlock()
		return s.SegmentFunc(ctx, img, prompt, threshold)
	}
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.lastPrompt, s.lastThreshold = prompt, threshold
	s.mu.Unlock()

	if s.Width == 0 || s.Height == 0 {
		return nil, errors.New("fake segmenter needs nonzero dimensions")
	}
	var script []Detection
	if len(s.Frames) > 0 {
		if idx >= len(s.Frames) {
			idx = len(s.Frames) - 1
		}
		script = s.Frames[idx]
	}
	wanted := make(map[string]bool)
	for _, c := range vision.SplitPrompt(prompt) {
		wanted[c] = true
	}
	perConcept := make(map[string]int)
	var instances []vision.Instance
	for _, d := range script {
		if !wanted[d.Concept] || d.Score < threshold {
			continue
		}
		instances = append(instances, vision.Instance{
			Concept: d.Concept,
			Index:   perConcept[d.Concept],
			Score:   d.Score,
			Mask:    d.mask(s.Width, s.Height),
		})
		perConcept[d.Concept]++
	}
	combined, err := vision.Combine(instances, s.Width, s.Height)
	if err != nil {
		return nil, err
	}
	return &vision.Segmentation{Combined: combined, Instances: instances}, nil
}

// Calls returns how many Segment calls were made.
func (s *Segmenter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastPrompt returns the prompt of the most recent call.
func (s *Segmenter) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrompt
}

// LastThreshold returns the threshold of the most recent call.
func (s *Segmenter) LastThreshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastThreshold
}

// Inpainter fills the masked region with a flat color, which makes inpainted
// pixels trivially recognizable in assertions.
type Inpainter struct {
	Fill color.NRGBA

	// InpaintFunc, when non-nil, replaces the flat-fill behavior.
	InpaintFunc func(ctx context.Context, img image.Image, mask *rmask.Mask) (image.Image, error)

	mu       sync.Mutex
	calls    int
	lastMask *rmask.Mask
}

// Inpaint implements vision.Inpainter.
func (p *Inpainter) Inpaint(ctx context.Context, img image.Image, mask *rmask.Mask) (image.Image, error) {
	p.mu.Lock()
	p.calls++
	p.lastMask = mask.Clone()
	p.mu.Unlock()

	if p.InpaintFunc != nil {
		return p.InpaintFunc(ctx, img, mask)
	}

	fill := p.Fill
	if fill.A == 0 {
		fill = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}
	}
	out := imaging.Clone(img)
	if out.Rect.Dx() != mask.Width() || out.Rect.Dy() != mask.Height() {
		return nil, errors.Errorf("inpaint: image is %dx%d, mask is %dx%d",
			out.Rect.Dx(), out.Rect.Dy(), mask.Width(), mask.Height())
	}
	for y := 0; y < mask.Height(); y++ {
		for x := 0; x < mask.Width(); x++ {
			if mask.On(x, y) {
				out.SetNRGBA(x, y, fill)
			}
		}
	}
	return out, nil
}

// Calls returns how many Inpaint calls were made.
func (p *Inpainter) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// LastMask returns a copy of the most recent inpainting mask, or nil.
func (p *Inpainter) LastMask() *rmask.Mask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastMask
}
