// Package vision defines the contracts for the external perception models the
// distillation pipeline depends on: an open-vocabulary segmenter and an
// inpainter. Both are consumed as opaque, blocking services; this package also
// provides the shared registry that hands out singleton model handles.
package vision

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/robodistill/cgvd/rmask"
)

// ConceptSeparator joins concepts into the prompt string a Segmenter accepts.
const ConceptSeparator = ". "

// Instance is a single detected object instance for one concept. A concept
// can yield several spatially disjoint instances per query.
type Instance struct {
	Concept string
	Index   int
	Score   float64
	Mask    *rmask.Mask
}

// Name renders the conventional instance name, "spoon" for a lone instance
// and "spoon_1" otherwise. Display only; logic should key on Concept/Index.
func (in Instance) Name() string {
	if in.Index == 0 {
		return in.Concept
	}
	return fmt.Sprintf("%s_%d", in.Concept, in.Index)
}

// Segmentation is the result of one Segment call.
type Segmentation struct {
	// Combined is the elementwise max over all instance masks.
	Combined  *rmask.Mask
	Instances []Instance
}

// InstancesOf returns the instances belonging to one concept, in index order.
func (s *Segmentation) InstancesOf(concept string) []Instance {
	var out []Instance
	for _, in := range s.Instances {
		if in.Concept == concept {
			out = append(out, in)
		}
	}
	return out
}

// ConceptMask unions the masks of all instances of a concept. Returns an
// all-zero mask when the concept was not detected; absence is not an error.
func (s *Segmentation) ConceptMask(concept string, width, height int) (*rmask.Mask, error) {
	out := rmask.NewMask(width, height)
	for _, in := range s.Instances {
		if in.Concept != concept {
			continue
		}
		if err := out.Union(in.Mask); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Combine builds the combined mask from a set of instances.
func Combine(instances []Instance, width, height int) (*rmask.Mask, error) {
	out := rmask.NewMask(width, height)
	for _, in := range instances {
		if err := out.Union(in.Mask); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SplitPrompt breaks a prompt string back into its concept list, dropping
// empties.
func SplitPrompt(prompt string) []string {
	var out []string
	for _, c := range strings.Split(prompt, ConceptSeparator) {
		c = strings.TrimSpace(strings.TrimSuffix(c, "."))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Segmenter is an open-vocabulary segmentation model. Implementations take a
// prompt of ConceptSeparator-joined concepts and return every instance whose
// confidence passes the threshold. A concept with no passing instance simply
// contributes nothing; "not found" never returns an error.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image, prompt string, threshold float64) (*Segmentation, error)
}

// Inpainter plausibly fills the masked region of an image from surrounding
// context. Deterministic per call and stateless; callers cache results.
type Inpainter interface {
	Inpaint(ctx context.Context, img image.Image, mask *rmask.Mask) (image.Image, error)
}
