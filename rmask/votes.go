package rmask

import "github.com/pkg/errors"

// VoteGrid counts, per pixel, how many accepted detections covered that
// pixel. It backs connected-component scoring only and never feeds into
// compositing.
type VoteGrid struct {
	counts []int
	width  int
	height int
}

// NewVoteGrid returns a zeroed grid.
func NewVoteGrid(width, height int) *VoteGrid {
	return &VoteGrid{counts: make([]int, width*height), width: width, height: height}
}

// Add increments every pixel where the mask is on.
func (v *VoteGrid) Add(m *Mask) error {
	if m.Width() != v.width || m.Height() != v.height {
		return errors.Errorf("vote grid size mismatch, %dx%d vs %dx%d",
			v.width, v.height, m.Width(), m.Height())
	}
	for y := 0; y < v.height; y++ {
		for x := 0; x < v.width; x++ {
			if m.On(x, y) {
				v.counts[y*v.width+x]++
			}
		}
	}
	return nil
}

// At returns the vote count at (x,y).
func (v *VoteGrid) At(x, y int) int { return v.counts[y*v.width+x] }

// MeanOver averages vote counts across the pixels of the component.
func (v *VoteGrid) MeanOver(c *Component) float64 {
	if len(c.Pixels) == 0 {
		return 0
	}
	total := 0
	for _, p := range c.Pixels {
		total += v.counts[p.Y*v.width+p.X]
	}
	return float64(total) / float64(len(c.Pixels))
}
