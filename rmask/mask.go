// Package rmask implements the soft-mask arithmetic used by the visual
// distillation pipeline. A Mask is a dense H x W grid of float64 confidences
// in [0,1]; compositing consumes the soft values directly, while all gating
// logic binarizes at Threshold first.
package rmask

import (
	"image"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Threshold is the cutoff separating "on" from "off" pixels whenever a soft
// mask has to be treated as a binary region.
const Threshold = 0.5

// Mask is a single-channel confidence grid. The zero value is not usable;
// construct with NewMask or FromImage.
type Mask struct {
	data   *mat.Dense
	width  int
	height int
}

// NewMask returns an all-zero mask of the given dimensions.
func NewMask(width, height int) *Mask {
	return &Mask{
		data:   mat.NewDense(height, width, nil),
		width:  width,
		height: height,
	}
}

// NewMaskFromDense wraps an existing matrix. The matrix is not copied.
func NewMaskFromDense(d *mat.Dense) *Mask {
	r, c := d.Dims()
	return &Mask{data: d, width: c, height: r}
}

// Width returns the number of columns.
func (m *Mask) Width() int { return m.width }

// Height returns the number of rows.
func (m *Mask) Height() int { return m.height }

// Bounds returns the mask extent as an image rectangle.
func (m *Mask) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.width, m.height)
}

// At returns the confidence at (x,y).
func (m *Mask) At(x, y int) float64 { return m.data.At(y, x) }

// Set writes the confidence at (x,y).
func (m *Mask) Set(x, y int, v float64) { m.data.Set(y, x, v) }

// On reports whether the pixel passes the binarization threshold.
func (m *Mask) On(x, y int) bool { return m.data.At(y, x) > Threshold }

// Dense exposes the underlying matrix for gonum interop.
func (m *Mask) Dense() *mat.Dense { return m.data }

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	return &Mask{data: mat.DenseCopyOf(m.data), width: m.width, height: m.height}
}

// SameSize reports whether two masks share dimensions.
func (m *Mask) SameSize(other *Mask) bool {
	return m.width == other.width && m.height == other.height
}

func (m *Mask) checkSize(other *Mask, op string) error {
	if !m.SameSize(other) {
		return errors.Errorf("%s: mask size mismatch, %dx%d vs %dx%d",
			op, m.width, m.height, other.width, other.height)
	}
	return nil
}

// Union overwrites m with the elementwise max of m and other. Max, not
// addition, so that repeated accumulation of the same detection stays in [0,1].
func (m *Mask) Union(other *Mask) error {
	if err := m.checkSize(other, "union"); err != nil {
		return err
	}
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if v := other.data.At(y, x); v > m.data.At(y, x) {
				m.data.Set(y, x, v)
			}
		}
	}
	return nil
}

// UnionOf returns max(a, b) without modifying either input.
func UnionOf(a, b *Mask) (*Mask, error) {
	out := a.Clone()
	if err := out.Union(b); err != nil {
		return nil, err
	}
	return out, nil
}

// Subtract zeroes every pixel of m where other is on. Only the binarized
// footprint of other matters; soft values in m outside it are preserved.
func (m *Mask) Subtract(other *Mask) error {
	if err := m.checkSize(other, "subtract"); err != nil {
		return err
	}
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if other.data.At(y, x) > Threshold {
				m.data.Set(y, x, 0)
			}
		}
	}
	return nil
}

// Binarize returns a copy with every value snapped to 0 or 1.
func (m *Mask) Binarize() *Mask {
	out := NewMask(m.width, m.height)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if m.data.At(y, x) > Threshold {
				out.data.Set(y, x, 1)
			}
		}
	}
	return out
}

// Area counts pixels above the binarization threshold.
func (m *Mask) Area() int {
	n := 0
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if m.data.At(y, x) > Threshold {
				n++
			}
		}
	}
	return n
}

// Empty reports whether no pixel passes the threshold.
func (m *Mask) Empty() bool { return m.Area() == 0 }

// IoU computes intersection-over-union of the binarized masks. Two empty
// masks have IoU 0.
func IoU(a, b *Mask) (float64, error) {
	if err := a.checkSize(b, "iou"); err != nil {
		return 0, err
	}
	inter, union := 0, 0
	for y := 0; y < a.height; y++ {
		for x := 0; x < a.width; x++ {
			aOn := a.data.At(y, x) > Threshold
			bOn := b.data.At(y, x) > Threshold
			if aOn && bOn {
				inter++
			}
			if aOn || bOn {
				union++
			}
		}
	}
	if union == 0 {
		return 0, nil
	}
	return float64(inter) / float64(union), nil
}

// Overlap returns the fraction of a's on-pixels that are also on in b.
// Zero when a is empty.
func Overlap(a, b *Mask) (float64, error) {
	if err := a.checkSize(b, "overlap"); err != nil {
		return 0, err
	}
	inter, area := 0, 0
	for y := 0; y < a.height; y++ {
		for x := 0; x < a.width; x++ {
			if a.data.At(y, x) > Threshold {
				area++
				if b.data.At(y, x) > Threshold {
					inter++
				}
			}
		}
	}
	if area == 0 {
		return 0, nil
	}
	return float64(inter) / float64(area), nil
}

// Intersects reports whether any pixel is on in both masks.
func Intersects(a, b *Mask) (bool, error) {
	if err := a.checkSize(b, "intersects"); err != nil {
		return false, err
	}
	for y := 0; y < a.height; y++ {
		for x := 0; x < a.width; x++ {
			if a.data.At(y, x) > Threshold && b.data.At(y, x) > Threshold {
				return true, nil
			}
		}
	}
	return false, nil
}
