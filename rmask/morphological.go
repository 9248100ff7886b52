package rmask

import "github.com/pkg/errors"

// DilateSquare grows the binarized mask with a k x k box structuring element.
// k must be odd and >= 1; k == 1 returns a binarized copy unchanged. The
// result is binary (0/1).
func (m *Mask) DilateSquare(k int) (*Mask, error) {
	if k < 1 || k%2 == 0 {
		return nil, errors.Errorf("dilation kernel size must be odd and positive, got %d", k)
	}
	out := NewMask(m.width, m.height)
	span := (k - 1) / 2
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if m.data.At(y, x) <= Threshold {
				continue
			}
			for dy := -span; dy <= span; dy++ {
				yy := y + dy
				if yy < 0 || yy >= m.height {
					continue
				}
				for dx := -span; dx <= span; dx++ {
					xx := x + dx
					if xx < 0 || xx >= m.width {
						continue
					}
					out.data.Set(yy, xx, 1)
				}
			}
		}
	}
	return out, nil
}

// ErodeSquare shrinks the binarized mask with a k x k box structuring
// element. A pixel survives only if the whole neighborhood (clipped at the
// border) is on.
func (m *Mask) ErodeSquare(k int) (*Mask, error) {
	if k < 1 || k%2 == 0 {
		return nil, errors.Errorf("erosion kernel size must be odd and positive, got %d", k)
	}
	out := NewMask(m.width, m.height)
	span := (k - 1) / 2
	for y := 0; y < m.height; y++ {
	pixel:
		for x := 0; x < m.width; x++ {
			if m.data.At(y, x) <= Threshold {
				continue
			}
			for dy := -span; dy <= span; dy++ {
				yy := y + dy
				if yy < 0 || yy >= m.height {
					continue
				}
				for dx := -span; dx <= span; dx++ {
					xx := x + dx
					if xx < 0 || xx >= m.width {
						continue
					}
					if m.data.At(yy, xx) <= Threshold {
						continue pixel
					}
				}
			}
			out.data.Set(y, x, 1)
		}
	}
	return out, nil
}
