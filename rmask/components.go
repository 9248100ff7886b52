package rmask

import "image"

// Component is one 4-connected region of a binarized mask.
type Component struct {
	Label  int
	Pixels []image.Point
}

// Area returns the pixel count of the component.
func (c *Component) Area() int { return len(c.Pixels) }

// Mask renders the component back into a binary mask of the given size.
func (c *Component) Mask(width, height int) *Mask {
	out := NewMask(width, height)
	for _, p := range c.Pixels {
		out.Set(p.X, p.Y, 1)
	}
	return out
}

// ConnectedComponents labels the 4-connected regions of the binarized mask.
// Components come back ordered by discovery (row-major scan of their topmost-
// leftmost pixel), so labeling is deterministic for a given mask.
func (m *Mask) ConnectedComponents() []*Component {
	visited := make([]bool, m.width*m.height)
	var components []*Component
	label := 0
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			if visited[y*m.width+x] || m.data.At(y, x) <= Threshold {
				continue
			}
			comp := &Component{Label: label}
			// iterative flood fill
			stack := []image.Point{{x, y}}
			visited[y*m.width+x] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				comp.Pixels = append(comp.Pixels, p)
				for _, n := range []image.Point{
					{p.X - 1, p.Y}, {p.X + 1, p.Y}, {p.X, p.Y - 1}, {p.X, p.Y + 1},
				} {
					if n.X < 0 || n.X >= m.width || n.Y < 0 || n.Y >= m.height {
						continue
					}
					if visited[n.Y*m.width+n.X] || m.data.At(n.Y, n.X) <= Threshold {
						continue
					}
					visited[n.Y*m.width+n.X] = true
					stack = append(stack, n)
				}
			}
			components = append(components, comp)
			label++
		}
	}
	return components
}
