package rmask

import "math"

// makeRangeArray gives kernel offsets centered on zero. If length is even,
// the origin is to the right of middle i.e. 4 -> {-2, -1, 0, 1}.
func makeRangeArray(length int) []int {
	if length <= 0 {
		return make([]int, 0)
	}
	rangeArray := make([]int, length)
	var span int
	if length%2 == 0 {
		oddArr := makeRangeArray(length - 1)
		span = length / 2
		rangeArray = append([]int{-span}, oddArr...)
	} else {
		span = (length - 1) / 2
		for i := 0; i < span; i++ {
			rangeArray[length-1-i] = span - i
			rangeArray[i] = -span + i
		}
	}
	return rangeArray
}

// gaussianFunction1D takes in a sigma and returns a gaussian function useful
// for weighing averages or blurring.
func gaussianFunction1D(sigma float64) func(p float64) float64 {
	if sigma <= 0. {
		return func(p float64) float64 {
			return 1.
		}
	}
	return func(p float64) float64 {
		return math.Exp(-0.5*math.Pow(p, 2)/math.Pow(sigma, 2)) / (sigma * math.Sqrt(2.*math.Pi))
	}
}

// GaussianFeather blurs the mask with an isotropic Gaussian of the given
// sigma, producing a soft 0-1 alpha suitable for seamless compositing. The
// kernel covers 3 sigma on each side. sigma <= 0 returns an unblurred copy.
func (m *Mask) GaussianFeather(sigma float64) *Mask {
	if sigma <= 0 {
		return m.Clone()
	}
	k := 1 + 2*int(math.Ceil(3.*sigma))
	offsets := makeRangeArray(k)
	gaus := gaussianFunction1D(sigma)
	kernel := make([]float64, k)
	for i, off := range offsets {
		kernel[i] = gaus(float64(off))
	}

	// separable blur, horizontal then vertical, renormalizing at borders
	tmp := NewMask(m.width, m.height)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			val, weight := 0.0, 0.0
			for i, dx := range offsets {
				xx := x + dx
				if xx < 0 || xx >= m.width {
					continue
				}
				val += kernel[i] * m.data.At(y, xx)
				weight += kernel[i]
			}
			tmp.data.Set(y, x, val/weight)
		}
	}
	out := NewMask(m.width, m.height)
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			val, weight := 0.0, 0.0
			for i, dy := range offsets {
				yy := y + dy
				if yy < 0 || yy >= m.height {
					continue
				}
				val += kernel[i] * tmp.data.At(yy, x)
				weight += kernel[i]
			}
			out.data.Set(y, x, math.Min(1, math.Max(0, val/weight)))
		}
	}
	return out
}
