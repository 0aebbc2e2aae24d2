// Package indicator computes rolling-window statistics over price series.
// Every function returns a slice aligned to its input, with NaN for the
// warm-up positions before the window is filled.
package indicator

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Sum returns the sum of s.
func Sum[S ~[]E, E constraints.Integer | constraints.Float](s S) E {
	var sum E
	for _, e := range s {
		sum += e
	}
	return sum
}

// Mean returns the arithmetic mean of s, or NaN for an empty slice.
func Mean[S ~[]E, E constraints.Float](s S) E {
	if len(s) == 0 {
		return E(math.NaN())
	}
	return Sum(s) / E(len(s))
}

// StdDev returns the sample standard deviation (n-1 denominator) of s, or
// NaN when s has fewer than two elements.
func StdDev[S ~[]E, E constraints.Float](s S) E {
	if len(s) < 2 {
		return E(math.NaN())
	}
	m := Mean(s)
	var sq E
	for _, e := range s {
		d := e - m
		sq += d * d
	}
	return E(math.Sqrt(float64(sq / E(len(s)-1))))
}

// rolling applies fn to every full trailing window of length p.
func rolling(x []float64, p int, fn func(window []float64) float64) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	for i := range x {
		if i < p-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = fn(x[i-p+1 : i+1])
	}
	return out
}

// SMA is the rolling mean over the last p points.
func SMA(x []float64, p int) []float64 {
	return rolling(x, p, Mean[[]float64])
}

// RollingStd is the rolling sample standard deviation over the last p points.
// A window of one yields NaN everywhere.
func RollingStd(x []float64, p int) []float64 {
	return rolling(x, p, StdDev[[]float64])
}

// RollingMax is the highest value over the last p points.
func RollingMax(x []float64, p int) []float64 {
	return rolling(x, p, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			if v > m || math.IsNaN(m) {
				m = v
			}
		}
		return m
	})
}

// RollingMin is the lowest value over the last p points.
func RollingMin(x []float64, p int) []float64 {
	return rolling(x, p, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			if v < m || math.IsNaN(m) {
				m = v
			}
		}
		return m
	})
}

// Bands holds Bollinger-style bands aligned to the input series.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands returns mean ± width·std over a rolling window of p.
func BollingerBands(x []float64, p int, width float64) Bands {
	mid := SMA(x, p)
	std := RollingStd(x, p)
	b := Bands{
		Upper:  make([]float64, len(mid)),
		Middle: mid,
		Lower:  make([]float64, len(mid)),
	}
	for i := range mid {
		b.Upper[i] = mid[i] + width*std[i]
		b.Lower[i] = mid[i] - width*std[i]
	}
	return b
}
