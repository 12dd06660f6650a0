package tq

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/interp"
)

// Method is an interpolation method used to predict the next quantizer.
type Method string

const (
	Linear          Method = "linear"
	Quadratic       Method = "quadratic"
	Natural         Method = "natural"
	Pchip           Method = "pchip"
	Catmull         Method = "catmull"
	Akima           Method = "akima"
	CubicPolynomial Method = "cubicpolynomial"
)

// Methods lists every interpolation method.
var Methods = []Method{Linear, Quadratic, Natural, Pchip, Catmull, Akima, CubicPolynomial}

// ErrTooFewPoints is returned when fewer than two distinct scores exist.
var ErrTooFewPoints = errors.New("too few distinct points to interpolate")

// ParseMethod accepts any name in [Methods], case-insensitively.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Methods, m) {
		return "", fmt.Errorf("unknown interpolation method %q", s)
	}
	return m, nil
}

// Bootstrap reports whether m fits the first three probes well enough to
// steer the search.
func (m Method) Bootstrap() bool {
	return m == Linear || m == Quadratic || m == Natural
}

// point is one probe seen as quantizer over score.
type point struct{ score, q float64 }

// Inverse predicts the quantizer that yields target, given probes as
// (score, quantizer) pairs. Scores are the x axis; equal scores are merged
// by averaging their quantizers. Outside the observed score span the two
// nearest points are extended linearly.
func Inverse(m Method, scores, quantizers []float64, target float64) (float64, error) {
	pts := normalize(scores, quantizers)
	if len(pts) < 2 {
		return 0, ErrTooFewPoints
	}
	first, last := pts[0], pts[len(pts)-1]
	switch {
	case target <= first.score:
		return extend(pts[0], pts[1], target), nil
	case target >= last.score:
		return extend(pts[len(pts)-2], pts[len(pts)-1], target), nil
	}

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.score, p.q
	}

	// The spline methods need three knots; with two they reduce to a line.
	if len(pts) == 2 {
		m = Linear
	}
	var v float64
	switch m {
	case Linear:
		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, ys); err != nil {
			return 0, err
		}
		v = pl.Predict(target)
	case Natural:
		var nc interp.NaturalCubic
		if err := nc.Fit(xs, ys); err != nil {
			return 0, err
		}
		v = nc.Predict(target)
	case Akima:
		var ak interp.AkimaSpline
		if err := ak.Fit(xs, ys); err != nil {
			return 0, err
		}
		v = ak.Predict(target)
	case Pchip:
		var fb interp.FritschButland
		if err := fb.Fit(xs, ys); err != nil {
			return 0, err
		}
		v = fb.Predict(target)
	case Quadratic:
		v = lagrange(nearest(pts, target, 3), target)
	case CubicPolynomial:
		v = lagrange(nearest(pts, target, 4), target)
	case Catmull:
		v = catmullRom(pts, target)
	default:
		return 0, fmt.Errorf("unknown interpolation method %q", m)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s interpolation diverged", m)
	}
	return v, nil
}

func normalize(scores, quantizers []float64) []point {
	pts := make([]point, 0, len(scores))
	for i := range min(len(scores), len(quantizers)) {
		pts = append(pts, point{scores[i], quantizers[i]})
	}
	slices.SortFunc(pts, func(a, b point) int { return cmp.Compare(a.score, b.score) })

	out := pts[:0]
	for i := 0; i < len(pts); {
		j, sum := i, 0.0
		for ; j < len(pts) && pts[j].score == pts[i].score; j++ {
			sum += pts[j].q
		}
		out = append(out, point{pts[i].score, sum / float64(j-i)})
		i = j
	}
	return out
}

func extend(a, b point, x float64) float64 {
	slope := (b.q - a.q) / (b.score - a.score)
	return a.q + (x-a.score)*slope
}

// nearest returns up to n consecutive points whose span is centered on x.
func nearest(pts []point, x float64, n int) []point {
	if len(pts) <= n {
		return pts
	}
	i, _ := slices.BinarySearchFunc(pts, x, func(p point, x float64) int { return cmp.Compare(p.score, x) })
	lo := min(max(i-n/2, 0), len(pts)-n)
	return pts[lo : lo+n]
}

func lagrange(pts []point, x float64) float64 {
	var sum float64
	for i, pi := range pts {
		term := pi.q
		for j, pj := range pts {
			if i != j {
				term *= (x - pj.score) / (pi.score - pj.score)
			}
		}
		sum += term
	}
	return sum
}

// catmullRom evaluates a cubic Hermite segment whose tangents are central
// differences of the neighbouring points.
func catmullRom(pts []point, x float64) float64 {
	k, _ := slices.BinarySearchFunc(pts, x, func(p point, x float64) int { return cmp.Compare(p.score, x) })
	k = min(max(k, 1), len(pts)-1)
	p0, p1 := pts[k-1], pts[k]

	tangent := func(i int) float64 {
		a, b := pts[max(i-1, 0)], pts[min(i+1, len(pts)-1)]
		return (b.q - a.q) / (b.score - a.score)
	}
	h := p1.score - p0.score
	t := (x - p0.score) / h
	t2, t3 := t*t, t*t*t
	return (2*t3-3*t2+1)*p0.q +
		(t3-2*t2+t)*h*tangent(k-1) +
		(-2*t3+3*t2)*p1.q +
		(t3-t2)*h*tangent(k)
}
