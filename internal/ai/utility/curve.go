package utility

import "math"

// Curve maps a raw fact to a score in [0,1].
type Curve interface {
	Score(x float64) float64
}

// Boolean is a gate: any positive input scores 1.
type Boolean struct {
	Invert bool
}

func (b Boolean) Score(x float64) float64 {
	on := x > 0
	if b.Invert {
		on = !on
	}
	if on {
		return 1
	}
	return 0
}

// Linear is y = Slope*x + Intercept.
type Linear struct {
	Slope     float64
	Intercept float64
}

func (l Linear) Score(x float64) float64 { return clamp01(l.Slope*x + l.Intercept) }

// Quadratic is y = Slope*(x-XShift)^Exponent + YShift.
type Quadratic struct {
	Slope    float64
	Exponent float64
	XShift   float64
	YShift   float64
}

func (q Quadratic) Score(x float64) float64 {
	exp := q.Exponent
	if exp == 0 {
		exp = 2
	}
	return clamp01(q.Slope*math.Pow(x-q.XShift, exp) + q.YShift)
}

// Logistic is an S-curve centred on Midpoint. Negative Steepness flips it.
type Logistic struct {
	Steepness float64
	Midpoint  float64
}

func (l Logistic) Score(x float64) float64 {
	k := l.Steepness
	if k == 0 {
		k = 1
	}
	return clamp01(1 / (1 + math.Exp(-k*(x-l.Midpoint))))
}

// Identity passes the input through, clamped.
type Identity struct{}

func (Identity) Score(x float64) float64 { return clamp01(x) }

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
