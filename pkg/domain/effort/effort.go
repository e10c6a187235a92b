// Package effort turns the tier's effort series into render-ready data: a
// display-aligned 0..1 intensity sequence and a muted six-stop color ramp.
package effort

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Resample aligns the full-grid effort series with the chosen display
// indices, one value per display point.
func Resample(effort []float64, displayIdx []int) []float64 {
	out := make([]float64, len(displayIdx))
	for i, g := range displayIdx {
		if g >= 0 && g < len(effort) {
			out[i] = clamp01(effort[g])
		}
	}
	return out
}

// The ramp runs cool blue through amber to deep crimson. Lightness stays at
// or under 42% and saturation under 70% so the gradient reads against a dark
// background without shouting.
type stop struct {
	t, h, s, l float64
}

var stops = []stop{
	{0.0, 210, 0.55, 0.42},
	{0.2, 170, 0.50, 0.40},
	{0.4, 55, 0.60, 0.42},
	{0.6, 28, 0.65, 0.42},
	{0.8, 8, 0.68, 0.40},
	{1.0, 350, 0.70, 0.38},
}

// Color maps one effort value onto the gradient. Values outside [0,1] are
// clamped.
func Color(v float64) colorful.Color {
	v = clamp01(v)
	for i := 0; i < len(stops)-1; i++ {
		a, b := stops[i], stops[i+1]
		if v > b.t {
			continue
		}
		frac := (v - a.t) / (b.t - a.t)
		h := lerpHue(a.h, b.h, frac)
		s := a.s + frac*(b.s-a.s)
		l := a.l + frac*(b.l-a.l)
		return colorful.Hsl(h, s, l)
	}
	last := stops[len(stops)-1]
	return colorful.Hsl(last.h, last.s, last.l)
}

// Hex returns the gradient color as #rrggbb for web consumers.
func Hex(v float64) string {
	return Color(v).Hex()
}

// lerpHue interpolates around the shorter arc of the color wheel so the
// crimson end approaches through red, not backwards through green.
func lerpHue(a, b, t float64) float64 {
	delta := math.Mod(b-a+540, 360) - 180
	h := math.Mod(a+t*delta+360, 360)
	return h
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
