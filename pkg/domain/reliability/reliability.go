// Package reliability sanity-checks the heart-rate channel against pace.
// A strap that lost contact or locked onto cadence produces HR that moves
// implausibly against effort; downstream tiers must know before trusting it.
package reliability

import (
	"math"

	"github.com/runsight/server/pkg/domain/stream"
)

const (
	// inverseCorrelationLimit flags HR that consistently falls as speed
	// rises. Mild negative correlation is normal on hilly runs.
	inverseCorrelationLimit = -0.4

	// flatStddevLimit flags a stuck sensor: near-constant HR over a long
	// recording is physiologically implausible.
	flatStddevLimit = 1.0

	// minOverlap is the smallest paired sample count worth judging.
	minOverlap = 60
)

// Report describes whether the heart-rate channel can be trusted. Note is
// set only when Reliable is false.
type Report struct {
	Reliable bool
	Note     string
}

// Check inspects the normalized stream and returns nil when no heart-rate
// channel is present. HR judged unreliable stays in the stream; the report
// tells downstream consumers not to build physiology on it.
func Check(s *stream.Series) *Report {
	if !s.Has(stream.ChannelHR) {
		return nil
	}

	hr, hrOK := s.HRValues()
	pace, paceOK := s.PaceValues()

	if note, flat := flatLine(hr, hrOK); flat {
		return &Report{Reliable: false, Note: note}
	}

	if s.Has(stream.ChannelPace) {
		var xs, ys []float64
		for i := range hr {
			if hrOK[i] && paceOK[i] && pace[i] > 0 {
				xs = append(xs, 1000.0/pace[i]) // m/s
				ys = append(ys, hr[i])
			}
		}
		if len(xs) >= minOverlap {
			if r := pearson(xs, ys); r <= inverseCorrelationLimit {
				return &Report{
					Reliable: false,
					Note:     "Heart rate consistently falls as pace rises, which suggests the sensor lost contact or locked onto a different signal.",
				}
			}
		}
	}

	return &Report{Reliable: true}
}

// flatLine detects a stuck sensor over recordings long enough to judge.
func flatLine(hr []float64, ok []bool) (string, bool) {
	var vals []float64
	for i, v := range hr {
		if ok[i] {
			vals = append(vals, v)
		}
	}
	if len(vals) < 10*60 {
		return "", false
	}
	if stddev(vals) < flatStddevLimit {
		return "Heart rate barely changes for the entire run, which suggests a stuck sensor reading.", true
	}
	return "", false
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

func stddev(vals []float64) float64 {
	n := float64(len(vals))
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / n
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / n)
}
