package stream

// DownsampleBudget is the engine-wide rendering point budget. A ten-minute
// jog and a six-hour ultra both resolve to at most this many display points.
const DownsampleBudget = 500

// DownsampleIndices selects at most budget indices into points using
// largest-triangle-three-buckets over the densest channel, so the chosen
// points preserve visual shape across all channels at once. The first and
// last samples are always kept exactly.
func DownsampleIndices(points []Point, budget int) []int {
	n := len(points)
	if n == 0 {
		return nil
	}
	if budget >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	if budget < 3 {
		return []int{0, n - 1}
	}

	y := shapeSignal(points)
	idx := make([]int, 0, budget)
	idx = append(idx, 0)

	every := float64(n-2) / float64(budget-2)
	prev := 0
	for b := 0; b < budget-2; b++ {
		start := int(float64(b)*every) + 1
		end := int(float64(b+1)*every) + 1
		if end >= n-1 {
			end = n - 1
		}

		// Average of the following bucket anchors the triangle's third vertex.
		nextStart := end
		nextEnd := int(float64(b+2)*every) + 1
		if nextEnd > n-1 {
			nextEnd = n - 1
		}
		avgX, avgY := bucketMean(y, nextStart, nextEnd)
		if nextStart >= nextEnd {
			avgX, avgY = float64(n-1), y[n-1]
		}

		best := start
		bestArea := -1.0
		for i := start; i < end; i++ {
			// Twice the triangle area; the factor cancels in comparison.
			area := abs((float64(prev)-avgX)*(y[i]-y[prev]) - (float64(prev)-float64(i))*(avgY-y[prev]))
			if area > bestArea {
				bestArea = area
				best = i
			}
		}
		idx = append(idx, best)
		prev = best
	}

	idx = append(idx, n-1)
	return idx
}

// shapeSignal returns a dense series for triangle scoring, taken from the
// channel with the most recorded values. Gaps carry the previous value so
// they never dominate the area metric.
func shapeSignal(points []Point) []float64 {
	hrN, paceN, altN, cadN := 0, 0, 0, 0
	for _, p := range points {
		if p.HR != nil {
			hrN++
		}
		if p.PaceSKm != nil {
			paceN++
		}
		if p.AltitudeM != nil {
			altN++
		}
		if p.CadenceSPM != nil {
			cadN++
		}
	}
	pick := func(p Point) *float64 { return nil }
	switch {
	case hrN >= paceN && hrN >= altN && hrN >= cadN && hrN > 0:
		pick = func(p Point) *float64 { return p.HR }
	case paceN >= altN && paceN >= cadN && paceN > 0:
		pick = func(p Point) *float64 { return p.PaceSKm }
	case altN >= cadN && altN > 0:
		pick = func(p Point) *float64 { return p.AltitudeM }
	case cadN > 0:
		pick = func(p Point) *float64 { return p.CadenceSPM }
	}

	y := make([]float64, len(points))
	last := 0.0
	for i, p := range points {
		if v := pick(p); v != nil {
			last = *v
		}
		y[i] = last
	}
	return y
}

func bucketMean(y []float64, start, end int) (meanX, meanY float64) {
	if start >= end {
		return float64(start), 0
	}
	for i := start; i < end; i++ {
		meanX += float64(i)
		meanY += y[i]
	}
	span := float64(end - start)
	return meanX / span, meanY / span
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
