// Package tier selects the highest-fidelity effort strategy the available
// channels support. The choice is made exactly once per analysis; everything
// downstream receives the derived effort series and honesty metadata rather
// than re-deriving channel availability on its own.
package tier

import (
	"github.com/runsight/server/pkg/domain/reliability"
	"github.com/runsight/server/pkg/domain/stream"
)

// Code is the closed set of analysis strategies, ordered from highest
// fidelity to lowest. The strings are a wire contract.
type Code string

const (
	Tier1ThresholdHR    Code = "tier1_threshold_hr"
	Tier2MaxHR          Code = "tier2_max_hr"
	Tier3Pace           Code = "tier3_pace"
	Tier4StreamRelative Code = "tier4_stream_relative"
)

// Confidence bases per tier, before channel-completeness adjustment.
const (
	confTier1 = 0.95
	confTier2 = 0.85
	confTier3 = 0.70
	confTier4 = 0.50

	// confPenalty is applied once per missing core channel and once more
	// when HR is present but untrustworthy.
	confPenalty = 0.05
)

// Baseline is the athlete's known physiology. All fields optional; Known
// reports whether any anchor exists at all.
type Baseline struct {
	ThresholdHR *float64
	MaxHR       *float64
	RestingHR   *float64
}

// Known reports whether the athlete has any physiological anchor on file.
func (b *Baseline) Known() bool {
	return b != nil && (b.ThresholdHR != nil || b.MaxHR != nil || b.RestingHR != nil)
}

// Selection is the chosen strategy plus the effort series it derives.
// Effort runs parallel to the normalized grid, one value in [0,1] per point.
type Selection struct {
	Code               Code
	Confidence         float64
	CrossRunComparable bool
	Flags              []string
	Effort             []float64
}

// Select walks the fidelity ladder top down and returns the first strategy
// whose inputs are all available. Missing channels lower confidence and add
// caveat flags; they are never an error.
func Select(s *stream.Series, hr *reliability.Report, baseline *Baseline) Selection {
	hrUsable := s.Has(stream.ChannelHR) && (hr == nil || hr.Reliable)

	var sel Selection
	switch {
	case hrUsable && baseline != nil && baseline.ThresholdHR != nil:
		sel = Selection{
			Code:               Tier1ThresholdHR,
			Confidence:         confTier1,
			CrossRunComparable: true,
			Effort:             thresholdEffort(s, *baseline.ThresholdHR),
		}
	case hrUsable && baseline != nil && baseline.MaxHR != nil:
		sel = Selection{
			Code:               Tier2MaxHR,
			Confidence:         confTier2,
			CrossRunComparable: true,
			Flags:              []string{"effort_from_max_hr_estimate"},
			Effort:             maxHREffort(s, *baseline.MaxHR),
		}
	case s.Has(stream.ChannelPace) && baseline.Known():
		sel = Selection{
			Code:               Tier3Pace,
			Confidence:         confTier3,
			CrossRunComparable: true,
			Flags:              []string{"effort_estimated_from_pace"},
			Effort:             paceEffort(s),
		}
	default:
		sel = Selection{
			Code:               Tier4StreamRelative,
			Confidence:         confTier4,
			CrossRunComparable: false,
			Flags:              []string{"effort_relative_to_this_run_only"},
			Effort:             relativeEffort(s),
		}
	}

	sel.applyCompleteness(s, hr)
	return sel
}

// applyCompleteness lowers confidence for each missing core channel and for
// present-but-unreliable HR, and records the matching caveat flags.
func (sel *Selection) applyCompleteness(s *stream.Series, hr *reliability.Report) {
	core := []stream.Channel{stream.ChannelHR, stream.ChannelPace, stream.ChannelCadence}
	for _, ch := range core {
		if !s.Has(ch) {
			sel.Confidence -= confPenalty
			sel.Flags = append(sel.Flags, "missing_"+string(ch))
		}
	}
	if s.Has(stream.ChannelHR) && hr != nil && !hr.Reliable {
		sel.Confidence -= confPenalty
		sel.Flags = append(sel.Flags, "hr_unreliable")
	}
	if sel.Confidence < 0 {
		sel.Confidence = 0
	}
	if sel.Confidence > 1 {
		sel.Confidence = 1
	}
}
