package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/runsight/server/pkg/analysis"
	"github.com/runsight/server/pkg/domain/effort"
	"github.com/runsight/server/pkg/domain/moment"
	"github.com/runsight/server/pkg/domain/plan"
	"github.com/runsight/server/pkg/domain/stream"
	"github.com/runsight/server/pkg/domain/tier"
	"github.com/runsight/server/pkg/integrations/telemetry"
)

var (
	analyzeStreamPath  string
	analyzeAthletePath string
	analyzePlanPath    string
	analyzeActivityID  string
	analyzePlanID      string
	analyzeBudget      int
	analyzeJSON        bool
	analyzeChart       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a local stream file without touching the pipeline",
	Long: `Analyze reads a telemetry stream from disk (.json or .fit), runs the
full interpretation locally and prints the result. Useful for inspecting
runs before they are uploaded and for debugging detector behavior.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeStreamPath, "stream", "", "path to the stream file (.json or .fit)")
	analyzeCmd.Flags().StringVar(&analyzeAthletePath, "athlete", "", "path to an athlete baseline JSON file")
	analyzeCmd.Flags().StringVar(&analyzePlanPath, "plan", "", "path to a planned workout JSON file")
	analyzeCmd.Flags().StringVar(&analyzeActivityID, "activity", "", "activity id to stamp on the result (default: stream file name)")
	analyzeCmd.Flags().StringVar(&analyzePlanID, "plan-id", "", "plan id to stamp on the result")
	analyzeCmd.Flags().IntVar(&analyzeBudget, "budget", 0, "display point budget (default engine setting)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the canonical result JSON instead of a summary")
	analyzeCmd.Flags().BoolVar(&analyzeChart, "chart", false, "plot effort intensity as an ascii chart")
	_ = analyzeCmd.MarkFlagRequired("stream")
	rootCmd.AddCommand(analyzeCmd)
}

// baselineFile is the on-disk athlete baseline shape.
type baselineFile struct {
	ThresholdHR *float64 `json:"threshold_hr,omitempty"`
	MaxHR       *float64 `json:"max_hr,omitempty"`
	RestingHR   *float64 `json:"resting_hr,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(analyzeStreamPath)
	if err != nil {
		return fmt.Errorf("read stream file: %w", err)
	}

	var samples []stream.RawSample
	if strings.EqualFold(filepath.Ext(analyzeStreamPath), ".fit") {
		samples, err = telemetry.ParseStreamFIT(data)
	} else {
		samples, err = telemetry.ParseStreamJSON(data)
	}
	if err != nil {
		return fmt.Errorf("parse stream: %w", err)
	}

	baseline, err := loadBaselineFile(analyzeAthletePath)
	if err != nil {
		return err
	}
	workout, err := loadPlanFile(analyzePlanPath)
	if err != nil {
		return err
	}

	activityID := analyzeActivityID
	if activityID == "" {
		base := filepath.Base(analyzeStreamPath)
		activityID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	engine := analysis.Engine{Budget: analyzeBudget}
	res, err := engine.Analyze(cmd.Context(), analysis.Input{
		ActivityID: activityID,
		PlanID:     analyzePlanID,
		Samples:    samples,
		Baseline:   baseline,
		Plan:       workout,
	})
	if err != nil {
		return err
	}

	if analyzeJSON {
		out, err := res.Encode()
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	printSummary(res)
	if analyzeChart && len(res.EffortIntensity) > 0 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(res.EffortIntensity,
			asciigraph.Height(10),
			asciigraph.Width(72),
			asciigraph.Precision(2),
			asciigraph.Caption("effort intensity"),
		))
	}
	return nil
}

func loadBaselineFile(path string) (*tier.Baseline, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read athlete file: %w", err)
	}
	var bf baselineFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parse athlete file: %w", err)
	}
	if bf.ThresholdHR == nil && bf.MaxHR == nil && bf.RestingHR == nil {
		return nil, nil
	}
	return &tier.Baseline{
		ThresholdHR: bf.ThresholdHR,
		MaxHR:       bf.MaxHR,
		RestingHR:   bf.RestingHR,
	}, nil
}

func loadPlanFile(path string) (*plan.Workout, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	var w plan.Workout
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse plan file: %w", err)
	}
	return &w, nil
}

func printSummary(res *analysis.Result) {
	fmt.Printf("Activity:    %s\n", res.ActivityID)
	fmt.Printf("Basis:       %s (confidence %.2f)\n", res.TierUsed, res.Confidence)
	fmt.Printf("Comparable:  %v across runs\n", res.CrossRunComparable)
	fmt.Printf("Channels:    %s", strings.Join(res.ChannelsPresent, ", "))
	if len(res.ChannelsMissing) > 0 {
		fmt.Printf(" (missing: %s)", strings.Join(res.ChannelsMissing, ", "))
	}
	fmt.Println()
	if len(res.EstimatedFlags) > 0 {
		fmt.Printf("Estimated:   %s\n", strings.Join(res.EstimatedFlags, ", "))
	}
	if res.HRReliable != nil && !*res.HRReliable {
		fmt.Printf("HR warning:  %s\n", res.HRNote)
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tSTART\tDURATION\tPACE\tHR\tEFFORT")
	for _, seg := range res.Segments {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			seg.Type,
			fmtClock(seg.StartTimeS),
			fmtClock(seg.DurationS),
			fmtPace(seg.AvgPaceSKm),
			fmtOpt(seg.AvgHR, "%.0f"),
			fmtSegmentEffort(res.EffortIntensity, seg.StartIndex, seg.EndIndex),
		)
	}
	w.Flush()

	fmt.Println()
	fmt.Printf("Drift: cardiac %s, pace %s, cadence trend %s\n",
		fmtOpt(res.Drift.CardiacPct, "%+.1f%%"),
		fmtOpt(res.Drift.PacePct, "%+.1f%%"),
		fmtOpt(res.Drift.CadenceTrendBpmKm, "%+.2f spm/km"),
	)

	if len(res.Moments) > 0 {
		fmt.Println()
		fmt.Println("Moments:")
		for _, m := range res.Moments {
			fmt.Printf("  %s  %s\n", fmtClock(m.TimeS), moment.Label(m))
		}
	}

	if res.PlanComparison != nil {
		c := res.PlanComparison
		fmt.Println()
		fmt.Println("Plan comparison:")
		pw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(pw, "  METRIC\tPLANNED\tACTUAL\tDELTA")
		fmt.Fprintf(pw, "  duration\t%s\t%s\t%s\n",
			fmtOpt(c.PlannedDurationMin, "%.1f min"), fmtOpt(c.ActualDurationMin, "%.1f min"), fmtOpt(c.DurationDeltaMin, "%+.1f min"))
		fmt.Fprintf(pw, "  distance\t%s\t%s\t%s\n",
			fmtOpt(c.PlannedDistanceKm, "%.2f km"), fmtOpt(c.ActualDistanceKm, "%.2f km"), fmtOpt(c.DistanceDeltaKm, "%+.2f km"))
		fmt.Fprintf(pw, "  pace\t%s\t%s\t%s\n",
			fmtPace(c.PlannedPaceSKm), fmtPace(c.ActualPaceSKm), fmtOpt(c.PaceDeltaSKm, "%+.0f s/km"))
		if c.PlannedIntervalCount > 0 {
			match := "no"
			if c.IntervalCountMatch {
				match = "yes"
			}
			fmt.Fprintf(pw, "  intervals\t%d\t%d\tmatch: %s\n", c.PlannedIntervalCount, c.DetectedWorkCount, match)
		}
		pw.Flush()
	}

	fmt.Println()
	fmt.Printf("%d display points\n", res.PointCount)
}

func fmtClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	m := total / 60
	s := total % 60
	if m >= 60 {
		return fmt.Sprintf("%d:%02d:%02d", m/60, m%60, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func fmtPace(p *float64) string {
	if p == nil {
		return "-"
	}
	total := int(*p)
	return fmt.Sprintf("%d:%02d/km", total/60, total%60)
}

func fmtOpt(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

// fmtSegmentEffort averages the display-point intensity over the segment and
// tags it with the ramp color a renderer would use.
func fmtSegmentEffort(intensity []float64, start, end int) string {
	if start < 0 || end > len(intensity) || start >= end {
		return "-"
	}
	sum := 0.0
	for _, v := range intensity[start:end] {
		sum += v
	}
	avg := sum / float64(end-start)
	return fmt.Sprintf("%.2f %s", avg, effort.Hex(avg))
}
