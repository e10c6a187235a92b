package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	shared "github.com/runsight/server/pkg"
	"github.com/runsight/server/pkg/bootstrap"
	infrapubsub "github.com/runsight/server/pkg/infrastructure/pubsub"
	"github.com/runsight/server/pkg/types"
)

var (
	requestActivityID string
	requestAthleteID  string
	requestPlanID     string
	requestPlanPath   string
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Publish an analysis request to the pipeline",
	Long: `Request pushes an analysis request onto the telemetry topic, exactly as
the API would. Requires ENABLE_PUBLISH=true and pipeline credentials;
without them the event is logged instead of published.`,
	RunE: runRequest,
}

func init() {
	requestCmd.Flags().StringVar(&requestActivityID, "activity", "", "activity id to analyze")
	requestCmd.Flags().StringVar(&requestAthleteID, "athlete", "", "athlete id owning the activity")
	requestCmd.Flags().StringVar(&requestPlanID, "plan-id", "", "plan id to analyze against")
	requestCmd.Flags().StringVar(&requestPlanPath, "plan", "", "path to a planned workout JSON file")
	_ = requestCmd.MarkFlagRequired("activity")
	rootCmd.AddCommand(requestCmd)
}

func runRequest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := bootstrap.NewService(ctx)
	if err != nil {
		return err
	}

	workout, err := loadPlanFile(requestPlanPath)
	if err != nil {
		return err
	}

	req := types.AnalysisRequested{
		ActivityID: requestActivityID,
		AthleteID:  requestAthleteID,
		PlanID:     requestPlanID,
		Plan:       workout,
	}

	evt, err := infrapubsub.NewCloudEvent(infrapubsub.SourceCLI, infrapubsub.EventTypeAnalysisRequested, req)
	if err != nil {
		return fmt.Errorf("build request event: %w", err)
	}

	msgID, err := svc.Pub.PublishCloudEvent(ctx, shared.TopicActivityTelemetry, evt)
	if err != nil {
		return fmt.Errorf("publish request: %w", err)
	}

	fmt.Printf("Requested analysis of %s (message %s)\n", requestActivityID, msgID)
	return nil
}
