package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	shared "github.com/runsight/server/pkg"
	"github.com/runsight/server/pkg/analysis"
	infrapubsub "github.com/runsight/server/pkg/infrastructure/pubsub"
	"github.com/runsight/server/pkg/narrative"
	"github.com/runsight/server/pkg/types"
)

// analysisEnvelope is the read model for one analysis request. Analysis is
// present only in the success state; FailureNote only in failed and
// unavailable.
type analysisEnvelope struct {
	Status      string           `json:"status"`
	Analysis    *analysis.Result `json:"analysis,omitempty"`
	FailureNote string           `json:"failure_note,omitempty"`
	ResultKey   string           `json:"result_key,omitempty"`
}

func bindActivityID(r *http.Request) (string, error) {
	var activityID string
	err := runtime.BindStyledParameterWithOptions("simple", "activityID", chi.URLParam(r, "activityID"), &activityID, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Required:      true,
	})
	if err != nil {
		return "", fmt.Errorf("invalid activityID: %w", err)
	}
	return activityID, nil
}

func bindPlanID(r *http.Request) (string, error) {
	var planID string
	err := runtime.BindQueryParameter("form", true, false, "plan", r.URL.Query(), &planID)
	if err != nil {
		return "", fmt.Errorf("invalid plan parameter: %w", err)
	}
	return planID, nil
}

// handleGetAnalysis returns the lifecycle state of one (activity, plan)
// request, with the full interpretation and any narrative overlay when the
// analysis succeeded.
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	activityID, err := bindActivityID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	planID, err := bindPlanID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.Svc.DB.GetAnalysisRecord(ctx, analysis.RecordKey(activityID, planID))
	if err != nil {
		if errors.Is(err, analysis.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no analysis requested for activity")
			return
		}
		s.Logger.Error("Failed to load analysis record", "error", err, "activity_id", activityID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch rec.Status {
	case analysis.StatusSuccess:
		res, err := s.loadResult(r, rec)
		if err != nil {
			s.Logger.Error("Failed to load analysis result", "error", err, "result_key", rec.ResultKey)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, analysisEnvelope{
			Status:    string(rec.Status),
			Analysis:  res,
			ResultKey: rec.ResultKey,
		})
	case analysis.StatusUnavailable:
		writeJSON(w, http.StatusGone, analysisEnvelope{
			Status:      string(rec.Status),
			FailureNote: rec.FailureNote,
		})
	case analysis.StatusFailed:
		writeJSON(w, http.StatusOK, analysisEnvelope{
			Status:      string(rec.Status),
			FailureNote: rec.FailureNote,
		})
	default:
		writeJSON(w, http.StatusOK, analysisEnvelope{Status: string(rec.Status)})
	}
}

// loadResult decodes the stored result and merges the narrative overlay when
// one exists. A missing or broken overlay never blocks the result.
func (s *Server) loadResult(r *http.Request, rec *analysis.Record) (*analysis.Result, error) {
	ctx := r.Context()

	data, err := s.Svc.DB.GetAnalysisResult(ctx, rec.ResultKey)
	if err != nil {
		return nil, err
	}
	res, err := analysis.DecodeResult(data)
	if err != nil {
		return nil, err
	}

	overlay, err := s.Svc.DB.GetNarrativeOverlay(ctx, rec.ResultKey)
	if err == nil {
		narrative.Merge(res, overlay)
	} else if !errors.Is(err, analysis.ErrNotFound) {
		s.Logger.Warn("Failed to load narrative overlay", "error", err, "result_key", rec.ResultKey)
	}
	return res, nil
}

// handleRequestAnalysis asks the pipeline to analyze an activity. Requests
// for already-analyzed activities return the cached state without
// republishing; failed requests are reissued through the normal topic.
func (s *Server) handleRequestAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	activityID, err := bindActivityID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req types.AnalysisRequested
	if body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}
	req.ActivityID = activityID
	if req.PlanID == "" {
		if planID, err := bindPlanID(r); err == nil {
			req.PlanID = planID
		}
	}

	rec, err := s.Svc.DB.GetAnalysisRecord(ctx, analysis.RecordKey(activityID, req.PlanID))
	if err != nil && !errors.Is(err, analysis.ErrNotFound) {
		s.Logger.Error("Failed to load analysis record", "error", err, "activity_id", activityID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if rec != nil {
		switch rec.Status {
		case analysis.StatusSuccess:
			writeJSON(w, http.StatusOK, analysisEnvelope{
				Status:    string(rec.Status),
				ResultKey: rec.ResultKey,
			})
			return
		case analysis.StatusPending, analysis.StatusFetching:
			writeJSON(w, http.StatusAccepted, analysisEnvelope{Status: string(rec.Status)})
			return
		case analysis.StatusUnavailable:
			writeJSON(w, http.StatusGone, analysisEnvelope{
				Status:      string(rec.Status),
				FailureNote: rec.FailureNote,
			})
			return
		}
		// Failed falls through to a reissue
	}

	evt, err := infrapubsub.NewCloudEvent(infrapubsub.SourceAPI, infrapubsub.EventTypeAnalysisRequested, req)
	if err != nil {
		s.Logger.Error("Failed to build request event", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if _, err := s.Svc.Pub.PublishCloudEvent(ctx, shared.TopicActivityTelemetry, evt); err != nil {
		s.Logger.Error("Failed to publish analysis request", "error", err, "activity_id", activityID)
		writeError(w, http.StatusInternalServerError, "failed to request analysis")
		return
	}

	s.Logger.Info("Analysis requested", "activity_id", activityID, "plan_id", req.PlanID)
	writeJSON(w, http.StatusAccepted, analysisEnvelope{Status: string(analysis.StatusPending)})
}
