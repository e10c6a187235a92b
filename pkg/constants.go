package shared

const (
	ProjectID = "runsight-project" // Can be overridden by env var in main if needed

	TopicActivityTelemetry = "topic-activity-telemetry" // Analyzer pipeline entry point
	TopicAnalysisComplete  = "topic-analysis-complete"
	TopicNarrativeRequest  = "topic-narrative-request"

	CollectionAthletes        = "athletes"
	CollectionAnalyses        = "analyses"
	CollectionAnalysisResults = "analysis_results"
	CollectionNarratives      = "narratives"
	CollectionExecutions      = "executions"
)
