package pubsub

// CloudEvent type URNs carried by every published event.
const (
	EventTypeAnalysisRequested = "com.runsight.analysis.requested"
	EventTypeAnalysisCompleted = "com.runsight.analysis.completed"
)

// CloudEvent sources identifying the publishing component.
const (
	SourceAPI      = "/api"
	SourceAnalyzer = "/analyzer"
	SourceCLI      = "/cli"
)
