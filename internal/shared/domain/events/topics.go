package events

// Topics publicados por el registro a través del outbox.
const (
	LeagueSyncRequested      = "league.sync.requested"
	LeagueSynced             = "league.synced"
	MatchAnalysisRequested   = "match.analysis.requested"
	MatchDataScraped         = "match.data.scraped"
	MatchSimulationCompleted = "match.simulation.completed"
	MatchReportGenerated     = "match.report.generated"
)

// Topics emitidos por los workers (scraper, engine, journalist) y consumidos por el registro.
const (
	WorkerAnalysisRequested   = "match.analysis_requested"
	WorkerDataExtracted       = "match.data_extracted"
	WorkerSimulationCompleted = "match.simulation_completed"
	WorkerReportReady         = "match.report_ready"
)

// OutboundTopics lista los topics que produce el relay.
func OutboundTopics() []string {
	return []string{LeagueSynced, MatchDataScraped, MatchSimulationCompleted, MatchReportGenerated}
}

// WorkerTopics lista los topics que escucha el consumidor de partidos.
func WorkerTopics() []string {
	return []string{WorkerAnalysisRequested, WorkerDataExtracted, WorkerSimulationCompleted, WorkerReportReady}
}
