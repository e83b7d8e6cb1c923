package events

import (
	"encoding/json"
	"time"
)

// Estos son contratos de integración, NO entidades del dominio.
// Se definen planos para intercambio entre servicios.

// ---------------- Salientes (outbox) ----------------

type LeagueSyncedPayload struct {
	League       string `json:"league"`
	Year         string `json:"year"`
	MatchesCount int    `json:"matchesCount"`
}

type MatchDataScrapedPayload struct {
	MatchID    int64 `json:"matchId"`
	ShotsCount int   `json:"shotsCount"`
}

type MatchSimulationCompletedPayload struct {
	MatchID    int64  `json:"matchId"`
	WinnerProb string `json:"winnerProb,omitempty"`
}

type MatchReportGeneratedPayload struct {
	MatchID  int64 `json:"matchId"`
	ReportID int64 `json:"reportId,omitempty"`
}

// ---------------- Entrantes (workers) ----------------

// Los workers serializan el matchId como string.

type AnalysisRequested struct {
	MatchID string `json:"matchId"`
}

type DataExtracted struct {
	MatchID string          `json:"matchId"`
	Shots   json.RawMessage `json:"shots"`
}

type SimulationResults struct {
	HomeWinProb float64 `json:"homeWinProb"`
	DrawProb    float64 `json:"drawProb"`
	AwayWinProb float64 `json:"awayWinProb"`
}

type SimulationCompleted struct {
	MatchID    string            `json:"matchId"`
	Iterations int               `json:"iterations"`
	Results    SimulationResults `json:"results"`
}

type ReportReady struct {
	MatchID     string    `json:"matchId"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Provider    string    `json:"provider,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}
