package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedBus "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/bus"
)

// Season agrupa partidos de una liga (ej. "2024/2025").
type Season struct {
	ID       int64  `json:"id"`
	LeagueID string `json:"leagueId"`
	Name     string `json:"name"`
}

type Match struct {
	ID         int64           `json:"id"` // id externo, inmutable
	SeasonID   int64           `json:"seasonId"`
	HomeTeamID int64           `json:"homeTeamId"`
	AwayTeamID int64           `json:"awayTeamId"`
	Date       time.Time       `json:"date"`
	Status     MatchStatus     `json:"status"`
	Shots      json.RawMessage `json:"shots,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`

	Season     *Season     `json:"season,omitempty"`
	Simulation *Simulation `json:"simulation,omitempty"`
	Report     *Report     `json:"report,omitempty"`
}

func (m *Match) PartitionKey() string {
	return strconv.FormatInt(m.ID, 10)
}

// ShotsCount cuenta los tiros adjuntos; 0 si no hay datos o no son una lista.
func (m *Match) ShotsCount() int {
	if len(m.Shots) == 0 {
		return 0
	}
	var shots []json.RawMessage
	if err := json.Unmarshal(m.Shots, &shots); err != nil {
		return 0
	}
	return len(shots)
}

// SimulationResults son las probabilidades que devuelve el motor de simulación.
type SimulationResults struct {
	HomeWinProb float64 `json:"homeWinProb"`
	DrawProb    float64 `json:"drawProb"`
	AwayWinProb float64 `json:"awayWinProb"`
	Iterations  int     `json:"iterations"`
}

func (r SimulationResults) Validate() error {
	for name, p := range map[string]float64{"homeWinProb": r.HomeWinProb, "drawProb": r.DrawProb, "awayWinProb": r.AwayWinProb} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%w: %s must be between 0 and 1", ErrInvalidMatch, name)
		}
	}
	if r.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive", ErrInvalidMatch)
	}
	return nil
}

// Winner devuelve "home", "away" o "draw". El empate gana cualquier igualdad.
func (r SimulationResults) Winner() string {
	switch {
	case r.HomeWinProb > r.AwayWinProb && r.HomeWinProb > r.DrawProb:
		return "home"
	case r.AwayWinProb > r.HomeWinProb && r.AwayWinProb > r.DrawProb:
		return "away"
	default:
		return "draw"
	}
}

type Simulation struct {
	MatchID   int64             `json:"matchId"`
	Results   SimulationResults `json:"results"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type Report struct {
	ID        int64     `json:"id"`
	MatchID   int64     `json:"matchId"`
	Content   string    `json:"content"`
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const minReportContent = 10

// ReportDraft es el contenido de un informe antes de persistirlo.
type ReportDraft struct {
	Content  string
	Provider string
}

func (d ReportDraft) Validate() error {
	if len(strings.TrimSpace(d.Content)) < minReportContent {
		return fmt.Errorf("%w: report content must have at least %d characters", ErrInvalidMatch, minReportContent)
	}
	return nil
}

// TransitionChange son los campos que acompañan a una transición concreta.
type TransitionChange struct {
	Shots      json.RawMessage    // solo hacia SCRAPED
	Simulation *SimulationResults // solo hacia SIMULATED
	Report     *ReportDraft       // solo hacia COMPLETED
}

// Validate comprueba que cada campo acompaña a la transición que le corresponde.
func (c TransitionChange) Validate(next MatchStatus) error {
	if len(c.Shots) > 0 {
		if next != StatusScraped {
			return fmt.Errorf("%w: shots only allowed when moving to %s", ErrInvalidMatch, StatusScraped)
		}
		if t := bytes.TrimSpace(c.Shots); len(t) == 0 || t[0] != '[' || !json.Valid(t) {
			return fmt.Errorf("%w: shots must be a JSON array", ErrInvalidMatch)
		}
	}
	if c.Simulation != nil {
		if next != StatusSimulated {
			return fmt.Errorf("%w: simulation only allowed when moving to %s", ErrInvalidMatch, StatusSimulated)
		}
		if err := c.Simulation.Validate(); err != nil {
			return err
		}
	}
	if c.Report != nil {
		if next != StatusCompleted {
			return fmt.Errorf("%w: report only allowed when moving to %s", ErrInvalidMatch, StatusCompleted)
		}
		if err := c.Report.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ---------------- Ingesta masiva ----------------

type BulkMatchItem struct {
	ID         int64     `json:"id"`
	Date       time.Time `json:"date"`
	HomeTeamID int64     `json:"homeTeamId"`
	AwayTeamID int64     `json:"awayTeamId"`
}

type BulkMatches struct {
	LeagueID   string
	SeasonName string
	Matches    []BulkMatchItem
}

func (b BulkMatches) Validate() error {
	if strings.TrimSpace(b.LeagueID) == "" || strings.TrimSpace(b.SeasonName) == "" {
		return fmt.Errorf("%w: leagueId and seasonName are required", ErrInvalidMatch)
	}
	seen := make(map[int64]struct{}, len(b.Matches))
	for _, m := range b.Matches {
		if m.ID <= 0 || m.HomeTeamID <= 0 || m.AwayTeamID <= 0 {
			return fmt.Errorf("%w: match, home and away ids must be positive", ErrInvalidMatch)
		}
		if m.Date.IsZero() {
			return fmt.Errorf("%w: match %d has no date", ErrInvalidMatch, m.ID)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("%w: match %d appears twice", ErrInvalidMatch, m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

// Verificación estática
var _ sharedBus.Keyer = (*Match)(nil)
