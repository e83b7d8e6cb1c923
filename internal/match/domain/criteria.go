package domain

import (
	shared "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
)

// Nombres lógicos de campo; cada adapter los traduce a su columna.
const (
	FieldLeagueID = "league_id"
	FieldSeasonID = "season_id"
	FieldStatus   = "status"
)

// --- Criterios Específicos para el Dominio Match ---

// StatusCriteria busca partidos en una etapa concreta.
type StatusCriteria struct {
	Status MatchStatus
}

func (c StatusCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{
		{Field: FieldStatus, Op: shared.OpEq, Value: string(c.Status)},
	}
}

// -----------------------------------------------------------

// SeasonCriteria busca partidos de una temporada.
type SeasonCriteria struct {
	SeasonID int64
}

func (c SeasonCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{
		{Field: FieldSeasonID, Op: shared.OpEq, Value: c.SeasonID},
	}
}

// -----------------------------------------------------------

// LeagueCriteria busca partidos de cualquier temporada de una liga.
type LeagueCriteria struct {
	LeagueID string
}

func (c LeagueCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{
		{Field: FieldLeagueID, Op: shared.OpEq, Value: c.LeagueID},
	}
}
