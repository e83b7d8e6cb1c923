package domain

import (
	"strconv"

	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
	sharedEvents "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain/events"
)

const (
	AggregateMatch  = "match"
	AggregateSeason = "season"
)

// TopicFor devuelve el topic que anuncia la llegada a 'next', si lo hay.
// Los subestados "en curso", FAILED y el reinicio manual no notifican.
func TopicFor(next MatchStatus) (string, bool) {
	switch next {
	case StatusScraped:
		return sharedEvents.MatchDataScraped, true
	case StatusSimulated:
		return sharedEvents.MatchSimulationCompleted, true
	case StatusCompleted:
		return sharedEvents.MatchReportGenerated, true
	}
	return "", false
}

// NotificationFor construye la entrada de outbox para el partido recién actualizado.
// El payload es una foto del estado en el momento del commit.
func NotificationFor(m *Match) (sharedDomain.OutboxEntry, bool, error) {
	topic, ok := TopicFor(m.Status)
	if !ok {
		return sharedDomain.OutboxEntry{}, false, nil
	}

	var payload interface{}
	switch m.Status {
	case StatusScraped:
		payload = sharedEvents.MatchDataScrapedPayload{MatchID: m.ID, ShotsCount: m.ShotsCount()}
	case StatusSimulated:
		p := sharedEvents.MatchSimulationCompletedPayload{MatchID: m.ID}
		if m.Simulation != nil {
			p.WinnerProb = m.Simulation.Results.Winner()
		}
		payload = p
	case StatusCompleted:
		p := sharedEvents.MatchReportGeneratedPayload{MatchID: m.ID}
		if m.Report != nil {
			p.ReportID = m.Report.ID
		}
		payload = p
	}

	entry, err := sharedDomain.NewOutboxEntry(AggregateMatch, strconv.FormatInt(m.ID, 10), topic, payload)
	if err != nil {
		return sharedDomain.OutboxEntry{}, false, err
	}
	return entry, true, nil
}

// LeagueSyncedEntry resume una ingesta masiva en una sola notificación.
func LeagueSyncedEntry(season Season, matchesCount int) (sharedDomain.OutboxEntry, error) {
	return sharedDomain.NewOutboxEntry(
		AggregateSeason,
		strconv.FormatInt(season.ID, 10),
		sharedEvents.LeagueSynced,
		sharedEvents.LeagueSyncedPayload{League: season.LeagueID, Year: season.Name, MatchesCount: matchesCount},
	)
}
