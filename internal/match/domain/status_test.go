package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition_AllPairs(t *testing.T) {
	allowed := map[MatchStatus]map[MatchStatus]bool{
		StatusIdentified: {StatusScraping: true, StatusScraped: true, StatusFailed: true},
		StatusScraping:   {StatusScraped: true, StatusFailed: true},
		StatusScraped:    {StatusSimulating: true, StatusSimulated: true, StatusFailed: true},
		StatusSimulating: {StatusSimulated: true, StatusFailed: true},
		StatusSimulated:  {StatusReporting: true, StatusCompleted: true, StatusFailed: true},
		StatusReporting:  {StatusCompleted: true, StatusFailed: true},
		StatusCompleted:  {},
		StatusFailed:     {StatusIdentified: true, StatusScraping: true},
	}

	for _, from := range AllMatchStatuses() {
		for _, to := range AllMatchStatuses() {
			err := ValidateTransition(from, to)
			if allowed[from][to] {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			require.Error(t, err, "%s -> %s", from, to)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.Equal(t, "invalid status transition from "+string(from)+" to "+string(to), err.Error())

			var te *TransitionError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, from, te.From)
			assert.Equal(t, to, te.To)
		}
	}
}

func TestValidateTransition_UnknownStatus(t *testing.T) {
	assert.ErrorIs(t, ValidateTransition("ARCHIVED", StatusScraping), ErrInvalidTransition)
	assert.ErrorIs(t, ValidateTransition(StatusIdentified, "archived"), ErrInvalidTransition)
	assert.ErrorIs(t, ValidateTransition("", ""), ErrInvalidTransition)
	assert.False(t, MatchStatus("ARCHIVED").IsValid())
}

func TestValidateTransition_Shortcuts(t *testing.T) {
	assert.NoError(t, ValidateTransition(StatusIdentified, StatusScraped))
	assert.NoError(t, ValidateTransition(StatusScraped, StatusSimulated))
	assert.NoError(t, ValidateTransition(StatusSimulated, StatusCompleted))
	// Reinicio manual tras un fallo
	assert.NoError(t, ValidateTransition(StatusFailed, StatusIdentified))
	assert.ErrorIs(t, ValidateTransition(StatusFailed, StatusSimulated), ErrInvalidTransition)
}

func TestCompletedIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.Empty(t, AllowedTransitions(StatusCompleted))
	for _, s := range AllMatchStatuses() {
		if s != StatusCompleted {
			assert.False(t, s.IsTerminal(), s)
		}
	}
	assert.ErrorIs(t, ValidateTransition(StatusCompleted, StatusFailed), ErrInvalidTransition)
}

func TestAllowedTransitions_ReturnsCopy(t *testing.T) {
	got := AllowedTransitions(StatusScraped)
	got[0] = StatusCompleted

	assert.Equal(t, []MatchStatus{StatusSimulating, StatusSimulated, StatusFailed}, AllowedTransitions(StatusScraped))
}

func TestSimulationResults_Winner(t *testing.T) {
	cases := []struct {
		name string
		res  SimulationResults
		want string
	}{
		{"home", SimulationResults{HomeWinProb: 0.5, DrawProb: 0.3, AwayWinProb: 0.2}, "home"},
		{"away", SimulationResults{HomeWinProb: 0.2, DrawProb: 0.3, AwayWinProb: 0.5}, "away"},
		{"draw", SimulationResults{HomeWinProb: 0.3, DrawProb: 0.4, AwayWinProb: 0.3}, "draw"},
		{"tie between sides", SimulationResults{HomeWinProb: 0.4, DrawProb: 0.2, AwayWinProb: 0.4}, "draw"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.res.Winner())
		})
	}
}

func TestMatch_ShotsCount(t *testing.T) {
	assert.Equal(t, 0, (&Match{}).ShotsCount())
	assert.Equal(t, 3, (&Match{Shots: json.RawMessage(`[{"x":1},{"x":2},{"x":3}]`)}).ShotsCount())
	assert.Equal(t, 0, (&Match{Shots: json.RawMessage(`{"x":1}`)}).ShotsCount())
}

func TestTransitionChange_Validate(t *testing.T) {
	sim := &SimulationResults{HomeWinProb: 0.5, DrawProb: 0.25, AwayWinProb: 0.25, Iterations: 1000}

	assert.NoError(t, TransitionChange{}.Validate(StatusScraping))
	assert.NoError(t, TransitionChange{Shots: json.RawMessage(`[]`)}.Validate(StatusScraped))
	assert.NoError(t, TransitionChange{Simulation: sim}.Validate(StatusSimulated))
	assert.NoError(t, TransitionChange{Report: &ReportDraft{Content: "Informe completo del partido"}}.Validate(StatusCompleted))

	assert.ErrorIs(t, TransitionChange{Shots: json.RawMessage(`[]`)}.Validate(StatusSimulated), ErrInvalidMatch)
	assert.ErrorIs(t, TransitionChange{Shots: json.RawMessage(`{"a":1}`)}.Validate(StatusScraped), ErrInvalidMatch)
	assert.ErrorIs(t, TransitionChange{Simulation: sim}.Validate(StatusCompleted), ErrInvalidMatch)
	assert.ErrorIs(t, TransitionChange{Simulation: &SimulationResults{HomeWinProb: 1.5, Iterations: 1}}.Validate(StatusSimulated), ErrInvalidMatch)
	assert.ErrorIs(t, TransitionChange{Simulation: &SimulationResults{HomeWinProb: 0.5}}.Validate(StatusSimulated), ErrInvalidMatch)
	assert.ErrorIs(t, TransitionChange{Report: &ReportDraft{Content: "corto"}}.Validate(StatusCompleted), ErrInvalidMatch)
}

func TestBulkMatches_Validate(t *testing.T) {
	valid := BulkMatches{
		LeagueID:   "LaLiga",
		SeasonName: "2024/2025",
		Matches: []BulkMatchItem{
			{ID: 1, Date: mustDate(t, "2024-08-18T19:00:00Z"), HomeTeamID: 10, AwayTeamID: 11},
			{ID: 2, Date: mustDate(t, "2024-08-19T19:00:00Z"), HomeTeamID: 12, AwayTeamID: 13},
		},
	}
	assert.NoError(t, valid.Validate())

	noLeague := valid
	noLeague.LeagueID = " "
	assert.ErrorIs(t, noLeague.Validate(), ErrInvalidMatch)

	dup := valid
	dup.Matches = append([]BulkMatchItem{}, valid.Matches[0], valid.Matches[0])
	assert.ErrorIs(t, dup.Validate(), ErrInvalidMatch)

	noDate := valid
	noDate.Matches = []BulkMatchItem{{ID: 3, HomeTeamID: 1, AwayTeamID: 2}}
	assert.ErrorIs(t, noDate.Validate(), ErrInvalidMatch)
}

func TestNotificationFor(t *testing.T) {
	t.Run("scraped carries shots count", func(t *testing.T) {
		m := &Match{ID: 42, Status: StatusScraped, Shots: json.RawMessage(`[1,2]`)}
		entry, ok, err := NotificationFor(m)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "match.data.scraped", entry.Topic)
		assert.Equal(t, "42", entry.AggregateID)
		assert.Equal(t, AggregateMatch, entry.AggregateType)
		assert.JSONEq(t, `{"matchId":42,"shotsCount":2}`, string(entry.Payload))
	})

	t.Run("simulated carries winner", func(t *testing.T) {
		m := &Match{ID: 7, Status: StatusSimulated, Simulation: &Simulation{
			Results: SimulationResults{HomeWinProb: 0.1, DrawProb: 0.2, AwayWinProb: 0.7},
		}}
		entry, ok, err := NotificationFor(m)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "match.simulation.completed", entry.Topic)
		assert.JSONEq(t, `{"matchId":7,"winnerProb":"away"}`, string(entry.Payload))
	})

	t.Run("completed carries report id", func(t *testing.T) {
		m := &Match{ID: 7, Status: StatusCompleted, Report: &Report{ID: 3}}
		entry, ok, err := NotificationFor(m)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "match.report.generated", entry.Topic)
		assert.JSONEq(t, `{"matchId":7,"reportId":3}`, string(entry.Payload))
	})

	t.Run("in-progress and failed are silent", func(t *testing.T) {
		for _, s := range []MatchStatus{StatusIdentified, StatusScraping, StatusSimulating, StatusReporting, StatusFailed} {
			_, ok, err := NotificationFor(&Match{ID: 1, Status: s})
			assert.NoError(t, err)
			assert.False(t, ok, s)
		}
	})
}

func TestLeagueSyncedEntry(t *testing.T) {
	entry, err := LeagueSyncedEntry(Season{ID: 5, LeagueID: "LaLiga", Name: "2024/2025"}, 380)

	require.NoError(t, err)
	assert.Equal(t, "league.synced", entry.Topic)
	assert.Equal(t, AggregateSeason, entry.AggregateType)
	assert.Equal(t, "5", entry.AggregateID)
	assert.JSONEq(t, `{"league":"LaLiga","year":"2024/2025","matchesCount":380}`, string(entry.Payload))
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return d
}
