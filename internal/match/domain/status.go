package domain

import (
	"errors"
	"fmt"
)

type MatchStatus string

const (
	StatusIdentified MatchStatus = "IDENTIFIED"
	StatusScraping   MatchStatus = "SCRAPING"
	StatusScraped    MatchStatus = "SCRAPED"
	StatusSimulating MatchStatus = "SIMULATING"
	StatusSimulated  MatchStatus = "SIMULATED"
	StatusReporting  MatchStatus = "REPORTING"
	StatusCompleted  MatchStatus = "COMPLETED"
	StatusFailed     MatchStatus = "FAILED"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError nombra los dos estados de una transición rechazada.
type TransitionError struct {
	From MatchStatus
	To   MatchStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// transitions es la tabla completa de aristas. Los atajos (IDENTIFIED→SCRAPED,
// SCRAPED→SIMULATED, SIMULATED→COMPLETED) son aristas normales: el subestado
// "en curso" de cada etapa es opcional.
var transitions = map[MatchStatus][]MatchStatus{
	StatusIdentified: {StatusScraping, StatusScraped, StatusFailed},
	StatusScraping:   {StatusScraped, StatusFailed},
	StatusScraped:    {StatusSimulating, StatusSimulated, StatusFailed},
	StatusSimulating: {StatusSimulated, StatusFailed},
	StatusSimulated:  {StatusReporting, StatusCompleted, StatusFailed},
	StatusReporting:  {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {StatusIdentified, StatusScraping},
}

// AllMatchStatuses devuelve las etapas en orden de pipeline.
func AllMatchStatuses() []MatchStatus {
	return []MatchStatus{
		StatusIdentified, StatusScraping, StatusScraped, StatusSimulating,
		StatusSimulated, StatusReporting, StatusCompleted, StatusFailed,
	}
}

func (s MatchStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func (s MatchStatus) IsTerminal() bool {
	return s == StatusCompleted
}

// AllowedTransitions devuelve una copia de los destinos válidos desde 'from'.
func AllowedTransitions(from MatchStatus) []MatchStatus {
	next := transitions[from]
	out := make([]MatchStatus, len(next))
	copy(out, next)
	return out
}

// ValidateTransition es una función pura y total: cualquier par de estados,
// incluidos valores desconocidos, tiene un resultado definido.
func ValidateTransition(current, next MatchStatus) error {
	for _, allowed := range transitions[current] {
		if allowed == next {
			return nil
		}
	}
	return &TransitionError{From: current, To: next}
}
