package domain

import (
	"context"
	"errors"
	"fmt"

	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
	sharedQuery "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/query"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	ErrInvalidMatch  = errors.New("invalid match data")
)

// --- Repositorio de partidos ---

// MatchRepository es el único escritor del estado de los partidos. Toda
// transición que notifica inserta su entrada de outbox en la misma transacción.
type MatchRepository interface {
	GetByID(ctx context.Context, id int64) (*Match, error)
	ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.OffsetPagination, sort sharedQuery.Sort) ([]*Match, error)
	// ApplyTransition valida la transición contra el estado leído dentro de la transacción.
	ApplyTransition(ctx context.Context, id int64, next MatchStatus, change TransitionChange) (*Match, error)
	// BulkUpsert devuelve el número de partidos procesados.
	BulkUpsert(ctx context.Context, batch BulkMatches) (int, error)
}

// ---------- Helpers comunes (cache keys, etc.) ----------

func MatchCacheKeyByID(id int64) string {
	return fmt.Sprintf("match:id:%d", id)
}

// SortableFields son los campos lógicos por los que se puede ordenar un listado.
var SortableFields = map[string]bool{
	"id":         true,
	"date":       true,
	"status":     true,
	"created_at": true,
	"updated_at": true,
}

// DefaultSort es el orden de los listados si no se pide otro.
var DefaultSort = sharedQuery.Sort{Field: "date", Desc: true}
