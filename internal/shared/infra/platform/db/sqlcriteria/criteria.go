// Package sqlcriteria traduce criterios neutrales del dominio a condiciones de squirrel.
package sqlcriteria

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
)

// Columns mapea nombres lógicos de campo a columnas cualificadas ("m.status").
type Columns map[string]string

// Where devuelve la condición equivalente a criteria o nil si no hay filtros.
// Un campo sin columna conocida es un error: nunca se interpola texto libre.
func Where(criteria sharedDomain.Criteria, cols Columns) (sq.Sqlizer, error) {
	if criteria == nil {
		return nil, nil
	}
	conds := criteria.ToConditions()
	if len(conds) == 0 {
		return nil, nil
	}

	parts := make([]sq.Sqlizer, 0, len(conds))
	for _, c := range conds {
		col, ok := cols[c.Field]
		if !ok {
			return nil, fmt.Errorf("unknown filter field %q", c.Field)
		}
		part, err := condition(col, c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	if sharedDomain.LogicalOf(criteria) == sharedDomain.OpOr {
		return sq.Or(parts), nil
	}
	return sq.And(parts), nil
}

func condition(col string, c sharedDomain.Criterion) (sq.Sqlizer, error) {
	switch c.Op {
	case sharedDomain.OpEq:
		return sq.Eq{col: c.Value}, nil
	case sharedDomain.OpNeq:
		return sq.NotEq{col: c.Value}, nil
	case sharedDomain.OpGt:
		return sq.Gt{col: c.Value}, nil
	case sharedDomain.OpGte:
		return sq.GtOrEq{col: c.Value}, nil
	case sharedDomain.OpLt:
		return sq.Lt{col: c.Value}, nil
	case sharedDomain.OpLte:
		return sq.LtOrEq{col: c.Value}, nil
	case sharedDomain.OpLike:
		return sq.Like{col: c.Value}, nil
	}
	return nil, fmt.Errorf("unsupported operator %q", c.Op)
}

// OrderBy devuelve la cláusula de orden si el campo está en la lista blanca.
func OrderBy(field string, desc bool, cols Columns) (string, bool) {
	col, ok := cols[field]
	if !ok {
		return "", false
	}
	if desc {
		return col + " DESC", true
	}
	return col + " ASC", true
}
