package query

// ---------- Tipos de paginación / ordenamiento ----------

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// OffsetPagination para paginación clásica
type OffsetPagination struct {
	Limit  int
	Offset int
}

// Normalize acota limit y offset a valores usables.
func (p OffsetPagination) Normalize() OffsetPagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Sort indica campo y dirección.
type Sort struct {
	Field string // ej. "date", "id", "status"
	Desc  bool
}
