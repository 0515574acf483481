package workspace

// Pagination carries page selection and ordering for list queries.
type Pagination struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// Normalize clamps the pagination to sane bounds and fills defaults. The
// sort column is validated against the allow list; anything else falls back
// to created_at so user input never reaches the order-by clause verbatim.
func (p Pagination) Normalize(sortable ...string) Pagination {
	if p.Page < 1 {
		p.Page = defaultPage
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	ok := false
	for _, col := range sortable {
		if p.SortBy == col {
			ok = true
			break
		}
	}
	if !ok {
		p.SortBy = "created_at"
	}
	if p.SortOrder != "ASC" && p.SortOrder != "asc" {
		p.SortOrder = "DESC"
	}
	return p
}

// Offset returns the row offset for the current page.
func (p Pagination) Offset() int { return (p.Page - 1) * p.Limit }

// Meta describes one page of results.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewMeta builds pagination metadata for a total row count.
func NewMeta(p Pagination, total int) Meta {
	pages := 0
	if total > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Meta{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}

// Page couples a result slice with its metadata.
type Page[T any] struct {
	Data []T  `json:"data"`
	Meta Meta `json:"meta"`
}
