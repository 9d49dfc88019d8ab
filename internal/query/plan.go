package query

// SortKey orders results by one field.
type SortKey struct {
	Field Field
	Desc  bool
}

// Plan is a compiled list request.
type Plan struct {
	Filter And
	Sort   []SortKey
	// Select is the projection; empty means the full document.
	Select []Field
	Page   int
	Limit  int
}

// Skip is the number of matching records before the requested page.
func (p *Plan) Skip() int {
	return (p.Page - 1) * p.Limit
}

// PageRef points at a neighbouring page.
type PageRef struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Pagination tells the client whether neighbouring pages exist.
type Pagination struct {
	Next *PageRef `json:"next,omitempty"`
	Prev *PageRef `json:"prev,omitempty"`
}

// Paginate computes neighbours from the total number of records matching
// p.Filter, ignoring skip and limit.
func (p *Plan) Paginate(total int64) Pagination {
	var pg Pagination
	start := int64(p.Skip())
	end := int64(p.Page) * int64(p.Limit)
	if end < total {
		pg.Next = &PageRef{Page: p.Page + 1, Limit: p.Limit}
	}
	if start > 0 {
		pg.Prev = &PageRef{Page: p.Page - 1, Limit: p.Limit}
	}
	return pg
}
