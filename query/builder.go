package query

import (
	"strings"

	"github.com/mmdatafocus/records_backend/schema"
	"github.com/shopspring/decimal"
)

type Sort struct {
	Field string
	Desc  bool
}

var DefaultSort = Sort{Field: schema.ColumnCreatedAt, Desc: true}

type Query struct {
	Where    Expr
	Sort     Sort
	Page     int
	PageSize int
}

func (q Query) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// Builder turns Params into a Query for one entity.
type Builder struct {
	Searchable []string
	Filterable []string
	Sortable   []string
	// ArrayFields are filtered by membership instead of equality.
	ArrayFields     []string
	SoftDelete      bool
	DefaultPageSize int
	MaxPageSize     int
	// Scope pins columns to fixed values; caller filters on them are ignored.
	Scope map[string]any
}

func (b Builder) Build(p Params) Query {
	var groups []Expr

	if search := strings.TrimSpace(p.Search); search != "" && len(b.Searchable) > 0 {
		or := Or{}
		for _, f := range b.Searchable {
			or.Exprs = append(or.Exprs, Contains{Field: f, Value: search})
		}
		groups = append(groups, or)
	}

	if b.SoftDelete {
		if p.Deleted {
			groups = append(groups, NotNull{Field: schema.ColumnDeletedAt})
		} else {
			groups = append(groups, IsNull{Field: schema.ColumnDeletedAt})
		}
	}

	for _, f := range b.Filterable {
		if _, scoped := b.Scope[f]; scoped {
			continue
		}
		raw, ok := p.Filters[f]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		groups = append(groups, b.filter(f, strings.TrimSpace(raw)))
	}

	for _, f := range sortedScopeKeys(b.Scope) {
		groups = append(groups, Eq{Field: f, Value: b.Scope[f]})
	}

	q := Query{
		Where: Conj(groups...),
		Sort:  DefaultSort,
	}
	if p.Sort != "" && contains(b.Sortable, p.Sort) {
		q.Sort = Sort{Field: p.Sort, Desc: p.Order == "desc"}
	}
	q.Page, q.PageSize = b.clamp(p.Page, p.PageSize)
	return q
}

func (b Builder) filter(field, raw string) Expr {
	if contains(b.ArrayFields, field) {
		var values []any
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
		return Includes{Field: field, Values: values}
	}
	if strings.Contains(raw, ",") {
		var values []any
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, Coerce(part))
			}
		}
		return In{Field: field, Values: values}
	}
	return Eq{Field: field, Value: Coerce(raw)}
}

// Coerce maps a filter literal to bool, number or string by its shape.
func Coerce(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if d, err := decimal.NewFromString(raw); err == nil {
		return d.InexactFloat64()
	}
	return raw
}

func (b Builder) clamp(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	def := b.DefaultPageSize
	if def < 1 {
		def = 20
	}
	max := b.MaxPageSize
	if max < 1 {
		max = 100
	}
	if size < 1 {
		size = def
	}
	if size > max {
		size = max
	}
	return page, size
}

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func NewPagination(q Query, total int64) Pagination {
	pages := 0
	if q.PageSize > 0 {
		pages = int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	}
	return Pagination{Page: q.Page, PageSize: q.PageSize, Total: total, TotalPages: pages}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
