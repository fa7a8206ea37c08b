package query

import (
	"net/url"
	"reflect"
	"testing"
)

func productBuilder() Builder {
	return Builder{
		Searchable:      []string{"name", "description"},
		Filterable:      []string{"category_id", "active", "price", "status", "tag_id", "tenant_id"},
		Sortable:        []string{"name", "price"},
		ArrayFields:     []string{"tag_id"},
		SoftDelete:      true,
		DefaultPageSize: 20,
		MaxPageSize:     50,
	}
}

func TestBuildSearchWithDefaultVisibility(t *testing.T) {
	q := productBuilder().Build(Params{Search: "shoe"})
	want := And{Exprs: []Expr{
		Or{Exprs: []Expr{Contains{Field: "name", Value: "shoe"}, Contains{Field: "description", Value: "shoe"}}},
		IsNull{Field: "deleted_at"},
	}}
	if !reflect.DeepEqual(q.Where, want) {
		t.Fatalf("where = %#v", q.Where)
	}
}

func TestBuildDeletedVisibility(t *testing.T) {
	q := productBuilder().Build(Params{Deleted: true})
	if !reflect.DeepEqual(q.Where, NotNull{Field: "deleted_at"}) {
		t.Fatalf("where = %#v", q.Where)
	}

	b := productBuilder()
	b.SoftDelete = false
	if q := b.Build(Params{Deleted: true}); q.Where != nil {
		t.Fatalf("entities without soft delete have no visibility clause: %#v", q.Where)
	}
}

func TestBuildFilterCoercion(t *testing.T) {
	cases := []struct {
		field string
		raw   string
		want  Expr
	}{
		{"category_id", "5,7,9", In{Field: "category_id", Values: []any{5.0, 7.0, 9.0}}},
		{"active", "true", Eq{Field: "active", Value: true}},
		{"active", "false", Eq{Field: "active", Value: false}},
		{"price", "12.5", Eq{Field: "price", Value: 12.5}},
		{"status", "draft", Eq{Field: "status", Value: "draft"}},
		{"status", "draft, published", In{Field: "status", Values: []any{"draft", "published"}}},
		{"tag_id", "A,B", Includes{Field: "tag_id", Values: []any{"A", "B"}}},
	}
	b := productBuilder()
	b.SoftDelete = false
	for _, tc := range cases {
		q := b.Build(Params{Filters: map[string]string{tc.field: tc.raw}})
		if !reflect.DeepEqual(q.Where, tc.want) {
			t.Fatalf("%s=%q: where = %#v, want %#v", tc.field, tc.raw, q.Where, tc.want)
		}
	}
}

func TestBuildIgnoresUnknownAndEmptyFilters(t *testing.T) {
	b := productBuilder()
	b.SoftDelete = false
	q := b.Build(Params{Filters: map[string]string{"secret": "1", "status": "  "}})
	if q.Where != nil {
		t.Fatalf("where = %#v", q.Where)
	}
}

func TestBuildScopeOverridesCallerFilter(t *testing.T) {
	b := productBuilder()
	b.SoftDelete = false
	b.Scope = map[string]any{"tenant_id": "t-1"}
	q := b.Build(Params{Filters: map[string]string{"tenant_id": "t-2"}})
	if !reflect.DeepEqual(q.Where, Eq{Field: "tenant_id", Value: "t-1"}) {
		t.Fatalf("where = %#v", q.Where)
	}
}

func TestBuildSortWhitelist(t *testing.T) {
	b := productBuilder()
	if q := b.Build(Params{Sort: "price", Order: "desc"}); q.Sort != (Sort{Field: "price", Desc: true}) {
		t.Fatalf("sort = %+v", q.Sort)
	}
	if q := b.Build(Params{Sort: "name"}); q.Sort != (Sort{Field: "name"}) {
		t.Fatalf("sort = %+v", q.Sort)
	}
	if q := b.Build(Params{Sort: "password"}); q.Sort != DefaultSort {
		t.Fatalf("non-whitelisted sort should fall back: %+v", q.Sort)
	}
}

func TestBuildPaginationClamp(t *testing.T) {
	cases := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, 20},
		{-3, 10, 1, 10},
		{4, 500, 4, 50},
	}
	for _, tc := range cases {
		q := productBuilder().Build(Params{Page: tc.page, PageSize: tc.size})
		if q.Page != tc.wantPage || q.PageSize != tc.wantSize {
			t.Fatalf("page=%d size=%d: got %d/%d", tc.page, tc.size, q.Page, q.PageSize)
		}
	}
	q := productBuilder().Build(Params{Page: 3, PageSize: 10})
	if q.Offset() != 20 {
		t.Fatalf("offset = %d", q.Offset())
	}
	if p := NewPagination(q, 21); p.TotalPages != 3 || p.Total != 21 {
		t.Fatalf("pagination = %+v", p)
	}
}

func TestParamsFromValues(t *testing.T) {
	v, _ := url.ParseQuery("search=shoe&sort=price&order=DESC&page=2&per_page=5&deleted=true&status=draft&filter[category_id]=1,2&category_id=9")
	p := ParamsFromValues(v)
	if p.Search != "shoe" || p.Sort != "price" || p.Order != "desc" || p.Page != 2 || p.PageSize != 5 || !p.Deleted {
		t.Fatalf("params = %+v", p)
	}
	if p.Filters["status"] != "draft" || p.Filters["category_id"] != "1,2" {
		t.Fatalf("filters = %v", p.Filters)
	}
	if _, ok := p.Filters["search"]; ok {
		t.Fatalf("reserved keys are not filters")
	}
}
