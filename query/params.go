package query

import (
	"net/url"
	"strconv"
	"strings"
)

// Params are the caller-facing list parameters.
type Params struct {
	Search   string
	Filters  map[string]string
	Sort     string
	Order    string
	Page     int
	PageSize int
	// Deleted switches visibility to soft-deleted records.
	Deleted bool
}

var reservedParams = map[string]bool{
	"search":    true,
	"q":         true,
	"sort":      true,
	"order":     true,
	"page":      true,
	"page_size": true,
	"per_page":  true,
	"limit":     true,
	"deleted":   true,
}

// ParamsFromValues reads list parameters from a URL query. Filters come from
// filter[field]=value keys and from any other non-reserved key.
func ParamsFromValues(values url.Values) Params {
	p := Params{
		Search:  strings.TrimSpace(first(values, "search", "q")),
		Sort:    strings.TrimSpace(values.Get("sort")),
		Order:   strings.ToLower(strings.TrimSpace(values.Get("order"))),
		Filters: map[string]string{},
	}
	p.Page, _ = strconv.Atoi(values.Get("page"))
	p.PageSize, _ = strconv.Atoi(first(values, "page_size", "per_page", "limit"))
	p.Deleted, _ = strconv.ParseBool(values.Get("deleted"))

	for key, vs := range values {
		if len(vs) == 0 || reservedParams[key] {
			continue
		}
		name := key
		if strings.HasPrefix(key, "filter[") && strings.HasSuffix(key, "]") {
			name = key[len("filter[") : len(key)-1]
		}
		if name == "" {
			continue
		}
		// explicit filter[...] keys win over bare keys
		if _, ok := p.Filters[name]; ok && name == key {
			continue
		}
		p.Filters[name] = vs[len(vs)-1]
	}
	return p
}

func first(values url.Values, keys ...string) string {
	for _, k := range keys {
		if v := values.Get(k); v != "" {
			return v
		}
	}
	return ""
}
