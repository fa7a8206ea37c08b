package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm/clause"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Compile renders e as a gorm clause expression. A nil Expr compiles to nil.
func Compile(e Expr) clause.Expression {
	switch v := e.(type) {
	case nil:
		return nil
	case And:
		return clause.And(compileAll(v.Exprs)...)
	case Or:
		return clause.Or(compileAll(v.Exprs)...)
	case Contains:
		return clause.Expr{
			SQL:  "LOWER(?) LIKE ?",
			Vars: []any{clause.Column{Name: v.Field}, "%" + likeEscaper.Replace(strings.ToLower(v.Value)) + "%"},
		}
	case Eq:
		return clause.Eq{Column: clause.Column{Name: v.Field}, Value: v.Value}
	case In:
		return clause.IN{Column: clause.Column{Name: v.Field}, Values: v.Values}
	case Includes:
		var ors []clause.Expression
		for _, val := range v.Values {
			encoded, _ := json.Marshal(fmt.Sprint(val))
			ors = append(ors, clause.Expr{
				SQL:  "JSON_CONTAINS(?, ?)",
				Vars: []any{clause.Column{Name: v.Field}, string(encoded)},
			})
		}
		if len(ors) == 0 {
			return clause.Expr{SQL: "1 = 0"}
		}
		return clause.Or(ors...)
	case IsNull:
		return clause.Eq{Column: clause.Column{Name: v.Field}, Value: nil}
	case NotNull:
		return clause.Neq{Column: clause.Column{Name: v.Field}, Value: nil}
	}
	panic(fmt.Sprintf("query: unknown expression %T", e))
}

func compileAll(exprs []Expr) []clause.Expression {
	out := make([]clause.Expression, 0, len(exprs))
	for _, e := range exprs {
		if c := Compile(e); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// OrderBy renders the sort with id as a tiebreaker so pages are stable.
func OrderBy(s Sort) clause.OrderBy {
	cols := []clause.OrderByColumn{{Column: clause.Column{Name: s.Field}, Desc: s.Desc}}
	if s.Field != "id" {
		cols = append(cols, clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: s.Desc})
	}
	return clause.OrderBy{Columns: cols}
}

func sortedScopeKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
