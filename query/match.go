package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Match evaluates e against one record's column values. It mirrors Compile for
// stores that filter in memory.
func Match(e Expr, values map[string]any) bool {
	switch v := e.(type) {
	case nil:
		return true
	case And:
		for _, x := range v.Exprs {
			if !Match(x, values) {
				return false
			}
		}
		return true
	case Or:
		for _, x := range v.Exprs {
			if Match(x, values) {
				return true
			}
		}
		return false
	case Contains:
		s, ok := values[v.Field]
		if !ok || s == nil {
			return false
		}
		return strings.Contains(strings.ToLower(text(s)), strings.ToLower(v.Value))
	case Eq:
		if v.Value == nil {
			return isNull(values, v.Field)
		}
		return equal(values[v.Field], v.Value)
	case In:
		for _, want := range v.Values {
			if equal(values[v.Field], want) {
				return true
			}
		}
		return false
	case Includes:
		for _, have := range elements(values[v.Field]) {
			for _, want := range v.Values {
				if have == fmt.Sprint(want) {
					return true
				}
			}
		}
		return false
	case IsNull:
		return isNull(values, v.Field)
	case NotNull:
		return !isNull(values, v.Field)
	}
	panic(fmt.Sprintf("query: unknown expression %T", e))
}

func isNull(values map[string]any, field string) bool {
	v, ok := values[field]
	if !ok || v == nil {
		return true
	}
	if t, ok := v.(*time.Time); ok {
		return t == nil
	}
	return false
}

// equal compares loosely the way MySQL does for mixed string/number operands.
func equal(have, want any) bool {
	if have == nil || want == nil {
		return false
	}
	switch w := want.(type) {
	case bool:
		if h, ok := have.(bool); ok {
			return h == w
		}
		b, err := strconv.ParseBool(text(have))
		return err == nil && b == w
	case float64:
		hd, err := decimal.NewFromString(text(have))
		return err == nil && hd.Equal(decimal.NewFromFloat(w))
	}
	return text(have) == text(want)
}

func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

func elements(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case nil:
		return nil
	}
	return []string{text(v)}
}
