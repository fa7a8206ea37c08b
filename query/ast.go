package query

// Expr is a node of a list query's WHERE tree.
type Expr interface {
	isExpr()
}

type And struct {
	Exprs []Expr
}

func (And) isExpr() {}

type Or struct {
	Exprs []Expr
}

func (Or) isExpr() {}

// Contains is a case-insensitive substring match.
type Contains struct {
	Field string
	Value string
}

func (Contains) isExpr() {}

type Eq struct {
	Field string
	Value any
}

func (Eq) isExpr() {}

type In struct {
	Field  string
	Values []any
}

func (In) isExpr() {}

// Includes matches array columns holding at least one of Values.
type Includes struct {
	Field  string
	Values []any
}

func (Includes) isExpr() {}

// IsNull matches absent and null values.
type IsNull struct {
	Field string
}

func (IsNull) isExpr() {}

type NotNull struct {
	Field string
}

func (NotNull) isExpr() {}

// Conj ANDs the non-nil expressions, collapsing trivial groups.
func Conj(exprs ...Expr) Expr {
	var out []Expr
	for _, e := range exprs {
		if e != nil {
			out = append(out, e)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return And{Exprs: out}
}
