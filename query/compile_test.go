package query

import (
	"reflect"
	"strings"
	"testing"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// dryRunDB renders MySQL statements without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/records?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return db
}

func renderWhere(t *testing.T, e Expr) (string, []any) {
	t.Helper()
	var rows []map[string]any
	stmt := dryRunDB(t).Table("products").Where(Compile(e)).Find(&rows).Statement
	sql := stmt.SQL.String()
	idx := strings.Index(sql, " WHERE ")
	if idx < 0 {
		t.Fatalf("no WHERE in %q", sql)
	}
	return sql[idx+len(" WHERE "):], stmt.Vars
}

func TestCompileSearchScenario(t *testing.T) {
	q := productBuilder().Build(Params{Search: "Shoe"})
	sql, vars := renderWhere(t, q.Where)
	want := "(LOWER(`name`) LIKE ? OR LOWER(`description`) LIKE ?) AND `deleted_at` IS NULL"
	if sql != want {
		t.Fatalf("sql = %q, want %q", sql, want)
	}
	if !reflect.DeepEqual(vars, []any{"%shoe%", "%shoe%"}) {
		t.Fatalf("vars = %v", vars)
	}
}

func TestCompileFilters(t *testing.T) {
	cases := []struct {
		expr Expr
		sql  string
		vars []any
	}{
		{In{Field: "category_id", Values: []any{5.0, 7.0, 9.0}}, "`category_id` IN (?,?,?)", []any{5.0, 7.0, 9.0}},
		{Eq{Field: "active", Value: true}, "`active` = ?", []any{true}},
		{NotNull{Field: "deleted_at"}, "`deleted_at` IS NOT NULL", nil},
		{Contains{Field: "name", Value: "50%_off"}, "LOWER(`name`) LIKE ?", []any{`%50\%\_off%`}},
		{Includes{Field: "tag_id", Values: []any{"A"}}, "JSON_CONTAINS(`tag_id`, ?)", []any{`"A"`}},
	}
	for _, tc := range cases {
		sql, vars := renderWhere(t, tc.expr)
		if sql != tc.sql {
			t.Fatalf("%#v: sql = %q, want %q", tc.expr, sql, tc.sql)
		}
		if len(vars) != len(tc.vars) || (len(vars) > 0 && !reflect.DeepEqual(vars, tc.vars)) {
			t.Fatalf("%#v: vars = %v, want %v", tc.expr, vars, tc.vars)
		}
	}
}

func TestCompileNil(t *testing.T) {
	if Compile(nil) != nil {
		t.Fatalf("nil expression should compile to nil")
	}
}

func TestOrderByTiebreaker(t *testing.T) {
	var rows []map[string]any
	stmt := dryRunDB(t).Table("products").Clauses(OrderBy(DefaultSort)).Find(&rows).Statement
	if !strings.HasSuffix(stmt.SQL.String(), "ORDER BY `created_at` DESC,`id` DESC") {
		t.Fatalf("sql = %q", stmt.SQL.String())
	}
}
