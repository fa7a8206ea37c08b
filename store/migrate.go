package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmdatafocus/records_backend/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type column struct {
	name string
	ddl  string
}

// columnsFor lists the table layout of e in declaration order, system columns first.
func columnsFor(e *schema.Entity) []column {
	cols := []column{{schema.ColumnID, "CHAR(36) NOT NULL"}}
	if e.Declares(schema.ColumnTenantID) {
		cols = append(cols, column{schema.ColumnTenantID, "VARCHAR(64) NULL"})
	}
	for _, f := range e.Fields {
		if f.Name == schema.ColumnTenantID {
			continue
		}
		cols = append(cols, column{f.Name, columnType(f)})
	}
	cols = append(cols,
		column{schema.ColumnCreatedAt, "DATETIME(3) NOT NULL"},
		column{schema.ColumnUpdatedAt, "DATETIME(3) NOT NULL"},
	)
	if e.SoftDelete {
		cols = append(cols, column{schema.ColumnDeletedAt, "DATETIME(3) NULL"})
	}
	return cols
}

func columnType(f schema.Field) string {
	switch f.Type {
	case schema.Number:
		return "DOUBLE NULL"
	case schema.Boolean:
		return "TINYINT(1) NULL"
	case schema.Date:
		return "DATETIME(3) NULL"
	case schema.Reference:
		return "CHAR(36) NULL"
	case schema.ReferenceArray, schema.TextArray:
		return "JSON NULL"
	}
	switch {
	case schema.IsSystemColumn(f.Name):
		return "VARCHAR(64) NULL"
	case schema.UITypeOf(f) == schema.UITextarea:
		return "TEXT NULL"
	case f.MaxLength != nil && *f.MaxLength > 255:
		return "TEXT NULL"
	}
	return "VARCHAR(255) NULL"
}

type index struct {
	name   string
	column string
	unique bool
}

func indexesFor(e *schema.Entity) []index {
	var out []index
	for _, f := range e.Fields {
		if f.Unique && !f.Type.IsArray() {
			out = append(out, index{name: "uq_" + e.Table + "__" + f.Name, column: f.Name, unique: true})
		}
	}
	if e.Declares(schema.ColumnTenantID) {
		out = append(out, index{name: "idx_" + e.Table + "__" + schema.ColumnTenantID, column: schema.ColumnTenantID})
	}
	if e.SoftDelete {
		out = append(out, index{name: "idx_" + e.Table + "__" + schema.ColumnDeletedAt, column: schema.ColumnDeletedAt})
	}
	out = append(out, index{name: "idx_" + e.Table + "__" + schema.ColumnCreatedAt, column: schema.ColumnCreatedAt})
	return out
}

// CreateTableSQL renders the CREATE TABLE statement for e.
func CreateTableSQL(e *schema.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS `%s` (\n", e.Table)
	for _, c := range columnsFor(e) {
		fmt.Fprintf(&b, "  `%s` %s,\n", c.name, c.ddl)
	}
	for _, ix := range indexesFor(e) {
		kind := "INDEX"
		if ix.unique {
			kind = "UNIQUE INDEX"
		}
		fmt.Fprintf(&b, "  %s `%s` (`%s`),\n", kind, ix.name, ix.column)
	}
	b.WriteString("  PRIMARY KEY (`id`)\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci")
	return b.String()
}

// Migrate creates the table for e, or adds the columns and indexes a newer
// declaration introduced. Columns are never dropped or retyped.
func Migrate(ctx context.Context, db *gorm.DB, e *schema.Entity) error {
	tx := db.WithContext(ctx)
	m := tx.Migrator()
	if !m.HasTable(e.Table) {
		return tx.Exec(CreateTableSQL(e)).Error
	}

	for _, c := range columnsFor(e) {
		if m.HasColumn(e.Table, c.name) {
			continue
		}
		err := tx.Exec("ALTER TABLE ? ADD COLUMN ? "+c.ddl, clause.Table{Name: e.Table}, clause.Column{Name: c.name}).Error
		if err != nil {
			return fmt.Errorf("add column %s.%s: %w", e.Table, c.name, err)
		}
	}
	for _, ix := range indexesFor(e) {
		if m.HasIndex(e.Table, ix.name) {
			continue
		}
		kind := "INDEX"
		if ix.unique {
			kind = "UNIQUE INDEX"
		}
		err := tx.Exec("CREATE "+kind+" ? ON ? (?)", clause.Column{Name: ix.name}, clause.Table{Name: e.Table}, clause.Column{Name: ix.column}).Error
		if err != nil {
			return fmt.Errorf("add index %s: %w", ix.name, err)
		}
	}
	return nil
}
