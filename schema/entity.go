package schema

import (
	"errors"
	"fmt"
	"strings"
)

type SemanticType string

const (
	Text           SemanticType = "text"
	Number         SemanticType = "number"
	Boolean        SemanticType = "boolean"
	Date           SemanticType = "date"
	Reference      SemanticType = "reference"
	ReferenceArray SemanticType = "array-of-reference"
	TextArray      SemanticType = "array-of-text"
)

func (t SemanticType) Valid() bool {
	switch t {
	case Text, Number, Boolean, Date, Reference, ReferenceArray, TextArray:
		return true
	}
	return false
}

// IsArray reports whether values of this type are persisted as ordered sequences.
func (t SemanticType) IsArray() bool {
	return t == ReferenceArray || t == TextArray
}

// Identity, audit and soft-delete columns shared by every entity table.
const (
	ColumnID        = "id"
	ColumnCreatedBy = "created_by"
	ColumnUpdatedBy = "updated_by"
	ColumnTenantID  = "tenant_id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
	ColumnDeletedAt = "deleted_at"
)

var systemColumns = map[string]bool{
	ColumnID:        true,
	ColumnCreatedBy: true,
	ColumnUpdatedBy: true,
	ColumnTenantID:  true,
	ColumnCreatedAt: true,
	ColumnUpdatedAt: true,
	ColumnDeletedAt: true,
}

// IsSystemColumn reports identity/audit/soft-delete columns, which are never
// part of an auto-derived form.
func IsSystemColumn(name string) bool {
	return systemColumns[name]
}

type Field struct {
	Name     string
	Type     SemanticType
	Required bool
	Enum     []string
	// Ref is the kind of the referenced entity for reference fields.
	Ref string
	// Default is used as-is; DefaultFunc, when set, wins and is called on every resolution.
	Default     any
	DefaultFunc func() any

	DisplayName string
	UIHint      UIType
	MinLength   *int
	MaxLength   *int
	Min         *float64
	Max         *float64
	Pattern     string
	Unique      bool
	Placeholder string
	Help        string
}

// Entity is the schema of one record type. Once registered it must not be mutated.
type Entity struct {
	// Kind is the singular entity name, used in routes and attachment paths.
	Kind   string
	Table  string
	Fields []Field
	// SoftDelete enables the deleted_at column and the Active/SoftDeleted/Purged lifecycle.
	SoftDelete bool

	index map[string]int
}

func (e *Entity) Field(name string) (Field, bool) {
	if e.index == nil {
		for _, f := range e.Fields {
			if f.Name == name {
				return f, true
			}
		}
		return Field{}, false
	}
	i, ok := e.index[name]
	if !ok {
		return Field{}, false
	}
	return e.Fields[i], true
}

// Declares reports whether the entity declares the named column, system columns included.
func (e *Entity) Declares(name string) bool {
	switch name {
	case ColumnID, ColumnCreatedAt, ColumnUpdatedAt:
		return true
	case ColumnDeletedAt:
		return e.SoftDelete
	}
	_, ok := e.Field(name)
	return ok
}

// FileFields returns the fields that hold attachment paths.
func (e *Entity) FileFields() []Field {
	var out []Field
	for _, f := range e.Fields {
		if UITypeOf(f) == UIFile {
			out = append(out, f)
		}
	}
	return out
}

// AutoFieldNames lists the declared fields in order, skipping identity, audit and
// soft-delete columns.
func AutoFieldNames(e *Entity) []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if IsSystemColumn(f.Name) {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}

var (
	ErrEmptyKind      = errors.New("entity kind is required")
	ErrDuplicateField = errors.New("duplicate field")
)

// validate checks the declaration and builds the name index.
func (e *Entity) validate() error {
	if strings.TrimSpace(e.Kind) == "" {
		return ErrEmptyKind
	}
	if e.Table == "" {
		e.Table = e.Kind + "s"
	}
	e.index = make(map[string]int, len(e.Fields))
	for i, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("%s: field %d has no name", e.Kind, i)
		}
		if _, ok := e.index[f.Name]; ok {
			return fmt.Errorf("%s.%s: %w", e.Kind, f.Name, ErrDuplicateField)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("%s.%s: unknown semantic type %q", e.Kind, f.Name, f.Type)
		}
		if f.Name == ColumnDeletedAt || f.Name == ColumnID || f.Name == ColumnCreatedAt || f.Name == ColumnUpdatedAt {
			return fmt.Errorf("%s.%s: column is managed by the engine", e.Kind, f.Name)
		}
		if (f.Type == Reference || f.Type == ReferenceArray) && f.Ref == "" && !IsSystemColumn(f.Name) {
			return fmt.Errorf("%s.%s: reference field needs Ref", e.Kind, f.Name)
		}
		if f.UIHint != "" && !Compatible(f.Type, f.UIHint) {
			return fmt.Errorf("%s.%s: ui hint %q contradicts type %q", e.Kind, f.Name, f.UIHint, f.Type)
		}
		e.index[f.Name] = i
	}
	return nil
}
