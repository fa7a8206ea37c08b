// Package entities registers the demo record types the server exposes.
package entities

import (
	"context"
	"regexp"
	"strings"

	"github.com/mmdatafocus/records_backend/lifecycle"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
)

var (
	zero         = 0.0
	slugMax      = 120
	nameMax      = 200
	slugPattern  = `^[a-z0-9]+(?:-[a-z0-9]+)*$`
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

var Category = schema.MustRegister(schema.Entity{
	Kind:       "category",
	Table:      "categories",
	SoftDelete: true,
	Fields: []schema.Field{
		{Name: "name", Type: schema.Text, Required: true, MaxLength: &nameMax},
		{Name: "description", Type: schema.Text},
		{Name: "parent_id", Type: schema.Reference, Ref: "category", DisplayName: "Parent category"},
		{Name: "created_by", Type: schema.Reference},
		{Name: "updated_by", Type: schema.Reference},
		{Name: "tenant_id", Type: schema.Text},
	},
})

var Product = schema.MustRegister(schema.Entity{
	Kind:       "product",
	SoftDelete: true,
	Fields: []schema.Field{
		{Name: "name", Type: schema.Text, Required: true, MaxLength: &nameMax},
		{Name: "slug", Type: schema.Text, Unique: true, Pattern: slugPattern, MaxLength: &slugMax,
			Help: "Generated from the name when left empty"},
		{Name: "description", Type: schema.Text},
		{Name: "price", Type: schema.Number, Required: true, Min: &zero},
		{Name: "active", Type: schema.Boolean, Default: true},
		{Name: "status", Type: schema.Text, Enum: []string{"draft", "published", "archived"}, Default: "draft"},
		{Name: "category_id", Type: schema.Reference, Ref: "category", DisplayName: "Category"},
		{Name: "related_product_ids", Type: schema.ReferenceArray, Ref: "product", DisplayName: "Related products"},
		{Name: "tags", Type: schema.TextArray},
		{Name: "images", Type: schema.TextArray},
		{Name: "manual", Type: schema.Text, UIHint: schema.UIFile, Help: "PDF or image"},
		{Name: "released_on", Type: schema.Date},
		{Name: "created_by", Type: schema.Reference},
		{Name: "updated_by", Type: schema.Reference},
		{Name: "tenant_id", Type: schema.Text},
	},
})

// Staff has no soft delete, so deleting a member removes it outright.
var Staff = schema.MustRegister(schema.Entity{
	Kind:  "staff",
	Table: "staff",
	Fields: []schema.Field{
		{Name: "name", Type: schema.Text, Required: true},
		{Name: "email", Type: schema.Text, Required: true, Unique: true},
		{Name: "password", Type: schema.Text, Required: true},
		{Name: "phone", Type: schema.Text},
		{Name: "avatar", Type: schema.TextArray},
		{Name: "tenant_id", Type: schema.Text},
	},
})

// Configs holds the per-entity lifecycle configuration; entities missing
// here use the derived defaults.
var Configs = map[string]lifecycle.Config{
	"category": {
		Sortable: []string{"name", schema.ColumnCreatedAt, schema.ColumnUpdatedAt},
	},
	"product": {
		FieldNames: []string{"name", "slug", "description", "price", "active", "status", "category_id",
			"related_product_ids", "tags", "images", "manual", "released_on"},
		Searchable: []string{"name", "slug", "description"},
		Overrides: map[string]schema.Override{
			"price": {Placeholder: "0.00"},
		},
		Rules: map[string]string{"price": "lte=1000000000"},
		Hooks: productHooks{},
	},
	"staff": {
		Searchable: []string{"name", "email"},
	},
}

// productHooks derives the slug from the name when none is submitted.
type productHooks struct {
	lifecycle.NoopHooks
}

func (productHooks) BeforeInsert(_ context.Context, values map[string]any) error {
	if s, _ := values["slug"].(string); strings.TrimSpace(s) != "" {
		return nil
	}
	if name, _ := values["name"].(string); name != "" {
		values["slug"] = slugify(name)
	}
	return nil
}

func (productHooks) BeforeUpdate(_ context.Context, current *store.Record, payload map[string]any) error {
	if s, ok := payload["slug"].(string); ok && strings.TrimSpace(s) == "" {
		if name, _ := current.Values["name"].(string); name != "" {
			payload["slug"] = slugify(name)
		}
	}
	return nil
}

func slugify(s string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
