package schema

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mmdatafocus/records_backend/utils"
)

type Constraints struct {
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
}

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type FieldDescriptor struct {
	Name        string       `json:"name"`
	UIType      UIType       `json:"ui_type"`
	Type        SemanticType `json:"type"`
	Label       string       `json:"label"`
	Required    bool         `json:"required"`
	Constraints Constraints  `json:"constraints"`
	Options     []Option     `json:"options,omitempty"`
	Placeholder string       `json:"placeholder,omitempty"`
	Help        string       `json:"help,omitempty"`
	Default     any          `json:"default,omitempty"`
	Multiple    bool         `json:"multiple"`
	Ref         string       `json:"ref,omitempty"`
}

// Override replaces parts of an inferred descriptor. Zero values leave the
// inferred value untouched.
type Override struct {
	UIType      UIType
	Label       string
	Required    *bool
	Constraints *Constraints
	Options     []Option
	Placeholder string
	Help        string
}

// FieldDescriptors keeps descriptors in form order.
type FieldDescriptors []FieldDescriptor

func (d FieldDescriptors) Get(name string) (FieldDescriptor, bool) {
	for _, fd := range d {
		if fd.Name == name {
			return fd, true
		}
	}
	return FieldDescriptor{}, false
}

func (d FieldDescriptors) Names() []string {
	names := make([]string, len(d))
	for i, fd := range d {
		names[i] = fd.Name
	}
	return names
}

// Resolve derives a descriptor for every name in fieldNames (all non-system fields
// when empty). Names not declared by the entity and overrides that contradict the
// semantic type are errors. Default producers are invoked on every call.
func Resolve(e *Entity, fieldNames []string, overrides map[string]Override) (FieldDescriptors, error) {
	if len(fieldNames) == 0 {
		fieldNames = AutoFieldNames(e)
	}
	for name := range overrides {
		if _, ok := e.Field(name); !ok {
			return nil, fmt.Errorf("%s: override for undeclared field %q", e.Kind, name)
		}
	}

	out := make(FieldDescriptors, 0, len(fieldNames))
	for _, name := range fieldNames {
		f, ok := e.Field(name)
		if !ok {
			return nil, fmt.Errorf("%s: field %q is not declared", e.Kind, name)
		}
		fd, err := describe(f, overrides[name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Kind, name, err)
		}
		out = append(out, fd)
	}
	return out, nil
}

func describe(f Field, o Override) (FieldDescriptor, error) {
	ui := UITypeOf(f)
	if o.UIType != "" {
		if !Compatible(f.Type, o.UIType) {
			return FieldDescriptor{}, fmt.Errorf("ui type %q contradicts type %q", o.UIType, f.Type)
		}
		ui = o.UIType
	}

	fd := FieldDescriptor{
		Name:     f.Name,
		UIType:   ui,
		Type:     f.Type,
		Label:    f.DisplayName,
		Required: f.Required,
		Constraints: Constraints{
			MinLength: f.MinLength,
			MaxLength: f.MaxLength,
			Min:       f.Min,
			Max:       f.Max,
			Pattern:   f.Pattern,
		},
		Placeholder: f.Placeholder,
		Help:        f.Help,
		Multiple:    f.Type.IsArray(),
		Ref:         f.Ref,
	}
	if fd.Label == "" {
		fd.Label = Humanize(f.Name)
	}
	for _, v := range f.Enum {
		fd.Options = append(fd.Options, Option{Value: v, Label: v})
	}

	if o.Label != "" {
		fd.Label = o.Label
	}
	if o.Required != nil {
		fd.Required = *o.Required
	}
	if o.Constraints != nil {
		fd.Constraints = *o.Constraints
	}
	if o.Options != nil {
		fd.Options = o.Options
	}
	if o.Placeholder != "" {
		fd.Placeholder = o.Placeholder
	}
	if o.Help != "" {
		fd.Help = o.Help
	}

	switch {
	case f.DefaultFunc != nil:
		fd.Default = f.DefaultFunc()
	case f.Default != nil:
		fd.Default = f.Default
	}
	return fd, nil
}

// Humanize turns "category_id" or "categoryId" into "Category id".
func Humanize(name string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range name {
		switch {
		case r == '_' || r == '-':
			b.WriteRune(' ')
			prevLower = false
			continue
		case unicode.IsUpper(r) && prevLower:
			b.WriteRune(' ')
		}
		b.WriteRune(unicode.ToLower(r))
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	return utils.UppercaseFirst(strings.Join(strings.Fields(b.String()), " "))
}
