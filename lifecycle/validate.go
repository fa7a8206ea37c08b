package lifecycle

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/utils"
)

// validation checks normalized values against descriptors, enum options and
// custom validator rules.
type validation struct {
	validate *validator.Validate
	rules    map[string]string
	patterns map[string]*regexp.Regexp
	enums    map[string]map[string]bool
}

func newValidation(e *schema.Entity, fds schema.FieldDescriptors, rules map[string]string, v *validator.Validate) (*validation, error) {
	if v == nil {
		v = validator.New()
	}
	out := &validation{
		validate: v,
		rules:    rules,
		patterns: map[string]*regexp.Regexp{},
		enums:    map[string]map[string]bool{},
	}
	for name := range rules {
		if _, ok := fds.Get(name); !ok {
			return nil, fmt.Errorf("%s: rule for unknown field %q", e.Kind, name)
		}
	}
	for _, fd := range fds {
		if p := fd.Constraints.Pattern; p != "" {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: pattern: %w", e.Kind, fd.Name, err)
			}
			out.patterns[fd.Name] = re
		}
		if f, ok := e.Field(fd.Name); ok && len(f.Enum) > 0 {
			allowed := make(map[string]bool, len(f.Enum))
			for _, v := range f.Enum {
				allowed[v] = true
			}
			out.enums[fd.Name] = allowed
		}
	}
	return out, nil
}

// check adds a message to verr for every violation in values. In update mode
// only the fields present in values are checked.
func (v *validation) check(fds schema.FieldDescriptors, values map[string]any, creating bool, verr *utils.ValidationError) {
	for _, fd := range fds {
		if fd.UIType == schema.UIFile {
			continue
		}
		val, present := values[fd.Name]
		if !present && !creating {
			continue
		}
		if isEmpty(val) {
			if fd.Required && !(fd.UIType == schema.UIPassword && !creating) {
				verr.Add(fd.Name, "is required")
			}
			continue
		}

		switch x := val.(type) {
		case string:
			v.checkText(fd, x, verr)
		case float64:
			if c := fd.Constraints; c.Min != nil && x < *c.Min {
				verr.Add(fd.Name, fmt.Sprintf("must be at least %v", *c.Min))
			} else if c.Max != nil && x > *c.Max {
				verr.Add(fd.Name, fmt.Sprintf("must be at most %v", *c.Max))
			}
		case []string:
			if allowed := v.enums[fd.Name]; allowed != nil {
				for _, item := range x {
					if !allowed[item] {
						verr.Add(fd.Name, fmt.Sprintf("%q is not an allowed value", item))
					}
				}
			}
		}

		if tag := v.rules[fd.Name]; tag != "" {
			if err := v.validate.Var(val, tag); err != nil {
				for _, msgs := range utils.ProcessValidationErrors(err) {
					for _, msg := range msgs {
						verr.Add(fd.Name, msg)
					}
				}
			}
		}
	}
}

func (v *validation) checkText(fd schema.FieldDescriptor, s string, verr *utils.ValidationError) {
	n := utf8.RuneCountInString(s)
	if c := fd.Constraints; c.MinLength != nil && n < *c.MinLength {
		verr.Add(fd.Name, fmt.Sprintf("must be at least %d characters", *c.MinLength))
	} else if c.MaxLength != nil && n > *c.MaxLength {
		verr.Add(fd.Name, fmt.Sprintf("must be at most %d characters", *c.MaxLength))
	}
	if re := v.patterns[fd.Name]; re != nil && !re.MatchString(s) {
		verr.Add(fd.Name, "has an invalid format")
	}
	if allowed := v.enums[fd.Name]; allowed != nil && !allowed[s] {
		verr.Add(fd.Name, fmt.Sprintf("%q is not an allowed value", s))
	}
	switch {
	case fd.UIType == schema.UIEmail:
		if !utils.IsValidEmail(s) {
			verr.Add(fd.Name, "must be a valid email address")
		}
	case isPhoneField(fd.Name):
		if err := utils.ValidatePhoneNumber(s, utils.CountryCode); err != nil {
			verr.Add(fd.Name, "must be a valid phone number")
		}
	}
}

func isPhoneField(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "phone") || strings.Contains(name, "mobile")
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []string:
		return len(x) == 0
	}
	return false
}
