package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/utils"
)

var (
	ErrNotNumber    = errors.New("must be a number")
	ErrNotBoolean   = errors.New("must be true or false")
	ErrNotDate      = errors.New("must be a date")
	ErrNotReference = errors.New("is not a valid reference")
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Scalar coerces a single submitted value to the field's semantic type. Empty
// input yields nil, except for text which keeps the empty string.
func Scalar(fd schema.FieldDescriptor, raw any) (any, error) {
	s, isNil := scalarString(raw)
	if fd.Type == schema.Text {
		if isNil {
			return nil, nil
		}
		return s, nil
	}

	s = strings.TrimSpace(s)
	if isNil || s == "" {
		return nil, nil
	}

	switch fd.Type {
	case schema.Number:
		d, err := utils.ParseDecimal(s)
		if err != nil {
			return nil, ErrNotNumber
		}
		return d.InexactFloat64(), nil
	case schema.Boolean:
		switch strings.ToLower(s) {
		case "true", "on", "1", "yes":
			return true, nil
		case "false", "off", "0", "no":
			return false, nil
		}
		return nil, ErrNotBoolean
	case schema.Date:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, ErrNotDate
	case schema.Reference:
		if !IsIdentifier(s) {
			return nil, ErrNotReference
		}
		return s, nil
	}
	return s, nil
}

// scalarString reduces raw to one string; arrays contribute their last element,
// matching how repeated form keys override each other.
func scalarString(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", true
	case string:
		return v, false
	case []string:
		if len(v) == 0 {
			return "", true
		}
		return v[len(v)-1], false
	case []any:
		if len(v) == 0 {
			return "", true
		}
		return scalarString(v[len(v)-1])
	case bool:
		return strconv.FormatBool(v), false
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), false
	case json.Number:
		return v.String(), false
	case time.Time:
		return v.Format(time.RFC3339Nano), false
	}
	return fmt.Sprint(raw), false
}
