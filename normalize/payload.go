package normalize

import (
	"net/url"

	"github.com/mmdatafocus/records_backend/schema"
)

type Mode int

const (
	ModeCreate Mode = iota
	// ModeUpdate leaves fields absent from the payload untouched.
	ModeUpdate
)

type Outcome struct {
	Values map[string]any
	Errors map[string][]string
	// Dropped lists, per field, identifiers discarded as malformed.
	Dropped map[string][]string
}

func (o Outcome) HasErrors() bool {
	return len(o.Errors) > 0
}

// Payload normalizes every descriptor field of payload. File fields are left to
// the attachment manager.
func Payload(descriptors schema.FieldDescriptors, payload map[string]any, mode Mode) Outcome {
	out := Outcome{
		Values:  map[string]any{},
		Errors:  map[string][]string{},
		Dropped: map[string][]string{},
	}
	for _, fd := range descriptors {
		if fd.UIType == schema.UIFile {
			continue
		}

		if fd.Multiple {
			res := Multi(fd, payload)
			if len(res.Dropped) > 0 {
				out.Dropped[fd.Name] = res.Dropped
			}
			switch {
			case res.Present():
				out.Values[fd.Name] = res.Values
			case mode == ModeCreate:
				out.Values[fd.Name] = defaultList(fd.Default)
			}
			continue
		}

		raw, ok := payload[fd.Name]
		if !ok {
			if mode == ModeCreate {
				out.Values[fd.Name] = fd.Default
			}
			continue
		}
		v, err := Scalar(fd, raw)
		if err != nil {
			out.Errors[fd.Name] = append(out.Errors[fd.Name], err.Error())
			continue
		}
		out.Values[fd.Name] = v
	}
	return out
}

func defaultList(def any) []string {
	switch v := def.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return []string{}
}

// FromValues converts form values into a payload: single values become strings,
// repeated keys become arrays.
func FromValues(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		switch len(vs) {
		case 0:
			out[k] = nil
		case 1:
			out[k] = vs[0]
		default:
			list := make([]any, len(vs))
			for i, v := range vs {
				list[i] = v
			}
			out[k] = list
		}
	}
	return out
}
