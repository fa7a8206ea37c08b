package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/records_backend/schema"
	"gorm.io/datatypes"
)

func decodeRows(e *schema.Entity, rows []map[string]any) ([]*Record, error) {
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		r, err := decodeRow(e, row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// decodeRow maps a scanned row back to a Record using the entity's field types.
// Drivers hand back strings, []byte, int64, float64 or time.Time depending on
// the column, so every type accepts several raw forms.
func decodeRow(e *schema.Entity, row map[string]any) (*Record, error) {
	r := &Record{Values: map[string]any{}}
	r.ID = asString(row[schema.ColumnID])
	r.CreatedBy = asString(row[schema.ColumnCreatedBy])
	r.UpdatedBy = asString(row[schema.ColumnUpdatedBy])
	r.TenantID = asString(row[schema.ColumnTenantID])
	if t, ok := asTime(row[schema.ColumnCreatedAt]); ok {
		r.CreatedAt = t
	}
	if t, ok := asTime(row[schema.ColumnUpdatedAt]); ok {
		r.UpdatedAt = t
	}
	if t, ok := asTime(row[schema.ColumnDeletedAt]); ok {
		r.DeletedAt = &t
	}

	for _, f := range e.Fields {
		if schema.IsSystemColumn(f.Name) {
			continue
		}
		raw, ok := row[f.Name]
		if !ok {
			continue
		}
		v, err := decodeValue(f, raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Kind, f.Name, err)
		}
		r.Values[f.Name] = v
	}
	return r, nil
}

func decodeValue(f schema.Field, raw any) (any, error) {
	if f.Type.IsArray() {
		return decodeList(raw)
	}
	if raw == nil {
		return nil, nil
	}
	switch f.Type {
	case schema.Number:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		}
		return strconv.ParseFloat(asString(raw), 64)
	case schema.Boolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case int:
			return v != 0, nil
		}
		return strconv.ParseBool(asString(raw))
	case schema.Date:
		if t, ok := asTime(raw); ok {
			return t, nil
		}
		return nil, fmt.Errorf("unexpected date value %v", raw)
	}
	return asString(raw), nil
}

func decodeList(raw any) ([]string, error) {
	var b []byte
	switch v := raw.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return v, nil
	case datatypes.JSON:
		b = v
	case json.RawMessage:
		b = v
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return nil, fmt.Errorf("unexpected array value %T", raw)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return []string{}, nil
	}
	var items []any
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, err
	}
	return toStrings(items), nil
}

func toStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		out := make([]string, len(x))
		copy(out, x)
		return out
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if e == nil {
				continue
			}
			out = append(out, asString(e))
		}
		return out
	case nil:
		return nil
	}
	return []string{asString(v)}
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return x.UTC(), true
	case []byte:
		return asTime(string(x))
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02"} {
			if t, err := time.Parse(layout, x); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
