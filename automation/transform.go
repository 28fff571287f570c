package automation

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type TransformKind string

const (
	TransformUppercase     TransformKind = "uppercase"
	TransformLowercase     TransformKind = "lowercase"
	TransformTrim          TransformKind = "trim"
	TransformDateFormat    TransformKind = "date_format"
	TransformNumber        TransformKind = "number"
	TransformBoolean       TransformKind = "boolean"
	TransformJSONParse     TransformKind = "json_parse"
	TransformJSONStringify TransformKind = "json_stringify"
	TransformCustom        TransformKind = "custom"
)

// Transformation is the declarative descriptor attached to a field mapping.
// Format applies to date_format; Name selects a registered function for custom.
type Transformation struct {
	Kind   TransformKind `json:"kind"`
	Format string        `json:"format,omitempty"`
	Name   string        `json:"name,omitempty"`
}

func DecodeTransformation(raw []byte) *Transformation {
	if len(raw) == 0 {
		return nil
	}
	var t Transformation
	if err := json.Unmarshal(raw, &t); err != nil || t.Kind == "" {
		return nil
	}
	return &t
}

// TransformFunc is a registered pure value transform. Errors are caught by
// the mapping pass, which falls back to the untransformed value.
type TransformFunc func(value interface{}) (interface{}, error)

// TransformRegistry holds the named functions available to custom
// transformations. Functions are registered at startup; arbitrary source text
// is never evaluated.
type TransformRegistry struct {
	mu    sync.RWMutex
	funcs map[string]TransformFunc
}

func NewTransformRegistry() *TransformRegistry {
	return &TransformRegistry{funcs: map[string]TransformFunc{}}
}

func (r *TransformRegistry) Register(name string, fn TransformFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *TransformRegistry) lookup(name string) (TransformFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Apply runs the transformation against value. A failing transform never
// aborts the caller's mapping pass: the untransformed value is returned
// instead, so one bad field degrades gracefully.
func (r *TransformRegistry) Apply(t *Transformation, value interface{}) interface{} {
	if t == nil {
		return value
	}

	switch t.Kind {
	case TransformUppercase:
		if s, ok := value.(string); ok {
			return strings.ToUpper(s)
		}
		return value
	case TransformLowercase:
		if s, ok := value.(string); ok {
			return strings.ToLower(s)
		}
		return value
	case TransformTrim:
		if s, ok := value.(string); ok {
			return strings.TrimSpace(s)
		}
		return value
	case TransformDateFormat:
		return formatDate(value, t.Format)
	case TransformNumber:
		return coerceNumber(value)
	case TransformBoolean:
		return coerceBool(value)
	case TransformJSONParse:
		s, ok := value.(string)
		if !ok {
			return value
		}
		var parsed interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return value
		}
		return parsed
	case TransformJSONStringify:
		b, err := json.Marshal(value)
		if err != nil {
			return value
		}
		return string(b)
	case TransformCustom:
		if r == nil {
			return value
		}
		fn, ok := r.lookup(t.Name)
		if !ok {
			return value
		}
		out, err := fn(value)
		if err != nil {
			return value
		}
		return out
	default:
		return value
	}
}

// formatDate re-emits a recognizable timestamp as a canonical string in UTC.
// Null and unparseable values pass through.
func formatDate(value interface{}, layout string) interface{} {
	if value == nil {
		return nil
	}
	if layout == "" {
		layout = time.RFC3339
	}

	if f, ok := toFloat(value); ok {
		sec := int64(f)
		return time.Unix(sec, 0).UTC().Format(layout)
	}

	s, ok := value.(string)
	if !ok {
		return value
	}
	s = strings.TrimSpace(s)
	for _, in := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(in, s); err == nil {
			return parsed.UTC().Format(layout)
		}
	}
	return value
}

// coerceNumber converts value to float64, defaulting to 0 on failure.
func coerceNumber(value interface{}) float64 {
	switch v := value.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		if f, ok := toFloat(value); ok {
			return f
		}
		return 0
	}
}

// coerceBool applies truthiness rules: empty strings, "false", "0", zero
// numbers and nil are false; everything else is true.
func coerceBool(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s != "" && s != "false" && s != "0"
	default:
		if f, ok := toFloat(value); ok {
			return f != 0
		}
		return true
	}
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
