package automation

import (
	"errors"
	"testing"
)

func applyKind(t *testing.T, kind TransformKind, value interface{}) interface{} {
	t.Helper()
	return NewTransformRegistry().Apply(&Transformation{Kind: kind}, value)
}

func TestApply_StringTransforms(t *testing.T) {
	if got := applyKind(t, TransformUppercase, "hello"); got != "HELLO" {
		t.Fatalf("uppercase: got %v", got)
	}
	if got := applyKind(t, TransformLowercase, "HeLLo"); got != "hello" {
		t.Fatalf("lowercase: got %v", got)
	}
	if got := applyKind(t, TransformTrim, "  padded  "); got != "padded" {
		t.Fatalf("trim: got %v", got)
	}
	// Non-string inputs pass through untouched.
	if got := applyKind(t, TransformUppercase, 42); got != 42 {
		t.Fatalf("uppercase on int: got %v", got)
	}
}

func TestApply_DateFormat(t *testing.T) {
	r := NewTransformRegistry()

	got := r.Apply(&Transformation{Kind: TransformDateFormat, Format: "2006-01-02"}, "2023-11-14T22:13:20Z")
	if got != "2023-11-14" {
		t.Fatalf("date_format from RFC3339: got %v", got)
	}

	got = r.Apply(&Transformation{Kind: TransformDateFormat}, float64(1700000000))
	if got != "2023-11-14T22:13:20Z" {
		t.Fatalf("date_format from unix seconds: got %v", got)
	}

	// Unparseable input degrades to the original value.
	got = r.Apply(&Transformation{Kind: TransformDateFormat}, "not a date")
	if got != "not a date" {
		t.Fatalf("date_format on garbage: got %v", got)
	}
	if got := r.Apply(&Transformation{Kind: TransformDateFormat}, nil); got != nil {
		t.Fatalf("date_format on nil: got %v", got)
	}
}

func TestApply_NumberCoercion(t *testing.T) {
	if got := applyKind(t, TransformNumber, "12.50"); got != 12.5 {
		t.Fatalf("number from string: got %v", got)
	}
	if got := applyKind(t, TransformNumber, true); got != float64(1) {
		t.Fatalf("number from bool: got %v", got)
	}
	if got := applyKind(t, TransformNumber, "not a number"); got != float64(0) {
		t.Fatalf("number from garbage: got %v", got)
	}
}

func TestApply_BooleanCoercion(t *testing.T) {
	falsy := []interface{}{nil, false, "", "false", "0", 0, float64(0)}
	for _, v := range falsy {
		if got := applyKind(t, TransformBoolean, v); got != false {
			t.Fatalf("boolean(%v): expected false, got %v", v, got)
		}
	}
	truthy := []interface{}{true, "yes", "true", 1, float64(0.5)}
	for _, v := range truthy {
		if got := applyKind(t, TransformBoolean, v); got != true {
			t.Fatalf("boolean(%v): expected true, got %v", v, got)
		}
	}
}

func TestApply_JSONRoundTrip(t *testing.T) {
	parsed := applyKind(t, TransformJSONParse, `{"a":1}`)
	m, ok := parsed.(map[string]interface{})
	if !ok || m["a"] != float64(1) {
		t.Fatalf("json_parse: got %v", parsed)
	}

	if got := applyKind(t, TransformJSONStringify, map[string]interface{}{"a": 1}); got != `{"a":1}` {
		t.Fatalf("json_stringify: got %v", got)
	}

	// Invalid JSON passes through.
	if got := applyKind(t, TransformJSONParse, "{broken"); got != "{broken" {
		t.Fatalf("json_parse on garbage: got %v", got)
	}
}

func TestApply_CustomTransform(t *testing.T) {
	r := NewTransformRegistry()
	r.Register("double", func(value interface{}) (interface{}, error) {
		f, ok := toFloat(value)
		if !ok {
			return nil, errors.New("not numeric")
		}
		return f * 2, nil
	})

	got := r.Apply(&Transformation{Kind: TransformCustom, Name: "double"}, float64(21))
	if got != float64(42) {
		t.Fatalf("custom double: got %v", got)
	}

	// Unregistered name falls back to the untransformed value.
	got = r.Apply(&Transformation{Kind: TransformCustom, Name: "missing"}, "raw")
	if got != "raw" {
		t.Fatalf("custom missing: got %v", got)
	}

	// A transform error also falls back.
	got = r.Apply(&Transformation{Kind: TransformCustom, Name: "double"}, "not numeric")
	if got != "not numeric" {
		t.Fatalf("custom error fallback: got %v", got)
	}
}

func TestDecodeTransformation(t *testing.T) {
	if got := DecodeTransformation(nil); got != nil {
		t.Fatalf("expected nil for empty raw")
	}
	if got := DecodeTransformation([]byte(`{"kind":""}`)); got != nil {
		t.Fatalf("expected nil for missing kind")
	}
	got := DecodeTransformation([]byte(`{"kind":"date_format","format":"2006-01-02"}`))
	if got == nil || got.Kind != TransformDateFormat || got.Format != "2006-01-02" {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}
