package automation

import (
	"reflect"
	"testing"
)

func validMeta() *WebhookMeta {
	return &WebhookMeta{
		Action:    "added",
		Object:    "person",
		Id:        "42",
		Timestamp: 1700000000,
	}
}

func TestValidateWebhookPayload_Valid(t *testing.T) {
	p := &WebhookPayload{Meta: validMeta(), Current: map[string]interface{}{"name": "Aye"}}
	if problems := ValidateWebhookPayload(p); len(problems) != 0 {
		t.Fatalf("expected no problems, got %v", problems)
	}
}

func TestValidateWebhookPayload_MissingMeta(t *testing.T) {
	problems := ValidateWebhookPayload(&WebhookPayload{})
	if len(problems) != 1 || problems[0] != "meta object is required" {
		t.Fatalf("unexpected problems: %v", problems)
	}
}

func TestValidateWebhookPayload_CollectsAllViolations(t *testing.T) {
	p := &WebhookPayload{Meta: &WebhookMeta{}}
	problems := ValidateWebhookPayload(p)
	want := []string{
		"meta.action is required",
		"meta.object is required",
		"meta.id is required",
		"meta.timestamp is required",
	}
	if !reflect.DeepEqual(problems, want) {
		t.Fatalf("expected all violations collected, got %v", problems)
	}
}

func TestValidateWebhookPayload_UpdatedRequiresPrevious(t *testing.T) {
	meta := validMeta()
	meta.Action = "updated"
	p := &WebhookPayload{Meta: meta, Current: map[string]interface{}{"name": "Aye"}}
	problems := ValidateWebhookPayload(p)
	if len(problems) != 1 || problems[0] != "previous snapshot is required for updated events" {
		t.Fatalf("unexpected problems: %v", problems)
	}

	p.Previous = map[string]interface{}{"name": "Mya"}
	if problems := ValidateWebhookPayload(p); len(problems) != 0 {
		t.Fatalf("expected valid once previous is present, got %v", problems)
	}
}

func TestExtractChangedFields_PersonUpdate(t *testing.T) {
	previous := map[string]interface{}{
		"name":  "Mya Mya",
		"email": "mya@example.com",
		"phone": "0912345",
	}
	current := map[string]interface{}{
		"name":  "Mya Thida",
		"email": "mya@example.com",
		"phone": "0912345",
	}
	changed := ExtractChangedFields(previous, current)
	if !reflect.DeepEqual(changed, []string{"name"}) {
		t.Fatalf("expected only name to change, got %v", changed)
	}
}

func TestExtractChangedFields_AddedAndRemovedKeys(t *testing.T) {
	previous := map[string]interface{}{"a": 1, "b": 2}
	current := map[string]interface{}{"b": 2, "c": 3}
	changed := ExtractChangedFields(previous, current)
	if !reflect.DeepEqual(changed, []string{"a", "c"}) {
		t.Fatalf("expected sorted [a c], got %v", changed)
	}
}

func TestExtractChangedFields_NumericNormalization(t *testing.T) {
	// 100 decoded as float64 on one side, int on the other, is not a change.
	previous := map[string]interface{}{"amount": 100}
	current := map[string]interface{}{"amount": float64(100)}
	if changed := ExtractChangedFields(previous, current); len(changed) != 0 {
		t.Fatalf("expected numeric representations to compare equal, got %v", changed)
	}
}
