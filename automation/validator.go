package automation

import (
	"reflect"
	"sort"
	"strings"
)

// ValidateWebhookPayload checks the parsed payload shape and returns every
// violation found, not just the first, so callers can report all problems at
// once. An empty slice means the payload is valid.
func ValidateWebhookPayload(p *WebhookPayload) []string {
	var problems []string

	if p == nil {
		return []string{"payload is empty"}
	}
	if p.Meta == nil {
		return []string{"meta object is required"}
	}

	if strings.TrimSpace(p.Meta.Action) == "" {
		problems = append(problems, "meta.action is required")
	}
	if strings.TrimSpace(p.Meta.Object) == "" {
		problems = append(problems, "meta.object is required")
	}
	if p.Meta.ObjectId() == "" {
		problems = append(problems, "meta.id is required")
	}
	if p.Meta.Timestamp == 0 {
		problems = append(problems, "meta.timestamp is required")
	}

	// Update events must carry the prior state so consumers can diff.
	if p.Meta.Action == "updated" && p.Previous == nil {
		problems = append(problems, "previous snapshot is required for updated events")
	}

	return problems
}

// ExtractChangedFields returns the sorted top-level keys whose values differ
// between the previous and current snapshots, including keys present on only
// one side.
func ExtractChangedFields(previous, current map[string]interface{}) []string {
	changed := map[string]bool{}

	for key, prevVal := range previous {
		curVal, ok := current[key]
		if !ok || !valuesEqual(prevVal, curVal) {
			changed[key] = true
		}
	}
	for key := range current {
		if _, ok := previous[key]; !ok {
			changed[key] = true
		}
	}

	fields := make([]string, 0, len(changed))
	for key := range changed {
		fields = append(fields, key)
	}
	sort.Strings(fields)
	return fields
}

// valuesEqual compares two decoded JSON values, normalizing numerics so that
// int, int64, float64 and json.Number representations of the same quantity
// compare equal.
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	if aok != bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}
