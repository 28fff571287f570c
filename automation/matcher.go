package automation

// MatchesConditions reports whether eventData satisfies an automation's
// trigger conditions. Empty or absent conditions always match. Otherwise
// every condition key must have an exactly-equal counterpart in the event
// data (logical AND). Flat equality only; richer comparators are an
// extension point, not implemented. Never performs I/O: this runs once per
// (event, automation) pair.
func MatchesConditions(eventData, conditions map[string]interface{}) bool {
	if len(conditions) == 0 {
		return true
	}
	for key, expected := range conditions {
		actual, ok := eventData[key]
		if !ok {
			return false
		}
		if !valuesEqual(actual, expected) {
			return false
		}
	}
	return true
}
