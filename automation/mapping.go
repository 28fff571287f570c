package automation

import (
	"strings"

	"github.com/mmdatafocus/automation_backend/models"
)

type MappingDirection string

const (
	DirectionToExternal   MappingDirection = "to_external"
	DirectionFromExternal MappingDirection = "from_external"
)

// SystemInternal names our own schema in a FieldMapping's source/target
// system columns. Anything else is an external system.
const SystemInternal = "internal"

// ApplyMappings builds a new record with target fields populated from source
// fields resolved by dot-path. Mappings whose declared systems do not match
// the requested direction are skipped; a missing source field or failing
// transformation degrades to skipping or passing the raw value through, never
// aborting the pass.
func ApplyMappings(record map[string]interface{}, mappings []models.FieldMapping, direction MappingDirection, transforms *TransformRegistry) map[string]interface{} {
	out := map[string]interface{}{}

	for _, m := range mappings {
		if !m.IsActive {
			continue
		}
		if !mappingMatchesDirection(m, direction) {
			continue
		}

		value, ok := resolvePath(record, m.SourceField)
		if !ok {
			continue
		}

		if t := DecodeTransformation(m.TransformationJSON); t != nil {
			value = transforms.Apply(t, value)
		}

		assignPath(out, m.TargetField, value)
	}

	return out
}

func mappingMatchesDirection(m models.FieldMapping, direction MappingDirection) bool {
	srcInternal := strings.EqualFold(m.SourceSystem, SystemInternal)
	dstInternal := strings.EqualFold(m.TargetSystem, SystemInternal)
	switch direction {
	case DirectionToExternal:
		return srcInternal && !dstInternal
	case DirectionFromExternal:
		return !srcInternal && dstInternal
	default:
		return false
	}
}

// resolvePath walks a dot-path through nested maps.
func resolvePath(record map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var current interface{} = record
	for _, part := range parts {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// assignPath writes value at a dot-path, creating intermediate containers as
// needed. A non-map intermediate is replaced rather than descended into.
func assignPath(record map[string]interface{}, path string, value interface{}) {
	if path == "" {
		return
	}
	parts := strings.Split(path, ".")
	node := record
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			node[part] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = value
}
