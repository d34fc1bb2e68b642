// Package redact blanks personal information out of entity snapshots before
// they are written to the permanent activity log. Field structure is
// preserved so tombstones stay shaped like the row they describe; only the
// values are replaced.
package redact

import (
	"encoding/json"

	"opsportal/internal/entity"
)

// Marker replaces every redacted value.
const Marker = "[REDACTED]"

// Snapshot returns a copy of snap with the descriptor's PII fields blanked.
// Top-level PII fields are replaced wholesale; nested contact objects are
// walked and every scalar inside them is replaced, keeping the keys intact.
// The input map is not modified.
func Snapshot(snap map[string]any, d entity.Descriptor) map[string]any {
	if snap == nil {
		return nil
	}

	out := make(map[string]any, len(snap))
	for k, v := range snap {
		out[k] = v
	}

	for _, field := range d.PIIFields {
		if v, ok := out[field]; ok && v != nil {
			out[field] = Marker
		}
	}
	for _, field := range d.NestedContacts {
		if v, ok := out[field]; ok && v != nil {
			out[field] = scrubContact(v)
		}
	}
	return out
}

// scrubContact handles the two shapes a contact column arrives in: decoded
// JSON when it came off a tombstone read, or a raw JSON string when it came
// straight off a row scan. An unparseable value is blanked outright.
func scrubContact(v any) any {
	raw, ok := v.(string)
	if !ok {
		return scrub(v)
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Marker
	}
	return scrub(parsed)
}

func scrub(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = scrub(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = scrub(inner)
		}
		return out
	case nil:
		return nil
	default:
		return Marker
	}
}
