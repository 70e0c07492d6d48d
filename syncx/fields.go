// ABOUTME: Small accessor helpers for Factory implementations decoding the
// ABOUTME: field map materialize hands them; JSON numbers decode as float64.
package syncx

// FieldString reads a string field, defaulting to "".
func FieldString(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

// FieldInt64 reads an integer-ish field regardless of whether it decoded
// as json.Number's float64, a plain int, or an int64.
func FieldInt64(fields map[string]any, key string) int64 {
	switch v := fields[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// FieldOptionalInt64 reads an integer-ish field, returning ok=false when
// absent or nil — used for synced_at which must distinguish unset.
func FieldOptionalInt64(fields map[string]any, key string) (int64, bool) {
	v, ok := fields[key]
	if !ok || v == nil {
		return 0, false
	}
	return FieldInt64(fields, key), true
}

// FieldBool reads a boolean field, defaulting to false.
func FieldBool(fields map[string]any, key string) bool {
	b, _ := fields[key].(bool)
	return b
}

// FieldMetadata reads the metadata bag, defaulting to an empty map.
func FieldMetadata(fields map[string]any, key string) Metadata {
	m, ok := fields[key].(map[string]any)
	if !ok {
		return Metadata{}
	}
	return Metadata(m)
}
