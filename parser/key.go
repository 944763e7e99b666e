package parser

import "strings"

// Reserved marker keys inside a query object.
const (
	keyParams       = "()"
	keyCollection   = "[]"
	keySourceValue  = "<="
	keyParallel     = "||"
	keyTargetMarker = "=>"
	optionalSuffix  = "?"
)

// parsedKey is the decomposition of a user key "source[?][=>[target]]".
type parsedKey struct {
	sourceKey  string
	targetKey  string
	isOptional bool
}

// parseKey splits a user key into its source name, target name, and optional
// flag. With no "=>" the target equals the source; "=>", with an empty
// target, marks the inline form.
func parseKey(key string) (parsedKey, error) {
	parts := strings.Split(key, keyTargetMarker)
	if len(parts) > 2 {
		return parsedKey{}, parseErrorf("a key cannot contain more than one '=>': %q", key)
	}

	source, optional := strings.CutSuffix(parts[0], optionalSuffix)
	target := source
	if len(parts) == 2 {
		target = parts[1]
	}
	return parsedKey{sourceKey: source, targetKey: target, isOptional: optional}, nil
}
