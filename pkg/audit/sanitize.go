package audit

import "strings"

// sensitiveKeys are redacted from payload and meta maps before persistence.
var sensitiveKeys = map[string]struct{}{
	"password":           {},
	"password_hash":      {},
	"refresh_token":      {},
	"refresh_token_hash": {},
	"access_token":       {},
	"token":              {},
	"secret":             {},
}

// Sanitize returns a deep copy of v with sensitive map keys replaced by
// "***". Lists are traversed; scalar values pass through unchanged.
func Sanitize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		clean := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if _, sensitive := sensitiveKeys[strings.ToLower(k)]; sensitive {
				clean[k] = "***"
			} else {
				clean[k] = Sanitize(inner)
			}
		}
		return clean
	case []interface{}:
		clean := make([]interface{}, len(val))
		for i, inner := range val {
			clean[i] = Sanitize(inner)
		}
		return clean
	default:
		return v
	}
}

func sanitizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	return Sanitize(m).(map[string]interface{})
}
