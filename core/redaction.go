package core

import "strings"

const RedactedValue = "[REDACTED]"

var sensitiveKeyParts = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"code_verifier",
	"credential",
	"cookie",
}

// RedactFields masks string values stored under credential-like keys and any
// value that looks like a bearer header. Flags such as has_refresh_token keep
// their boolean value.
func RedactFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		out[key] = redactValue(key, value)
	}
	return out
}

func redactValue(key string, value any) any {
	switch typed := value.(type) {
	case string:
		if isSensitiveKey(key) || strings.HasPrefix(strings.ToLower(strings.TrimSpace(typed)), "bearer ") {
			return RedactedValue
		}
		return typed
	case map[string]any:
		return RedactFields(typed)
	case map[string]string:
		out := make(map[string]any, len(typed))
		for nestedKey, nestedValue := range typed {
			out[nestedKey] = redactValue(nestedKey, nestedValue)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactValue(key, typed[i])
		}
		return out
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || key == "request_id" {
		return false
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}
