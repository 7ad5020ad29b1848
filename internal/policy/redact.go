package policy

import (
	"encoding/json"
	"regexp"
	"strings"
)

// RedactionToken replaces every matched secret, credential, or identifier.
const RedactionToken = "[redacted]"

var (
	bearerPattern   = regexp.MustCompile(`(?i)(authorization\s*:\s*)?bearer\s+[a-z0-9._~+/=\-]+`)
	keyValuePattern = regexp.MustCompile(`(?i)\b(api[_-]?key|auth[_-]?token|access[_-]?token|token|secret|credential)\s*[:=]\s*[^\s,;"']+`)
	passwordPattern = regexp.MustCompile(`(?i)\b(password|passwd|pwd)\s*[:=]\s*[^\s,;"']+`)
	ssnPattern      = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardPattern     = regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)
	emailPattern    = regexp.MustCompile(`(?i)\b([a-z0-9._%+\-]+)@[a-z0-9.\-]+\.[a-z]{2,}\b`)
)

var sensitiveKeys = map[string]struct{}{
	"api_key":       {},
	"apikey":        {},
	"password":      {},
	"passwd":        {},
	"secret":        {},
	"token":         {},
	"authtoken":     {},
	"auth_token":    {},
	"access_token":  {},
	"authorization": {},
	"credential":    {},
}

// SensitiveKey reports whether a field name is always fully replaced,
// regardless of whether its value matches any pattern.
func SensitiveKey(name string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// RedactString strips credential, password, government-id, and card patterns
// from the value, then partially masks emails (local part kept, domain
// masked). Pattern order matters: credential matches run before the email
// pass so token-bearing strings never survive as "emails".
func RedactString(value string) string {
	masked := bearerPattern.ReplaceAllString(value, RedactionToken)
	masked = keyValuePattern.ReplaceAllString(masked, RedactionToken)
	masked = passwordPattern.ReplaceAllString(masked, RedactionToken)
	masked = ssnPattern.ReplaceAllString(masked, RedactionToken)
	masked = cardPattern.ReplaceAllString(masked, RedactionToken)
	masked = emailPattern.ReplaceAllString(masked, "$1@"+RedactionToken)
	return masked
}

// RedactValue walks nested maps and slices, replacing values under sensitive
// key names outright and pattern-scrubbing every string it finds.
func RedactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		cloned := make(map[string]any, len(typed))
		for key, child := range typed {
			if SensitiveKey(key) {
				cloned[key] = RedactionToken
				continue
			}
			cloned[key] = RedactValue(child)
		}
		return cloned
	case []any:
		cloned := make([]any, 0, len(typed))
		for _, child := range typed {
			cloned = append(cloned, RedactValue(child))
		}
		return cloned
	case string:
		return RedactString(typed)
	default:
		return value
	}
}

// RedactJSON sanitizes an opaque JSON document. Payloads that do not parse
// are scrubbed as plain text rather than passed through.
func RedactJSON(payload json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return append(json.RawMessage(nil), payload...)
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return json.RawMessage(RedactString(string(payload)))
	}

	sanitized := RedactValue(decoded)
	encoded, err := json.Marshal(sanitized)
	if err != nil {
		return append(json.RawMessage(nil), payload...)
	}
	return encoded
}
