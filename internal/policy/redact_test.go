package policy

import (
	"strings"
	"testing"
)

func TestRedactStringStripsBearerTokens(t *testing.T) {
	masked := RedactString("calling api with Authorization: Bearer sk-live-abc123def")
	if strings.Contains(masked, "sk-live-abc123def") {
		t.Fatalf("expected bearer token to be redacted, got %q", masked)
	}
	if !strings.Contains(masked, RedactionToken) {
		t.Fatalf("expected redaction token in %q", masked)
	}
}

func TestRedactStringStripsKeyValueCredentials(t *testing.T) {
	cases := []string{
		"api_key=sk-1234567890",
		"authtoken: 9f8e7d6c5b4a",
		"password=hunter2",
		"access_token=eyJhbGciOi",
	}
	for _, input := range cases {
		masked := RedactString(input)
		if masked != RedactionToken {
			t.Fatalf("expected %q fully redacted, got %q", input, masked)
		}
	}
}

func TestRedactStringStripsGovernmentIDs(t *testing.T) {
	masked := RedactString("requester ssn 123-45-6789 on file")
	if strings.Contains(masked, "123-45-6789") {
		t.Fatalf("expected ssn to be redacted, got %q", masked)
	}
}

func TestRedactStringStripsCardNumbers(t *testing.T) {
	masked := RedactString("paid with 4111 1111 1111 1111 yesterday")
	if strings.Contains(masked, "4111 1111 1111 1111") {
		t.Fatalf("expected card number to be redacted, got %q", masked)
	}
}

func TestRedactStringMasksEmailDomainOnly(t *testing.T) {
	masked := RedactString("contact alice.smith@example.com for details")
	if strings.Contains(masked, "example.com") {
		t.Fatalf("expected email domain to be masked, got %q", masked)
	}
	if !strings.Contains(masked, "alice.smith@") {
		t.Fatalf("expected local part to survive, got %q", masked)
	}
}

func TestRedactValueReplacesSensitiveKeysRegardlessOfValue(t *testing.T) {
	input := map[string]any{
		"api_key": "perfectly-innocuous-looking",
		"note":    "plain text",
		"nested": map[string]any{
			"password": "x",
			"items":    []any{"token=abc123secret"},
		},
	}

	redacted, ok := RedactValue(input).(map[string]any)
	if !ok {
		t.Fatalf("expected map result")
	}
	if redacted["api_key"] != RedactionToken {
		t.Fatalf("expected api_key replaced, got %v", redacted["api_key"])
	}
	nested := redacted["nested"].(map[string]any)
	if nested["password"] != RedactionToken {
		t.Fatalf("expected nested password replaced, got %v", nested["password"])
	}
	items := nested["items"].([]any)
	if items[0] != RedactionToken {
		t.Fatalf("expected nested array credential replaced, got %v", items[0])
	}
	if redacted["note"] != "plain text" {
		t.Fatalf("expected benign value untouched, got %v", redacted["note"])
	}
}

func TestRedactJSONWalksNestedStructures(t *testing.T) {
	payload := []byte(`{"requester":"bob@corp.example","details":{"secret":"s3cr3t","ids":["123-45-6789"]}}`)
	masked := string(RedactJSON(payload))

	if strings.Contains(masked, "corp.example") {
		t.Fatalf("expected email domain masked, got %s", masked)
	}
	if strings.Contains(masked, "s3cr3t") {
		t.Fatalf("expected secret field replaced, got %s", masked)
	}
	if strings.Contains(masked, "123-45-6789") {
		t.Fatalf("expected ssn replaced, got %s", masked)
	}
}
