package llmclient

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")
	objectMatchRe = regexp.MustCompile(`(?s)\{\s*"conditions"\s*:.*\}`)
	nanTokenRe    = regexp.MustCompile(`\b(?:NaN|nan)\b`)
)

// conditionsEnvelope is the documented top-level shape: {"conditions": [...]}.
type conditionsEnvelope struct {
	Conditions []map[string]any `json:"conditions"`
}

// ParseConditions applies the tolerant extraction strategy: direct parse,
// then fenced code block, then a greedy object match, then an empty list.
// NaN/nan tokens are rewritten to null before every parse attempt, since the
// provider is documented to sometimes emit literal NaN for missing floats.
func ParseConditions(raw string) []map[string]any {
	sanitized := sanitizeNaN(raw)

	if conditions, ok := tryParse(sanitized); ok {
		return conditions
	}

	if m := fencedBlockRe.FindStringSubmatch(sanitized); m != nil {
		if conditions, ok := tryParse(m[1]); ok {
			return conditions
		}
	}

	if m := objectMatchRe.FindString(sanitized); m != "" {
		if conditions, ok := tryParse(m); ok {
			return conditions
		}
	}

	return []map[string]any{}
}

func tryParse(s string) ([]map[string]any, bool) {
	var env conditionsEnvelope
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &env); err != nil {
		return nil, false
	}
	if env.Conditions == nil {
		return []map[string]any{}, true
	}
	return env.Conditions, true
}

func sanitizeNaN(s string) string {
	return nanTokenRe.ReplaceAllString(s, "null")
}
