package util

import (
	"encoding/json"
	"strings"
)

// RepairJSON coerces model output into JSON where it can. It strips markdown
// fences and trims anything outside the outermost object or array. The second
// result reports whether the input was changed.
func RepairJSON(s string) (string, bool) {
	original := s
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) >= 6 {
		s = strings.TrimSpace(s[3 : len(s)-3])
		if strings.HasPrefix(strings.ToLower(s), "json") {
			s = strings.TrimSpace(s[4:])
		}
	}

	start := strings.IndexAny(s, "{[")
	if start >= 0 {
		s = s[start:]
		closer := byte('}')
		if s[0] == '[' {
			closer = ']'
		}
		if end := strings.LastIndexByte(s, closer); end >= 0 {
			s = s[:end+1]
		}
	}
	return s, s != original
}

// ToolArguments returns the JSON object form of tool call arguments as they
// are replayed to a vendor. Empty input becomes {} and input that cannot be
// repaired into a JSON object also becomes {}.
func ToolArguments(raw string) json.RawMessage {
	if strings.TrimSpace(raw) == "" {
		return json.RawMessage(`{}`)
	}
	if isObject(raw) {
		return json.RawMessage(raw)
	}
	if fixed, _ := RepairJSON(raw); isObject(fixed) {
		return json.RawMessage(fixed)
	}
	return json.RawMessage(`{}`)
}

func isObject(s string) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &m) == nil && m != nil
}
