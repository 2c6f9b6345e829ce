// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON returns the JSON object embedded in a model response,
// tolerating markdown code fences and prose around the braces. Models asked
// for bare JSON still wrap it often enough that callers cannot rely on a
// clean body.
func ExtractJSON(text string) (string, error) {
	cleaned := strings.TrimSpace(text)

	if idx := strings.Index(cleaned, "```json"); idx >= 0 {
		cleaned = cleaned[idx+len("```json"):]
		if end := strings.Index(cleaned, "```"); end >= 0 {
			cleaned = cleaned[:end]
		}
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		if end := strings.Index(cleaned, "```"); end >= 0 {
			cleaned = cleaned[:end]
		}
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	cleaned = cleaned[start : end+1]

	if !json.Valid([]byte(cleaned)) {
		return "", fmt.Errorf("response JSON does not parse")
	}
	return cleaned, nil
}

// AfterPrefix returns the response text following prefix, trimmed. When the
// prefix is absent the whole trimmed response is returned; models do not
// always echo the requested format.
func AfterPrefix(response, prefix string) string {
	if _, after, found := strings.Cut(response, prefix); found {
		return strings.Trim(strings.TrimSpace(after), `"`)
	}
	return strings.TrimSpace(response)
}
