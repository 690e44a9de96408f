package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON object out of a model response. It tries the
// whole text first, then the contents of a ```json fence, then any ```
// fence. Prose around the fences is tolerated.
func ExtractJSON(responseText string) (Doc, error) {
	text := strings.TrimSpace(responseText)

	if doc, err := decodeObject(text); err == nil {
		return doc, nil
	}

	for _, marker := range []string{"```json", "```"} {
		start := strings.Index(text, marker)
		if start < 0 {
			continue
		}
		rest := text[start+len(marker):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		if doc, err := decodeObject(strings.TrimSpace(rest[:end])); err == nil {
			return doc, nil
		}
	}

	return nil, fmt.Errorf("no JSON object found in response")
}

func decodeObject(s string) (Doc, error) {
	var doc Doc
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("response is JSON null")
	}
	return doc, nil
}
