package analysis

import (
	"fmt"
	"strings"
)

// UnrepairableError reports that Repair could not bring a response into
// schema. It is terminal for the record: callers must not treat it as a
// transient service error.
type UnrepairableError struct {
	Errors []string
}

func (e *UnrepairableError) Error() string {
	return fmt.Sprintf("could not repair analysis JSON, remaining errors: %s", strings.Join(e.Errors, ", "))
}

// Repair normalizes common schema deviations in doc and returns a repaired
// copy: miscapitalized field names are remapped, missing fields become empty
// arrays, a bare object becomes a one-element array, null elements are
// dropped, and elements that fail the required-subfield check are dropped
// rather than patched. The result is re-validated; if it still fails, Repair
// returns an *UnrepairableError carrying the remaining error list.
func Repair(doc Doc) (Doc, error) {
	repaired := make(Doc, len(doc))
	for k, v := range doc {
		repaired[k] = v
	}

	// Remap known miscapitalized names onto the canonical lowercase ones.
	for _, c := range collections {
		title := strings.ToUpper(c.name[:1]) + c.name[1:]
		if v, ok := repaired[title]; ok {
			if _, exists := repaired[c.name]; !exists {
				repaired[c.name] = v
			}
			delete(repaired, title)
		}
	}

	for _, c := range collections {
		value, ok := repaired[c.name]
		if !ok {
			repaired[c.name] = []any{}
			continue
		}
		switch v := value.(type) {
		case []any:
			// already array-typed
		case map[string]any:
			repaired[c.name] = []any{v}
		default:
			repaired[c.name] = []any{}
		}
	}

	for _, c := range collections {
		items := repaired[c.name].([]any)
		kept := make([]any, 0, len(items))
		for _, raw := range items {
			if raw == nil {
				continue
			}
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if hasRequiredSubfields(item, c.required) {
				kept = append(kept, item)
			}
		}
		repaired[c.name] = kept
	}

	if ok, errs := Validate(repaired); !ok {
		return nil, &UnrepairableError{Errors: errs}
	}
	return repaired, nil
}

func hasRequiredSubfields(item map[string]any, required []string) bool {
	for _, sub := range required {
		str, ok := item[sub].(string)
		if !ok || strings.TrimSpace(str) == "" {
			return false
		}
	}
	return true
}
