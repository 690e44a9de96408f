package analysis

import (
	"fmt"
	"strings"
)

// Validate checks doc against the analysis schema. It short-circuits with
// field-missing errors if any top-level field is absent, then with type
// errors if any field is not an array; element-level violations are all
// accumulated rather than stopping at the first.
func Validate(doc Doc) (bool, []string) {
	var errs []string

	for _, c := range collections {
		if _, ok := doc[c.name]; !ok {
			errs = append(errs, fmt.Sprintf("Missing required field: '%s'", c.name))
		}
	}
	if len(errs) > 0 {
		return false, errs
	}

	for _, c := range collections {
		if _, ok := doc[c.name].([]any); !ok {
			errs = append(errs, fmt.Sprintf("Field '%s' must be an array, got %s", c.name, typeName(doc[c.name])))
		}
	}
	if len(errs) > 0 {
		return false, errs
	}

	for _, c := range collections {
		items := doc[c.name].([]any)
		for i, raw := range items {
			item, ok := raw.(map[string]any)
			if !ok {
				errs = append(errs, fmt.Sprintf("%s[%d] must be an object, got %s", c.name, i, typeName(raw)))
				continue
			}
			for _, sub := range c.required {
				value, present := item[sub]
				if !present {
					errs = append(errs, fmt.Sprintf("%s[%d] missing required subfield: '%s'", c.name, i, sub))
					continue
				}
				str, isString := value.(string)
				if !isString {
					errs = append(errs, fmt.Sprintf("%s[%d].%s must be a string, got %s", c.name, i, sub, typeName(value)))
					continue
				}
				if strings.TrimSpace(str) == "" {
					errs = append(errs, fmt.Sprintf("%s[%d].%s cannot be empty", c.name, i, sub))
				}
			}
		}
	}

	return len(errs) == 0, errs
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case float64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
