// Package analysis validates and repairs structured output from the text
// analysis service against the five-collection schema.
package analysis

// Doc is a decoded analysis response. It stays schemaless because repair has
// to handle responses that deviate from the schema before they can be typed.
type Doc = map[string]any

// collection describes one required top-level array and the string subfields
// each of its elements must carry.
type collection struct {
	name     string
	required []string
	optional []string
}

// Collections in schema order. The uncertainty entry carries one optional
// subfield (author_statement) that validation ignores.
var collections = []collection{
	{name: "claims", required: []string{"claim", "context"}},
	{name: "metaphors", required: []string{"metaphor", "explanation"}},
	{name: "examples", required: []string{"example", "context"}},
	{name: "uncertainties", required: []string{"topic", "nature_of_uncertainty"}, optional: []string{"author_statement"}},
	{name: "conflicts", required: []string{"topic", "description"}},
}

// FieldNames returns the five required top-level field names in order.
func FieldNames() []string {
	names := make([]string, len(collections))
	for i, c := range collections {
		names[i] = c.name
	}
	return names
}

// Stats returns the number of items in each collection. Missing or
// non-array fields count as zero.
func Stats(doc Doc) map[string]int {
	stats := make(map[string]int, len(collections))
	for _, c := range collections {
		if arr, ok := doc[c.name].([]any); ok {
			stats[c.name] = len(arr)
		} else {
			stats[c.name] = 0
		}
	}
	return stats
}

// Empty returns a valid Doc with all five collections empty.
func Empty() Doc {
	doc := make(Doc, len(collections))
	for _, c := range collections {
		doc[c.name] = []any{}
	}
	return doc
}
