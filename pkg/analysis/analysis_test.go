package analysis

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func mustDecode(t *testing.T, raw string) Doc {
	t.Helper()
	var doc Doc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("decode test doc: %v", err)
	}
	return doc
}

func TestValidateAcceptsEmptyDoc(t *testing.T) {
	ok, errs := Validate(Empty())
	if !ok {
		t.Fatalf("empty doc should be valid, got errors: %v", errs)
	}
}

func TestValidateAcceptsFullDoc(t *testing.T) {
	doc := mustDecode(t, `{
		"claims": [{"claim": "rates rose", "context": "fed policy"}],
		"metaphors": [{"metaphor": "soft landing", "explanation": "slowing without recession"}],
		"examples": [{"example": "1994 cycle", "context": "historical precedent"}],
		"uncertainties": [{"topic": "timing", "nature_of_uncertainty": "data lag", "author_statement": "hard to say"}],
		"conflicts": [{"topic": "inflation", "description": "camps disagree on cause"}]
	}`)
	ok, errs := Validate(doc)
	if !ok {
		t.Fatalf("full doc should be valid, got errors: %v", errs)
	}
}

func TestValidateMissingFieldsShortCircuit(t *testing.T) {
	doc := mustDecode(t, `{"claims": "not an array"}`)
	ok, errs := Validate(doc)
	if ok {
		t.Fatal("expected invalid")
	}
	// Only missing-field errors should be reported, not the type error on
	// claims.
	if len(errs) != 4 {
		t.Fatalf("expected 4 missing-field errors, got %d: %v", len(errs), errs)
	}
	for _, e := range errs {
		if !strings.HasPrefix(e, "Missing required field:") {
			t.Errorf("unexpected error in missing-field phase: %q", e)
		}
	}
}

func TestValidateMissingSubfield(t *testing.T) {
	doc := Empty()
	doc["claims"] = []any{map[string]any{"claim": "x"}}
	ok, errs := Validate(doc)
	if ok {
		t.Fatal("expected invalid")
	}
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
	want := "claims[0] missing required subfield: 'context'"
	if errs[0] != want {
		t.Errorf("error = %q, want %q", errs[0], want)
	}
}

func TestValidateElementErrors(t *testing.T) {
	doc := Empty()
	doc["metaphors"] = []any{"bare string"}
	doc["conflicts"] = []any{map[string]any{"topic": "x", "description": "   "}}
	doc["uncertainties"] = []any{map[string]any{"topic": "y", "nature_of_uncertainty": float64(3)}}
	ok, errs := Validate(doc)
	if ok {
		t.Fatal("expected invalid")
	}
	wants := []string{
		"metaphors[0] must be an object, got string",
		"conflicts[0].description cannot be empty",
		"uncertainties[0].nature_of_uncertainty must be a string, got number",
	}
	for _, want := range wants {
		found := false
		for _, e := range errs {
			if e == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing error %q in %v", want, errs)
		}
	}
}

func TestRepairDropsIncompleteElements(t *testing.T) {
	doc := Empty()
	doc["claims"] = []any{map[string]any{"claim": "x"}}
	repaired, err := Repair(doc)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if got := len(repaired["claims"].([]any)); got != 0 {
		t.Errorf("incomplete claim should be dropped, got %d elements", got)
	}
	if ok, errs := Validate(repaired); !ok {
		t.Errorf("repaired doc invalid: %v", errs)
	}
}

func TestRepairFillsMissingFields(t *testing.T) {
	repaired, err := Repair(Doc{})
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	for _, name := range FieldNames() {
		arr, ok := repaired[name].([]any)
		if !ok {
			t.Fatalf("field %s is %T, want array", name, repaired[name])
		}
		if len(arr) != 0 {
			t.Errorf("field %s should be empty, has %d elements", name, len(arr))
		}
	}
}

func TestRepairRemapsCapitalizedNames(t *testing.T) {
	doc := mustDecode(t, `{
		"Claims": [{"claim": "a", "context": "b"}],
		"Metaphors": [],
		"Examples": [],
		"Uncertainties": [],
		"Conflicts": []
	}`)
	repaired, err := Repair(doc)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	claims := repaired["claims"].([]any)
	if len(claims) != 1 {
		t.Fatalf("expected remapped claim to survive, got %d", len(claims))
	}
	if _, stillThere := repaired["Claims"]; stillThere {
		t.Error("capitalized key should be removed after remap")
	}
}

func TestRepairCoercesBareObject(t *testing.T) {
	doc := Empty()
	doc["examples"] = map[string]any{"example": "one", "context": "two"}
	repaired, err := Repair(doc)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	examples := repaired["examples"].([]any)
	if len(examples) != 1 {
		t.Fatalf("bare object should become one-element array, got %d", len(examples))
	}
}

func TestRepairDropsNullAndBadElements(t *testing.T) {
	doc := Empty()
	doc["conflicts"] = []any{
		nil,
		"junk",
		map[string]any{"topic": "t", "description": "d"},
		map[string]any{"topic": "", "description": "d"},
	}
	repaired, err := Repair(doc)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	conflicts := repaired["conflicts"].([]any)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 surviving conflict, got %d: %v", len(conflicts), conflicts)
	}
}

func TestRepairNeverReturnsInvalid(t *testing.T) {
	inputs := []Doc{
		{},
		{"claims": "junk", "metaphors": float64(5)},
		{"claims": []any{nil, nil}, "uncertainties": []any{map[string]any{"topic": "x"}}},
	}
	for i, in := range inputs {
		repaired, err := Repair(in)
		if err != nil {
			var unrep *UnrepairableError
			if !errors.As(err, &unrep) {
				t.Errorf("input %d: error is %T, want *UnrepairableError", i, err)
			}
			continue
		}
		if ok, errs := Validate(repaired); !ok {
			t.Errorf("input %d: Repair returned invalid doc: %v", i, errs)
		}
	}
}

func TestExtractJSONDirect(t *testing.T) {
	doc, err := ExtractJSON(`{"claims": []}`)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if _, ok := doc["claims"]; !ok {
		t.Error("claims field missing")
	}
}

func TestExtractJSONFenced(t *testing.T) {
	response := "Here is the analysis:\n```json\n{\"claims\": [], \"metaphors\": []}\n```\nLet me know if you need more."
	doc, err := ExtractJSON(response)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	if len(doc) != 2 {
		t.Errorf("expected 2 fields, got %d", len(doc))
	}
}

func TestExtractJSONPlainFence(t *testing.T) {
	response := "```\n{\"conflicts\": []}\n```"
	if _, err := ExtractJSON(response); err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	if _, err := ExtractJSON("I could not analyze this article."); err == nil {
		t.Fatal("expected error for prose-only response")
	}
}

func TestStats(t *testing.T) {
	doc := Empty()
	doc["claims"] = []any{map[string]any{"claim": "a", "context": "b"}}
	stats := Stats(doc)
	if stats["claims"] != 1 || stats["metaphors"] != 0 {
		t.Errorf("unexpected stats: %v", stats)
	}
}
