package segment

import (
	"strings"
	"testing"
)

func longPara(marker string) string {
	return marker + " " + strings.Repeat("filler text ", 12)
}

func TestSegment_GroupsParagraphsUnderHeadings(t *testing.T) {
	text := strings.Join([]string{
		"Introduction:",
		longPara("first body"),
		"BACKGROUND",
		longPara("second body"),
		longPara("third body"),
	}, "\n\n")

	sections := Segment(text, 0)
	if len(sections) != 2 {
		t.Fatalf("Segment() returned %d sections, want 2", len(sections))
	}

	if sections[0].Heading != "Introduction:" {
		t.Errorf("sections[0].Heading = %q", sections[0].Heading)
	}
	if !strings.Contains(sections[0].Body, "first body") {
		t.Errorf("sections[0].Body = %q", sections[0].Body)
	}

	if sections[1].Heading != "BACKGROUND" {
		t.Errorf("sections[1].Heading = %q", sections[1].Heading)
	}
	if !strings.Contains(sections[1].Body, "second body") || !strings.Contains(sections[1].Body, "third body") {
		t.Errorf("consecutive paragraphs not accumulated: %q", sections[1].Body)
	}
}

func TestSegment_TextBeforeFirstHeadingHasNoHeading(t *testing.T) {
	text := longPara("preamble") + "\n\nSummary:\n\n" + longPara("afterwards")

	sections := Segment(text, 0)
	if len(sections) != 2 {
		t.Fatalf("Segment() returned %d sections, want 2", len(sections))
	}
	if sections[0].Heading != "" {
		t.Errorf("preamble heading = %q, want empty", sections[0].Heading)
	}
}

func TestSegment_NeverReturnsEmpty(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty input", ""},
		{"whitespace only", "   \n\n   "},
		{"all sections too short", "Heading:\n\ntiny\n\nAnother:\n\nalso tiny"},
		{"single short paragraph", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sections := Segment(tt.text, 100)
			if len(sections) != 1 {
				t.Fatalf("Segment(%q) returned %d sections, want 1 fallback section", tt.text, len(sections))
			}
			if sections[0].Heading != "" {
				t.Errorf("fallback section heading = %q, want empty", sections[0].Heading)
			}
			if sections[0].Body != tt.text {
				t.Errorf("fallback section lost content: %q != %q", sections[0].Body, tt.text)
			}
		})
	}
}

func TestSegment_DropsShortSections(t *testing.T) {
	text := strings.Join([]string{
		"Long Part:",
		longPara("keep me"),
		"Short Part:",
		"tiny",
	}, "\n\n")

	sections := Segment(text, 100)
	if len(sections) != 1 {
		t.Fatalf("Segment() returned %d sections, want 1", len(sections))
	}
	if sections[0].Heading != "Long Part:" {
		t.Errorf("surviving section heading = %q", sections[0].Heading)
	}
}

func TestIsHeading(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Introduction:", true},
		{"SECTION TITLE", true},
		{"# Markdown Heading", true},
		{"1. Numbered Section", true},
		{"IV. Roman Numeral Section", true},
		{"Conclusion:", true},
		{"A plain sentence of body text.", false},
		{"THIS ALL CAPS RUN HAS FAR TOO MANY WORDS TO BE A SECTION TITLE BY OUR RULE", false},
		{strings.Repeat("Too long to be a heading even with a colon at the end ", 3) + ":", false},
	}
	for _, tt := range tests {
		t.Run(tt.text[:min(len(tt.text), 30)], func(t *testing.T) {
			if got := isHeading(tt.text); got != tt.want {
				t.Errorf("isHeading(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestExcerpt_ShortTextUnchanged(t *testing.T) {
	if got := Excerpt("short text", 300); got != "short text" {
		t.Errorf("Excerpt() = %q, want input unchanged", got)
	}
}

func TestExcerpt_CutsAtSentenceTerminator(t *testing.T) {
	// Period at offset 290 with maxLength 300: the cut point is past 70% of
	// the target, so the excerpt ends exactly at offset 291, period included.
	text := strings.Repeat("a", 290) + "." + strings.Repeat("b", 209)
	if len(text) != 500 {
		t.Fatalf("fixture length = %d, want 500", len(text))
	}

	got := Excerpt(text, 300)
	if len(got) != 291 {
		t.Errorf("Excerpt() length = %d, want 291", len(got))
	}
	if !strings.HasSuffix(got, ".") {
		t.Errorf("Excerpt() = %q..., want it to end with the period", got[len(got)-5:])
	}
}

func TestExcerpt_EarlyTerminatorFallsBackToWordBoundary(t *testing.T) {
	// The only period sits well before 70% of maxLength, so the excerpt cuts
	// at a word boundary and appends an ellipsis.
	text := "First. " + strings.Repeat("word ", 100)
	got := Excerpt(text, 300)

	if !strings.HasSuffix(got, "...") {
		t.Errorf("Excerpt() = %q, want ellipsis suffix", got)
	}
	if len(got) > 303 {
		t.Errorf("Excerpt() length = %d, want <= maxLength + ellipsis", len(got))
	}
	if strings.HasSuffix(strings.TrimSuffix(got, "..."), " ") {
		t.Errorf("Excerpt() kept trailing space before ellipsis: %q", got)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
