package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"briefpipe/models"
	"briefpipe/pkg/llm"
	"briefpipe/pkg/segment"
	"briefpipe/pkg/store"
)

func seedExtraction(t *testing.T, st *store.Store, url string) *models.Extraction {
	t.Helper()
	src := &models.Source{
		ID:        uuid.NewString(),
		Name:      "Feed",
		FeedURL:   "https://example.com/feed-" + uuid.NewString(),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.InsertSource(src); err != nil {
		t.Fatal(err)
	}
	doc := &models.Document{
		ID:          uuid.NewString(),
		SourceID:    src.ID,
		URL:         url,
		Title:       "Article Title",
		Author:      "Author Name",
		RawContent:  "raw",
		ContentHash: uuid.NewString(),
		FetchedAt:   time.Now().UTC(),
	}
	if err := st.InsertDocument(doc); err != nil {
		t.Fatal(err)
	}
	e := &models.Extraction{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		CleanedText: "The article text being analyzed.",
		Sections:    []segment.Section{},
		WordCount:   5,
		ReadingTime: 1,
		Excerpt:     "The article text being analyzed.",
		Language:    "en",
		ExtractedAt: time.Now().UTC(),
	}
	if err := st.UpsertExtraction(e); err != nil {
		t.Fatal(err)
	}
	return e
}

func analysisResponse(t *testing.T, jsonDoc string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"content": []map[string]any{{"type": "text", "text": jsonDoc}},
		"model":   "test-model",
		"usage":   map[string]int{"input_tokens": 500, "output_tokens": 200},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func newTestStage(t *testing.T, handler http.Handler) (*Stage, *store.Store) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	client := llm.New(llm.Config{BaseURL: server.URL, APIKey: "test-key"})
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return New(st, client, logger), st
}

const validDoc = `{"claims":[{"claim":"rates rose","context":"policy"}],"metaphors":[],"examples":[],"uncertainties":[],"conflicts":[]}`

func TestRunStoresSummaries(t *testing.T) {
	stage, st := newTestStage(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(analysisResponse(t, validDoc))
	}))
	e := seedExtraction(t, st, "https://example.com/a")

	report, err := stage.Run(context.Background(), Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Succeeded != 1 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if got := report.Metric("input_tokens"); got != 500 {
		t.Errorf("input_tokens metric = %f", got)
	}
	if got := report.Metric("cost_usd"); got <= 0 {
		t.Errorf("cost_usd metric = %f", got)
	}

	sum, err := st.GetSummaryByExtraction(e.ID)
	if err != nil {
		t.Fatalf("GetSummaryByExtraction() failed: %v", err)
	}
	if sum.ModelUsed != "test-model" || sum.PromptVersion != llm.PromptVersion {
		t.Errorf("summary = %+v", sum)
	}
	claims, ok := sum.Analysis["claims"].([]any)
	if !ok || len(claims) != 1 {
		t.Errorf("analysis claims = %v", sum.Analysis["claims"])
	}
	if sum.InputTokens != 500 || sum.OutputTokens != 200 {
		t.Errorf("tokens = %d/%d", sum.InputTokens, sum.OutputTokens)
	}
}

func TestRunRepairsFixableOutput(t *testing.T) {
	// Missing four collections and one claim missing its context: repair
	// fills the fields and drops the bad claim.
	fixable := `{"claims":[{"claim":"x"}]}`
	stage, st := newTestStage(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(analysisResponse(t, fixable))
	}))
	e := seedExtraction(t, st, "https://example.com/a")

	report, err := stage.Run(context.Background(), Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Succeeded != 1 {
		t.Fatalf("report = %+v", report)
	}

	sum, err := st.GetSummaryByExtraction(e.ID)
	if err != nil {
		t.Fatal(err)
	}
	claims, _ := sum.Analysis["claims"].([]any)
	if len(claims) != 0 {
		t.Errorf("repaired claims = %v, want empty", claims)
	}
	if _, ok := sum.Analysis["conflicts"]; !ok {
		t.Error("repair should have added missing collections")
	}
}

func TestRunFencedResponse(t *testing.T) {
	fenced := "Here you go:\n```json\n" + validDoc + "\n```"
	stage, st := newTestStage(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(analysisResponse(t, fenced))
	}))
	seedExtraction(t, st, "https://example.com/a")

	report, err := stage.Run(context.Background(), Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Succeeded != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunProseOnlyResponseFails(t *testing.T) {
	stage, st := newTestStage(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(analysisResponse(t, "I am unable to analyze this article."))
	}))
	e := seedExtraction(t, st, "https://example.com/a")

	report, err := stage.Run(context.Background(), Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Failed != 1 || report.Succeeded != 0 {
		t.Fatalf("report = %+v", report)
	}
	if _, err := st.GetSummaryByExtraction(e.ID); err == nil {
		t.Error("no summary should be stored for a failed analysis")
	}
}

func TestRunSkipsAlreadySummarized(t *testing.T) {
	stage, st := newTestStage(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(analysisResponse(t, validDoc))
	}))
	seedExtraction(t, st, "https://example.com/a")

	if _, err := stage.Run(context.Background(), Options{Workers: 1}); err != nil {
		t.Fatal(err)
	}
	report, err := stage.Run(context.Background(), Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Attempted != 0 {
		t.Errorf("second run attempted %d, want 0", report.Attempted)
	}
}

func TestRunByExtractionID(t *testing.T) {
	var calls int
	stage, st := newTestStage(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(analysisResponse(t, validDoc))
	}))
	target := seedExtraction(t, st, "https://example.com/target")
	other := seedExtraction(t, st, "https://example.com/other")

	report, err := stage.Run(context.Background(), Options{RecordID: target.ID, Workers: 1})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Attempted != 1 || report.Succeeded != 1 || calls != 1 {
		t.Fatalf("report = %+v, calls = %d", report, calls)
	}
	if _, err := st.GetSummaryByExtraction(target.ID); err != nil {
		t.Fatalf("target extraction has no summary: %v", err)
	}
	if _, err := st.GetSummaryByExtraction(other.ID); err == nil {
		t.Error("other extraction should not have been analyzed")
	}

	// By-ID selection bypasses the backlog: a summarized extraction is
	// re-analyzed and its summary replaced in place.
	again, err := stage.Run(context.Background(), Options{RecordID: target.ID, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	if again.Attempted != 1 || again.Succeeded != 1 {
		t.Errorf("second by-ID report = %+v", again)
	}
}

func TestRunByExtractionIDUnknown(t *testing.T) {
	stage, _ := newTestStage(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(analysisResponse(t, validDoc))
	}))

	_, err := stage.Run(context.Background(), Options{RecordID: "no-such-id", Workers: 1})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRunDryRunCallsNothing(t *testing.T) {
	var calls int
	stage, st := newTestStage(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(analysisResponse(t, validDoc))
	}))
	seedExtraction(t, st, "https://example.com/a")

	report, err := stage.Run(context.Background(), Options{DryRun: true, Workers: 1})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Succeeded != 1 {
		t.Fatalf("report = %+v", report)
	}
	if calls != 0 {
		t.Errorf("dry run made %d service calls", calls)
	}
}
