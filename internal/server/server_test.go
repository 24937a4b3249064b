package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/TobiSchelling/PageInsights/internal/database"
	"github.com/TobiSchelling/PageInsights/internal/llm"
	"github.com/TobiSchelling/PageInsights/internal/metrics"
	"github.com/TobiSchelling/PageInsights/internal/pipeline"
	"github.com/TobiSchelling/PageInsights/internal/report"
)

const january = "title,author,page_views,publish_date,section\n" +
	"Budget vote,Ann,300,2024-01-02,Politics\n" +
	"Storm,Bo,100,2024-01-03,Weather\n" +
	"Floods,Bo,80,2024-01-04,Weather\n"

const february = "title,author,page_views,publish_date,section\n" +
	"Snow,Bo,500,2024-02-01,Weather\n"

const takeawaysReply = `{"headline": "Politics led", "summary": "One story carried the month.",
"takeaways": [{"title": "Budget vote", "detail": "Top article.", "metric": "300 views"}]}`

type mockProvider struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (m *mockProvider) Name() string                     { return "mock" }
func (m *mockProvider) IsConfigured(context.Context) bool { return true }

func (m *mockProvider) Generate(context.Context, []llm.Message, llm.Options) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Content: m.response, Model: "mock-1"}, nil
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T, p llm.Provider, db *database.DB, limit RateLimit) *Server {
	t.Helper()
	m := metrics.New("test")
	pipe := pipeline.New(pipeline.Options{
		Report:    report.Options{TopN: 5},
		Providers: func(llm.Kind) (llm.Provider, error) { return p, nil },
		History:   db,
		Metrics:   m,
	})
	srv, err := New(Options{
		Pipeline:       pipe,
		History:        db,
		Metrics:        m,
		MaxUploadBytes: 1 << 16,
		RateLimit:      limit,
		CORSOrigins:    []string{"http://dashboard.test"},
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return do(t, srv, req)
}

func files(texts ...string) []pipeline.Input {
	labels := []string{"jan", "feb", "mar"}
	out := make([]pipeline.Input, len(texts))
	for i, text := range texts {
		out[i] = pipeline.Input{Label: labels[i], Text: text}
	}
	return out
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &mockProvider{}, nil, RateLimit{})

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_http_requests_total{method="GET",route="GET /health",status="200"} 1`) {
		t.Errorf("expected the health request to be counted:\n%s", rec.Body.String())
	}
}

func TestAnalyzeJSON(t *testing.T) {
	srv := newTestServer(t, &mockProvider{}, nil, RateLimit{})

	rec := postJSON(t, srv, "/api/analyze", map[string]any{"files": files(january)})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var a struct {
		Summaries []struct {
			Label      string `json:"label"`
			TotalViews int    `json:"total_views"`
			Writers    []struct {
				Name string `json:"name"`
			} `json:"writers"`
		} `json:"summaries"`
	}
	decode(t, rec, &a)
	if len(a.Summaries) != 1 || a.Summaries[0].TotalViews != 480 {
		t.Fatalf("unexpected summaries: %+v", a.Summaries)
	}
	if len(a.Summaries[0].Writers) != 2 {
		t.Errorf("expected 2 writers, got %d", len(a.Summaries[0].Writers))
	}
}

func TestAnalyzeMultipartUsesFilenames(t *testing.T) {
	srv := newTestServer(t, &mockProvider{}, nil, RateLimit{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, text := range map[string]string{"january.csv": january} {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(text))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(t, srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"label":"january"`) {
		t.Errorf("expected filename label, got %s", rec.Body.String())
	}
}

func TestAnalyzeRawCSV(t *testing.T) {
	srv := newTestServer(t, &mockProvider{}, nil, RateLimit{})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze?label=week1", strings.NewReader(january))
	req.Header.Set("Content-Type", "text/csv")
	rec := do(t, srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"label":"week1"`) {
		t.Errorf("expected query label, got %s", rec.Body.String())
	}
}

func TestAnalyzeRejectsEmptyInput(t *testing.T) {
	srv := newTestServer(t, &mockProvider{}, nil, RateLimit{})

	rec := postJSON(t, srv, "/api/analyze", map[string]any{"files": []pipeline.Input{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var e errorResponse
	decode(t, rec, &e)
	if e.Stage != pipeline.StageParse {
		t.Errorf("expected parse stage, got %q", e.Stage)
	}
}

func TestUploadTooLarge(t *testing.T) {
	srv := newTestServer(t, &mockProvider{}, nil, RateLimit{})

	big := strings.Repeat("x", 1<<17)
	rec := postJSON(t, srv, "/api/analyze", map[string]any{"files": []pipeline.Input{{Text: big}}})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestCompare(t *testing.T) {
	srv := newTestServer(t, &mockProvider{}, nil, RateLimit{})

	rec := postJSON(t, srv, "/api/compare", map[string]any{"files": []pipeline.Input{
		{Label: "feb", Text: february},
		{Label: "jan", Text: january},
	}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var c struct {
		Periods struct {
			Periods []struct {
				Label string `json:"label"`
			} `json:"periods"`
		} `json:"periods"`
	}
	decode(t, rec, &c)
	if len(c.Periods.Periods) != 2 || c.Periods.Periods[0].Label != "jan" {
		t.Errorf("expected periods sorted by date, got %+v", c.Periods.Periods)
	}

	rec = postJSON(t, srv, "/api/compare", map[string]any{"files": files(january)})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("single dataset: expected 400, got %d", rec.Code)
	}
}

func TestInsightsStoresRun(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, &mockProvider{response: takeawaysReply}, db, RateLimit{})

	rec := postJSON(t, srv, "/api/insights/takeaways", map[string]any{"files": files(january)})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp insightsResponse
	decode(t, rec, &resp)
	if len(resp.Insights) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(resp.Insights))
	}
	got := resp.Insights[0]
	if got.Insight == nil || got.Insight.Headline != "Politics led" {
		t.Errorf("unexpected insight: %+v", got.Insight)
	}
	if !strings.Contains(got.Markdown, "Budget vote") {
		t.Errorf("expected markdown, got %q", got.Markdown)
	}
	if got.RunID == "" {
		t.Fatal("expected a run ID")
	}

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	if !strings.Contains(rec.Body.String(), got.RunID) {
		t.Errorf("expected run in list: %s", rec.Body.String())
	}

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/runs/"+got.RunID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("run page: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<strong>Budget vote</strong>") {
		t.Errorf("expected rendered markdown in run page:\n%s", rec.Body.String())
	}
}

func TestInsightsGenerationFailureIs502WithAnalysis(t *testing.T) {
	srv := newTestServer(t, &mockProvider{err: errors.New("connection refused")}, nil, RateLimit{})

	rec := postJSON(t, srv, "/api/insights/takeaways", map[string]any{"files": files(january)})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp insightsResponse
	decode(t, rec, &resp)
	if resp.Stage != pipeline.StageGenerate {
		t.Errorf("expected generate stage, got %q", resp.Stage)
	}
	if resp.Analysis == nil || len(resp.Analysis.Summaries) != 1 {
		t.Error("expected the analysis to survive a generation failure")
	}
	if resp.Insights[0].Error == "" {
		t.Error("expected a per-mode error")
	}
}

func TestInsightsDecodeFailureIs502(t *testing.T) {
	srv := newTestServer(t, &mockProvider{response: "I cannot help with that."}, nil, RateLimit{})

	rec := postJSON(t, srv, "/api/insights/recommendations", map[string]any{"files": files(january)})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var resp insightsResponse
	decode(t, rec, &resp)
	if resp.Stage != pipeline.StageDecode {
		t.Errorf("expected decode stage, got %q", resp.Stage)
	}
}

func TestInsightsBadInputIs400(t *testing.T) {
	p := &mockProvider{response: takeawaysReply}
	srv := newTestServer(t, p, nil, RateLimit{})

	tests := []struct {
		name string
		path string
		body map[string]any
	}{
		{"unknown mode", "/api/insights/horoscope", map[string]any{"files": files(january)}},
		{"unknown provider", "/api/insights/takeaways", map[string]any{"files": files(january), "provider": "hal"}},
		{"sources needs two", "/api/insights/sources", map[string]any{"files": files(january)}},
		{"writer feedback without author", "/api/insights/writer-feedback", map[string]any{"files": files(january)}},
		{"no files", "/api/insights/takeaways", map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, srv, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
	if p.calls != 0 {
		t.Errorf("provider should not be called for bad input, got %d calls", p.calls)
	}
}

func TestInsightsAll(t *testing.T) {
	srv := newTestServer(t, &mockProvider{response: takeawaysReply}, nil, RateLimit{})

	rec := postJSON(t, srv, "/api/insights/all", map[string]any{"files": files(january, february), "dry_run": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp insightsResponse
	decode(t, rec, &resp)
	if len(resp.Insights) != 2 {
		t.Fatalf("expected comparison and sources, got %d insights", len(resp.Insights))
	}
	for _, ir := range resp.Insights {
		if ir.Prompt == "" {
			t.Errorf("%s: expected a dry-run prompt", ir.Mode)
		}
	}
}

func TestInsightsRateLimited(t *testing.T) {
	srv := newTestServer(t, &mockProvider{response: takeawaysReply}, nil, RateLimit{RPS: 0.001, Burst: 1})

	body := map[string]any{"files": files(january), "dry_run": true}
	if rec := postJSON(t, srv, "/api/insights/takeaways", body); rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}
	rec := postJSON(t, srv, "/api/insights/takeaways", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", rec.Code)
	}
	if rec := postJSON(t, srv, "/api/analyze", body); rec.Code != http.StatusOK {
		t.Errorf("analyze is not rate limited, got %d", rec.Code)
	}
}

func TestRateRun(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertRun(&database.Run{Mode: "takeaways", Provider: "mock", Context: "ctx"})
	if err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, &mockProvider{}, db, RateLimit{})

	rec := postJSON(t, srv, "/api/runs/"+id+"/feedback", map[string]string{"rating": "useful", "note": "good"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if fb, _ := db.GetRunFeedback(id); fb == nil || fb.Rating != database.RatingUseful {
		t.Error("expected useful feedback stored")
	}

	rec = postJSON(t, srv, "/api/runs/"+id+"/feedback", map[string]string{"rating": "meh"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid rating: expected 400, got %d", rec.Code)
	}
	rec = postJSON(t, srv, "/api/runs/missing/feedback", map[string]string{"rating": "useful"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing run: expected 404, got %d", rec.Code)
	}
}

func TestRunFeedbackForm(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertRun(&database.Run{Mode: "takeaways", Provider: "mock", Context: "ctx"})
	srv := newTestServer(t, &mockProvider{}, db, RateLimit{})

	req := httptest.NewRequest(http.MethodPost, "/runs/"+id+"/feedback", strings.NewReader("rating=not_useful&note=too+vague"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := do(t, srv, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/runs/"+id+"#feedback" {
		t.Errorf("unexpected redirect %q", loc)
	}
	fb, _ := db.GetRunFeedback(id)
	if fb == nil || fb.Rating != database.RatingNotUseful || fb.Note == nil || *fb.Note != "too vague" {
		t.Errorf("unexpected feedback: %+v", fb)
	}
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	db.InsertRun(&database.Run{Mode: "takeaways", Labels: []string{"jan"}, Provider: "mock", Context: "ctx"})
	srv := newTestServer(t, &mockProvider{}, db, RateLimit{})

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Insight runs") || !strings.Contains(body, "<td>jan</td>") {
		t.Errorf("expected run list in index:\n%s", body)
	}
}

func TestIndexWithoutHistory(t *testing.T) {
	srv := newTestServer(t, &mockProvider{}, nil, RateLimit{})

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Run history is disabled") {
		t.Errorf("unexpected index: %d", rec.Code)
	}
	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without history, got %d", rec.Code)
	}
}

func TestRunPageNotFound(t *testing.T) {
	srv := newTestServer(t, &mockProvider{}, openTestDB(t), RateLimit{})

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/runs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Run not found") {
		t.Error("expected not found message")
	}
}

func TestStaticFiles(t *testing.T) {
	srv := newTestServer(t, &mockProvider{}, nil, RateLimit{})

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &mockProvider{}, nil, RateLimit{})

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "http://dashboard.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := do(t, srv, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.test" {
		t.Errorf("expected allowed origin, got %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := newRecoveryMiddleware(zap.NewNop()).Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
