package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/fin-extract/internal/config"
	"github.com/kirillkom/fin-extract/internal/core/domain"
	"github.com/kirillkom/fin-extract/internal/observability/metrics"
)

type extractorFake struct {
	record   *domain.ExtractionRecord
	err      error
	enqueued []string
}

func (f *extractorFake) Extract(_ context.Context, sourceRef string) (*domain.ExtractionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec := *f.record
	rec.SourceRef = sourceRef
	return &rec, nil
}

func (f *extractorFake) Enqueue(_ context.Context, sourceRef string) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, sourceRef)
	return nil
}

type aggregatorFake struct {
	gotRecords []domain.StructuredFinancials
	gotStrict  bool
	gotName    string
	result     *domain.AggregationResult
	err        error
}

func (f *aggregatorFake) Aggregate(_ context.Context, records []domain.StructuredFinancials, strict bool) (*domain.AggregationResult, error) {
	f.gotRecords = records
	f.gotStrict = strict
	return f.result, f.err
}

func (f *aggregatorFake) AggregateStored(_ context.Context, name string, _ int) (*domain.AggregationResult, error) {
	f.gotName = name
	return f.result, f.err
}

type uploaderFake struct {
	gotName string
	gotBody string
}

func (f *uploaderFake) Upload(_ context.Context, filename, _ string, body io.Reader) (*domain.StoredObject, error) {
	data, _ := io.ReadAll(body)
	f.gotName = filename
	f.gotBody = string(data)
	return &domain.StoredObject{Key: "k_" + filename, Filename: filename, Size: int64(len(data)), URL: "http://files/k_" + filename}, nil
}

type readerFake struct {
	err error
}

func (f readerFake) GetByID(_ context.Context, id string) (*domain.ExtractionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ExtractionRecord{ID: id}, nil
}

func (f readerFake) ListRecent(context.Context, int) ([]domain.ExtractionRecord, error) {
	return []domain.ExtractionRecord{{ID: "a"}, {ID: "b"}}, nil
}

type quizFake struct {
	gotType    int
	gotSection domain.QuizSection
}

func (f *quizFake) ListProblems(context.Context) ([]domain.Problem, error) {
	return []domain.Problem{{ID: "current-ratio"}}, nil
}

func (f *quizFake) GetProblem(_ context.Context, id string) (*domain.Problem, error) {
	return nil, domain.WrapError(domain.ErrNotFound, "get problem", errors.New(id))
}

func (f *quizFake) Sample(_ context.Context, quizType int, section domain.QuizSection, _ int) (*domain.QuizSample, error) {
	f.gotType = quizType
	f.gotSection = section
	return &domain.QuizSample{Type: quizType, Section: section}, nil
}

type filesFake struct{}

func (filesFake) Save(context.Context, string, string, io.Reader) (int64, error) { return 0, nil }
func (filesFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if key == "missing.csv" {
		return nil, domain.WrapError(domain.ErrNotFound, "open", errors.New(key))
	}
	return io.NopCloser(strings.NewReader("Cash,100\n")), nil
}
func (filesFake) URL(key string) string { return "http://files/" + key }

func newTestHandler(t *testing.T, cfg config.Config, deps Dependencies) http.Handler {
	t.Helper()
	router, err := NewRouter(cfg, deps)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestExtractReturnsRecord(t *testing.T) {
	extractor := &extractorFake{record: &domain.ExtractionRecord{
		ID:         "rec-1",
		Structured: domain.StructuredFinancials{Name: "Acme", Year: 2023},
	}}
	handler := newTestHandler(t, config.Config{}, Dependencies{Extractor: extractor})

	res := doJSON(t, handler, http.MethodPost, "/v1/extract", `{"fileUrl":"https://example.com/a.csv"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var body struct {
		ID         string `json:"id"`
		Structured struct {
			Name string `json:"name"`
		} `json:"structured"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.ID != "rec-1" || body.Structured.Name != "Acme" {
		t.Fatalf("unexpected response: %+v", body)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestExtractAsyncEnqueues(t *testing.T) {
	extractor := &extractorFake{}
	handler := newTestHandler(t, config.Config{}, Dependencies{Extractor: extractor})

	res := doJSON(t, handler, http.MethodPost, "/v1/extract?async=true", `{"fileUrl":"https://example.com/a.pdf"}`)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if len(extractor.enqueued) != 1 || extractor.enqueued[0] != "https://example.com/a.pdf" {
		t.Fatalf("unexpected enqueued refs: %v", extractor.enqueued)
	}
}

func TestExtractRejectsBodyWithoutFileURL(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, Dependencies{Extractor: &extractorFake{}})

	res := doJSON(t, handler, http.MethodPost, "/v1/extract", `{"url":"https://example.com"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestExtractMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", domain.WrapError(domain.ErrInvalidInput, "extract", errors.New("bad url")), http.StatusBadRequest},
		{"fetch", domain.WrapError(domain.ErrFetch, "fetch", errors.New("404")), http.StatusBadGateway},
		{"upstream", domain.WrapError(domain.ErrUpstream, "complete", errors.New("500")), http.StatusBadGateway},
		{"temporary", domain.WrapError(domain.ErrTemporary, "complete", errors.New("breaker open")), http.StatusServiceUnavailable},
		{"parse", &domain.ParseError{Raw: "not json"}, http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(t, config.Config{}, Dependencies{Extractor: &extractorFake{err: tc.err}})
			res := doJSON(t, handler, http.MethodPost, "/v1/extract", `{"fileUrl":"https://example.com/a.csv"}`)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestParseErrorIncludesRawOutput(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, Dependencies{Extractor: &extractorFake{err: &domain.ParseError{Raw: "sorry, no json"}}})

	res := doJSON(t, handler, http.MethodPost, "/v1/extract", `{"fileUrl":"https://example.com/a.csv"}`)
	var body errorResponse
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Raw != "sorry, no json" || body.Error == "" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestAggregateAcceptsSingleRecord(t *testing.T) {
	aggregator := &aggregatorFake{result: &domain.AggregationResult{Series: []domain.CompanySeries{{Name: "Acme"}}}}
	handler := newTestHandler(t, config.Config{}, Dependencies{Aggregator: aggregator})

	res := doJSON(t, handler, http.MethodPost, "/v1/aggregate?strict=true", `{"name":"Acme","year":2023,"assets":{},"liabilities":{},"equity":{}}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(aggregator.gotRecords) != 1 || !aggregator.gotStrict {
		t.Fatalf("unexpected call: records=%d strict=%v", len(aggregator.gotRecords), aggregator.gotStrict)
	}
	var series []domain.CompanySeries
	if err := json.Unmarshal(res.Body.Bytes(), &series); err != nil {
		t.Fatalf("expected bare series array: %v", err)
	}
}

func TestAggregateReportIncludesDiagnostics(t *testing.T) {
	aggregator := &aggregatorFake{result: &domain.AggregationResult{
		Series:  []domain.CompanySeries{},
		Skipped: []domain.SkippedRecord{{Index: 1, Name: "Beta", Reason: "missing assets"}},
	}}
	handler := newTestHandler(t, config.Config{}, Dependencies{Aggregator: aggregator})

	res := doJSON(t, handler, http.MethodPost, "/v1/aggregate?report=true", `[{"name":"Acme"},{"name":"Beta"}]`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var result domain.AggregationResult
	if err := json.Unmarshal(res.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(result.Skipped) != 1 || len(aggregator.gotRecords) != 2 {
		t.Fatalf("unexpected report: %+v", result)
	}
}

func TestAggregateStrictMalformedIs422(t *testing.T) {
	aggregator := &aggregatorFake{err: &domain.MalformedRecordError{Index: 0, Name: "Acme", Missing: "assets"}}
	handler := newTestHandler(t, config.Config{}, Dependencies{Aggregator: aggregator})

	res := doJSON(t, handler, http.MethodPost, "/v1/aggregate?strict=true", `[{"name":"Acme"}]`)
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
}

func TestAggregateRejectsScalarBody(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, Dependencies{Aggregator: &aggregatorFake{}})

	res := doJSON(t, handler, http.MethodPost, "/v1/aggregate", `42`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSeriesPassesNameFilter(t *testing.T) {
	aggregator := &aggregatorFake{result: &domain.AggregationResult{Series: []domain.CompanySeries{}}}
	handler := newTestHandler(t, config.Config{}, Dependencies{Aggregator: aggregator})

	res := doJSON(t, handler, http.MethodGet, "/v1/series?name=Acme&limit=10", "")
	if res.Code != http.StatusOK || aggregator.gotName != "Acme" {
		t.Fatalf("unexpected result: code=%d name=%q", res.Code, aggregator.gotName)
	}
}

func TestUploadReturnsCreatedWithFileURL(t *testing.T) {
	uploader := &uploaderFake{}
	handler := newTestHandler(t, config.Config{}, Dependencies{Uploader: uploader})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "acme.csv")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	_, _ = part.Write([]byte("Cash,100\n"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Body.String(), `"fileUrl":"http://files/k_acme.csv"`) {
		t.Fatalf("expected fileUrl in body, got %s", res.Body.String())
	}
	if uploader.gotBody != "Cash,100\n" {
		t.Fatalf("unexpected uploaded body %q", uploader.gotBody)
	}
}

func TestUploadWithoutFileIs400(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, Dependencies{Uploader: &uploaderFake{}})
	res := doJSON(t, handler, http.MethodPost, "/v1/uploads", `{}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestServeFile(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, Dependencies{Files: filesFake{}})

	res := doJSON(t, handler, http.MethodGet, "/files/acme.pdf", "")
	if res.Code != http.StatusOK || res.Body.String() != "Cash,100\n" {
		t.Fatalf("unexpected response: %d %q", res.Code, res.Body.String())
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}

	res = doJSON(t, handler, http.MethodGet, "/files/missing.csv", "")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestExtractionReadRoutes(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, Dependencies{Reader: readerFake{}})

	res := doJSON(t, handler, http.MethodGet, "/v1/extractions?limit=2", "")
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"id":"b"`) {
		t.Fatalf("unexpected list response: %d %s", res.Code, res.Body.String())
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/extractions?limit=-1", "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", res.Code)
	}

	missing := newTestHandler(t, config.Config{}, Dependencies{Reader: readerFake{err: domain.WrapError(domain.ErrNotFound, "get", errors.New("x"))}})
	res = doJSON(t, missing, http.MethodGet, "/v1/extractions/x", "")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestQuizRoutes(t *testing.T) {
	quiz := &quizFake{}
	handler := newTestHandler(t, config.Config{}, Dependencies{Quiz: quiz})

	res := doJSON(t, handler, http.MethodGet, "/v1/quiz/2?section=judgement&count=3", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if quiz.gotType != 2 || quiz.gotSection != domain.SectionJudgement {
		t.Fatalf("unexpected sample call: type=%d section=%s", quiz.gotType, quiz.gotSection)
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/quiz/abc", "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric type, got %d", res.Code)
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/problems/unknown", "")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestUnconfiguredDependencyIs503(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, Dependencies{})
	res := doJSON(t, handler, http.MethodGet, "/v1/problems", "")
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	m := metrics.NewHTTPServerMetrics(serviceName)
	handler := newTestHandler(t, config.Config{}, Dependencies{Metrics: m})

	_ = doJSON(t, handler, http.MethodGet, "/healthz", "")
	res := doJSON(t, handler, http.MethodGet, "/metrics", "")
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "finx_http_requests_total") {
		t.Fatalf("unexpected metrics response: %d", res.Code)
	}
}
