package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/kirillkom/fin-extract/internal/config"
	"github.com/kirillkom/fin-extract/internal/core/domain"
	"github.com/kirillkom/fin-extract/internal/core/ports"
	"github.com/kirillkom/fin-extract/internal/observability/metrics"
)

const serviceName = "api"

// Dependencies are the inbound ports served over HTTP. Nil fields disable
// their routes with 503.
type Dependencies struct {
	Uploader   ports.DocumentUploader
	Extractor  ports.FinancialsExtractor
	Reader     ports.ExtractionReader
	Aggregator ports.SeriesAggregator
	Quiz       ports.QuizService
	Files      ports.ObjectStorage
	Metrics    *metrics.HTTPServerMetrics
}

type Router struct {
	cfg       config.Config
	deps      Dependencies
	validator *requestValidator
}

func NewRouter(cfg config.Config, deps Dependencies) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &Router{cfg: cfg, deps: deps, validator: validator}, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.deps.Metrics != nil {
		mux.Handle("GET /metrics", rt.deps.Metrics.Handler())
	}
	mux.HandleFunc("POST /v1/uploads", rt.upload)
	mux.HandleFunc("GET /files/{key}", rt.serveFile)
	mux.HandleFunc("POST /v1/extract", rt.extract)
	mux.HandleFunc("POST /v1/aggregate", rt.aggregate)
	mux.HandleFunc("GET /v1/extractions", rt.listExtractions)
	mux.HandleFunc("GET /v1/extractions/{id}", rt.getExtraction)
	mux.HandleFunc("GET /v1/series", rt.series)
	mux.HandleFunc("GET /v1/problems", rt.listProblems)
	mux.HandleFunc("GET /v1/problems/{id}", rt.getProblem)
	mux.HandleFunc("GET /v1/quiz/{type}", rt.sampleQuiz)

	var handler http.Handler = rt.validator.middleware(mux)

	var onLimited func(string)
	if rt.deps.Metrics != nil {
		onLimited = func(p string) { rt.deps.Metrics.RecordRateLimited(serviceName, p) }
	}
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onLimited)
	handler = accessLogMiddleware(handler)
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) upload(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Uploader == nil {
		writeUnavailable(w, "uploads")
		return
	}
	if rt.cfg.FetchMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.FetchMaxBytes+1<<20)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	stored, err := rt.deps.Uploader.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordUpload(serviceName, stored.Size)
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (rt *Router) serveFile(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Files == nil {
		writeUnavailable(w, "files")
		return
	}
	key := r.PathValue("key")
	body, err := rt.deps.Files.Open(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

type extractRequest struct {
	FileURL string `json:"fileUrl"`
}

type extractResponse struct {
	ID         string                      `json:"id"`
	Structured domain.StructuredFinancials `json:"structured"`
}

func (rt *Router) extract(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Extractor == nil {
		writeUnavailable(w, "extraction")
		return
	}

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	async, err := boolQuery(r, "async")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if async {
		if err := rt.deps.Extractor.Enqueue(r.Context(), req.FileURL); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "fileUrl": req.FileURL})
		return
	}

	record, err := rt.deps.Extractor.Extract(r.Context(), req.FileURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, extractResponse{ID: record.ID, Structured: record.Structured})
}

func (rt *Router) aggregate(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Aggregator == nil {
		writeUnavailable(w, "aggregation")
		return
	}

	records, err := decodeRecords(r.Body)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	strict, err := boolQuery(r, "strict")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := rt.deps.Aggregator.Aggregate(r.Context(), records, strict)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.writeAggregation(w, r, result)
}

func (rt *Router) series(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Aggregator == nil {
		writeUnavailable(w, "aggregation")
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := rt.deps.Aggregator.AggregateStored(r.Context(), strings.TrimSpace(r.URL.Query().Get("name")), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.writeAggregation(w, r, result)
}

// writeAggregation returns the bare series list unless ?report=true asks for
// skipped and duplicate diagnostics too.
func (rt *Router) writeAggregation(w http.ResponseWriter, r *http.Request, result *domain.AggregationResult) {
	report, err := boolQuery(r, "report")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if report {
		writeJSON(w, http.StatusOK, result)
		return
	}
	writeJSON(w, http.StatusOK, result.Series)
}

func (rt *Router) listExtractions(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Reader == nil {
		writeUnavailable(w, "extractions")
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	records, err := rt.deps.Reader.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (rt *Router) getExtraction(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Reader == nil {
		writeUnavailable(w, "extractions")
		return
	}
	record, err := rt.deps.Reader.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) listProblems(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Quiz == nil {
		writeUnavailable(w, "problems")
		return
	}
	problems, err := rt.deps.Quiz.ListProblems(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, problems)
}

func (rt *Router) getProblem(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Quiz == nil {
		writeUnavailable(w, "problems")
		return
	}
	problem, err := rt.deps.Quiz.GetProblem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, problem)
}

func (rt *Router) sampleQuiz(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Quiz == nil {
		writeUnavailable(w, "quiz")
		return
	}
	quizType, err := strconv.Atoi(r.PathValue("type"))
	if err != nil {
		writeBadRequest(w, "quiz type must be an integer")
		return
	}
	count, err := intQuery(r, "count")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	section := domain.QuizSection(strings.TrimSpace(r.URL.Query().Get("section")))
	if section == "" {
		section = domain.SectionDefinition
	}

	sample, err := rt.deps.Quiz.Sample(r.Context(), quizType, section, count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// decodeRecords accepts a JSON array of records or a single record.
func decodeRecords(body io.Reader) ([]domain.StructuredFinancials, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.New("read request body")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("request body is empty")
	}
	if data[0] == '[' {
		var records []domain.StructuredFinancials
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("invalid json: %v", err)
		}
		return records, nil
	}
	var record domain.StructuredFinancials
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("invalid json: %v", err)
	}
	return []domain.StructuredFinancials{record}, nil
}

func boolQuery(r *http.Request, key string) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("query parameter %q must be a boolean", key)
	}
	return parsed, nil
}

func intQuery(r *http.Request, key string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("query parameter %q must be a non-negative integer", key)
	}
	return n, nil
}

func writeUnavailable(w http.ResponseWriter, feature string) {
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: feature + " is not configured"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
