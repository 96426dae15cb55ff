package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/multimodal-rag/internal/config"
	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/core/ports"
	"github.com/kirillkom/multimodal-rag/internal/core/usecase"
	"github.com/kirillkom/multimodal-rag/internal/observability/metrics"
)

const (
	metricsService = "rag-api"
	maxRequestBody = 1 << 20
)

// QueryService is everything the router needs from the query use case.
type QueryService interface {
	ports.QuestionAnswerer
	ports.QueryAnalyzer
	ports.ModalityRetriever
}

type Router struct {
	cfg     config.Config
	queryUC QueryService
	traces  ports.TraceReader

	metrics       *metrics.HTTPServerMetrics
	breakerStates func() map[string]string
}

func NewRouter(cfg config.Config, queryUC QueryService, traces ports.TraceReader) *Router {
	return &Router{
		cfg:     cfg,
		queryUC: queryUC,
		traces:  traces,
	}
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

// WithBreakerStates exposes collaborator circuit breakers on /healthz.
func (rt *Router) WithBreakerStates(fn func() map[string]string) *Router {
	rt.breakerStates = fn
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /healthz", rt.healthz)
	api.HandleFunc("POST /v1/ask", rt.ask)
	api.HandleFunc("POST /v1/ask/agentic", rt.askAgentic)
	api.HandleFunc("POST /v1/ask/multimodal", rt.askMultimodal)
	api.HandleFunc("GET /v1/retrieve/images", rt.retrieveImages)
	api.HandleFunc("GET /v1/retrieve/tables", rt.retrieveTables)
	api.HandleFunc("GET /v1/query-analysis", rt.queryAnalysis)
	api.HandleFunc("GET /v1/traces/{id}", rt.getTrace)

	var handler http.Handler = api
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(metricsService, handler)
	}

	root := http.NewServeMux()
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}
	root.Handle("/", handler)

	return requestIDMiddleware(accessLogMiddleware(recoveryMiddleware(root)))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if rt.breakerStates != nil {
		states := rt.breakerStates()
		resp["breakers"] = states
		for _, state := range states {
			if state == "open" {
				resp["status"] = "degraded"
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type questionRequest struct {
	Question string `json:"question"`
}

func decodeQuestion(r *http.Request) (string, error) {
	var req questionRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("invalid json"))
	}
	if strings.TrimSpace(req.Question) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode request", domain.ErrEmptyQuery)
	}
	return req.Question, nil
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	question, err := decodeQuestion(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	answer, err := rt.queryUC.Ask(r.Context(), question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAsk(metricsService, "self_improving", len(answer.Chunks), time.Since(start))
		rt.metrics.RecordSelfImproving(metricsService, answer.Outcome.Attempts, string(answer.Outcome.Critique.Decision))
	}

	writeJSON(w, http.StatusOK, newAskResponse(answer))
}

func (rt *Router) askAgentic(w http.ResponseWriter, r *http.Request) {
	question, err := decodeQuestion(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	answer, err := rt.queryUC.AskAgentic(r.Context(), question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := newAgenticResponse(answer)
	if rt.metrics != nil {
		rt.metrics.RecordAsk(metricsService, "agentic", len(answer.Chunks), time.Since(start))
		strategies := make([]string, 0, len(resp.Steps))
		for _, step := range resp.Steps {
			strategies = append(strategies, step.Strategy)
		}
		rt.metrics.RecordPlannerSteps(metricsService, strategies)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) askMultimodal(w http.ResponseWriter, r *http.Request) {
	question, err := decodeQuestion(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	answer, err := rt.queryUC.AskMultimodal(r.Context(), question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		gctx := answer.Context
		analyzed := 0
		for _, img := range gctx.Images {
			if img.Analysis != nil {
				analyzed++
			}
		}
		rt.metrics.RecordAsk(metricsService, "multimodal", len(gctx.Texts)+len(gctx.Images)+len(gctx.Tables), time.Since(start))
		rt.metrics.RecordFusion(metricsService, len(gctx.Texts), len(gctx.Images), analyzed, len(gctx.Tables))
	}

	writeJSON(w, http.StatusOK, newMultimodalResponse(answer))
}

func (rt *Router) retrieveImages(w http.ResponseWriter, r *http.Request) {
	query, k, err := queryParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := rt.queryUC.RetrieveImages(r.Context(), query, k)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.AnalyzedImage]{Query: query, Items: items, Count: len(items)})
}

func (rt *Router) retrieveTables(w http.ResponseWriter, r *http.Request) {
	query, k, err := queryParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := rt.queryUC.RetrieveTables(r.Context(), query, k)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Candidate{}
	}
	writeJSON(w, http.StatusOK, listResponse[domain.Candidate]{Query: query, Items: items, Count: len(items)})
}

func (rt *Router) queryAnalysis(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	analysis, strategy, err := rt.queryUC.AnalyzeQuery(query)
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "query analysis", err))
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{QueryAnalysis: analysis, Strategy: strategy})
}

func (rt *Router) getTrace(w http.ResponseWriter, r *http.Request) {
	if rt.traces == nil {
		writeError(w, r, domain.WrapError(domain.ErrTraceNotFound, "get trace", errors.New("trace store disabled")))
		return
	}
	trace, err := rt.traces.GetTrace(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// queryParams reads ?query= and the optional ?k= (0..usecase.MaxLookupK). A
// missing k leaves the retriever default in place.
func queryParams(r *http.Request) (string, int, error) {
	values := r.URL.Query()
	query := values.Get("query")
	if strings.TrimSpace(query) == "" {
		return "", 0, domain.WrapError(domain.ErrInvalidInput, "query params", domain.ErrEmptyQuery)
	}
	k := 0
	if raw := values.Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return "", 0, domain.WrapError(domain.ErrInvalidInput, "query params", errors.New("k must be a non-negative integer"))
		}
		if n > usecase.MaxLookupK {
			return "", 0, domain.WrapError(domain.ErrInvalidInput, "query params", fmt.Errorf("k must not exceed %d", usecase.MaxLookupK))
		}
		k = n
	}
	return query, k, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
