package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/fin-research-assistant/internal/config"
	"github.com/kirillkom/fin-research-assistant/internal/core/ports"
)

const (
	defaultNewsK   = 5
	maxNewsK       = 50
	maxRequestBody = 64 << 10
)

type Router struct {
	queries   ports.QueryProcessor
	news      ports.NewsSearchService
	retrieval ports.HybridSearcher

	metrics        httpMetrics
	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	overloadWait   time.Duration
}

type httpMetrics interface {
	Handler() http.Handler
	Middleware(service string, next http.Handler) http.Handler
}

func NewRouter(
	cfg config.Config,
	queries ports.QueryProcessor,
	news ports.NewsSearchService,
	retrieval ports.HybridSearcher,
) *Router {
	return &Router{
		queries:        queries,
		news:           news,
		retrieval:      retrieval,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIMaxInFlight,
		overloadWait:   time.Duration(cfg.APIBackpressureWaitMs) * time.Millisecond,
	}
}

// WithMetrics exposes /metrics and records request metrics.
func (rt *Router) WithMetrics(m httpMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/chat", rt.chat)
	api.HandleFunc("/v1/news/search", rt.searchNews)
	api.HandleFunc("/v1/sessions", rt.createSession)
	api.HandleFunc("/v1/sessions/", rt.session)
	api.HandleFunc("/v1/diagnostic", rt.diagnostic)
	api.HandleFunc("/v1/retrieval/stats", rt.retrievalStats)

	var limited http.Handler = api
	if rt.maxInFlight > 0 {
		limited = backpressureMiddleware(limited, rt.maxInFlight, rt.overloadWait)
	}
	if rt.rateLimitRPS > 0 {
		limited = rateLimitMiddleware(limited, rt.rateLimitRPS, rt.rateLimitBurst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/v1/", limited)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware("api", handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Query     string `json:"query"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	result, err := rt.queries.ProcessQuery(r.Context(), req.Query, req.SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) searchNews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}
	k := defaultNewsK
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxNewsK {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "k must be between 1 and 50"})
			return
		}
		k = n
	}

	articles := rt.news.SearchNews(r.Context(), q, k, splitTickers(r.URL.Query().Get("tickers")))
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "articles": articles})
}

// createSession hands out a fresh session id. The session itself is created
// lazily by its first query.
func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": uuid.NewString()})
}

func (rt *Router) session(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		stats, err := rt.queries.SessionStats(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	case http.MethodDelete:
		if err := rt.queries.ClearSession(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (rt *Router) diagnostic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	diag, err := rt.queries.Diagnose(r.Context(), r.URL.Query().Get("q"), r.URL.Query().Get("session_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diag)
}

func (rt *Router) retrievalStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, rt.retrieval.Stats())
}

func splitTickers(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
