// Package httpapi exposes synthesis over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-api/internal/observability"
	"github.com/lexiqai/tts-api/internal/tts"
)

// Synthesizer produces WAV audio for a validated request
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// RouterConfig holds the request defaults and surface options of the API
type RouterConfig struct {
	ModelRepo string

	// Request defaults and bounds
	Limits       tts.Limits
	DefaultLang  tts.LanguageCode
	DefaultVoice string

	// SynthesisTimeout bounds one synthesis; zero disables it
	SynthesisTimeout time.Duration

	CORSOrigins    []string
	MetricsEnabled bool

	// Readiness probes keyed by dependency name
	ReadinessChecks map[string]observability.HealthCheckFunc
}

type Router struct {
	cfg    RouterConfig
	synth  Synthesizer
	logger zerolog.Logger
	mux    *http.ServeMux
}

func NewRouter(cfg RouterConfig, synth Synthesizer, logger zerolog.Logger) http.Handler {
	r := &Router{
		cfg:    cfg,
		synth:  synth,
		logger: logger.With().Str("component", "httpapi").Logger(),
		mux:    http.NewServeMux(),
	}

	r.routes()
	return r.withRecovery(withCORS(cfg.CORSOrigins, r.mux))
}

func (r *Router) routes() {
	r.mux.HandleFunc("GET /health", observability.HealthCheckHandler(r.cfg.ModelRepo))
	r.mux.HandleFunc("GET /ready", observability.ReadinessHandler(r.cfg.ReadinessChecks))

	r.mux.HandleFunc("POST /tts", r.handleTTS)
	r.mux.HandleFunc("GET /tts/preview", r.handlePreview)

	if r.cfg.MetricsEnabled {
		r.mux.Handle("GET /metrics", promhttp.Handler())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// exposedHeaders are readable by browser clients on cross-origin responses
var exposedHeaders = strings.Join([]string{
	headerRequestID,
	headerLatencyMs,
	headerChars,
	"Content-Disposition",
}, ",")

// withCORS answers preflights and tags responses for allowed origins only
func withCORS(origins []string, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	allowAll := false
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		origin := req.Header.Get("Origin")
		if origin == "" || !(allowAll || allowed[origin]) {
			next.ServeHTTP(w, req)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Expose-Headers", exposedHeaders)

		if req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			if reqHeaders := req.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Router) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				r.logger.Error().
					Interface("panic", rec).
					Str("method", req.Method).
					Str("path", req.URL.Path).
					Msg("Handler panicked")
				observability.RecordError("panic", "httpapi")
				writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "internal server error"})
			}
		}()
		next.ServeHTTP(w, req)
	})
}
