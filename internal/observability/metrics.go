package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_api_requests_total",
		Help: "Total number of TTS API requests",
	}, []string{"endpoint", "status"})

	textChars = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_api_text_chars",
		Help:    "Characters of text per synthesis request",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	// Synthesis metrics
	synthesisLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tts_api_synthesis_latency_seconds",
		Help:    "Synthesis latency from pipeline lookup to encoded WAV",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"lang"})

	synthesisResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_api_synthesis_total",
		Help: "Total number of synthesis attempts",
	}, []string{"lang", "status"})

	audioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_api_audio_bytes_total",
		Help: "Total WAV bytes produced",
	})

	// Pipeline registry metrics
	pipelineLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_api_pipeline_loads_total",
		Help: "Pipeline constructions by language and outcome",
	}, []string{"lang", "status"})

	pipelineLoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tts_api_pipeline_load_seconds",
		Help:    "Time spent constructing a language pipeline",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"lang"})

	pipelinesLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tts_api_pipelines_loaded",
		Help: "Number of language pipelines currently held by the registry",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_api_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordRequest records a finished HTTP request
func RecordRequest(endpoint string, status int) {
	httpRequests.WithLabelValues(endpoint, httpStatusClass(status)).Inc()
}

// RecordTextChars records the size of an accepted request text
func RecordTextChars(chars int) {
	textChars.Observe(float64(chars))
}

// RecordSynthesis records the outcome and latency of one synthesis
func RecordSynthesis(lang string, latency time.Duration, wavBytes int, success bool) {
	synthesisResults.WithLabelValues(lang, statusLabel(success)).Inc()
	if !success {
		return
	}
	synthesisLatency.WithLabelValues(lang).Observe(latency.Seconds())
	audioBytes.Add(float64(wavBytes))
}

// RecordPipelineLoad records a pipeline construction attempt
func RecordPipelineLoad(lang string, took time.Duration, success bool) {
	pipelineLoads.WithLabelValues(lang, statusLabel(success)).Inc()
	if success {
		pipelineLoadDuration.WithLabelValues(lang).Observe(took.Seconds())
		pipelinesLoaded.Inc()
	}
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

func httpStatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
