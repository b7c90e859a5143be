package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-api/internal/observability"
	"github.com/lexiqai/tts-api/internal/tts"
)

// Response headers describing a synthesis
const (
	headerRequestID = "X-Request-Id"
	headerLatencyMs = "X-Latency-Ms"
	headerChars     = "X-Chars"
)

// maxBodyBytes caps POST /tts bodies well above any accepted text
const maxBodyBytes = 1 << 20

const defaultSpeed = 1.0

// ttsRequestBody is the POST /tts payload. Omitted fields take the defaults.
type ttsRequestBody struct {
	Text  *string  `json:"text"`
	Lang  *string  `json:"lang"`
	Voice *string  `json:"voice"`
	Speed *float64 `json:"speed"`
}

type errorResponse struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

func (r *Router) handleTTS(w http.ResponseWriter, req *http.Request) {
	requestID := observability.NewRequestID()

	var body ttsRequestBody
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
		r.reject(w, "/tts", requestID, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if body.Text == nil {
		r.reject(w, "/tts", requestID, "invalid text: field required")
		return
	}

	ttsReq := tts.Request{
		Text:     *body.Text,
		Language: r.cfg.DefaultLang,
		Voice:    r.cfg.DefaultVoice,
		Speed:    defaultSpeed,
	}
	if body.Lang != nil {
		ttsReq.Language = tts.LanguageCode(*body.Lang)
	}
	if body.Voice != nil {
		ttsReq.Voice = *body.Voice
	}
	if body.Speed != nil {
		ttsReq.Speed = *body.Speed
	}

	r.synthesize(w, req, "/tts", requestID, ttsReq)
}

func (r *Router) handlePreview(w http.ResponseWriter, req *http.Request) {
	requestID := observability.NewRequestID()
	q := req.URL.Query()

	if !q.Has("text") {
		r.reject(w, "/tts/preview", requestID, "invalid text: query parameter required")
		return
	}

	ttsReq := tts.Request{
		Text:     q.Get("text"),
		Language: r.cfg.DefaultLang,
		Voice:    r.cfg.DefaultVoice,
		Speed:    defaultSpeed,
	}
	if q.Has("lang") {
		ttsReq.Language = tts.LanguageCode(q.Get("lang"))
	}
	if q.Has("voice") {
		ttsReq.Voice = q.Get("voice")
	}
	if q.Has("speed") {
		speed, err := strconv.ParseFloat(q.Get("speed"), 64)
		if err != nil {
			r.reject(w, "/tts/preview", requestID, fmt.Sprintf("invalid speed: %q is not a number", q.Get("speed")))
			return
		}
		ttsReq.Speed = speed
	}

	r.synthesize(w, req, "/tts/preview", requestID, ttsReq)
}

// synthesize validates ttsReq, runs it and writes the WAV or the error response
func (r *Router) synthesize(w http.ResponseWriter, req *http.Request, endpoint, requestID string, ttsReq tts.Request) {
	logger := r.logger.With().
		Str("request_id", requestID).
		Str("endpoint", endpoint).
		Logger()

	normalized, err := r.cfg.Limits.Normalize(ttsReq)
	if err != nil {
		if !tts.IsValidationError(err) {
			r.fail(w, req, logger, endpoint, requestID, ttsReq, err, false)
			return
		}
		r.reject(w, endpoint, requestID, err.Error())
		return
	}

	ctx := req.Context()
	if r.cfg.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.SynthesisTimeout)
		defer cancel()
	}

	result, err := r.synth.Synthesize(ctx, normalized)
	if err != nil {
		// Only the deadline set here counts as a timeout
		timedOut := ctx.Err() != nil && req.Context().Err() == nil
		r.fail(w, req, logger, endpoint, requestID, normalized, err, timedOut)
		return
	}

	chars := utf8.RuneCountInString(normalized.Text)
	observability.RecordTextChars(chars)
	observability.RecordRequest(endpoint, http.StatusOK)

	logger.Info().
		Str("lang", normalized.Language.String()).
		Str("voice", normalized.Voice).
		Int("chars", chars).
		Float64("speed", normalized.Speed).
		Int64("latency_ms", result.LatencyMs()).
		Int("bytes", len(result.WAV)).
		Msg("Synthesized speech")

	h := w.Header()
	h.Set("Content-Type", "audio/wav")
	h.Set("Content-Length", strconv.Itoa(len(result.WAV)))
	h.Set(headerRequestID, requestID)
	h.Set(headerLatencyMs, strconv.FormatInt(result.LatencyMs(), 10))
	h.Set(headerChars, strconv.Itoa(chars))
	h.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{
		"filename": fmt.Sprintf("tts_%s_%s.wav", normalized.Voice, requestID),
	}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.WAV); err != nil {
		logger.Warn().Err(err).Msg("Failed to write audio response")
	}
}

// reject answers a caller-input problem; nothing reaches the engine
func (r *Router) reject(w http.ResponseWriter, endpoint, requestID, detail string) {
	observability.RecordRequest(endpoint, http.StatusUnprocessableEntity)
	r.logger.Info().
		Str("request_id", requestID).
		Str("endpoint", endpoint).
		Str("detail", detail).
		Msg("Rejected synthesis request")
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: detail, RequestID: requestID})
}

func (r *Router) fail(w http.ResponseWriter, req *http.Request, logger zerolog.Logger, endpoint, requestID string, ttsReq tts.Request, err error, timedOut bool) {
	event := logger.Error().
		Err(err).
		Str("lang", ttsReq.Language.String()).
		Str("voice", ttsReq.Voice).
		Int("chars", utf8.RuneCountInString(ttsReq.Text))

	errType := "synthesis"
	var failure *tts.SynthesisFailure
	if errors.As(err, &failure) {
		event = event.Str("stage", failure.Stage)
		errType = "synthesis_" + failure.Stage
	}

	switch {
	case req.Context().Err() != nil:
		// The client went away; there is nobody to answer
		event.Msg("Client disconnected during synthesis")
		observability.RecordError("client_disconnect", "httpapi")
		observability.RecordRequest(endpoint, 499)
		return

	case timedOut:
		event.Dur("timeout", r.cfg.SynthesisTimeout).Msg("Synthesis timed out")
		observability.RecordError("timeout", "httpapi")
		observability.RecordRequest(endpoint, http.StatusGatewayTimeout)
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{
			Detail:    fmt.Sprintf("TTS timed out (%s) after %s", requestID, r.cfg.SynthesisTimeout.Round(time.Millisecond)),
			RequestID: requestID,
		})
		return
	}

	event.Msg("Synthesis failed")
	observability.RecordError(errType, "httpapi")
	observability.RecordRequest(endpoint, http.StatusInternalServerError)
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Detail:    fmt.Sprintf("TTS failed (%s): %v", requestID, err),
		RequestID: requestID,
	})
}
