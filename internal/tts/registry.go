package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/lexiqai/tts-api/internal/observability"
)

// pipelineEntry is a constructed pipeline plus the lock that serializes
// synthesis on it when the engine is not reentrant.
type pipelineEntry struct {
	pipeline Pipeline
	mu       sync.Mutex
}

// Registry lazily constructs and caches one pipeline per language code.
// Construction happens at most once per code for the life of the registry;
// a failed construction leaves no entry so the next caller tries again.
type Registry struct {
	repoID      string
	factory     PipelineFactory
	loadTimeout time.Duration
	logger      zerolog.Logger

	mu      sync.RWMutex
	entries map[LanguageCode]*pipelineEntry
	loads   singleflight.Group
}

// NewRegistry creates a registry constructing pipelines for repoID through factory.
// loadTimeout bounds a single construction; zero means no bound.
func NewRegistry(factory PipelineFactory, repoID string, loadTimeout time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		repoID:      repoID,
		factory:     factory,
		loadTimeout: loadTimeout,
		logger:      logger.With().Str("component", "pipeline_registry").Logger(),
		entries:     make(map[LanguageCode]*pipelineEntry),
	}
}

// Get returns the pipeline for lang, constructing it on first use
func (r *Registry) Get(ctx context.Context, lang LanguageCode) (Pipeline, error) {
	entry, err := r.entry(ctx, lang)
	if err != nil {
		return nil, err
	}
	return entry.pipeline, nil
}

// Loaded returns the language codes whose pipelines have been constructed
func (r *Registry) Loaded() []LanguageCode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loaded := make([]LanguageCode, 0, len(r.entries))
	for _, lang := range Languages {
		if _, ok := r.entries[lang]; ok {
			loaded = append(loaded, lang)
		}
	}
	return loaded
}

func (r *Registry) lookup(lang LanguageCode) (*pipelineEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[lang]
	return entry, ok
}

func (r *Registry) entry(ctx context.Context, lang LanguageCode) (*pipelineEntry, error) {
	if !lang.Valid() {
		return nil, fmt.Errorf("unsupported language code %q", string(lang))
	}

	if entry, ok := r.lookup(lang); ok {
		return entry, nil
	}

	// Concurrent first requests for the same code share one construction.
	// The construction is detached from the caller so that one disconnecting
	// client does not abort a load other callers are waiting on.
	ch := r.loads.DoChan(string(lang), func() (interface{}, error) {
		if entry, ok := r.lookup(lang); ok {
			return entry, nil
		}
		return r.construct(context.WithoutCancel(ctx), lang)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*pipelineEntry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) construct(ctx context.Context, lang LanguageCode) (*pipelineEntry, error) {
	if r.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.loadTimeout)
		defer cancel()
	}

	r.logger.Info().
		Str("lang", lang.String()).
		Str("repo_id", r.repoID).
		Msg("Loading synthesis pipeline")

	start := time.Now()
	pipeline, err := r.factory.NewPipeline(ctx, r.repoID, lang)
	took := time.Since(start)
	if err == nil && pipeline == nil {
		err = errors.New("engine returned no pipeline")
	}
	observability.RecordPipelineLoad(lang.String(), took, err == nil)

	if err != nil {
		r.logger.Error().
			Err(err).
			Str("lang", lang.String()).
			Dur("took", took).
			Msg("Failed to load synthesis pipeline")
		return nil, fmt.Errorf("load pipeline for lang %s: %w", lang, err)
	}

	entry := &pipelineEntry{pipeline: pipeline}

	r.mu.Lock()
	r.entries[lang] = entry
	r.mu.Unlock()

	r.logger.Info().
		Str("lang", lang.String()).
		Dur("took", took).
		Msg("Synthesis pipeline ready")

	return entry, nil
}
