package tts

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// fakeFactory counts constructions and hands out fakePipelines
type fakeFactory struct {
	mu       sync.Mutex
	calls    map[LanguageCode]int
	total    atomic.Int32
	delay    time.Duration
	failNext atomic.Int32
	chunks   [][]float32
	genErr   error
	iterErr  error
	active   atomic.Int32
	overlap  atomic.Bool
}

func newFakeFactory(chunks ...[]float32) *fakeFactory {
	return &fakeFactory{calls: make(map[LanguageCode]int), chunks: chunks}
}

func (f *fakeFactory) NewPipeline(ctx context.Context, repoID string, lang LanguageCode) (Pipeline, error) {
	f.total.Add(1)
	f.mu.Lock()
	f.calls[lang]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failNext.Load() > 0 {
		f.failNext.Add(-1)
		return nil, errors.New("model download failed")
	}
	return &fakePipeline{factory: f, lang: lang, repoID: repoID}, nil
}

func (f *fakeFactory) callsFor(lang LanguageCode) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[lang]
}

type fakePipeline struct {
	factory *fakeFactory
	lang    LanguageCode
	repoID  string
}

func (p *fakePipeline) Generate(ctx context.Context, text, voice string, speed float64) (ChunkStream, error) {
	if p.factory.genErr != nil {
		return nil, p.factory.genErr
	}
	if p.factory.active.Add(1) > 1 {
		p.factory.overlap.Store(true)
	}
	return &fakeStream{pipeline: p, chunks: p.factory.chunks}, nil
}

type fakeStream struct {
	pipeline *fakePipeline
	chunks   [][]float32
	pos      int
	closed   bool
}

func (s *fakeStream) Next() ([]float32, error) {
	// give concurrent callers a chance to overlap
	time.Sleep(time.Millisecond)
	if s.pos >= len(s.chunks) {
		if s.pipeline.factory.iterErr != nil {
			return nil, s.pipeline.factory.iterErr
		}
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	// hand out a copy so callers cannot mutate the fixture
	return append([]float32(nil), c...), nil
}

func (s *fakeStream) Close() error {
	if !s.closed {
		s.closed = true
		s.pipeline.factory.active.Add(-1)
	}
	return nil
}
