package engine

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lexiqai/tts-api/internal/tts"
)

type fakeEngine struct {
	mu      sync.Mutex
	loads   []tts.LanguageCode
	calls   []SynthesisCall
	chunks  [][]float32
	loadErr error
	synErr  error
}

func (f *fakeEngine) LoadPipeline(ctx context.Context, repoID string, lang tts.LanguageCode) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	f.loads = append(f.loads, lang)
	return map[string]interface{}{"repo_id": repoID, "lang_code": lang.String()}, nil
}

func (f *fakeEngine) Synthesize(ctx context.Context, call SynthesisCall, send func([]float32) error) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	chunks, synErr := f.chunks, f.synErr
	f.mu.Unlock()

	for _, c := range chunks {
		if err := send(c); err != nil {
			return err
		}
	}
	return synErr
}

func startGRPCEngine(t *testing.T, srv SynthesizerServer) *GRPCClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterSynthesizerServer(s, srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	client, err := NewGRPCClient("passthrough:///bufnet", zerolog.Nop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func collect(t *testing.T, stream tts.ChunkStream) ([][]float32, error) {
	t.Helper()
	defer stream.Close()

	var out [][]float32
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, chunk)
	}
}

func TestGRPCSynthesizeStreamsChunksInOrder(t *testing.T) {
	engine := &fakeEngine{chunks: [][]float32{{0.1, 0.2}, {0.3}, {-0.4, 0.5, 0.6}}}
	client := startGRPCEngine(t, engine)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipeline, err := client.NewPipeline(ctx, "hexgrad/Kokoro-82M", tts.LangBritishEnglish)
	require.NoError(t, err)

	stream, err := pipeline.Generate(ctx, "Hello", "bf_emma", 1.25)
	require.NoError(t, err)

	chunks, err := collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, engine.chunks, chunks)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Equal(t, []tts.LanguageCode{tts.LangBritishEnglish}, engine.loads)
	require.Len(t, engine.calls, 1)
	assert.Equal(t, SynthesisCall{
		RepoID:   "hexgrad/Kokoro-82M",
		Language: tts.LangBritishEnglish,
		Text:     "Hello",
		Voice:    "bf_emma",
		Speed:    1.25,
	}, engine.calls[0])
}

func TestGRPCLoadPipelineError(t *testing.T) {
	client := startGRPCEngine(t, &fakeEngine{loadErr: errors.New("weights missing")})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.NewPipeline(ctx, "repo", tts.LangFrench)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights missing")
}

func TestGRPCSynthesizeErrorAfterChunks(t *testing.T) {
	engine := &fakeEngine{
		chunks: [][]float32{{0.1}},
		synErr: errors.New("phonemizer crashed"),
	}
	client := startGRPCEngine(t, engine)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipeline, err := client.NewPipeline(ctx, "repo", tts.LangAmericanEnglish)
	require.NoError(t, err)
	stream, err := pipeline.Generate(ctx, "Hi", "af_heart", 1)
	require.NoError(t, err)

	chunks, err := collect(t, stream)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phonemizer crashed")
	assert.Len(t, chunks, 1)
}

func TestGRPCHealthCheck(t *testing.T) {
	client := startGRPCEngine(t, &fakeEngine{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := client.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGRPCClientThroughSynthesizer(t *testing.T) {
	engine := &fakeEngine{chunks: [][]float32{{0.5, -0.5}, {1}}}
	client := startGRPCEngine(t, engine)

	registry := tts.NewRegistry(client, "repo", 5*time.Second, zerolog.Nop())
	synth := tts.NewSynthesizer(registry, 24000, zerolog.Nop())

	result, err := synth.Synthesize(context.Background(), tts.Request{
		Text:     "Hello",
		Language: tts.LangAmericanEnglish,
		Voice:    "af_heart",
		Speed:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Samples)
	assert.Equal(t, 2, result.Chunks)
	assert.Len(t, result.WAV, 44+3*2)
}

func TestGRPCSynthesizeRejectsEmptyText(t *testing.T) {
	client := startGRPCEngine(t, &fakeEngine{chunks: [][]float32{{0}}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipeline, err := client.NewPipeline(ctx, "repo", tts.LangAmericanEnglish)
	require.NoError(t, err)

	stream, err := pipeline.Generate(ctx, "", "af_heart", 1)
	require.NoError(t, err)
	_, err = collect(t, stream)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidArgument")
}

func TestParseSynthesisCall(t *testing.T) {
	in, err := structpb.NewStruct(map[string]interface{}{
		"repo_id":   "repo",
		"lang_code": "f",
		"text":      "Bonjour",
		"voice":     "ff_siwis",
	})
	require.NoError(t, err)

	call, err := parseSynthesisCall(in)
	require.NoError(t, err)
	assert.Equal(t, tts.LangFrench, call.Language)
	assert.Equal(t, 1.0, call.Speed)

	in.Fields["lang_code"] = structpb.NewStringValue("z")
	_, err = parseSynthesisCall(in)
	assert.Error(t, err)
}
