package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/tts-api/internal/tts"
)

// wsEngine is a minimal engine speaking the pipeline protocol
type wsEngine struct {
	chunks    [][]float32
	failText  string
	hangText  string
	connects  atomic.Int32
	lastQuery atomic.Value
	lastPath  atomic.Value
}

var testUpgrader = websocket.Upgrader{}

func (e *wsEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	e.connects.Add(1)
	e.lastPath.Store(r.URL.Path)
	e.lastQuery.Store(r.URL.Query().Get("repo_id"))

	if err := conn.WriteJSON(controlMessage{Type: messageReady}); err != nil {
		return
	}

	for {
		var req generateMessage
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Text == e.hangText {
			conn.WriteMessage(websocket.BinaryMessage, EncodeSamples([]float32{0.1}))
			time.Sleep(200 * time.Millisecond)
			return
		}
		for _, c := range e.chunks {
			if err := conn.WriteMessage(websocket.BinaryMessage, EncodeSamples(c)); err != nil {
				return
			}
		}
		if req.Text == e.failText {
			conn.WriteJSON(controlMessage{Type: messageError, Message: "bad text"})
			continue
		}
		conn.WriteJSON(controlMessage{Type: messageDone})
	}
}

func startWSEngine(t *testing.T, e *wsEngine) *WSClient {
	t.Helper()
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	client, err := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), zerolog.Nop())
	require.NoError(t, err)
	return client
}

func TestNewWSClientRejectsHTTPScheme(t *testing.T) {
	_, err := NewWSClient("http://localhost:8080", zerolog.Nop())
	assert.Error(t, err)
}

func TestWSPipelineSynthesizes(t *testing.T) {
	e := &wsEngine{chunks: [][]float32{{0.25, -0.25}, {0.5}}}
	client := startWSEngine(t, e)
	ctx := context.Background()

	pipeline, err := client.NewPipeline(ctx, "hexgrad/Kokoro-82M", tts.LangFrench)
	require.NoError(t, err)
	assert.Equal(t, "/v1/pipelines/f", e.lastPath.Load())
	assert.Equal(t, "hexgrad/Kokoro-82M", e.lastQuery.Load())

	for i := 0; i < 2; i++ {
		stream, err := pipeline.Generate(ctx, "Bonjour", "ff_siwis", 1)
		require.NoError(t, err)
		chunks, err := collect(t, stream)
		require.NoError(t, err)
		assert.Equal(t, e.chunks, chunks)
	}
	assert.Equal(t, int32(1), e.connects.Load())
}

func TestWSPipelineEngineError(t *testing.T) {
	e := &wsEngine{chunks: [][]float32{{0.1}}, failText: "boom"}
	client := startWSEngine(t, e)
	ctx := context.Background()

	pipeline, err := client.NewPipeline(ctx, "repo", tts.LangAmericanEnglish)
	require.NoError(t, err)

	stream, err := pipeline.Generate(ctx, "boom", "af_heart", 1)
	require.NoError(t, err)
	_, err = collect(t, stream)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad text")

	// The connection stays usable after a reported error
	stream, err = pipeline.Generate(ctx, "fine", "af_heart", 1)
	require.NoError(t, err)
	_, err = collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, int32(1), e.connects.Load())
}

func TestWSPipelineReconnectsAfterDrop(t *testing.T) {
	e := &wsEngine{chunks: [][]float32{{0.1}}, hangText: "hang"}
	client := startWSEngine(t, e)
	ctx := context.Background()

	pipeline, err := client.NewPipeline(ctx, "repo", tts.LangAmericanEnglish)
	require.NoError(t, err)

	stream, err := pipeline.Generate(ctx, "hang", "af_heart", 1)
	require.NoError(t, err)
	_, err = collect(t, stream)
	require.Error(t, err)

	stream, err = pipeline.Generate(ctx, "again", "af_heart", 1)
	require.NoError(t, err)
	chunks, err := collect(t, stream)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
	assert.Equal(t, int32(2), e.connects.Load())
}

func TestWSPipelineContextCancel(t *testing.T) {
	e := &wsEngine{hangText: "hang"}
	client := startWSEngine(t, e)

	pipeline, err := client.NewPipeline(context.Background(), "repo", tts.LangAmericanEnglish)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	stream, err := pipeline.Generate(ctx, "hang", "af_heart", 1)
	require.NoError(t, err)
	_, err = collect(t, stream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWSHandshakeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg, _ := json.Marshal(controlMessage{Type: messageError, Message: "unknown repo"})
		conn.WriteMessage(websocket.TextMessage, msg)
	}))
	defer srv.Close()

	client, err := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), zerolog.Nop())
	require.NoError(t, err)

	_, err = client.NewPipeline(context.Background(), "repo", tts.LangAmericanEnglish)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown repo")
}

func TestWSHealthCheck(t *testing.T) {
	client := startWSEngine(t, &wsEngine{})
	ok, err := client.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
