package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-api/internal/tts"
)

// Control messages exchanged with a WebSocket engine
const (
	messageReady = "ready"
	messageDone  = "done"
	messageError = "error"
)

type controlMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type generateMessage struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

// WSClient constructs pipelines on a WebSocket engine. Each pipeline owns one
// connection, so synthesis on a pipeline is never concurrent.
type WSClient struct {
	baseURL *url.URL
	dialer  *websocket.Dialer
	logger  zerolog.Logger

	mu        sync.Mutex
	pipelines []*wsPipeline
}

// NewWSClient creates a client for the engine at baseURL (ws:// or wss://)
func NewWSClient(baseURL string, logger zerolog.Logger) (*WSClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid engine url %q: %w", baseURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid engine url %q: scheme must be ws or wss", baseURL)
	}

	return &WSClient{
		baseURL: u,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   64 * 1024,
			WriteBufferSize:  4096,
		},
		logger: logger.With().Str("component", "engine_ws").Str("target", u.Host).Logger(),
	}, nil
}

// NewPipeline connects the pipeline for lang and waits for the engine to
// report it loaded.
func (c *WSClient) NewPipeline(ctx context.Context, repoID string, lang tts.LanguageCode) (tts.Pipeline, error) {
	p := &wsPipeline{
		client: c,
		url:    c.pipelineURL(repoID, lang),
		lang:   lang,
	}
	if err := p.connect(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.pipelines = append(c.pipelines, p)
	c.mu.Unlock()
	return p, nil
}

// Close closes every pipeline connection, waiting for a synthesis in flight
// on each to finish.
func (c *WSClient) Close() error {
	c.mu.Lock()
	pipelines := c.pipelines
	c.pipelines = nil
	c.mu.Unlock()

	for _, p := range pipelines {
		p.closeConn()
	}
	return nil
}

// HealthCheck reports whether the engine accepts TCP connections
func (c *WSClient) HealthCheck(ctx context.Context) (bool, error) {
	host := c.baseURL.Host
	if c.baseURL.Port() == "" {
		port := "80"
		if c.baseURL.Scheme == "wss" {
			port = "443"
		}
		host = net.JoinHostPort(c.baseURL.Hostname(), port)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return false, fmt.Errorf("engine unreachable: %w", err)
	}
	conn.Close()
	return true, nil
}

func (c *WSClient) pipelineURL(repoID string, lang tts.LanguageCode) string {
	u := *c.baseURL
	u.Path = u.Path + "/v1/pipelines/" + lang.String()
	q := u.Query()
	q.Set("repo_id", repoID)
	u.RawQuery = q.Encode()
	return u.String()
}

type wsPipeline struct {
	client *WSClient
	url    string
	lang   tts.LanguageCode

	// mu is held from Generate until the returned stream is closed
	mu   sync.Mutex
	conn *websocket.Conn
}

// connect dials the pipeline endpoint and waits for the ready handshake
func (p *wsPipeline) connect(ctx context.Context) error {
	conn, _, err := p.client.dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to engine: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var msg controlMessage
	if err := conn.ReadJSON(&msg); err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("engine handshake failed: %w", err)
	}
	switch msg.Type {
	case messageReady:
	case messageError:
		conn.Close()
		return fmt.Errorf("engine failed to load pipeline: %s", msg.Message)
	default:
		conn.Close()
		return fmt.Errorf("engine handshake failed: unexpected message %q", msg.Type)
	}

	conn.SetReadDeadline(time.Time{})
	p.conn = conn

	p.client.logger.Debug().
		Str("lang", p.lang.String()).
		Msg("Engine pipeline connected")
	return nil
}

func (p *wsPipeline) Generate(ctx context.Context, text, voice string, speed float64) (tts.ChunkStream, error) {
	p.mu.Lock()

	// A connection dropped by an earlier synthesis is replaced here
	if p.conn == nil {
		if err := p.connect(ctx); err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}

	if err := p.conn.WriteJSON(generateMessage{Text: text, Voice: voice, Speed: speed}); err != nil {
		p.drop()
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to send synthesis request: %w", err)
	}

	conn := p.conn
	s := &wsChunkStream{pipeline: p, ctx: ctx}
	s.stop = context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	return s, nil
}

func (p *wsPipeline) closeConn() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// drop closes a connection that is no longer in a known protocol state
func (p *wsPipeline) drop() {
	if p.conn == nil {
		return
	}
	p.conn.Close()
	p.conn = nil
	p.client.logger.Warn().
		Str("lang", p.lang.String()).
		Msg("Dropped engine connection")
}

type wsChunkStream struct {
	pipeline *wsPipeline
	ctx      context.Context
	stop     func() bool
	finished bool
	closed   bool
}

func (s *wsChunkStream) Next() ([]float32, error) {
	if s.closed {
		return nil, errors.New("stream closed")
	}
	if s.finished {
		return nil, io.EOF
	}

	conn := s.pipeline.conn
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		s.pipeline.drop()
		s.finished = true
		if s.ctx.Err() != nil {
			return nil, s.ctx.Err()
		}
		return nil, fmt.Errorf("engine stream failed: %w", err)
	}

	if msgType == websocket.BinaryMessage {
		return DecodeSamples(data)
	}

	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.pipeline.drop()
		s.finished = true
		return nil, fmt.Errorf("invalid engine message: %w", err)
	}

	s.finished = true
	switch msg.Type {
	case messageDone:
		return nil, io.EOF
	case messageError:
		return nil, fmt.Errorf("engine synthesis failed: %s", msg.Message)
	default:
		s.pipeline.drop()
		return nil, fmt.Errorf("unexpected engine message %q", msg.Type)
	}
}

// Close drains an unfinished stream so the connection can be reused, then
// releases the pipeline.
func (s *wsChunkStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop()

	p := s.pipeline
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	if s.ctx.Err() != nil {
		p.drop()
		return nil
	}

	p.conn.SetReadDeadline(time.Time{})
	for !s.finished {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			p.drop()
			return nil
		}
		if msgType == websocket.TextMessage {
			var msg controlMessage
			if json.Unmarshal(data, &msg) == nil && (msg.Type == messageDone || msg.Type == messageError) {
				s.finished = true
			}
		}
	}
	return nil
}
