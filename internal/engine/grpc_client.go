package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lexiqai/tts-api/internal/tts"
)

// Synthesizer service exposed by the engine sidecar
const (
	ServiceName        = "kokoro.v1.Synthesizer"
	loadPipelineMethod = "/" + ServiceName + "/LoadPipeline"
	synthesizeMethod   = "/" + ServiceName + "/Synthesize"
)

var synthesizeStreamDesc = grpc.StreamDesc{
	StreamName:    "Synthesize",
	ServerStreams: true,
}

// GRPCClient constructs pipelines on a gRPC engine sidecar.
// One connection is shared by every language pipeline.
type GRPCClient struct {
	target string
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	logger zerolog.Logger
}

// NewGRPCClient creates a client for the engine at target. The connection is
// established lazily; extra options are appended to the defaults.
func NewGRPCClient(target string, logger zerolog.Logger, extra ...grpc.DialOption) (*GRPCClient, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		// Keepalive settings for long-lived connections
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine client for %s: %w", target, err)
	}

	return &GRPCClient{
		target: target,
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		logger: logger.With().Str("component", "engine_grpc").Str("target", target).Logger(),
	}, nil
}

// NewPipeline asks the engine to load the pipeline for lang. The call waits
// for the sidecar to become reachable until ctx expires.
func (c *GRPCClient) NewPipeline(ctx context.Context, repoID string, lang tts.LanguageCode) (tts.Pipeline, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"repo_id":   repoID,
		"lang_code": lang.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build load request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, loadPipelineMethod, req, resp, grpc.WaitForReady(true)); err != nil {
		return nil, fmt.Errorf("engine LoadPipeline failed: %w", statusError(err))
	}

	c.logger.Debug().
		Str("lang", lang.String()).
		Str("repo_id", repoID).
		Interface("engine_info", resp.AsMap()).
		Msg("Engine loaded pipeline")

	return &grpcPipeline{client: c, repoID: repoID, lang: lang}, nil
}

// HealthCheck reports whether the engine serves the synthesizer service
func (c *GRPCClient) HealthCheck(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, fmt.Errorf("engine health check failed: %w", statusError(err))
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Close closes the gRPC connection
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

type grpcPipeline struct {
	client *GRPCClient
	repoID string
	lang   tts.LanguageCode
}

func (p *grpcPipeline) Generate(ctx context.Context, text, voice string, speed float64) (tts.ChunkStream, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"repo_id":   p.repoID,
		"lang_code": p.lang.String(),
		"text":      text,
		"voice":     voice,
		"speed":     speed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build synthesis request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, err := p.client.conn.NewStream(ctx, &synthesizeStreamDesc, synthesizeMethod)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("engine Synthesize failed: %w", statusError(err))
	}
	if err := stream.SendMsg(req); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to send synthesis request: %w", statusError(err))
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to close synthesis request: %w", statusError(err))
	}

	return &grpcChunkStream{stream: stream, cancel: cancel}, nil
}

// grpcChunkStream adapts the server stream of BytesValue frames
type grpcChunkStream struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
}

func (s *grpcChunkStream) Next() ([]float32, error) {
	frame := &wrapperspb.BytesValue{}
	if err := s.stream.RecvMsg(frame); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("engine stream failed: %w", statusError(err))
	}
	return DecodeSamples(frame.GetValue())
}

func (s *grpcChunkStream) Close() error {
	s.cancel()
	return nil
}

// statusError turns a gRPC status into an error carrying its code and message
func statusError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	return fmt.Errorf("%s: %s", st.Code(), st.Message())
}
