package engine

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lexiqai/tts-api/internal/tts"
)

// SynthesisCall is one Synthesize request as seen by an engine implementation
type SynthesisCall struct {
	RepoID   string
	Language tts.LanguageCode
	Text     string
	Voice    string
	Speed    float64
}

// SynthesizerServer is implemented by Go engine sidecars
type SynthesizerServer interface {
	// LoadPipeline prepares the pipeline for lang; it may be called more than once
	LoadPipeline(ctx context.Context, repoID string, lang tts.LanguageCode) (map[string]interface{}, error)
	// Synthesize emits the audio for call in order through send
	Synthesize(ctx context.Context, call SynthesisCall, send func(chunk []float32) error) error
}

// RegisterSynthesizerServer registers srv and a health service reporting it as serving
func RegisterSynthesizerServer(s *grpc.Server, srv SynthesizerServer) *health.Server {
	s.RegisterService(&synthesizerServiceDesc, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

var synthesizerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SynthesizerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "LoadPipeline", Handler: loadPipelineHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Synthesize", Handler: synthesizeHandler, ServerStreams: true},
	},
}

func loadPipelineHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return loadPipeline(ctx, srv.(SynthesizerServer), req.(*structpb.Struct))
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: loadPipelineMethod}
	return interceptor(ctx, in, info, handler)
}

func loadPipeline(ctx context.Context, srv SynthesizerServer, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	repoID := fields["repo_id"].GetStringValue()
	lang, err := tts.ParseLanguage(fields["lang_code"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	info, err := srv.LoadPipeline(ctx, repoID, lang)
	if err != nil {
		return nil, toStatus(err)
	}

	resp, err := structpb.NewStruct(info)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "invalid pipeline info: %v", err)
	}
	return resp, nil
}

func synthesizeHandler(srv interface{}, stream grpc.ServerStream) error {
	in := &structpb.Struct{}
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	call, err := parseSynthesisCall(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	send := func(chunk []float32) error {
		return stream.SendMsg(wrapperspb.Bytes(EncodeSamples(chunk)))
	}
	if err := srv.(SynthesizerServer).Synthesize(stream.Context(), call, send); err != nil {
		return toStatus(err)
	}
	return nil
}

func parseSynthesisCall(in *structpb.Struct) (SynthesisCall, error) {
	fields := in.GetFields()

	lang, err := tts.ParseLanguage(fields["lang_code"].GetStringValue())
	if err != nil {
		return SynthesisCall{}, err
	}

	call := SynthesisCall{
		RepoID:   fields["repo_id"].GetStringValue(),
		Language: lang,
		Text:     fields["text"].GetStringValue(),
		Voice:    fields["voice"].GetStringValue(),
		Speed:    fields["speed"].GetNumberValue(),
	}
	if call.Text == "" {
		return SynthesisCall{}, fmt.Errorf("text is required")
	}
	if call.Voice == "" {
		return SynthesisCall{}, fmt.Errorf("voice is required")
	}
	if call.Speed <= 0 {
		call.Speed = 1.0
	}
	return call, nil
}

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}
