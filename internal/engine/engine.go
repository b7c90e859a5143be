package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-api/internal/tts"
)

// Transports understood by New
const (
	TransportGRPC      = "grpc"
	TransportWebSocket = "ws"
)

// Client is an engine transport able to construct pipelines
type Client interface {
	tts.PipelineFactory
	HealthCheck(ctx context.Context) (bool, error)
	Close() error
}

// New creates the client for transport at target
func New(transport, target string, logger zerolog.Logger) (Client, error) {
	var (
		client Client
		err    error
	)
	switch transport {
	case TransportGRPC:
		client, err = NewGRPCClient(target, logger)
	case TransportWebSocket:
		client, err = NewWSClient(target, logger)
	default:
		return nil, fmt.Errorf("unknown engine transport %q", transport)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}
