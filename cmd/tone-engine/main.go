package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/lexiqai/tts-api/internal/engine"
	"github.com/lexiqai/tts-api/internal/observability"
)

var opts struct {
	addr       string
	sampleRate int
	logLevel   string
	logPretty  bool
}

var rootCmd = &cobra.Command{
	Use:          "tone-engine",
	Short:        "Serve the synthesizer gRPC protocol with sine tones instead of speech",
	SilenceUsage: true,
	Long: `tone-engine implements the engine sidecar protocol without a model.
Every word of the input becomes a short sine burst whose pitch depends on
the voice id, so the API can be run and load-tested without Kokoro.`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.addr, "addr", ":50051", "Listen address")
	f.IntVar(&opts.sampleRate, "sample-rate", 24000, "Sample rate of the produced audio")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.BoolVar(&opts.logPretty, "log-pretty", false, "Pretty print logs")
}

func run(cmd *cobra.Command, _ []string) error {
	observability.InitLogger(opts.logLevel, opts.logPretty)
	logger := observability.GetLogger().With().Str("component", "tone_engine").Logger()

	lis, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", opts.addr, err)
	}

	server := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	engine.RegisterSynthesizerServer(server, engine.NewToneServer(opts.sampleRate, logger))

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", lis.Addr().String()).
			Int("sample_rate", opts.sampleRate).
			Msg("Tone engine listening")
		errCh <- server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}

	logger.Info().Msg("Shutting down tone engine...")
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		server.Stop()
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
