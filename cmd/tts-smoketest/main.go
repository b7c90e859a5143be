package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexiqai/tts-api/internal/audio"
	"github.com/lexiqai/tts-api/internal/config"
	"github.com/lexiqai/tts-api/internal/engine"
	"github.com/lexiqai/tts-api/internal/observability"
	"github.com/lexiqai/tts-api/internal/tts"
)

const defaultText = "Hello! This is a local Kokoro smoke test. If you can hear this clearly, the pipeline works."

var opts struct {
	lang       string
	voice      string
	speed      float64
	text       string
	outDir     string
	repoID     string
	sampleRate int
	transport  string
	engineURL  string
	timeout    time.Duration
	verbose    bool
}

var rootCmd = &cobra.Command{
	Use:          "tts-smoketest",
	Short:        "Synthesize one utterance through the engine and save it as WAV",
	SilenceUsage: true,
	Long: `tts-smoketest loads the pipeline for --lang on the configured engine,
synthesizes --text with --voice and writes the result to --out.

It exercises the same registry, synthesizer and WAV encoder as the API,
without the HTTP layer.`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.lang, "lang", "a", "Language code (a=en-US, b=en-GB, f=fr)")
	f.StringVar(&opts.voice, "voice", "af_bella", "Voice id (e.g. af_bella, af_heart, bf_emma)")
	f.Float64Var(&opts.speed, "speed", 1.0, "Speech speed (e.g. 0.9, 1.0, 1.1)")
	f.StringVar(&opts.text, "text", defaultText, "Text to synthesize")
	f.StringVar(&opts.outDir, "out", "out", "Directory the WAV file is written to")
	f.StringVar(&opts.repoID, "repo-id", config.GetEnv("TTS_REPO_ID", "hexgrad/Kokoro-82M"), "Model repository")
	f.IntVar(&opts.sampleRate, "sample-rate", 24000, "Sample rate written into the WAV header")
	f.StringVar(&opts.transport, "engine-transport", config.GetEnv("TTS_ENGINE_TRANSPORT", engine.TransportGRPC), "Engine transport (grpc or ws)")
	f.StringVar(&opts.engineURL, "engine-url", config.GetEnv("TTS_ENGINE_URL", "localhost:50051"), "Engine address")
	f.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall deadline, including pipeline load")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")
}

func run(cmd *cobra.Command, _ []string) error {
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	observability.InitLogger(level, true)
	logger := observability.GetLogger()

	lang, err := tts.ParseLanguage(opts.lang)
	if err != nil {
		return err
	}

	client, err := engine.New(opts.transport, opts.engineURL, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	registry := tts.NewRegistry(client, opts.repoID, 0, logger)
	synth := tts.NewSynthesizer(registry, opts.sampleRate, logger)

	// No speed clamp: the smoke test passes the speed through as given
	limits := tts.Limits{MaxChars: config.MaxMaxChars, MinSpeed: opts.speed, MaxSpeed: opts.speed}
	req, err := limits.Normalize(tts.Request{Text: opts.text, Language: lang, Voice: opts.voice, Speed: opts.speed})
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := synth.Synthesize(ctx, req)
	if err != nil {
		return err
	}
	took := time.Since(start)

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(opts.outDir, fmt.Sprintf("kokoro_%s_speed%g.wav", opts.voice, opts.speed))
	if err := os.WriteFile(path, result.WAV, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	wav, err := audio.DecodeWAV(result.WAV)
	if err != nil {
		return err
	}
	samples := audio.PCM16ToFloat(wav.Samples)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Saved: %s\n", path)
	fmt.Fprintf(out, "Generation time: %.2fs\n", took.Seconds())
	fmt.Fprintf(out, "Chars: %d\n", len([]rune(opts.text)))
	fmt.Fprintf(out, "Duration: %.2fs\n", audio.Duration(len(samples), wav.SampleRate))
	fmt.Fprintf(out, "Peak: %.3f RMS: %.3f\n", audio.Peak(samples), audio.RMS(samples))
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
