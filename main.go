package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrsingh-rishi/live-voice/api"
	"github.com/mrsingh-rishi/live-voice/capture"
	"github.com/mrsingh-rishi/live-voice/config"
	"github.com/mrsingh-rishi/live-voice/live"
	"github.com/mrsingh-rishi/live-voice/metrics"
	"github.com/mrsingh-rishi/live-voice/output"
	"github.com/mrsingh-rishi/live-voice/session"
	"github.com/mrsingh-rishi/live-voice/workers"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("LIVE_VOICE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	// Load .env if present
	config.LoadDotEnv()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	logger := log.Default()
	m := metrics.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer, err := newDialer(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	speaker := output.NewSpeakerPlayer(config.OutputSampleRate, cfg.Playback.SpeakerBuffer, logger)
	playback, err := output.NewPlaybackQueue(speaker, m, logger)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	streamer, err := workers.NewOutboundStreamer(cfg.Audio.OutboundBuffer, m, logger)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	streamer.Verbose = cfg.Logging.Verbose
	streamer.Start()

	ctrl, err := session.NewController(session.Options{
		Live: live.Config{
			Model:           cfg.Gemini.Model,
			SystemPrompt:    cfg.Gemini.SystemPrompt,
			InputSampleRate: config.InputSampleRate,
		},
		Capture: capture.Config{
			SampleRate:   config.InputSampleRate,
			Channels:     config.Channels,
			FrameSamples: cfg.Audio.FrameSamples,
		},
		ConnectTimeout:   cfg.Gemini.ConnectTimeout,
		FlushOnInterrupt: cfg.Playback.FlushOnInterrupt,
		Verbose:          cfg.Logging.Verbose,
	}, session.Deps{
		Dialer:     dialer,
		Microphone: capture.NewMalgoMicrophone(logger),
		Playback:   playback,
		Streamer:   streamer,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	server, err := api.NewServer(ctrl, m.Registry, logger)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Listen(cfg.HTTP.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.AutoStart {
		if err := ctrl.Start(); err != nil {
			logger.Printf("❌ Autostart failed: %v", err)
		}
	}

	if err := g.Wait(); err != nil {
		logger.Printf("❌ Server error: %v", err)
	}

	_ = ctrl.Close()
	streamer.Stop()
	speaker.Close()
	logger.Println("👋 Bye")
}

func newDialer(ctx context.Context, cfg *config.Config, logger *log.Logger) (live.Dialer, error) {
	switch cfg.Gemini.Backend {
	case config.BackendWebSocket:
		return live.NewWebSocketDialer(cfg.Gemini.APIKey, cfg.Gemini.Endpoint, logger)
	default:
		return live.NewGeminiDialer(ctx, cfg.Gemini.APIKey, cfg.Gemini.BaseURL(), logger)
	}
}
