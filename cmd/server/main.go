package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-scribe/internal/audio/device"
	"github.com/lexiqai/voice-scribe/internal/config"
	"github.com/lexiqai/voice-scribe/internal/gateway"
	"github.com/lexiqai/voice-scribe/internal/observability"
	"github.com/lexiqai/voice-scribe/internal/realtime"
	"github.com/lexiqai/voice-scribe/internal/recording"
	"github.com/lexiqai/voice-scribe/internal/resilience"
	"github.com/lexiqai/voice-scribe/internal/stt"
)

func main() {
	listDevices := flag.Bool("list-devices", false, "print available audio devices and exit")
	flag.Parse()

	if *listDevices {
		if err := printDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list audio devices: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(observability.LoggerOptions{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		File:   cfg.LogFile,
	})
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("backend", cfg.RealtimeBackend).
		Str("model", cfg.RealtimeModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Scribe Service starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One breaker per upstream, shared across sessions
	breaker := resilience.NewCircuitBreaker(
		upstreamName(cfg),
		cfg.CircuitBreakerMaxFailures,
		cfg.BreakerResetTimeout(),
	)

	controller := recording.NewController(recording.Config{
		Factory:     transportFactory(cfg, breaker),
		InitTimeout: cfg.InitTimeout(),
		Backend:     cfg.RealtimeBackend,
	})

	checks := []observability.NamedCheck{
		{Name: breaker.Name(), Check: breaker.HealthCheck},
		{Name: "controller", Check: controller.HealthCheck},
	}

	mux := http.NewServeMux()
	mux.Handle("/ws/session", gateway.NewHandler(ctx, controller, nil))
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks...))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// No write timeout: the dashboard feed is a long-lived WebSocket
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws/session", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	grpcHealth := observability.NewGRPCHealthServer(10*time.Second, checks...)
	go serveGRPCHealth(ctx, grpcHealth, cfg.GRPCHealthPort, logger)

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	// Release the microphone before the process exits
	controller.Stop()
	grpcHealth.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

// transportFactory builds a fresh transport per recording session
func transportFactory(cfg *config.Config, breaker *resilience.CircuitBreaker) realtime.Factory {
	micConfig := device.Config{
		SampleRate: cfg.AudioSampleRate,
		FrameSize:  cfg.AudioFrameSize,
		DeviceName: cfg.AudioInputDevice,
	}
	openMicrophone := device.MicrophoneOpener(micConfig)

	if cfg.RealtimeBackend == config.BackendDeepgram {
		dgConfig := stt.DeepgramConfig{
			APIKey:         cfg.DeepgramAPIKey,
			Model:          cfg.DeepgramModel,
			Language:       cfg.DeepgramLanguage,
			EventQueueSize: cfg.RealtimeEventQueue,
		}
		return func(logger zerolog.Logger) realtime.Transport {
			return stt.NewDeepgramTransport(dgConfig, openMicrophone, breaker, logger)
		}
	}

	credentials := realtime.NewCredentialClient(cfg.RealtimeTokenURL, cfg.RealtimeTokenAPIKey, breaker)
	handshaker := realtime.NewHandshaker(cfg.RealtimeBaseURL, cfg.RealtimeModel)
	openSpeaker := device.SpeakerOpener(device.Config{
		SampleRate: cfg.AudioSampleRate,
		FrameSize:  cfg.AudioFrameSize,
		DeviceName: cfg.AudioOutputDevice,
	}, cfg.AudioBufferSize)
	rtcConfig := realtime.WebRTCConfig{
		ICEServers:     cfg.ICEServers,
		EventQueueSize: cfg.RealtimeEventQueue,
	}

	return func(logger zerolog.Logger) realtime.Transport {
		return realtime.NewWebRTCTransport(rtcConfig, credentials, handshaker, openMicrophone, openSpeaker, logger)
	}
}

func upstreamName(cfg *config.Config) string {
	if cfg.RealtimeBackend == config.BackendDeepgram {
		return "deepgram"
	}
	return "token_issuer"
}

func serveGRPCHealth(ctx context.Context, hs *observability.GRPCHealthServer, port string, logger zerolog.Logger) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		logger.Error().Err(err).Str("port", port).Msg("gRPC health listener failed")
		return
	}
	logger.Info().Str("port", port).Msg("gRPC health service listening")
	if err := hs.Serve(ctx, lis); err != nil {
		logger.Error().Err(err).Msg("gRPC health service stopped")
	}
}

func printDevices() error {
	devices, err := device.List()
	if err != nil {
		return err
	}
	for _, d := range devices {
		marker := " "
		switch {
		case d.IsDefaultInput && d.IsDefaultOutput:
			marker = "*"
		case d.IsDefaultInput:
			marker = "i"
		case d.IsDefaultOutput:
			marker = "o"
		}
		fmt.Printf("%s %-40s in=%d out=%d rate=%.0f\n",
			marker, d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
	}
	return nil
}
