package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	soundscape "github.com/cbegin/soundscape-go"
	"github.com/cbegin/soundscape-go/internal/api"
	"github.com/cbegin/soundscape-go/internal/config"
	"github.com/cbegin/soundscape-go/internal/logger"
)

const (
	sentryFlushTimeout = 2 * time.Second
	shutdownTimeout    = 5 * time.Second
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Release:     "soundscaped@" + releaseVersion,
			Debug:       !cfg.IsProduction(),
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("Sentry initialized (environment: %s, release: %s)", cfg.Environment, releaseVersion)
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		log.Println("Sentry not configured (SENTRY_DSN not set)")
	}

	opts := []soundscape.EngineOption{
		soundscape.WithLookahead(cfg.Lookahead),
		soundscape.WithTickInterval(cfg.TickInterval),
		soundscape.WithLimits(cfg.Limits()),
		soundscape.WithAudioOutput(cfg.AudioOutput),
	}
	if cfg.Seed != 0 {
		opts = append(opts, soundscape.WithSeed(cfg.Seed))
	}
	engine, err := soundscape.New(cfg.SampleRate, opts...)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to create engine: ", err)
	}
	go reportDiagnostics(engine.Watch())

	if cfg.PatchFile != "" {
		data, err := os.ReadFile(cfg.PatchFile)
		if err != nil {
			log.Fatal("Failed to read patch: ", err)
		}
		if err := engine.LoadPatch(data); err != nil {
			log.Fatal("Failed to load patch: ", err)
		}
		if err := engine.Start(); err != nil {
			logger.Error("Failed to start playback", err, logger.Fields{"patch": cfg.PatchFile})
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.SetupRouter(engine, cfg),
	}
	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.CaptureException(err)
			log.Fatal("Failed to start server: ", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		logger.Error("Server shutdown", err, nil)
	}
	if err := engine.Stop(); err != nil {
		logger.Error("Engine stop", err, nil)
	}
}

// reportDiagnostics drains engine diagnostics. The engine already logs
// them; fatal ones are also sent to Sentry as messages.
func reportDiagnostics(ch <-chan soundscape.Diagnostic) {
	for d := range ch {
		if d.Severity == soundscape.SeverityFatal {
			sentry.CaptureMessage(d.String())
		}
	}
}
