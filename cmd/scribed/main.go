// Command scribed runs the transcription service: an HTTP API in front of
// an in-memory job store, a bounded worker pool, and the whisper/pyannote
// capability sidecars.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skillsenselab/scribed/audio"
	"github.com/skillsenselab/scribed/capability"
	"github.com/skillsenselab/scribed/config"
	"github.com/skillsenselab/scribed/diarization"
	"github.com/skillsenselab/scribed/diarization/pyannote"
	"github.com/skillsenselab/scribed/job"
	"github.com/skillsenselab/scribed/logger"
	"github.com/skillsenselab/scribed/scheduler"
	"github.com/skillsenselab/scribed/server"
	"github.com/skillsenselab/scribed/transcription"
	"github.com/skillsenselab/scribed/transcription/whisper"
	"github.com/skillsenselab/scribed/translation"
	"github.com/skillsenselab/scribed/translation/libre"
)

const gracefulTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scribed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(cfg.Logging)
	log := logger.WithComponent("main")
	log.Info("Starting scribed", map[string]interface{}{
		"environment": cfg.Environment,
	})

	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	// Capability registries. Whisper instances are keyed by model size;
	// calls are serialized because one sidecar process handles one
	// inference at a time.
	asr := capability.NewRegistry[transcription.Provider]("transcription",
		func(ctx context.Context, key string) (transcription.Provider, error) {
			pcfg := cfg.Whisper
			pcfg.Model = key
			p := whisper.NewProvider(pcfg)
			if !p.IsAvailable(ctx) {
				return nil, fmt.Errorf("whisper sidecar unreachable at %s", pcfg.URL)
			}
			return p, nil
		}, true)

	diar := capability.NewRegistry[diarization.Provider]("diarization",
		func(ctx context.Context, key string) (diarization.Provider, error) {
			p := pyannote.NewProvider(cfg.Pyannote)
			if !p.IsAvailable(ctx) {
				return nil, fmt.Errorf("pyannote sidecar unreachable at %s", cfg.Pyannote.URL)
			}
			return p, nil
		}, true)

	var translator *capability.Registry[translation.Provider]
	if cfg.Translation.Enabled {
		translator = capability.NewRegistry[translation.Provider]("translation",
			func(ctx context.Context, key string) (translation.Provider, error) {
				return libre.NewProvider(cfg.Translation.Libre), nil
			}, false)
	}

	hub := job.NewHub()
	store := job.NewStore(hub)
	pre := audio.NewPreprocessor(cfg.Audio, cfg.Storage.WorkDir)
	merger := diarization.NewMerger(cfg.Merge)
	coord := scheduler.NewCoordinator(store, pre, asr, diar, merger)
	sched := scheduler.New(cfg.Scheduler, store, coord, cfg.Storage.WorkDir)
	sched.Start()

	handler := server.NewHandler(server.HandlerDeps{
		Store:        store,
		Reporter:     job.NewReporter(store),
		Scheduler:    sched,
		AudioConfig:  cfg.Audio,
		UploadDir:    cfg.Storage.UploadDir,
		Models:       whisper.ModelSizes,
		DefaultModel: cfg.Whisper.Model,
		ASR:          asr,
		Diarization:  diar,
		Translator:   translator,
	})

	srv := server.New(cfg.Server, handler)
	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info("Shutting down", map[string]interface{}{
		"signal": sig.String(),
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, gracefulTimeout)
	defer cancel()

	// Stop the front door first so no new jobs arrive, then drain the
	// worker pool.
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("Server shutdown", map[string]interface{}{"error": err.Error()})
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		log.Warn("Scheduler shutdown", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Shutdown complete")
	return nil
}
