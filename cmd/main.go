package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/patlar104/GlobalTranslation/internal/apperr"
	"github.com/patlar104/GlobalTranslation/internal/backend/ocrhttp"
	openaibackend "github.com/patlar104/GlobalTranslation/internal/backend/openai"
	"github.com/patlar104/GlobalTranslation/internal/camera"
	"github.com/patlar104/GlobalTranslation/internal/config"
	"github.com/patlar104/GlobalTranslation/internal/download"
	"github.com/patlar104/GlobalTranslation/internal/httpapi"
	"github.com/patlar104/GlobalTranslation/internal/languages"
	"github.com/patlar104/GlobalTranslation/internal/network"
	"github.com/patlar104/GlobalTranslation/internal/persistence"
	"github.com/patlar104/GlobalTranslation/internal/recognition"
	"github.com/patlar104/GlobalTranslation/internal/translation"
	"github.com/patlar104/GlobalTranslation/pkg/log"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.Log.Level))
	if cfg.Log.File != "" {
		fileLogger, err := log.NewFileLogger(cfg.Log.File, log.ParseLevel(cfg.Log.Level))
		if err != nil {
			log.Fatal("Failed to open log file: %v", err)
		}
		defer fileLogger.Close()
	}

	store, err := persistence.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal("Failed to open store: %v", err)
	}
	defer store.Close()

	translationBackend, err := openaibackend.New(openaibackend.Config{
		APIKey:       cfg.Backend.APIKey,
		APIURL:       cfg.Backend.APIURL,
		Model:        cfg.Backend.Model,
		ManifestPath: cfg.Backend.ManifestPath,
	})
	if err != nil {
		log.Fatal("Failed to create translation backend: %v", err)
	}

	ocrBackend, err := ocrhttp.New(ocrhttp.Config{
		BaseURL: cfg.OCR.APIURL,
		Timeout: cfg.OpTimeout,
	})
	if err != nil {
		log.Fatal("Failed to create OCR backend: %v", err)
	}

	translator := translation.NewService(translationBackend, store, cfg.OpTimeout,
		translation.WithRetryPolicy(apperr.RetryPolicy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
		}))
	defer translator.Cleanup()
	recognizer := recognition.NewService(ocrBackend.NewRecognizer, cfg.OpTimeout)
	defer recognizer.Cleanup()

	conditions := translation.DownloadConditions{RequireWifi: !cfg.Download.AllowCellular}
	pipeline := camera.NewPipeline(recognizer, translator, cfg.Camera.MaxParallel, conditions)

	hub := network.NewHub(network.StateDisconnected)
	probe := network.NewProbe(hub, cfg.Download.ProbeURL, cfg.Download.ProbeInterval)
	probe.Start()
	defer probe.Stop()
	defer hub.Close()

	manager := download.NewManager(
		translator,
		hub,
		languages.Supported(),
		download.WithStatusTTL(cfg.Download.StatusTTL),
		download.WithAllowCellular(cfg.Download.AllowCellular),
	)
	defer manager.Close()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Download.RefreshCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.OpTimeout)
		defer cancel()
		manager.RefreshLanguages(ctx)
	}); err != nil {
		log.Fatal("Invalid refresh schedule %q: %v", cfg.Download.RefreshCron, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := httpapi.NewServer(translator, pipeline, manager, store, conditions)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed: %v", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP shutdown failed: %v", err)
		}
	}
}
