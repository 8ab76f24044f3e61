package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wildsight/stream-classifier/internal/config"
	"github.com/wildsight/stream-classifier/internal/handlers"
	"github.com/wildsight/stream-classifier/internal/model"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	if cfg.OrtLibraryPath != "" {
		model.SetLibraryPath(cfg.OrtLibraryPath)
	}

	// Load order matters: the listener must not start until the engine and
	// the label table are ready, so no accepted channel can ever see an
	// unloaded model.
	log.Info("loading model",
		zap.String("model", cfg.ModelPath),
		zap.Int("concurrency", cfg.InferConcurrency))
	engine, err := model.LoadEngine(cfg.ModelPath, cfg.MetadataPath, cfg.InferConcurrency)
	if err != nil {
		log.Fatal("model load failed", zap.Error(err))
	}
	defer engine.Close()

	labels, err := model.LoadLabels(cfg.LabelsPath, engine.Metadata().OutputWidth())
	if err != nil {
		log.Fatal("label table load failed", zap.Error(err))
	}
	log.Info("model ready",
		zap.Int("classes", labels.Len()),
		zap.Int("image_size", engine.Metadata().ImageSize))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := handlers.NewHandler(ctx, engine, labels, cfg, log)
	health := handlers.Health(engine, labels)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		log.Fatal("server failed", zap.Error(err))
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	// Open sessions observe ctx cancellation and close their own channels;
	// Shutdown covers the plain HTTP endpoints.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
	log.Info("server stopped")
}
