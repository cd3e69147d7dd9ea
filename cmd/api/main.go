package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelforge/reelforge/internal/api"
	"github.com/reelforge/reelforge/internal/comfy"
	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/jobs"
	"github.com/reelforge/reelforge/internal/media"
	"github.com/reelforge/reelforge/internal/queue"
	"github.com/reelforge/reelforge/internal/store"
	"github.com/reelforge/reelforge/internal/storyboard"
	"github.com/reelforge/reelforge/internal/worker"
)

func main() {
	log.Println("Starting Reelforge API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Local media store
	mediaStore, err := store.New(cfg.MediaDir)
	if err != nil {
		log.Fatalf("Failed to initialize media store: %v", err)
	}
	log.Printf("Media store at %s", cfg.MediaDir)

	// Storyboard documents
	boards, err := storyboard.New(cfg.StoryboardDir)
	if err != nil {
		log.Fatalf("Failed to initialize storyboard store: %v", err)
	}

	// Assembly pipeline
	fetcher := media.NewFetcher(mediaStore)
	ffmpeg := media.NewFFmpeg()
	assembler, err := media.NewAssembler(fetcher, ffmpeg, mediaStore, cfg.WorkDir)
	if err != nil {
		log.Fatalf("Failed to initialize assembler: %v", err)
	}

	// Generation backend client
	backend := comfy.NewClient(cfg.BackendURL)
	log.Printf("Generation backend at %s", cfg.BackendURL)

	// Collect-task work queue is optional; without it, collect tasks run as
	// plain goroutines inside the orchestrator.
	var dispatcher jobs.Dispatcher
	var q *queue.Queue
	if cfg.QueueEnabled {
		q, err = queue.New(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to queue: %v", err)
		}
		defer q.Close()
		dispatcher = q
		log.Println("Connected to Redis queue")
	} else {
		log.Println("Queue disabled, collect tasks run in-process")
	}

	results := jobs.NewResultStore()
	orchestrator := jobs.NewOrchestrator(backend, mediaStore, results, dispatcher)

	// Create API handler
	handler := api.NewHandler(assembler, orchestrator, boards, mediaStore)
	router := api.NewRouter(handler, api.RouterConfig{
		APIKey:             cfg.APIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
		MediaRoot:          mediaStore.Root(),
	})

	if cfg.APIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if a queue is in use
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled && q != nil {
		log.Println("Worker enabled, starting collect processing...")
		w := worker.New(q, orchestrator)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if workerCancel != nil {
		workerCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
