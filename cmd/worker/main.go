/**
 * DocIntake Worker - Main Entry Point
 *
 * Go worker for document intake processing.
 *
 * Architecture:
 * - Asynq consumer for Redis-backed job queue
 * - Extraction pipeline: direct text, image OCR, or per-page PDF processing
 * - Provider factory with circuit-breaker fallback routing
 * - Language detection, LLM-gateway classification, structure inference
 * - PostgreSQL persistence for documents, segments, and job status
 * - Redis pub/sub progress events for WebSocket streaming
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/docintake-worker/internal/config"
	"github.com/adverant/nexus/docintake-worker/internal/extract"
	"github.com/adverant/nexus/docintake-worker/internal/imaging"
	"github.com/adverant/nexus/docintake-worker/internal/logging"
	"github.com/adverant/nexus/docintake-worker/internal/ocr"
	"github.com/adverant/nexus/docintake-worker/internal/pdf"
	"github.com/adverant/nexus/docintake-worker/internal/processor"
	"github.com/adverant/nexus/docintake-worker/internal/queue"
	"github.com/adverant/nexus/docintake-worker/internal/storage"
)

const queueName = "docintake:jobs"

func main() {
	// Load environment variables
	if err := godotenv.Load(".env.docintake"); err != nil {
		log.Printf("Warning: .env.docintake not found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("DocIntake Worker starting...")
	log.Printf("Configuration loaded: Redis=%s, PostgreSQL=%s, Workers=%d",
		cfg.RedisURL, cfg.DatabaseURL, cfg.WorkerConcurrency)

	// Initialize storage manager (PostgreSQL + blob store)
	log.Printf("Connecting to storage (PostgreSQL + blob store)...")
	storageManager, err := storage.NewStorageManager(cfg.DatabaseURL, cfg.BlobDir)
	if err != nil {
		log.Fatalf("Failed to initialize storage manager: %v", err)
	}
	defer storageManager.Close()
	log.Printf("Storage manager initialized (blobs at %s)", cfg.BlobDir)

	// Initialize OCR provider factory with circuit-breaker fallback
	normalizer := imaging.NewNormalizer(cfg.MaxFileSize)
	engineManager := ocr.NewEngineManager([]string{cfg.DefaultLanguage}, cfg.TessdataPrefix)

	factory := ocr.NewFactory(ocr.ProviderTesseract)
	factory.Register(ocr.ProviderTesseract, func() ocr.Provider {
		return ocr.NewTesseractProvider(engineManager, normalizer, cfg.DefaultLanguage)
	})
	factory.Register(ocr.ProviderWorker, func() ocr.Provider {
		return ocr.NewWorkerProvider(cfg.TessdataPrefix)
	})
	defer factory.DisposeAll()
	log.Printf("OCR provider factory initialized (default=%s)", cfg.DefaultProvider)

	// Initialize PDF processor
	pdfProcessor := pdf.NewProcessor(factory, cfg.PDFScale, cfg.PDFBatchSize, logging.NewLogger("PDFProcessor"))

	// Initialize progress publisher (non-fatal if Redis pub/sub unavailable)
	var progress processor.ProgressPublisher
	progressPublisher, err := queue.NewProgressPublisher(cfg.RedisURL, cfg.ProgressChannel)
	if err != nil {
		log.Printf("WARNING: Progress publisher unavailable: %v. Jobs will run without progress events.", err)
	} else {
		defer progressPublisher.Close()
		progress = progressPublisher
		log.Printf("Progress publisher initialized (channel=%s)", cfg.ProgressChannel)
	}

	// Initialize document processor
	log.Printf("Initializing document processor...")
	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		MaxFileSize:       cfg.MaxFileSize,
		StorageManager:    storageManager,
		Factory:           factory,
		PDFProcessor:      pdfProcessor,
		Progress:          progress,
		ClassifierURL:     cfg.ClassifierURL,
		ClassifierModelID: cfg.ClassifierModelID,
		DefaultLanguage:   cfg.DefaultLanguage,
		DefaultProvider:   cfg.DefaultProvider,
		Strategy: extract.Config{
			Strategy:  extract.Strategy(cfg.ExtractionStrategy),
			MaxLength: cfg.MaxClassifyChars,
		},
	})
	if err != nil {
		log.Fatalf("Failed to initialize document processor: %v", err)
	}
	log.Printf("Document processor initialized")

	// Initialize queue consumer
	log.Printf("Connecting to Redis queue...")
	queueConsumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         queueName,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         proc,
		ProcessingTimeout: time.Duration(cfg.ProcessingTimeout) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}
	log.Printf("Queue consumer initialized with concurrency=%d", cfg.WorkerConcurrency)

	ctx := context.Background()
	if err := queueConsumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	// Print startup summary
	log.Printf("===========================================")
	log.Printf("DocIntake Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s", queueName)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Default language: %s", cfg.DefaultLanguage)
	log.Printf("Default provider: %s", cfg.DefaultProvider)
	log.Printf("Extraction strategy: %s", cfg.ExtractionStrategy)
	log.Printf("PDF: scale=%.1fx, batch=%d", cfg.PDFScale, cfg.PDFBatchSize)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	log.Printf("Stopping queue consumer...")
	if err := queueConsumer.Stop(ctx); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	} else {
		log.Printf("Queue consumer stopped successfully")
	}

	log.Printf("Releasing OCR providers...")
	if err := factory.DisposeAll(); err != nil {
		log.Printf("Error releasing OCR providers: %v", err)
	}

	log.Printf("Closing storage manager...")
	if err := storageManager.Close(); err != nil {
		log.Printf("Error closing storage manager: %v", err)
	} else {
		log.Printf("Storage manager closed")
	}

	log.Printf("Shutdown complete")
}
