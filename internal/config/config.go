/**
 * Configuration for DocIntake Worker
 *
 * Loads configuration from environment variables matching .env.docintake
 */

package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration (job queue + progress events)
	RedisURL        string
	ProgressChannel string

	// PostgreSQL configuration
	DatabaseURL string

	// Blob storage for original uploads
	BlobDir string

	// Classification gateway
	ClassifierURL     string
	ClassifierModelID string

	// Worker configuration
	WorkerConcurrency int
	MaxFileSize       int64
	ProcessingTimeout int

	// OCR configuration
	TessdataPrefix  string
	DefaultLanguage string
	DefaultProvider string

	// PDF processing
	PDFBatchSize int
	PDFScale     float64

	// Extraction strategy for classification text
	ExtractionStrategy string
	MaxClassifyChars   int

	// Node environment
	Env string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:           getEnvOrDefault("REDIS_URL", "redis://nexus-redis:6379"),
		ProgressChannel:    getEnvOrDefault("PROGRESS_CHANNEL", "docintake:progress"),
		DatabaseURL:        getEnvOrThrow("DATABASE_URL"),
		BlobDir:            getEnvOrDefault("BLOB_DIR", "/var/lib/docintake/blobs"),
		ClassifierURL:      getEnvOrDefault("CLASSIFIER_URL", "http://nexus-classifier:8080"),
		ClassifierModelID:  getEnvOrDefault("CLASSIFIER_MODEL_ID", "default"),
		WorkerConcurrency:  getEnvAsIntOrDefault("WORKER_CONCURRENCY", 10),
		MaxFileSize:        getEnvAsInt64OrDefault("MAX_FILE_SIZE", 20971520), // 20MB
		ProcessingTimeout:  getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		TessdataPrefix:     getEnvOrDefault("TESSDATA_PREFIX", ""),
		DefaultLanguage:    getEnvOrDefault("DEFAULT_LANGUAGE", "en"),
		DefaultProvider:    getEnvOrDefault("DEFAULT_OCR_PROVIDER", "tesseract"),
		PDFBatchSize:       getEnvAsIntOrDefault("PDF_BATCH_SIZE", 3),
		PDFScale:           getEnvAsFloatOrDefault("PDF_SCALE", 2.0),
		ExtractionStrategy: getEnvOrDefault("EXTRACTION_STRATEGY", "FIRST_MIDDLE_LAST"),
		MaxClassifyChars:   getEnvAsIntOrDefault("MAX_CLASSIFY_CHARS", 12000),
		Env:                getEnvOrDefault("APP_ENV", "development"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 1073741824 { // 1KB to 1GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 1GB, got %d", c.MaxFileSize)
	}

	if c.PDFBatchSize < 1 || c.PDFBatchSize > 16 {
		return fmt.Errorf("PDF_BATCH_SIZE must be between 1 and 16, got %d", c.PDFBatchSize)
	}

	if c.PDFScale < 1.0 || c.PDFScale > 4.0 {
		return fmt.Errorf("PDF_SCALE must be between 1.0 and 4.0, got %f", c.PDFScale)
	}

	switch c.ExtractionStrategy {
	case "ALL", "FIRST_PAGE", "FIRST_LAST", "FIRST_MIDDLE_LAST":
	default:
		return fmt.Errorf("EXTRACTION_STRATEGY must be one of ALL, FIRST_PAGE, FIRST_LAST, FIRST_MIDDLE_LAST, got %s", c.ExtractionStrategy)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrThrow gets environment variable or returns error
func getEnvOrThrow(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
