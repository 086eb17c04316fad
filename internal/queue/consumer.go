/**
 * Queue Consumer for DocIntake Worker
 *
 * Consumes document intake jobs from the Redis-backed queue and hands them
 * to the document processor. Uses Asynq for queue management.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/docintake-worker/internal/errors"
	"github.com/adverant/nexus/docintake-worker/internal/processor"
)

// TaskProcessDocument is the registered task type for intake jobs.
const TaskProcessDocument = "process-document"

// JobData represents the structure of job data from the API
type JobData struct {
	JobID      string                 `json:"jobId"`
	UserID     string                 `json:"userId"`
	Filename   string                 `json:"filename"`
	MimeType   string                 `json:"mimeType,omitempty"`
	FileSize   int64                  `json:"fileSize,omitempty"`
	FileURL    string                 `json:"fileUrl,omitempty"`
	FileBuffer []byte                 // Set by custom UnmarshalJSON
	Language   string                 `json:"language,omitempty"`
	Provider   string                 `json:"provider,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON handles the fileBuffer field, which arrives either as a
// base64 string or as a Node.js Buffer object from older API versions.
func (j *JobData) UnmarshalJSON(data []byte) error {
	type Alias JobData
	aux := &struct {
		FileBuffer interface{} `json:"fileBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(j),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobData: %w", err)
	}

	if aux.FileBuffer != nil {
		switch v := aux.FileBuffer.(type) {
		case string:
			decoded, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
			}
			j.FileBuffer = decoded

		case map[string]interface{}:
			// Node.js Buffer object format (legacy compatibility)
			if bufferType, ok := v["type"].(string); ok && bufferType == "Buffer" {
				if dataArray, ok := v["data"].([]interface{}); ok {
					j.FileBuffer = make([]byte, len(dataArray))
					for i, val := range dataArray {
						if byteVal, ok := val.(float64); ok {
							j.FileBuffer[i] = byte(byteVal)
						} else {
							return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
						}
					}
				} else {
					return fmt.Errorf("Buffer object missing 'data' array")
				}
			} else {
				return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
			}

		default:
			return fmt.Errorf("fileBuffer must be either base64 string or Buffer object, got %T", v)
		}
	}

	return nil
}

// Consumer handles job consumption from the Redis queue
type Consumer struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.DocumentProcessorInterface
	config    *ConsumerConfig
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout time.Duration // Per-job processing timeout (default: 5 minutes)
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10, // Priority 10 for main queue
				"default":     1,  // Priority 1 for fallback
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff: 5s, 10s, 20s, capped at 60s
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, payload=%s, error=%v",
					task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client:    client,
		server:    server,
		mux:       mux,
		processor: cfg.Processor,
		config:    cfg,
	}

	mux.HandleFunc(TaskProcessDocument, consumer.handleProcessDocument)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			log.Printf("Queue consumer error: %v", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	log.Printf("Stopping queue consumer...")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	log.Printf("Queue consumer stopped")
	return nil
}

// handleProcessDocument processes a document intake job
func (c *Consumer) handleProcessDocument(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var jobData JobData
	if err := json.Unmarshal(task.Payload(), &jobData); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %w", err)
	}

	log.Printf("[Job %s] Processing document: filename=%s, size=%d bytes, user=%s",
		jobData.JobID, jobData.Filename, jobData.FileSize, jobData.UserID)

	if err := c.processor.UpdateJobStatus(ctx, jobData.JobID, "processing", 0, map[string]interface{}{
		"filename": jobData.Filename,
		"mimeType": jobData.MimeType,
		"fileSize": jobData.FileSize,
	}); err != nil {
		log.Printf("[Job %s] Warning: Failed to update status to processing: %v", jobData.JobID, err)
	}

	timeout := 5 * time.Minute
	if c.config.ProcessingTimeout > 0 {
		timeout = c.config.ProcessingTimeout
	}

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.processor.ProcessDocument(processCtx, &processor.ProcessRequest{
		JobID:      jobData.JobID,
		UserID:     jobData.UserID,
		Filename:   jobData.Filename,
		MimeType:   jobData.MimeType,
		FileSize:   jobData.FileSize,
		FileURL:    jobData.FileURL,
		FileBuffer: jobData.FileBuffer,
		Language:   jobData.Language,
		Provider:   jobData.Provider,
		Metadata:   jobData.Metadata,
	})

	duration := time.Since(startTime)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			log.Printf("[Job %s] Processing timed out after %v (timeout: %v)", jobData.JobID, duration, timeout)

			timeoutErr := errors.NewProcessingTimeoutError(jobData.JobID, timeout, err)
			errorMap := timeoutErr.ToMap()

			if updateErr := c.processor.UpdateJobStatus(ctx, jobData.JobID, "failed", 100, errorMap); updateErr != nil {
				log.Printf("[Job %s] Warning: Failed to update status to failed: %v", jobData.JobID, updateErr)
			}

			return fmt.Errorf("processing timeout: %w", timeoutErr)
		}

		log.Printf("[Job %s] Processing failed after %v: %v", jobData.JobID, duration, err)

		if updateErr := c.processor.UpdateJobStatus(ctx, jobData.JobID, "failed", 100, map[string]interface{}{
			"error":          err.Error(),
			"processingTime": duration.Milliseconds(),
		}); updateErr != nil {
			log.Printf("[Job %s] Warning: Failed to update status to failed: %v", jobData.JobID, updateErr)
		}

		return fmt.Errorf("document processing failed: %w", err)
	}

	log.Printf("[Job %s] Processing completed successfully in %v: category=%s, confidence=%.2f, documentId=%s",
		jobData.JobID, duration, result.Category, result.Confidence, result.DocumentID)

	if err := c.processor.UpdateJobStatus(ctx, jobData.JobID, "completed", 100, map[string]interface{}{
		"confidence":     result.Confidence,
		"processingTime": duration.Milliseconds(),
		"documentId":     result.DocumentID,
		"category":       result.Category,
		"language":       result.Language,
		"providerUsed":   result.ProviderUsed,
		"pageCount":      result.PageCount,
		"segmentCount":   result.SegmentCount,
		"ocrProcessed":   result.OCRProcessed,
	}); err != nil {
		log.Printf("[Job %s] Warning: Failed to update status to completed: %v", jobData.JobID, err)
	}

	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"redisURL":    c.config.RedisURL,
	}
}
