/**
 * Classifier Client - Document Category Classification
 *
 * This client delegates classification to the LLM gateway service. The
 * worker supplies the selected text; the gateway owns vendor HTTP calls,
 * auth, and response parsing, and returns exactly one label from the
 * closed category set. Labels outside the set are mapped to the fallback
 * category and flagged so callers can tell a real classification from a
 * degraded one.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/docintake-worker/internal/logging"
)

// FallbackLabel is returned when the gateway produces a label outside the
// closed category set.
const FallbackLabel = "other"

// knownLabels is the closed category set the gateway is expected to answer
// from. Anything else is degraded to FallbackLabel.
var knownLabels = map[string]bool{
	"invoice":        true,
	"receipt":        true,
	"contract":       true,
	"letter":         true,
	"report":         true,
	"form":           true,
	"identification": true,
	"other":          true,
}

// ClassifierClient handles communication with the classification gateway
type ClassifierClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClassificationRequest represents a request to classify document text
type ClassificationRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"modelId"`
	JobID   string `json:"jobId,omitempty"`
}

// ClassificationResponse represents the gateway response
type ClassificationResponse struct {
	Success bool               `json:"success"`
	Data    ClassificationData `json:"data"`
	Message string             `json:"message"`
}

// ClassificationData contains the label and metadata
type ClassificationData struct {
	Label          string  `json:"label"`
	Confidence     float64 `json:"confidence"`
	ModelUsed      string  `json:"modelUsed"`
	ProcessingTime int64   `json:"processingTime"` // milliseconds
}

// Classification is the worker-facing result. Fallback is true when the
// gateway's label was not in the closed set and was replaced.
type Classification struct {
	Label      string
	Confidence float64
	ModelUsed  string
	Fallback   bool
}

// NewClassifierClient creates a new classifier client
func NewClassifierClient(baseURL string) *ClassifierClient {
	return &ClassifierClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // LLM calls can take time
		},
		logger: logging.NewLogger("ClassifierClient"),
	}
}

// Classify sends document text to the gateway and returns one label from the
// closed category set
func (c *ClassifierClient) Classify(ctx context.Context, text, modelID, jobID string) (*Classification, error) {
	c.logger.Info("Requesting classification from gateway",
		"modelId", modelID,
		"jobId", jobID,
		"textLength", len(text))

	endpoint := fmt.Sprintf("%s/api/internal/classify/document", c.baseURL)

	reqBody, err := json.Marshal(&ClassificationRequest{
		Text:    text,
		ModelID: modelID,
		JobID:   jobID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "docintake-worker")
	httpReq.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to classification gateway failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classification gateway returned error status %d: %s", resp.StatusCode, string(body))
	}

	var clsResp ClassificationResponse
	if err := json.Unmarshal(body, &clsResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !clsResp.Success {
		return nil, fmt.Errorf("classification gateway operation failed: %s", clsResp.Message)
	}

	result := &Classification{
		Label:      normalizeLabel(clsResp.Data.Label),
		Confidence: clsResp.Data.Confidence,
		ModelUsed:  clsResp.Data.ModelUsed,
	}
	if !knownLabels[result.Label] {
		c.logger.Warn("Gateway returned label outside closed set, using fallback",
			"label", clsResp.Data.Label,
			"fallback", FallbackLabel)
		result.Label = FallbackLabel
		result.Fallback = true
	}

	c.logger.Info("Classification complete",
		"label", result.Label,
		"modelUsed", result.ModelUsed,
		"confidence", result.Confidence,
		"fallback", result.Fallback,
		"processingTime", clsResp.Data.ProcessingTime)

	return result, nil
}

// HealthCheck verifies the classification gateway is available
func (c *ClassifierClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/api/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
