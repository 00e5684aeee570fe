package adapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"promptcanvas/backend/internal/flow"
	apperrors "promptcanvas/backend/pkg/errors"
	"promptcanvas/backend/pkg/logger"
	"go.uber.org/zap"
)

var _ flow.ImageGenerator = (*RunPodImageGenerator)(nil)

// DefaultRunPodBaseURL is the RunPod serverless API root
const DefaultRunPodBaseURL = "https://api.runpod.ai/v2"

// RunPodImageGenerator runs image jobs on a RunPod serverless endpoint
type RunPodImageGenerator struct {
	apiKey       string
	endpointID   string
	baseURL      string
	httpClient   *http.Client
	maxPolls     int
	pollInterval time.Duration
	logger       *zap.Logger
}

// RunPodOption configures a RunPodImageGenerator
type RunPodOption func(*RunPodImageGenerator)

// WithRunPodBaseURL overrides the API root
func WithRunPodBaseURL(url string) RunPodOption {
	return func(g *RunPodImageGenerator) { g.baseURL = strings.TrimSuffix(url, "/") }
}

// WithPolling sets how often and how many times job status is checked
func WithPolling(maxPolls int, interval time.Duration) RunPodOption {
	return func(g *RunPodImageGenerator) {
		g.maxPolls = maxPolls
		g.pollInterval = interval
	}
}

// JobRequest represents a job submission request
type JobRequest struct {
	Input map[string]interface{} `json:"input"`
}

// JobResponse represents the response from job submission
type JobResponse struct {
	ID string `json:"id"`
}

// JobStatus represents the status of a job
type JobStatus struct {
	ID     string                 `json:"id,omitempty"`
	Status string                 `json:"status"`
	Output map[string]interface{} `json:"output,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// NewRunPodImageGenerator creates a generator for one endpoint
func NewRunPodImageGenerator(apiKey, endpointID string, opts ...RunPodOption) *RunPodImageGenerator {
	g := &RunPodImageGenerator{
		apiKey:     apiKey,
		endpointID: endpointID,
		baseURL:    DefaultRunPodBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxPolls:     120,
		pollInterval: 2 * time.Second,
		logger:       logger.Named("runpod"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate submits a job, waits for it, and returns the first image
func (g *RunPodImageGenerator) Generate(ctx context.Context, params flow.ImageParams) (*flow.Image, error) {
	input := map[string]interface{}{
		"prompt":       params.Prompt,
		"model":        params.Model,
		"width":        params.Width,
		"height":       params.Height,
		"aspect_ratio": params.AspectRatio,
	}
	if params.InputImage != "" {
		input["image"] = params.InputImage
	}

	jobID, err := g.SubmitJob(ctx, input)
	if err != nil {
		return nil, g.wrap(ctx, params.Model, err)
	}

	status, err := g.PollStatus(ctx, jobID)
	if err != nil {
		return nil, g.wrap(ctx, params.Model, err)
	}

	data, err := JobImage(status)
	if err != nil {
		return nil, apperrors.NewAIRequestFailed("image", params.Model, false, err)
	}
	return &flow.Image{ImageData: data, ModelUsed: params.Model}, nil
}

func (g *RunPodImageGenerator) wrap(ctx context.Context, model string, err error) error {
	if ctx.Err() != nil {
		return apperrors.NewContextCancelled("image", ctx.Err())
	}
	if apperrors.IsErrorType(err, apperrors.ErrorTypeAI) {
		return err
	}
	return apperrors.NewAIRequestFailed("image", model, false, err)
}

// SubmitJob submits an input payload to the endpoint and returns the job id
func (g *RunPodImageGenerator) SubmitJob(ctx context.Context, input map[string]interface{}) (string, error) {
	url := fmt.Sprintf("%s/%s/run", g.baseURL, g.endpointID)

	jsonData, err := json.Marshal(JobRequest{Input: input})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	g.logger.Debug("Submitting job to RunPod", zap.String("endpoint", g.endpointID))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit job: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		g.logger.Error("RunPod API error",
			zap.Int("status_code", resp.StatusCode),
			zap.String("endpoint_id", g.endpointID),
			zap.String("response_body", truncateString(string(body), 500)),
		)
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
		return "", apperrors.NewAIRequestFailed("image", "", retry,
			fmt.Errorf("RunPod API error: status %d, body: %s", resp.StatusCode, truncateString(string(body), 200)))
	}

	var jobResp JobResponse
	if err := json.Unmarshal(body, &jobResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if jobResp.ID == "" {
		return "", fmt.Errorf("empty job ID in response")
	}

	g.logger.Info("Job submitted", zap.String("job_id", jobResp.ID))
	return jobResp.ID, nil
}

// PollStatus polls until the job completes, fails, or runs out of polls
func (g *RunPodImageGenerator) PollStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	url := fmt.Sprintf("%s/%s/status/%s", g.baseURL, g.endpointID, jobID)

	for i := 0; i < g.maxPolls; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.pollInterval):
			}
		}

		status, err := g.fetchStatus(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warn("Poll request failed, retrying",
				zap.String("job_id", jobID),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			continue
		}

		switch status.Status {
		case "COMPLETED":
			return status, nil
		case "FAILED", "CANCELLED", "TIMED_OUT":
			return status, apperrors.NewAIJobFailed(jobID, status.Status, status.Error)
		case "IN_QUEUE", "IN_PROGRESS":
		default:
			g.logger.Warn("Unknown job status", zap.String("status", status.Status))
		}
	}

	return nil, fmt.Errorf("job %s did not complete within %d polls", jobID, g.maxPolls)
}

func (g *RunPodImageGenerator) fetchStatus(ctx context.Context, url string) (*JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var status JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

// JobImage extracts the first base64 image from a completed job. Workers answer
// either {"images":[{"data":...}]} or {"image":...}.
func JobImage(status *JobStatus) (string, error) {
	if status == nil || status.Output == nil {
		return "", fmt.Errorf("no output in job status")
	}

	var data string
	if images, ok := status.Output["images"].([]interface{}); ok && len(images) > 0 {
		if obj, ok := images[0].(map[string]interface{}); ok {
			data, _ = obj["data"].(string)
		}
	}
	if data == "" {
		data, _ = status.Output["image"].(string)
	}
	if data == "" {
		return "", fmt.Errorf("no image in job output")
	}

	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len(";base64,"):]
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return "", fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return data, nil
}
