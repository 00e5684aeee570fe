// Package adapter implements the AI collaborators the orchestrator calls:
// chat-completion based text operations and the image generators.
package adapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"promptcanvas/backend/internal/canvas"
	"promptcanvas/backend/internal/flow"
	apperrors "promptcanvas/backend/pkg/errors"
	"promptcanvas/backend/pkg/logger"
	"go.uber.org/zap"
)

var (
	_ flow.PromptEnhancer = (*LLMAdapter)(nil)
	_ flow.ImageDescriber = (*LLMAdapter)(nil)
	_ flow.PromptAnalyzer = (*LLMAdapter)(nil)
)

// LLMAdapter talks to an OpenAI-compatible chat endpoint (LiteLLM, OpenRouter)
type LLMAdapter struct {
	client      *openai.Client
	model       string
	visionModel string
	maxAttempts int
	mu          sync.RWMutex // guards model, visionModel and maxAttempts
	logger      *zap.Logger
}

// NewLLMAdapter creates an adapter for baseURL, which must not include the /v1 suffix.
// Each call makes a single request unless SetMaxAttempts raises the limit.
func NewLLMAdapter(baseURL, apiKey, modelID string) *LLMAdapter {
	// LiteLLM accepts any key when it holds the provider keys itself
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"

	return &LLMAdapter{
		client:      openai.NewClientWithConfig(config),
		model:       modelID,
		visionModel: modelID,
		maxAttempts: 1,
		logger:      logger.Named("llm"),
	}
}

// SetMaxAttempts lets callers outside the canvas flow retry rate limits and server
// errors. The orchestrator relies on one request per action, so it keeps the default.
func (a *LLMAdapter) SetMaxAttempts(n int) {
	if n < 1 {
		n = 1
	}
	a.mu.Lock()
	a.maxAttempts = n
	a.mu.Unlock()
}

// SetModel updates the text model
func (a *LLMAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("LLM adapter model updated", zap.String("model", model))
	}
}

// GetModel returns the text model
func (a *LLMAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// SetVisionModel updates the model used for image description
func (a *LLMAdapter) SetVisionModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.visionModel = model
		a.mu.Unlock()
	}
}

// GetVisionModel returns the model used for image description
func (a *LLMAdapter) GetVisionModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.visionModel
}

// Enhance rewrites prompt into a detailed text-to-image prompt
func (a *LLMAdapter) Enhance(ctx context.Context, prompt string) (string, error) {
	model := a.GetModel()
	content, err := a.complete(ctx, "enhance", openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: EnhanceSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// Describe asks the vision model for a description of a base64 image
func (a *LLMAdapter) Describe(ctx context.Context, imageBase64 string) (string, error) {
	dataURL, err := toDataURL(imageBase64)
	if err != nil {
		return "", err
	}

	model := a.GetVisionModel()
	content, err := a.complete(ctx, "describe", openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: DescribeSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Describe this image."},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// analysisResponse is the JSON shape the decomposition prompts ask for
type analysisResponse struct {
	Segments []canvas.Segment `json:"segments"`
}

// Analyze decomposes prompt according to kind
func (a *LLMAdapter) Analyze(ctx context.Context, kind canvas.StructuredKind, prompt string) ([]canvas.Segment, error) {
	op := string(kind)
	content, err := a.complete(ctx, op, openai.ChatCompletionRequest{
		Model: a.GetModel(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analysisPrompt(kind)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	segments, err := parseSegments(content)
	if err != nil {
		a.logger.Warn("Unparseable analysis response",
			zap.String("kind", op),
			zap.String("content", truncateString(content, 200)),
			zap.Error(err),
		)
		return nil, apperrors.NewAIRequestFailed(op, a.GetModel(), false, err)
	}
	return segments, nil
}

// parseSegments reads the segments object, tolerating a markdown code fence and
// dropping segments with no text
func parseSegments(content string) ([]canvas.Segment, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}

	var resp analysisResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse segments: %w", err)
	}

	out := make([]canvas.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		out = append(out, canvas.Segment{Label: strings.TrimSpace(s.Label), Text: s.Text})
	}
	return out, nil
}

// complete runs one chat completion. With more than one attempt allowed it retries
// only rate limits and server errors.
func (a *LLMAdapter) complete(ctx context.Context, op string, req openai.ChatCompletionRequest) (string, error) {
	a.mu.RLock()
	attempts := a.maxAttempts
	a.mu.RUnlock()

	var (
		resp openai.ChatCompletionResponse
		err  error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			a.logger.Warn("Retrying LLM request",
				zap.String("operation", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return "", apperrors.NewContextCancelled(op, ctx.Err())
			case <-time.After(backoff):
			}
		}

		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		a.logger.Error("LLM request failed",
			zap.String("operation", op),
			zap.String("model", req.Model),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return "", apperrors.NewContextCancelled(op, ctx.Err())
		}
		if !retryable(err) {
			break
		}
	}
	if err != nil {
		return "", apperrors.NewAIRequestFailed(op, req.Model, retryable(err), err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", apperrors.NewAIEmptyResult(op)
	}

	a.logger.Debug("LLM response generated",
		zap.String("operation", op),
		zap.String("model", req.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// retryable reports whether the upstream status suggests trying again
func retryable(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// toDataURL wraps raw base64 in a data URL, sniffing the image type. Input that is
// already a data URL is passed through.
func toDataURL(imageBase64 string) (string, error) {
	if strings.HasPrefix(imageBase64, "data:") {
		return imageBase64, nil
	}
	raw, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return "", fmt.Errorf("image is not valid base64: %w", err)
	}
	return "data:" + http.DetectContentType(raw) + ";base64," + imageBase64, nil
}

// truncateString truncates a string for logging
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
