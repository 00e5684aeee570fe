package adapter

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"promptcanvas/backend/internal/flow"
	apperrors "promptcanvas/backend/pkg/errors"
	"promptcanvas/backend/pkg/logger"
	"go.uber.org/zap"
)

var _ flow.ImageGenerator = (*OpenAIImageGenerator)(nil)

// OpenAIImageGenerator generates images through the OpenAI images API
type OpenAIImageGenerator struct {
	client *openai.Client
	logger *zap.Logger
}

// NewOpenAIImageGenerator creates a generator. An empty baseURL uses api.openai.com.
func NewOpenAIImageGenerator(baseURL, apiKey string) *OpenAIImageGenerator {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	}
	return &OpenAIImageGenerator{
		client: openai.NewClientWithConfig(config),
		logger: logger.Named("openai-image"),
	}
}

// Generate creates one image, or edits the input image when one is given
func (g *OpenAIImageGenerator) Generate(ctx context.Context, params flow.ImageParams) (*flow.Image, error) {
	size := imageSize(params.Model, params.Width, params.Height)
	// gpt-image models always answer in base64 and reject the format parameter
	format := openai.CreateImageResponseFormatB64JSON
	if strings.HasPrefix(params.Model, "gpt-image") {
		format = ""
	}

	g.logger.Debug("Generating image",
		zap.String("model", params.Model),
		zap.String("size", size),
		zap.Bool("edit", params.InputImage != ""),
	)

	var (
		resp openai.ImageResponse
		err  error
	)
	if params.InputImage != "" {
		resp, err = g.edit(ctx, params, size, format)
	} else {
		resp, err = g.client.CreateImage(ctx, openai.ImageRequest{
			Prompt:         params.Prompt,
			Model:          params.Model,
			N:              1,
			Size:           size,
			ResponseFormat: format,
		})
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewContextCancelled("image", ctx.Err())
		}
		return nil, apperrors.NewAIRequestFailed("image", params.Model, retryable(err), err)
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, apperrors.NewAIEmptyResult("image")
	}
	return &flow.Image{ImageData: resp.Data[0].B64JSON, ModelUsed: params.Model}, nil
}

// edit goes through a temp file because the edit endpoint takes a multipart upload
func (g *OpenAIImageGenerator) edit(ctx context.Context, params flow.ImageParams, size, format string) (openai.ImageResponse, error) {
	raw, err := base64.StdEncoding.DecodeString(params.InputImage)
	if err != nil {
		return openai.ImageResponse{}, fmt.Errorf("input image is not valid base64: %w", err)
	}

	f, err := os.CreateTemp("", "promptcanvas-input-*.png")
	if err != nil {
		return openai.ImageResponse{}, fmt.Errorf("failed to stage input image: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.Write(raw); err != nil {
		return openai.ImageResponse{}, fmt.Errorf("failed to stage input image: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return openai.ImageResponse{}, fmt.Errorf("failed to stage input image: %w", err)
	}

	return g.client.CreateEditImage(ctx, openai.ImageEditRequest{
		Image:          f,
		Prompt:         params.Prompt,
		Model:          params.Model,
		N:              1,
		Size:           size,
		ResponseFormat: format,
	})
}

// imageSize maps a pixel size onto the closest size the model accepts
func imageSize(model string, width, height int) string {
	orientation := 0
	switch {
	case width > height:
		orientation = 1
	case height > width:
		orientation = -1
	}

	switch {
	case model == openai.CreateImageModelDallE3:
		return [...]string{openai.CreateImageSize1024x1792, openai.CreateImageSize1024x1024, openai.CreateImageSize1792x1024}[orientation+1]
	case model == openai.CreateImageModelDallE2:
		return openai.CreateImageSize1024x1024
	default:
		return [...]string{"1024x1536", "1024x1024", "1536x1024"}[orientation+1]
	}
}
