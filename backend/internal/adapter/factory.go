package adapter

import (
	"promptcanvas/backend/internal/flow"
	"promptcanvas/backend/pkg/config"
	apperrors "promptcanvas/backend/pkg/errors"
)

// NewImageGenerator picks the image backend named by cfg.ImageProvider
func NewImageGenerator(cfg *config.Config) (flow.ImageGenerator, error) {
	switch cfg.ImageProvider {
	case config.ImageProviderOpenAI:
		return NewOpenAIImageGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey), nil
	case config.ImageProviderRunPod:
		return NewRunPodImageGenerator(cfg.RunPodAPIKey, cfg.RunPodEndpointID), nil
	}
	return nil, apperrors.NewConfigValidationFailed("IMAGE_PROVIDER", "unknown provider "+cfg.ImageProvider)
}
