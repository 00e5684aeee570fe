package flow

import (
	"context"

	"promptcanvas/backend/internal/canvas"
)

// PromptEnhancer rewrites a prompt into a richer one
type PromptEnhancer interface {
	Enhance(ctx context.Context, prompt string) (string, error)
}

// ImageParams is what an image generator receives. AspectRatio, Width and Height
// are already resolved against the model registry.
type ImageParams struct {
	Prompt      string
	Model       string
	AspectRatio string
	Width       int
	Height      int
	InputImage  string // base64, empty unless the model accepts image input
}

// Image is a generated image
type Image struct {
	ImageData string // base64
	ModelUsed string
}

// ImageGenerator turns a prompt into an image
type ImageGenerator interface {
	Generate(ctx context.Context, params ImageParams) (*Image, error)
}

// ImageDescriber describes a base64 image in text
type ImageDescriber interface {
	Describe(ctx context.Context, imageBase64 string) (string, error)
}

// PromptAnalyzer decomposes a prompt into labelled segments
type PromptAnalyzer interface {
	Analyze(ctx context.Context, kind canvas.StructuredKind, prompt string) ([]canvas.Segment, error)
}
