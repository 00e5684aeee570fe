package state

import (
	"promptcanvas/backend/internal/canvas"
)

// PromptVariant names which form of a prompt an entry holds
type PromptVariant string

const (
	VariantOriginal    PromptVariant = "original"
	VariantEnhanced    PromptVariant = "enhanced"
	VariantStructured  PromptVariant = "structured"
	VariantAtomized    PromptVariant = "atomized"
	VariantSegmented   PromptVariant = "segmented"
	VariantDescription PromptVariant = "description"
)

// PromptEntry is a cached prompt text variant or decomposition
type PromptEntry struct {
	Text     string           `json:"text,omitempty"`
	Variant  PromptVariant    `json:"variant"`
	Segments []canvas.Segment `json:"segments,omitempty"`
}

// VariantFor maps a structured result kind to its cache variant
func VariantFor(kind canvas.StructuredKind) PromptVariant {
	switch kind {
	case canvas.KindAtomized:
		return VariantAtomized
	case canvas.KindSegmented:
		return VariantSegmented
	}
	return VariantStructured
}

// ImageEntry is a cached generated image
type ImageEntry struct {
	ImageData string `json:"imageData"`
	ModelUsed string `json:"modelUsed"`
	Prompt    string `json:"prompt,omitempty"`
}

// PromptCache holds prompt variants keyed by node id
type PromptCache = EntityStore[PromptEntry]

// ImageCache holds generated images keyed by node id
type ImageCache = EntityStore[ImageEntry]

// NewPromptCache creates an empty prompt cache
func NewPromptCache(opts ...StoreOption) *PromptCache {
	return NewEntityStore[PromptEntry]("prompts", opts...)
}

// NewImageCache creates an empty image cache
func NewImageCache(opts ...StoreOption) *ImageCache {
	return NewEntityStore[ImageEntry]("images", opts...)
}
