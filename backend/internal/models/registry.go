// Package models is the static table of image models and what each one accepts.
// The orchestrator only ever reads it.
package models

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider is the backend that serves a model
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderRunPod Provider = "runpod"
)

// DefaultLongEdge is the pixel length of the longer side when a ratio is turned into a size
const DefaultLongEdge = 1024

// Model is one entry of the registry
type Model struct {
	ID                 string   `yaml:"id" json:"id"`
	Name               string   `yaml:"name" json:"name"`
	Provider           Provider `yaml:"provider" json:"provider"`
	AspectRatios       []string `yaml:"aspect_ratios" json:"aspectRatios"`
	DefaultAspectRatio string   `yaml:"default_aspect_ratio" json:"defaultAspectRatio"`
	SupportsImageInput bool     `yaml:"supports_image_input" json:"supportsImageInput"`
}

// AspectRatio returns requested if the model supports it, else the model default
func (m Model) AspectRatio(requested string) string {
	for _, r := range m.AspectRatios {
		if r == requested {
			return r
		}
	}
	return m.DefaultAspectRatio
}

func (m Model) validate() error {
	if m.ID == "" {
		return fmt.Errorf("model id is required")
	}
	if len(m.AspectRatios) == 0 {
		return fmt.Errorf("model %s: at least one aspect ratio is required", m.ID)
	}
	for _, r := range m.AspectRatios {
		if _, _, err := ParseAspectRatio(r); err != nil {
			return fmt.Errorf("model %s: %w", m.ID, err)
		}
	}
	if m.DefaultAspectRatio == "" {
		return fmt.Errorf("model %s: default aspect ratio is required", m.ID)
	}
	for _, r := range m.AspectRatios {
		if r == m.DefaultAspectRatio {
			return nil
		}
	}
	return fmt.Errorf("model %s: default aspect ratio %s is not in its list", m.ID, m.DefaultAspectRatio)
}

// Registry maps model ids to capabilities. It is immutable once built.
type Registry struct {
	byID      map[string]Model
	order     []string
	defaultID string
}

// New builds a registry. defaultID must name one of models.
func New(list []Model, defaultID string) (*Registry, error) {
	r := &Registry{byID: make(map[string]Model, len(list))}
	for _, m := range list {
		if err := m.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[m.ID]; !dup {
			r.order = append(r.order, m.ID)
		}
		r.byID[m.ID] = m
	}
	if _, ok := r.byID[defaultID]; !ok {
		return nil, fmt.Errorf("default model %q is not registered", defaultID)
	}
	r.defaultID = defaultID
	return r, nil
}

// Builtin returns the models known without any override file
func Builtin() []Model {
	return []Model{
		{
			ID:                 "gpt-image-1",
			Name:               "GPT Image 1",
			Provider:           ProviderOpenAI,
			AspectRatios:       []string{"1:1", "3:2", "2:3"},
			DefaultAspectRatio: "1:1",
			SupportsImageInput: true,
		},
		{
			ID:                 "dall-e-3",
			Name:               "DALL-E 3",
			Provider:           ProviderOpenAI,
			AspectRatios:       []string{"1:1", "7:4", "4:7"},
			DefaultAspectRatio: "1:1",
		},
		{
			ID:                 "flux-dev",
			Name:               "FLUX.1 dev",
			Provider:           ProviderRunPod,
			AspectRatios:       []string{"1:1", "16:9", "9:16", "4:3", "3:4", "21:9"},
			DefaultAspectRatio: "1:1",
		},
		{
			ID:                 "flux-kontext",
			Name:               "FLUX.1 Kontext",
			Provider:           ProviderRunPod,
			AspectRatios:       []string{"1:1", "16:9", "9:16", "4:3", "3:4"},
			DefaultAspectRatio: "1:1",
			SupportsImageInput: true,
		},
	}
}

// Default returns the builtin registry with gpt-image-1 as default
func Default() *Registry {
	r, err := New(Builtin(), "gpt-image-1")
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the model with id
func (r *Registry) Lookup(id string) (Model, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Resolve returns the model with id, or the default model for an unknown or empty id
func (r *Registry) Resolve(id string) Model {
	if m, ok := r.byID[id]; ok {
		return m
	}
	return r.byID[r.defaultID]
}

// DefaultModel returns the default model
func (r *Registry) DefaultModel() Model {
	return r.byID[r.defaultID]
}

// Models lists every model in registration order
func (r *Registry) Models() []Model {
	out := make([]Model, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// ParseAspectRatio splits "W:H" into its positive integer parts
func ParseAspectRatio(ratio string) (int, int, error) {
	w, h, ok := strings.Cut(ratio, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", ratio)
	}
	wi, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || wi <= 0 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", ratio)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || hi <= 0 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", ratio)
	}
	return wi, hi, nil
}

// PixelSize turns a ratio into a width and height whose longer side is longEdge,
// both rounded down to a multiple of 64. Invalid ratios give a square.
func PixelSize(ratio string, longEdge int) (int, int) {
	w, h, err := ParseAspectRatio(ratio)
	if err != nil || w == h {
		return longEdge, longEdge
	}
	if w > h {
		return longEdge, snap(longEdge * h / w)
	}
	return snap(longEdge * w / h), longEdge
}

func snap(v int) int {
	v = v / 64 * 64
	if v < 64 {
		return 64
	}
	return v
}

// file is the YAML layout of a registry override
type file struct {
	Default string  `yaml:"default"`
	Models  []Model `yaml:"models"`
}

// LoadFile reads a YAML override and layers it over the builtin models. Entries
// with a builtin id replace that model; new ids are appended.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model registry: %w", err)
	}
	return Parse(raw)
}

// Parse is LoadFile over an in-memory document
func Parse(raw []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse model registry: %w", err)
	}

	list := append(Builtin(), f.Models...)
	defaultID := f.Default
	if defaultID == "" {
		defaultID = "gpt-image-1"
	}
	return New(list, defaultID)
}
