// Package flow runs one user-triggered AI action end to end: it places a loading
// node and its edge, calls the collaborator once, then records the outcome on the
// canvas, in the caches and in the operation registry.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"promptcanvas/backend/internal/canvas"
	"promptcanvas/backend/internal/layout"
	"promptcanvas/backend/internal/models"
	"promptcanvas/backend/internal/state"
	apperrors "promptcanvas/backend/pkg/errors"
	"promptcanvas/backend/pkg/logger"
	"promptcanvas/backend/pkg/metrics"
	"go.uber.org/zap"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrSourceNotFound = errors.New("source node not found")
)

// Handle names used on the edges the orchestrator creates
const (
	InputHandle     = "input"
	DuplicateHandle = "duplicate"
)

// OutputHandle is the source handle for edges created by action
func OutputHandle(action layout.ActionType) string {
	return string(action) + "-output"
}

// Deps are the stores and collaborators an Orchestrator composes. A nil
// collaborator makes its operations fail with ErrInvalidInput.
type Deps struct {
	Store      *canvas.Store
	Prompts    *state.PromptCache
	Images     *state.ImageCache
	Operations *state.Operations
	Registry   *models.Registry

	Enhancer  PromptEnhancer
	Generator ImageGenerator
	Describer ImageDescriber
	Analyzer  PromptAnalyzer
}

// Orchestrator owns no state of its own
type Orchestrator struct {
	Deps

	dims    layout.DimensionsLookup
	newID   func(kind string) string
	now     func() time.Time
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithTimeout bounds each collaborator call; zero means only the caller's context applies
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithIDGenerator overrides node id generation
func WithIDGenerator(gen func(kind string) string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

// WithClock overrides the time stamped on new nodes
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithDimensions sets the renderer's size lookup used for placement
func WithDimensions(lookup layout.DimensionsLookup) Option {
	return func(o *Orchestrator) { o.dims = lookup }
}

// New creates an Orchestrator. Missing stores are created empty.
func New(deps Deps, opts ...Option) *Orchestrator {
	if deps.Store == nil {
		deps.Store = canvas.NewStore()
	}
	if deps.Prompts == nil {
		deps.Prompts = state.NewPromptCache()
	}
	if deps.Images == nil {
		deps.Images = state.NewImageCache()
	}
	if deps.Operations == nil {
		deps.Operations = state.NewOperations()
	}
	if deps.Registry == nil {
		deps.Registry = models.Default()
	}

	o := &Orchestrator{
		Deps: deps,
		newID: func(kind string) string {
			return kind + "-" + uuid.NewString()
		},
		now:    time.Now,
		logger: logger.Named("flow"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Status returns the latest operation state for an entity id
func (o *Orchestrator) Status(id string) state.OperationState {
	return o.Operations.Get(id)
}

// invocation is one in-flight action
type invocation struct {
	kind    string
	action  layout.ActionType
	nodeID  string
	model   string
	started time.Time
}

func (o *Orchestrator) checkSource(sourceID string) (canvas.Node, error) {
	src, ok := o.Store.Node(sourceID)
	if !ok {
		return canvas.Node{}, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}
	return src, nil
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidInput, field)
	}
	return nil
}

// begin places the loading node below or beside the source, connects it and marks
// it loading. It is the only step before the collaborator call.
func (o *Orchestrator) begin(kind string, action layout.ActionType, sourceID string, data canvas.NodeData) *invocation {
	id := o.newID(kind)
	node := o.Store.AddNodeWithPositioning(canvas.Node{ID: id, Data: data}, action, sourceID, o.dims)

	edge := canvas.NewEdge(sourceID, OutputHandle(action), id, InputHandle)
	edge.Animated = true
	o.Store.AddEdge(edge)
	o.Operations.Start(id)

	o.logger.Debug("Operation started",
		zap.String("kind", kind),
		zap.String("node_id", id),
		zap.String("source_id", sourceID),
		zap.Float64("x", node.Position.X),
		zap.Float64("y", node.Position.Y),
	)
	return &invocation{kind: kind, action: action, nodeID: id, started: o.now()}
}

func (o *Orchestrator) meta() canvas.Meta {
	return canvas.Meta{CreatedAt: o.now().UnixMilli(), Loading: true}
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout > 0 {
		return context.WithTimeout(ctx, o.timeout)
	}
	return context.WithCancel(ctx)
}

// classify turns a collaborator failure into a typed error
func (inv *invocation) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperrors.NewContextCancelled(inv.kind, err)
	}
	if apperrors.IsErrorType(err, apperrors.ErrorTypeAI) || apperrors.IsErrorType(err, apperrors.ErrorTypeContext) {
		return err
	}
	return apperrors.NewAIRequestFailed(inv.kind, inv.model, false, err)
}

// fail marks the node with patch and records the error. The node and edge stay.
func (o *Orchestrator) fail(inv *invocation, patch canvas.Patch, err error) error {
	patch["loading"] = false
	patch["error"] = err.Error()
	o.Store.UpdateNode(inv.nodeID, patch)
	o.Operations.Fail(inv.nodeID, err)

	metrics.OperationsTotal.WithLabelValues(inv.kind, string(state.StatusError)).Inc()
	metrics.OperationDuration.WithLabelValues(inv.kind).Observe(o.now().Sub(inv.started).Seconds())

	o.logger.Warn("Operation failed",
		zap.String("kind", inv.kind),
		zap.String("node_id", inv.nodeID),
		zap.Error(err),
	)
	return err
}

// succeed applies patch to the node. cache runs between the node update and the
// status change, as its own write, and is skipped when the node was evicted.
func (o *Orchestrator) succeed(inv *invocation, patch canvas.Patch, cache func()) *canvas.Node {
	patch["loading"] = false
	if o.Store.UpdateNode(inv.nodeID, patch) {
		cache()
	} else {
		o.logger.Debug("Result dropped for evicted node",
			zap.String("kind", inv.kind),
			zap.String("node_id", inv.nodeID),
		)
	}
	o.Operations.Succeed(inv.nodeID)

	metrics.OperationsTotal.WithLabelValues(inv.kind, string(state.StatusSuccess)).Inc()
	metrics.OperationDuration.WithLabelValues(inv.kind).Observe(o.now().Sub(inv.started).Seconds())

	o.logger.Info("Operation succeeded",
		zap.String("kind", inv.kind),
		zap.String("node_id", inv.nodeID),
	)

	node, ok := o.Store.Node(inv.nodeID)
	if !ok {
		return nil
	}
	return &node
}

// EnhancePrompt creates an enhanced-prompt node below the source
func (o *Orchestrator) EnhancePrompt(ctx context.Context, sourceID, prompt string) (*canvas.Node, error) {
	if o.Enhancer == nil {
		return nil, fmt.Errorf("%w: no prompt enhancer configured", ErrInvalidInput)
	}
	if err := requireText("prompt", prompt); err != nil {
		return nil, err
	}
	if _, err := o.checkSource(sourceID); err != nil {
		return nil, err
	}

	inv := o.begin("enhanced", layout.ActionEnhance, sourceID, canvas.EnhancedPromptData{Meta: o.meta(), SourceText: prompt})

	callCtx, cancel := o.callContext(ctx)
	defer cancel()

	text, err := o.Enhancer.Enhance(callCtx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = apperrors.NewAIEmptyResult(inv.kind)
	}
	if err != nil {
		return nil, o.fail(inv, canvas.Patch{"text": ""}, inv.classify(callCtx, err))
	}

	return o.succeed(inv, canvas.Patch{"text": text}, func() {
		o.Prompts.Put(inv.nodeID, state.PromptEntry{Text: text, Variant: state.VariantEnhanced})
	}), nil
}

// ImageRequest is a user's image generation request
type ImageRequest struct {
	Prompt      string `json:"prompt"`
	Model       string `json:"model,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	InputImage  string `json:"inputImage,omitempty"`
}

// GenerateImage creates an image node to the right of the source. The model
// registry decides the aspect ratio and whether the input image is forwarded.
func (o *Orchestrator) GenerateImage(ctx context.Context, sourceID string, req ImageRequest) (*canvas.Node, error) {
	if o.Generator == nil {
		return nil, fmt.Errorf("%w: no image generator configured", ErrInvalidInput)
	}
	if err := requireText("prompt", req.Prompt); err != nil {
		return nil, err
	}
	if _, err := o.checkSource(sourceID); err != nil {
		return nil, err
	}

	model := o.Registry.Resolve(req.Model)
	ratio := model.AspectRatio(req.AspectRatio)
	width, height := models.PixelSize(ratio, models.DefaultLongEdge)
	params := ImageParams{
		Prompt:      req.Prompt,
		Model:       model.ID,
		AspectRatio: ratio,
		Width:       width,
		Height:      height,
	}
	if model.SupportsImageInput {
		params.InputImage = req.InputImage
	}

	inv := o.begin("image", layout.ActionGenerate, sourceID, canvas.ImageData{
		Meta:        o.meta(),
		Prompt:      req.Prompt,
		AspectRatio: ratio,
		ModelUsed:   model.ID,
	})
	inv.model = model.ID

	callCtx, cancel := o.callContext(ctx)
	defer cancel()

	img, err := o.Generator.Generate(callCtx, params)
	if err == nil && (img == nil || img.ImageData == "") {
		err = apperrors.NewAIEmptyResult(inv.kind)
	}
	if err != nil {
		return nil, o.fail(inv, canvas.Patch{"hasError": true}, inv.classify(callCtx, err))
	}

	used := img.ModelUsed
	if used == "" {
		used = model.ID
	}
	return o.succeed(inv, canvas.Patch{"imageData": img.ImageData, "modelUsed": used, "hasError": false}, func() {
		o.Images.Put(inv.nodeID, state.ImageEntry{ImageData: img.ImageData, ModelUsed: used, Prompt: req.Prompt})
	}), nil
}

// DescribeImage creates a description node below the source. An empty image falls
// back to the cached image of the source node.
func (o *Orchestrator) DescribeImage(ctx context.Context, sourceID, imageBase64 string) (*canvas.Node, error) {
	if o.Describer == nil {
		return nil, fmt.Errorf("%w: no image describer configured", ErrInvalidInput)
	}
	if imageBase64 == "" {
		if cached, ok := o.Images.Get(sourceID); ok {
			imageBase64 = cached.Value.ImageData
		}
	}
	if err := requireText("image", imageBase64); err != nil {
		return nil, err
	}
	if _, err := o.checkSource(sourceID); err != nil {
		return nil, err
	}

	inv := o.begin("description", layout.ActionDescribe, sourceID, canvas.DescriptionData{Meta: o.meta()})

	callCtx, cancel := o.callContext(ctx)
	defer cancel()

	text, err := o.Describer.Describe(callCtx, imageBase64)
	if err == nil && strings.TrimSpace(text) == "" {
		err = apperrors.NewAIEmptyResult(inv.kind)
	}
	if err != nil {
		return nil, o.fail(inv, canvas.Patch{"text": ""}, inv.classify(callCtx, err))
	}

	return o.succeed(inv, canvas.Patch{"text": text}, func() {
		o.Prompts.Put(inv.nodeID, state.PromptEntry{Text: text, Variant: state.VariantDescription})
	}), nil
}

// StructurePrompt decomposes a prompt into its standard structure
func (o *Orchestrator) StructurePrompt(ctx context.Context, sourceID, prompt string) (*canvas.Node, error) {
	return o.analyze(ctx, canvas.KindStructured, layout.ActionFormat, sourceID, prompt)
}

// AtomizePrompt breaks a prompt into atomic visual elements
func (o *Orchestrator) AtomizePrompt(ctx context.Context, sourceID, prompt string) (*canvas.Node, error) {
	return o.analyze(ctx, canvas.KindAtomized, layout.ActionAtomize, sourceID, prompt)
}

// SegmentPrompt splits a prompt into labelled segments
func (o *Orchestrator) SegmentPrompt(ctx context.Context, sourceID, prompt string) (*canvas.Node, error) {
	return o.analyze(ctx, canvas.KindSegmented, layout.ActionSegment, sourceID, prompt)
}

func (o *Orchestrator) analyze(ctx context.Context, kind canvas.StructuredKind, action layout.ActionType, sourceID, prompt string) (*canvas.Node, error) {
	if o.Analyzer == nil {
		return nil, fmt.Errorf("%w: no prompt analyzer configured", ErrInvalidInput)
	}
	if err := requireText("prompt", prompt); err != nil {
		return nil, err
	}
	if _, err := o.checkSource(sourceID); err != nil {
		return nil, err
	}

	inv := o.begin(string(kind), action, sourceID, canvas.StructuredData{Meta: o.meta(), Kind: kind, SourceText: prompt})

	callCtx, cancel := o.callContext(ctx)
	defer cancel()

	segments, err := o.Analyzer.Analyze(callCtx, kind, prompt)
	if err == nil && len(segments) == 0 {
		err = apperrors.NewAIEmptyResult(inv.kind)
	}
	if err != nil {
		return nil, o.fail(inv, canvas.Patch{}, inv.classify(callCtx, err))
	}

	return o.succeed(inv, canvas.Patch{"segments": segments}, func() {
		o.Prompts.Put(inv.nodeID, state.PromptEntry{Text: prompt, Variant: state.VariantFor(kind), Segments: segments})
	}), nil
}

// DuplicateStructured places a copy of a structured result next to the source
// without calling any collaborator. Empty data creates nothing and returns nil.
func (o *Orchestrator) DuplicateStructured(sourceID string, data canvas.StructuredData) (*canvas.Node, error) {
	if data.IsEmpty() {
		return nil, nil
	}
	if _, err := o.checkSource(sourceID); err != nil {
		return nil, err
	}

	if data.Kind == "" {
		data.Kind = canvas.KindStructured
	}
	data.Meta = canvas.Meta{CreatedAt: o.now().UnixMilli()}
	data.Segments = append([]canvas.Segment(nil), data.Segments...)

	id := o.newID(string(data.Kind))
	node := o.Store.AddNodeWithPositioning(canvas.Node{ID: id, Data: data}, layout.ActionDuplicate, sourceID, o.dims)
	o.Store.AddEdge(canvas.NewEdge(sourceID, DuplicateHandle, id, InputHandle))
	o.Prompts.Put(id, state.PromptEntry{Text: data.SourceText, Variant: state.VariantFor(data.Kind), Segments: data.Segments})
	o.Operations.Succeed(id)

	metrics.OperationsTotal.WithLabelValues("duplicate", string(state.StatusSuccess)).Inc()
	o.logger.Debug("Structured result duplicated",
		zap.String("node_id", id),
		zap.String("source_id", sourceID),
	)
	return &node, nil
}

// DuplicateFromCache duplicates the structured result cached for sourceID. Nothing
// cached, or nothing to duplicate, returns nil.
func (o *Orchestrator) DuplicateFromCache(sourceID string) (*canvas.Node, error) {
	entry, ok := o.Prompts.Get(sourceID)
	if !ok || len(entry.Value.Segments) == 0 {
		return nil, nil
	}

	kind := canvas.KindStructured
	switch entry.Value.Variant {
	case state.VariantAtomized:
		kind = canvas.KindAtomized
	case state.VariantSegmented:
		kind = canvas.KindSegmented
	}
	return o.DuplicateStructured(sourceID, canvas.StructuredData{
		Kind:       kind,
		SourceText: entry.Value.Text,
		Segments:   entry.Value.Segments,
	})
}
