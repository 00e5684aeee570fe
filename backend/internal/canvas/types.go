package canvas

import (
	"encoding/json"
	"fmt"
	"time"

	"promptcanvas/backend/internal/layout"
)

// RootNodeID is the id of the prompt node every canvas starts with
const RootNodeID = "prompt"

// DefaultPosition is where nodes land when no position is given
var DefaultPosition = layout.Position{X: 100, Y: 100}

// NodeType identifies which NodeData variant a node carries
type NodeType string

const (
	NodeTypePrompt           NodeType = "prompt"
	NodeTypeEnhancedPrompt   NodeType = "enhanced-prompt"
	NodeTypeImage            NodeType = "image"
	NodeTypeImageDescription NodeType = "image-description"
	NodeTypeStructuredResult NodeType = "structured-result"
)

// StructuredKind tells which decomposition produced a structured result
type StructuredKind string

const (
	KindStructured StructuredKind = "structured"
	KindAtomized   StructuredKind = "atomized"
	KindSegmented  StructuredKind = "segmented"
)

// Meta is embedded in every NodeData variant
type Meta struct {
	CreatedAt int64  `json:"createdAt,omitempty"` // unix milliseconds, 0 = unknown
	Loading   bool   `json:"loading,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Metadata exposes the shared fields of any variant
func (m Meta) Metadata() Meta { return m }

// Created returns CreatedAt as a time, or the zero time if unknown
func (m Meta) Created() time.Time {
	if m.CreatedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.CreatedAt)
}

// NodeData is the per-type payload of a node. The concrete type always matches the
// node's NodeType.
type NodeData interface {
	Type() NodeType
	Metadata() Meta
}

// PromptData is user-authored prompt text
type PromptData struct {
	Meta
	Text string `json:"text"`
}

// EnhancedPromptData is an AI rewrite of a source prompt
type EnhancedPromptData struct {
	Meta
	Text       string `json:"text"`
	SourceText string `json:"sourceText,omitempty"`
}

// ImageData is a generated image
type ImageData struct {
	Meta
	ImageData   string `json:"imageData,omitempty"` // base64
	ModelUsed   string `json:"modelUsed,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	HasError    bool   `json:"hasError,omitempty"`
}

// DescriptionData is a text description of an image
type DescriptionData struct {
	Meta
	Text string `json:"text"`
}

// Segment is one labelled piece of a decomposed prompt
type Segment struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// StructuredData is a prompt decomposed into labelled segments
type StructuredData struct {
	Meta
	Kind       StructuredKind `json:"kind"`
	SourceText string         `json:"sourceText,omitempty"`
	Segments   []Segment      `json:"segments,omitempty"`
}

func (PromptData) Type() NodeType         { return NodeTypePrompt }
func (EnhancedPromptData) Type() NodeType { return NodeTypeEnhancedPrompt }
func (ImageData) Type() NodeType          { return NodeTypeImage }
func (DescriptionData) Type() NodeType    { return NodeTypeImageDescription }
func (StructuredData) Type() NodeType     { return NodeTypeStructuredResult }

// IsEmpty reports whether there is nothing to duplicate
func (d StructuredData) IsEmpty() bool {
	return len(d.Segments) == 0
}

// EmptyData returns the zero payload for a node type
func EmptyData(t NodeType) (NodeData, error) {
	switch t {
	case NodeTypePrompt:
		return PromptData{}, nil
	case NodeTypeEnhancedPrompt:
		return EnhancedPromptData{}, nil
	case NodeTypeImage:
		return ImageData{}, nil
	case NodeTypeImageDescription:
		return DescriptionData{}, nil
	case NodeTypeStructuredResult:
		return StructuredData{}, nil
	}
	return nil, fmt.Errorf("unknown node type %q", t)
}

// DecodeData decodes a JSON payload into the variant for t
func DecodeData(t NodeType, raw []byte) (NodeData, error) {
	var (
		data NodeData
		err  error
	)
	switch t {
	case NodeTypePrompt:
		var d PromptData
		err = json.Unmarshal(raw, &d)
		data = d
	case NodeTypeEnhancedPrompt:
		var d EnhancedPromptData
		err = json.Unmarshal(raw, &d)
		data = d
	case NodeTypeImage:
		var d ImageData
		err = json.Unmarshal(raw, &d)
		data = d
	case NodeTypeImageDescription:
		var d DescriptionData
		err = json.Unmarshal(raw, &d)
		data = d
	case NodeTypeStructuredResult:
		var d StructuredData
		err = json.Unmarshal(raw, &d)
		data = d
	default:
		return nil, fmt.Errorf("unknown node type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s data: %w", t, err)
	}
	return data, nil
}

// Patch is a shallow set of data fields keyed by their JSON names
type Patch map[string]interface{}

// MergeData shallow-merges patch into data and returns a new value of the same variant.
// Keys the variant does not know are ignored.
func MergeData(data NodeData, patch Patch) (NodeData, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", data.Type(), err)
	}

	fields := make(map[string]interface{})
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("flatten %s data: %w", data.Type(), err)
	}
	for k, v := range patch {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	return DecodeData(data.Type(), merged)
}

// Node is a vertex on the canvas
type Node struct {
	ID       string             `json:"id"`
	Type     NodeType           `json:"type"`
	Position layout.Position    `json:"position"`
	Data     NodeData           `json:"data"`
	Measured *layout.Dimensions `json:"measured,omitempty"`
	Selected bool               `json:"selected,omitempty"`
}

// UnmarshalJSON decodes data according to the node type
func (n *Node) UnmarshalJSON(b []byte) error {
	var wire struct {
		ID       string             `json:"id"`
		Type     NodeType           `json:"type"`
		Position layout.Position    `json:"position"`
		Data     json.RawMessage    `json:"data"`
		Measured *layout.Dimensions `json:"measured,omitempty"`
		Selected bool               `json:"selected,omitempty"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	var (
		data NodeData
		err  error
	)
	if len(wire.Data) == 0 || string(wire.Data) == "null" {
		data, err = EmptyData(wire.Type)
	} else {
		data, err = DecodeData(wire.Type, wire.Data)
	}
	if err != nil {
		return err
	}

	*n = Node{
		ID:       wire.ID,
		Type:     wire.Type,
		Position: wire.Position,
		Data:     data,
		Measured: wire.Measured,
		Selected: wire.Selected,
	}
	return nil
}

// CreatedAt is the node's creation time, zero if unknown
func (n Node) CreatedAt() time.Time {
	if n.Data == nil {
		return time.Time{}
	}
	return n.Data.Metadata().Created()
}

func (n Node) clone() Node {
	if n.Measured != nil {
		m := *n.Measured
		n.Measured = &m
	}
	if d, ok := n.Data.(StructuredData); ok && d.Segments != nil {
		d.Segments = append([]Segment(nil), d.Segments...)
		n.Data = d
	}
	return n
}

// NewPromptNode builds a prompt node
func NewPromptNode(id, text string) Node {
	return Node{ID: id, Type: NodeTypePrompt, Data: PromptData{Text: text}}
}

// Edge is a directed, handle-qualified connection between two nodes
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle,omitempty"`
	Animated     bool   `json:"animated,omitempty"`
	Selected     bool   `json:"selected,omitempty"`
}

// EdgeID derives a deterministic edge id from its endpoints and handles
func EdgeID(source, sourceHandle, target, targetHandle string) string {
	return fmt.Sprintf("xy-edge__%s%s-%s%s", source, sourceHandle, target, targetHandle)
}

// NewEdge builds an edge with a derived id
func NewEdge(source, sourceHandle, target, targetHandle string) Edge {
	return Edge{
		ID:           EdgeID(source, sourceHandle, target, targetHandle),
		Source:       source,
		SourceHandle: sourceHandle,
		Target:       target,
		TargetHandle: targetHandle,
	}
}

// Viewport is the renderer's pan/zoom state
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Snapshot is a point-in-time copy of the canvas
type Snapshot struct {
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
	Viewport Viewport `json:"viewport"`
}
