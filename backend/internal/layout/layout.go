// Package layout computes where new nodes go on the canvas. It is pure: it knows
// nothing about the graph store and holds no state.
package layout

const (
	// Gap is the spacing between neighbouring nodes in canvas units
	Gap = 50.0

	// DefaultWidth and DefaultHeight are the footprint assumed for unmeasured nodes
	DefaultWidth  = 320.0
	DefaultHeight = 160.0

	// MaxPlacementAttempts bounds the overlap search
	MaxPlacementAttempts = 20

	// DefaultColumns is used by grid layout when no column count is given
	DefaultColumns = 3

	gridOrigin = 100.0
)

// ActionType is the category of action that produced a node; it decides placement direction
type ActionType string

const (
	ActionEnhance   ActionType = "enhance"
	ActionAtomize   ActionType = "atomize"
	ActionDescribe  ActionType = "describe"
	ActionFormat    ActionType = "format"
	ActionSegment   ActionType = "segment"
	ActionGenerate  ActionType = "generate"
	ActionDuplicate ActionType = "duplicate"
)

// Position is a point in canvas coordinates
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dimensions is the rendered size of a node
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DefaultDimensions is the footprint of a node that has not been measured yet
var DefaultDimensions = Dimensions{Width: DefaultWidth, Height: DefaultHeight}

// Footprint is a placed node's bounding box
type Footprint struct {
	Position   Position
	Dimensions Dimensions
}

// DimensionsLookup returns the measured size of a node, if the renderer knows it
type DimensionsLookup func(nodeID string) (Dimensions, bool)

// Reference is the node a new node is placed relative to
type Reference struct {
	ID       string
	Position Position
}

// below reports whether an action transforms the same subject (stacked vertically)
// rather than deriving a new artifact (placed to the right).
func below(action ActionType) bool {
	switch action {
	case ActionEnhance, ActionAtomize, ActionDescribe, ActionFormat, ActionSegment:
		return true
	}
	return false
}

// Resolve returns the dimensions for id, falling back to DefaultDimensions
func Resolve(lookup DimensionsLookup, id string) Dimensions {
	if lookup != nil {
		if d, ok := lookup(id); ok {
			return d
		}
	}
	return DefaultDimensions
}

// CalculatePosition returns the target position for a node created by action
// relative to ref. Unknown actions are placed to the right.
func CalculatePosition(action ActionType, ref Reference, lookup DimensionsLookup) Position {
	dims := Resolve(lookup, ref.ID)

	if below(action) {
		return Position{X: ref.Position.X, Y: ref.Position.Y + dims.Height + Gap}
	}
	return Position{X: ref.Position.X + dims.Width + Gap, Y: ref.Position.Y}
}

// NodesOverlap is an axis-aligned bounding box test. Separation requires a strict gap,
// so rectangles whose edges touch count as overlapping.
func NodesOverlap(posA Position, dimA Dimensions, posB Position, dimB Dimensions) bool {
	separated := posA.X+dimA.Width < posB.X ||
		posB.X+dimB.Width < posA.X ||
		posA.Y+dimA.Height < posB.Y ||
		posB.Y+dimB.Height < posA.Y
	return !separated
}

// FindNonOverlappingPosition searches for a free spot near target. Odd attempts move
// diagonally, even attempts horizontally, by attempt*Gap. If every attempt collides
// the original target is returned and the caller accepts the overlap.
func FindNonOverlappingPosition(target Position, existing []Footprint, newDims Dimensions) Position {
	for attempt := 0; attempt < MaxPlacementAttempts; attempt++ {
		candidate := target
		if attempt > 0 {
			offset := float64(attempt) * Gap
			candidate.X += offset
			if attempt%2 == 1 {
				candidate.Y += offset
			}
		}

		if !overlapsAny(candidate, newDims, existing) {
			return candidate
		}
	}
	return target
}

func overlapsAny(pos Position, dims Dimensions, existing []Footprint) bool {
	for _, fp := range existing {
		if NodesOverlap(pos, dims, fp.Position, fp.Dimensions) {
			return true
		}
	}
	return false
}

// GridPosition returns the slot for the index-th node in a grid of columns
func GridPosition(index, columns int) Position {
	if columns <= 0 {
		columns = DefaultColumns
	}
	row := index / columns
	col := index % columns
	return Position{
		X: float64(col)*(DefaultWidth+Gap) + gridOrigin,
		Y: float64(row)*(DefaultHeight+Gap) + gridOrigin,
	}
}
