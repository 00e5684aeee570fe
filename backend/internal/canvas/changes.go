package canvas

import (
	"promptcanvas/backend/internal/layout"
)

// ChangeType is the kind of delta the renderer reports
type ChangeType string

const (
	ChangePosition   ChangeType = "position"
	ChangeSelect     ChangeType = "select"
	ChangeRemove     ChangeType = "remove"
	ChangeDimensions ChangeType = "dimensions"
)

// NodeChange is one renderer delta for a node
type NodeChange struct {
	Type       ChangeType         `json:"type"`
	ID         string             `json:"id"`
	Position   *layout.Position   `json:"position,omitempty"`
	Selected   bool               `json:"selected,omitempty"`
	Dimensions *layout.Dimensions `json:"dimensions,omitempty"`
}

// EdgeChange is one renderer delta for an edge
type EdgeChange struct {
	Type     ChangeType `json:"type"`
	ID       string     `json:"id"`
	Selected bool       `json:"selected,omitempty"`
}

// ApplyNodeChanges applies a batch of renderer deltas verbatim, in order
func (s *Store) ApplyNodeChanges(changes []NodeChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removals := make(map[string]bool)
	for _, c := range changes {
		if c.Type == ChangeRemove {
			removals[c.ID] = true
			continue
		}

		i := s.indexLocked(c.ID)
		if i < 0 {
			continue
		}
		switch c.Type {
		case ChangePosition:
			if c.Position != nil {
				s.nodes[i].Position = *c.Position
			}
		case ChangeSelect:
			s.nodes[i].Selected = c.Selected
		case ChangeDimensions:
			if c.Dimensions != nil {
				d := *c.Dimensions
				s.nodes[i].Measured = &d
			}
		}
	}

	if len(removals) > 0 {
		s.removeNodesLocked(removals)
	}
}

// ApplyEdgeChanges applies a batch of renderer deltas to edges
func (s *Store) ApplyEdgeChanges(changes []EdgeChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removals := make(map[string]bool)
	for _, c := range changes {
		switch c.Type {
		case ChangeRemove:
			removals[c.ID] = true
		case ChangeSelect:
			for i := range s.edges {
				if s.edges[i].ID == c.ID {
					s.edges[i].Selected = c.Selected
				}
			}
		}
	}

	if len(removals) == 0 {
		return
	}
	kept := s.edges[:0]
	for _, e := range s.edges {
		if !removals[e.ID] {
			kept = append(kept, e)
		}
	}
	s.edges = kept
	s.publish()
}

// Select replaces the node selection with ids
func (s *Store) Select(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for i := range s.nodes {
		s.nodes[i].Selected = set[s.nodes[i].ID]
	}
}

// ClearSelection deselects every node and edge
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.nodes {
		s.nodes[i].Selected = false
	}
	for i := range s.edges {
		s.edges[i].Selected = false
	}
}

// Selected returns the ids of the selected nodes
func (s *Store) Selected() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, n := range s.nodes {
		if n.Selected {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// SetViewport stores the renderer's pan/zoom
func (s *Store) SetViewport(v Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = v
}

// Viewport returns the renderer's pan/zoom
func (s *Store) Viewport() Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}
