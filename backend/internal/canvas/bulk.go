package canvas

import (
	"math"

	"promptcanvas/backend/internal/layout"
	"go.uber.org/zap"
)

// duplicateOffset is how far a copy is shifted from its original before overlap resolution
const duplicateOffset = 50.0

// DuplicateNodes copies the given nodes under fresh ids, each shifted by +50/+50 and
// moved off existing footprints. Edges are not copied. Unknown ids are skipped.
func (s *Store) DuplicateNodes(ids []string, lookup layout.DimensionsLookup) []Node {
	resolved := s.resolveLookup(lookup)

	s.mu.Lock()
	defer s.mu.Unlock()

	dims := s.lookupLocked(resolved)
	created := make([]Node, 0, len(ids))

	for _, id := range ids {
		i := s.indexLocked(id)
		if i < 0 {
			continue
		}
		original := s.nodes[i]

		data, err := MergeData(original.Data, Patch{"createdAt": s.now().UnixMilli(), "loading": false})
		if err != nil {
			s.logger.Warn("Skipping duplicate of node with unreadable data",
				zap.String("node_id", id),
				zap.Error(err),
			)
			continue
		}

		copyNode := Node{
			ID:   s.newID(string(original.Type)),
			Type: original.Type,
			Data: data,
		}
		target := layout.Position{
			X: original.Position.X + duplicateOffset,
			Y: original.Position.Y + duplicateOffset,
		}
		pos := layout.FindNonOverlappingPosition(target, s.footprintsLocked(dims), layout.Resolve(dims, original.ID))
		created = append(created, s.addLocked(copyNode, pos))
	}

	return created
}

// DeleteNodes removes the given nodes and their edges, returning how many were removed
func (s *Store) DeleteNodes(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return s.removeNodesLocked(set)
}

// ArrangeGrid lays the given nodes out in a grid anchored at their current top-left
// corner, in the order given
func (s *Store) ArrangeGrid(ids []string, columns int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var indexes []int
	minX, minY := math.Inf(1), math.Inf(1)
	for _, id := range ids {
		i := s.indexLocked(id)
		if i < 0 {
			continue
		}
		indexes = append(indexes, i)
		minX = math.Min(minX, s.nodes[i].Position.X)
		minY = math.Min(minY, s.nodes[i].Position.Y)
	}
	if len(indexes) == 0 {
		return
	}

	origin := layout.GridPosition(0, columns)
	for slot, i := range indexes {
		p := layout.GridPosition(slot, columns)
		s.nodes[i].Position = layout.Position{
			X: p.X - origin.X + minX,
			Y: p.Y - origin.Y + minY,
		}
	}
}

// AutoLayout places every node on a grid from the canvas origin, in insertion order
func (s *Store) AutoLayout(columns int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.nodes {
		s.nodes[i].Position = layout.GridPosition(i, columns)
	}
	s.logger.Debug("Auto layout applied",
		zap.Int("nodes", len(s.nodes)),
		zap.Int("columns", columns),
	)
}
