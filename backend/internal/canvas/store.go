// Package canvas is the graph store: the node and edge collections plus the
// renderer's selection and viewport state. Missing ids are never errors; every
// mutation on an unknown id is a silent no-op.
package canvas

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"promptcanvas/backend/internal/layout"
	"promptcanvas/backend/pkg/logger"
	"promptcanvas/backend/pkg/metrics"
	"go.uber.org/zap"
)

// Store owns the canonical node/edge collections. Each method is atomic with
// respect to the others.
type Store struct {
	mu       sync.RWMutex
	nodes    []Node
	edges    []Edge
	viewport Viewport

	now    func() time.Time
	newID  func(prefix string) string
	logger *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for age-based eviction
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides id generation for duplicated nodes
func WithIDGenerator(gen func(prefix string) string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the store logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store holding only the root prompt node
func NewStore(opts ...Option) *Store {
	s := &Store{
		viewport: Viewport{Zoom: 1},
		now:      time.Now,
		newID: func(prefix string) string {
			return prefix + "-" + uuid.NewString()
		},
		logger: logger.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.nodes = []Node{rootNode()}
	s.publish()
	return s
}

func rootNode() Node {
	n := NewPromptNode(RootNodeID, "")
	n.Position = DefaultPosition
	return n
}

// AddNode inserts node at pos, or at DefaultPosition when pos is nil. Ids are the
// caller's responsibility and are not checked for uniqueness.
func (s *Store) AddNode(node Node, pos *layout.Position) Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos == nil {
		p := DefaultPosition
		pos = &p
	}
	return s.addLocked(node, *pos)
}

func (s *Store) addLocked(node Node, pos layout.Position) Node {
	node.Position = pos
	if node.Data == nil {
		if data, err := EmptyData(node.Type); err == nil {
			node.Data = data
		}
	} else {
		node.Type = node.Data.Type()
	}

	s.nodes = append(s.nodes, node.clone())
	s.publish()

	s.logger.Debug("Node added",
		zap.String("node_id", node.ID),
		zap.String("type", string(node.Type)),
		zap.Float64("x", pos.X),
		zap.Float64("y", pos.Y),
	)
	return node
}

// AddNodeWithPositioning places node relative to the reference node using the layout
// rules for action, moves it off any existing footprint, then inserts it. A missing
// reference falls back to DefaultPosition before overlap resolution.
func (s *Store) AddNodeWithPositioning(node Node, action layout.ActionType, referenceID string, lookup layout.DimensionsLookup) Node {
	resolved := s.resolveLookup(lookup)

	s.mu.Lock()
	defer s.mu.Unlock()

	dims := s.lookupLocked(resolved)

	target := DefaultPosition
	if i := s.indexLocked(referenceID); i >= 0 {
		ref := s.nodes[i]
		target = layout.CalculatePosition(action, layout.Reference{ID: ref.ID, Position: ref.Position}, dims)
	}

	pos := layout.FindNonOverlappingPosition(target, s.footprintsLocked(dims), layout.DefaultDimensions)
	return s.addLocked(node, pos)
}

// UpdateNode shallow-merges patch into the node's data. Returns false if the node
// does not exist or the patch does not fit the node's data type.
func (s *Store) UpdateNode(id string, patch Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false
	}

	current := s.nodes[i].Data
	if current == nil {
		empty, err := EmptyData(s.nodes[i].Type)
		if err != nil {
			return false
		}
		current = empty
	}

	merged, err := MergeData(current, patch)
	if err != nil {
		s.logger.Warn("Rejected node patch",
			zap.String("node_id", id),
			zap.Error(err),
		)
		return false
	}
	s.nodes[i].Data = merged
	return true
}

// RemoveNode deletes the node and every edge touching it
func (s *Store) RemoveNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.removeNodesLocked(map[string]bool{id: true})
	return removed > 0
}

// removeNodesLocked drops the given ids and cascades to their edges
func (s *Store) removeNodesLocked(ids map[string]bool) int {
	kept := s.nodes[:0]
	removed := 0
	for _, n := range s.nodes {
		if ids[n.ID] {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	if removed == 0 {
		return 0
	}
	s.nodes = kept

	edges := s.edges[:0]
	for _, e := range s.edges {
		if ids[e.Source] || ids[e.Target] {
			continue
		}
		edges = append(edges, e)
	}
	s.edges = edges

	s.publish()
	return removed
}

// AddEdge appends an edge. Endpoints are not validated; callers only connect nodes
// they know exist. A missing id is derived from the endpoints.
func (s *Store) AddEdge(edge Edge) Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	if edge.ID == "" {
		edge.ID = EdgeID(edge.Source, edge.SourceHandle, edge.Target, edge.TargetHandle)
	}
	s.edges = append(s.edges, edge)
	s.publish()
	return edge
}

// RemoveEdge deletes an edge by id
func (s *Store) RemoveEdge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.edges {
		if e.ID == id {
			s.edges = append(s.edges[:i], s.edges[i+1:]...)
			s.publish()
			return true
		}
	}
	return false
}

// Node returns a copy of the node with id
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Node{}, false
	}
	return s.nodes[i].clone(), true
}

// Nodes returns a copy of all nodes in insertion order
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Node, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.clone()
	}
	return out
}

// Edges returns a copy of all edges
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// NodesByType returns the nodes of type t
func (s *Store) NodesByType(t NodeType) []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Node
	for _, n := range s.nodes {
		if n.Type == t {
			out = append(out, n.clone())
		}
	}
	return out
}

// ConnectedNodes returns the nodes feeding into id and the nodes id feeds
func (s *Store) ConnectedNodes(id string) (incoming, outgoing []Node) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.edges {
		if e.Target == id {
			if i := s.indexLocked(e.Source); i >= 0 {
				incoming = append(incoming, s.nodes[i].clone())
			}
		}
		if e.Source == id {
			if i := s.indexLocked(e.Target); i >= 0 {
				outgoing = append(outgoing, s.nodes[i].clone())
			}
		}
	}
	return incoming, outgoing
}

// ConnectedEdges returns the edges ending at id and the edges starting at id
func (s *Store) ConnectedEdges(id string) (incoming, outgoing []Edge) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.edges {
		if e.Target == id {
			incoming = append(incoming, e)
		}
		if e.Source == id {
			outgoing = append(outgoing, e)
		}
	}
	return incoming, outgoing
}

// Dimensions returns the renderer-measured size of a node. It satisfies
// layout.DimensionsLookup.
func (s *Store) Dimensions(id string) (layout.Dimensions, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexLocked(id); i >= 0 && s.nodes[i].Measured != nil {
		return *s.nodes[i].Measured, true
	}
	return layout.Dimensions{}, false
}

// Snapshot returns a copy of the whole canvas
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Nodes:    make([]Node, len(s.nodes)),
		Edges:    make([]Edge, len(s.edges)),
		Viewport: s.viewport,
	}
	for i, n := range s.nodes {
		snap.Nodes[i] = n.clone()
	}
	copy(snap.Edges, s.edges)
	return snap
}

func (s *Store) indexLocked(id string) int {
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// resolveLookup queries the caller's lookup for every node before the write lock is
// taken, so the lookup may read from this store (Store.Dimensions included). Nodes
// added in between fall back to their measured or default size.
func (s *Store) resolveLookup(lookup layout.DimensionsLookup) layout.DimensionsLookup {
	if lookup == nil {
		return nil
	}

	s.mu.RLock()
	ids := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		ids[i] = n.ID
	}
	s.mu.RUnlock()

	resolved := make(map[string]layout.Dimensions, len(ids))
	for _, id := range ids {
		if d, ok := lookup(id); ok {
			resolved[id] = d
		}
	}
	return func(id string) (layout.Dimensions, bool) {
		d, ok := resolved[id]
		return d, ok
	}
}

// lookupLocked prefers the caller's lookup and falls back to measured sizes
func (s *Store) lookupLocked(lookup layout.DimensionsLookup) layout.DimensionsLookup {
	return func(id string) (layout.Dimensions, bool) {
		if lookup != nil {
			if d, ok := lookup(id); ok {
				return d, true
			}
		}
		if i := s.indexLocked(id); i >= 0 && s.nodes[i].Measured != nil {
			return *s.nodes[i].Measured, true
		}
		return layout.Dimensions{}, false
	}
}

func (s *Store) footprintsLocked(dims layout.DimensionsLookup) []layout.Footprint {
	out := make([]layout.Footprint, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, layout.Footprint{
			Position:   n.Position,
			Dimensions: layout.Resolve(dims, n.ID),
		})
	}
	return out
}

func (s *Store) publish() {
	metrics.CanvasNodes.Set(float64(len(s.nodes)))
	metrics.CanvasEdges.Set(float64(len(s.edges)))
}
