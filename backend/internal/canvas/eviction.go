package canvas

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// PruneOlderThan removes nodes created more than maxAge ago, cascading to their edges.
// Nodes without a creation time count as just created and are kept.
func (s *Store) PruneOlderThan(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-maxAge)

	stale := make(map[string]bool)
	for _, n := range s.nodes {
		if age(n, now).Before(cutoff) {
			stale[n.ID] = true
		}
	}
	if len(stale) == 0 {
		return 0
	}

	removed := s.removeNodesLocked(stale)
	s.logger.Debug("Pruned old nodes",
		zap.Int("removed", removed),
		zap.Duration("max_age", maxAge),
	)
	return removed
}

// LimitCount keeps only the maxNodes most recently created nodes, cascading to the
// edges of the ones dropped. Surviving nodes keep their order.
func (s *Store) LimitCount(maxNodes int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxNodes < 0 {
		maxNodes = 0
	}
	if len(s.nodes) <= maxNodes {
		return 0
	}

	now := s.now()
	ranked := make([]Node, len(s.nodes))
	copy(ranked, s.nodes)
	sort.SliceStable(ranked, func(i, j int) bool {
		return age(ranked[i], now).After(age(ranked[j], now))
	})

	drop := make(map[string]bool, len(ranked)-maxNodes)
	for _, n := range ranked[maxNodes:] {
		drop[n.ID] = true
	}

	removed := s.removeNodesLocked(drop)
	s.logger.Debug("Limited node count",
		zap.Int("removed", removed),
		zap.Int("max_nodes", maxNodes),
	)
	return removed
}

// Name identifies the store to the retention manager
func (s *Store) Name() string { return "nodes" }

// Len returns the number of nodes
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Reset drops everything except a fresh root prompt node
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = []Node{rootNode()}
	s.edges = nil
	s.viewport = Viewport{Zoom: 1}
	s.publish()
	s.logger.Info("Canvas reset")
}

// age returns the creation time used for eviction; unknown means now
func age(n Node, now time.Time) time.Time {
	if created := n.CreatedAt(); !created.IsZero() {
		return created
	}
	return now
}
