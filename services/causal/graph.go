// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package causal maintains the temporal knowledge graph: a bounded,
// concurrency-safe record of directed service-to-service observations
// with time-windowed neighbor queries, plus the treatment-effect
// estimator and the narrative chain heuristic consumed by the analysis
// stage.
package causal

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianSentinel/pkg/ringbuf"
)

// timestampEpsilon is the tolerance used to match an index entry back to
// its concrete observation in the edge ring.
const timestampEpsilon = time.Millisecond

// TemporalGraph records directed, timestamped service interactions with
// hard memory bounds.
//
// # Description
//
// Each directed edge (from, to) holds a ring of the most recent
// EdgeCapacity observations. A global chronological index of
// (timestamp, from, to) rows, bounded to MaxIndexEntries, accelerates
// windowed queries via binary search.
//
// The binary search assumes callers submit observations in non-decreasing
// timestamp order. The graph does not reject out-of-order submissions:
// the row is retained, a sorted flag flips false, and windowed queries
// fall back to a full linear scan of the index until the index has been
// fully recycled. Queries therefore never silently miss; out-of-order
// producers only pay a performance cost.
//
// # Thread Safety
//
// All operations serialize through one mutex. The graph, the edge rings,
// the index, and the node snapshots mutate together, so there is no
// reader/writer split.
type TemporalGraph struct {
	mu sync.Mutex

	nodes map[string]*ServiceNode
	edges map[edgeKey]*ringbuf.Ring[Observation]
	index *ringbuf.Ring[indexEntry]

	edgeCap int
	sorted  bool

	logger *slog.Logger
}

// GraphConfig bounds the memory of a TemporalGraph.
type GraphConfig struct {
	// EdgeCapacity is the per-edge observation ring size. Default: 100.
	EdgeCapacity int

	// MaxIndexEntries bounds the global chronological index. Default: 5000.
	MaxIndexEntries int

	// Logger receives structural warnings. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultGraphConfig returns the production bounds: 100 observations per
// edge, 5000 index rows.
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		EdgeCapacity:    100,
		MaxIndexEntries: 5000,
	}
}

// NewTemporalGraph creates an empty graph with the given bounds.
func NewTemporalGraph(cfg GraphConfig) *TemporalGraph {
	if cfg.EdgeCapacity <= 0 {
		cfg.EdgeCapacity = 100
	}
	if cfg.MaxIndexEntries <= 0 {
		cfg.MaxIndexEntries = 5000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TemporalGraph{
		nodes:   make(map[string]*ServiceNode),
		edges:   make(map[edgeKey]*ringbuf.Ring[Observation]),
		index:   ringbuf.New[indexEntry](cfg.MaxIndexEntries),
		edgeCap: cfg.EdgeCapacity,
		sorted:  true,
		logger:  cfg.Logger,
	}
}

// AddObservation records one interaction on the directed edge from -> to.
//
// # Description
//
// Ensures both nodes and the edge exist, appends the observation to the
// edge ring (evicting the oldest past capacity), appends a row to the
// chronological index (evicting the oldest past the index bound), and,
// when the observation carries resource metrics, overwrites the source
// node's cached snapshot. Amortized O(1).
//
// # Inputs
//
//   - obs: The observation. Timestamp should be non-decreasing across
//     calls; an out-of-order timestamp is retained but downgrades
//     windowed queries to linear scans.
//
// # Outputs
//
//   - error: ErrEmptyService when either service id is blank.
func (g *TemporalGraph) AddObservation(from, to string, obs Observation) error {
	if from == "" || to == "" {
		return ErrEmptyService
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if newest, ok := g.index.PeekNewest(); ok && obs.Timestamp.Before(newest.ts) {
		if g.sorted {
			g.logger.Warn("out-of-order observation, windowed queries degrade to linear scan",
				"from", from, "to", to,
				"timestamp", obs.Timestamp,
				"newest", newest.ts,
			)
		}
		g.sorted = false
	}

	g.ensureNode(from)
	g.ensureNode(to)

	key := edgeKey{from: from, to: to}
	ring, ok := g.edges[key]
	if !ok {
		ring = ringbuf.New[Observation](g.edgeCap)
		g.edges[key] = ring
	}
	ring.Push(obs)

	g.index.Push(indexEntry{ts: obs.Timestamp, from: from, to: to})

	if obs.HasResources {
		node := g.nodes[from]
		node.CurrentCPU = obs.CPUFrom
		node.CurrentMemory = obs.MemFrom
		node.LastUpdated = obs.Timestamp
	}

	return nil
}

// GetCausalNeighbors returns the upstream observations targeting service
// within the trailing window ending at now.
//
// # Description
//
// Computes cutoff = now - window, locates the first index row at or after
// the cutoff by binary search over the chronological index (linear scan
// when the index is known unsorted), and resolves each matching row to
// its concrete observation in the edge ring by timestamp equality within
// one millisecond. Rows whose observation has already been evicted from
// the edge ring resolve to nothing; the query treats that as "no detail
// available", not an error.
//
// # Outputs
//
//   - map[string][]Observation: Upstream service id to its observations,
//     oldest first. Empty map when nothing matches.
//   - error: ErrEmptyService or ErrNegativeWindow on bad arguments.
func (g *TemporalGraph) GetCausalNeighbors(service string, window time.Duration, now time.Time) (map[string][]Observation, error) {
	if service == "" {
		return nil, ErrEmptyService
	}
	if window <= 0 {
		return nil, ErrNegativeWindow
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	result := make(map[string][]Observation)
	n := g.index.Len()
	if n == 0 {
		return result, nil
	}

	cutoff := now.Add(-window)

	start := 0
	if g.sorted {
		start = sort.Search(n, func(i int) bool {
			return !g.index.At(i).ts.Before(cutoff)
		})
	}

	for i := start; i < n; i++ {
		entry := g.index.At(i)
		if entry.to != service {
			continue
		}
		if entry.ts.Before(cutoff) || entry.ts.After(now) {
			continue
		}
		if obs, ok := g.resolveObservation(entry); ok {
			result[entry.from] = append(result[entry.from], obs)
		}
	}

	return result, nil
}

// resolveObservation matches an index row to the concrete observation in
// its edge ring. Callers hold g.mu.
func (g *TemporalGraph) resolveObservation(entry indexEntry) (Observation, bool) {
	ring, ok := g.edges[edgeKey{from: entry.from, to: entry.to}]
	if !ok {
		return Observation{}, false
	}

	var (
		found Observation
		hit   bool
	)
	ring.ForEach(func(obs Observation) bool {
		d := obs.Timestamp.Sub(entry.ts)
		if d < 0 {
			d = -d
		}
		if d < timestampEpsilon {
			found = obs
			hit = true
			return false
		}
		return true
	})
	return found, hit
}

// PruneOldEdges drops observations older than maxAge and removes edges
// whose ring empties entirely.
//
// # Description
//
// For every edge, retains only observations with timestamp at or after
// now - maxAge. An edge with no fresh observations is deleted; a node
// is deleted once no retained edge references it. Intended to run on a
// periodic maintenance trigger so AddObservation stays O(1).
//
// # Outputs
//
//   - int: Number of edges removed.
func (g *TemporalGraph) PruneOldEdges(maxAge time.Duration, now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := now.Add(-maxAge)
	removed := 0

	for key, ring := range g.edges {
		fresh := ring.Filter(func(obs Observation) bool {
			return !obs.Timestamp.Before(cutoff)
		})

		if len(fresh) == 0 {
			delete(g.edges, key)
			removed++
			continue
		}
		if len(fresh) == ring.Len() {
			continue
		}

		ring.Clear()
		for _, obs := range fresh {
			ring.Push(obs)
		}
	}

	g.dropOrphanNodes()

	if removed > 0 {
		g.logger.Debug("pruned aged edges", "removed", removed, "max_age", maxAge.String())
	}
	return removed
}

// dropOrphanNodes removes nodes no retained edge references. Callers
// hold g.mu.
func (g *TemporalGraph) dropOrphanNodes() {
	referenced := make(map[string]struct{}, len(g.nodes))
	for key := range g.edges {
		referenced[key.from] = struct{}{}
		referenced[key.to] = struct{}{}
	}
	for id := range g.nodes {
		if _, ok := referenced[id]; !ok {
			delete(g.nodes, id)
		}
	}
}

// ServiceState returns a copy of the cached resource snapshot for a
// service, or false when the service is not in the graph.
func (g *TemporalGraph) ServiceState(service string) (ServiceNode, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[service]
	if !ok {
		return ServiceNode{}, false
	}
	return *node, true
}

// Stats returns a point-in-time size summary.
func (g *TemporalGraph) Stats() GraphStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	observations := 0
	for _, ring := range g.edges {
		observations += ring.Len()
	}
	return GraphStats{
		Nodes:        len(g.nodes),
		Edges:        len(g.edges),
		Observations: observations,
		IndexSize:    g.index.Len(),
		IndexSorted:  g.sorted,
	}
}

// Clear drops all graph state. Used by the clear-all-state boundary
// operation and by tests.
func (g *TemporalGraph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[string]*ServiceNode)
	g.edges = make(map[edgeKey]*ringbuf.Ring[Observation])
	g.index.Clear()
	g.sorted = true
}

// ensureNode creates the node if absent. Callers hold g.mu.
func (g *TemporalGraph) ensureNode(id string) {
	if _, ok := g.nodes[id]; !ok {
		g.nodes[id] = &ServiceNode{ID: id}
	}
}
